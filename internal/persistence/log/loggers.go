package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
)

// JSONLZstdWriter appends JSON lines to zstd files, one file per segment.
// Segments are named by the caller (game year for the week log), so a replay
// of the same game writes the same files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu     sync.Mutex
	curSeg string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(segment string, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if segment != w.curSeg || w.w == nil {
		if err := w.rotateLocked(segment); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(segment string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(segment)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = segment
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curSeg = ""
	return err1
}

func (w *JSONLZstdWriter) pathFor(segment string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, segment))
}

func yearSegment(week int) string {
	// Weeks 1..52 are year 1.
	return fmt.Sprintf("y%03d", (week-1)/52+1)
}

// WeekLogger writes one JSONL entry per simulated week (compressed).
type WeekLogger struct{ w *JSONLZstdWriter }

func NewWeekLogger(gameDir string) *WeekLogger {
	return &WeekLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "weeks"), "weeks")}
}

func (l *WeekLogger) WriteWeek(v engine.WeekLogEntry) error {
	return l.w.Write(yearSegment(v.Week), v)
}
func (l *WeekLogger) Close() error { return l.w.Close() }

// NotificationLogger keeps every notification the player was sent.
type NotificationLogger struct{ w *JSONLZstdWriter }

func NewNotificationLogger(gameDir string) *NotificationLogger {
	return &NotificationLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "notifications"), "notifications")}
}

type NotificationEntry struct {
	Week int `json:"week"`
	model.Notification
}

func (l *NotificationLogger) WriteNotifications(week int, ns []model.Notification) error {
	for _, n := range ns {
		if err := l.w.Write(yearSegment(week), NotificationEntry{Week: week, Notification: n}); err != nil {
			return err
		}
	}
	return nil
}
func (l *NotificationLogger) Close() error { return l.w.Close() }

// ReadWeeks loads every week entry under gameDir in week order.
func ReadWeeks(gameDir string) ([]engine.WeekLogEntry, error) {
	var out []engine.WeekLogEntry
	err := readAll(filepath.Join(gameDir, "weeks"), "weeks-", func(line []byte) error {
		var e engine.WeekLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, err
}

func readAll(dir, prefix string, fn func([]byte) error) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := readFile(filepath.Join(dir, name), fn); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func readFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

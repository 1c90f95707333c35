package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"charttopper.fm/internal/sim/model"
)

// Version is the current save format.
const Version = 1

var ErrBadHeader = errors.New("snapshot: bad header")

// Header is the first line of a save file. It can be read without decoding
// the state that follows.
type Header struct {
	Version        int    `json:"version"`
	Week           int    `json:"week"`
	Seed           int64  `json:"seed"`
	CatalogsDigest string `json:"catalogs_digest"`
	TuningVersion  string `json:"tuning_version"`
	StateDigest    string `json:"state_digest,omitempty"`
	// Autoplay marks games whose weekly decisions come from engine.Autoplay.
	Autoplay bool `json:"autoplay,omitempty"`
}

type SnapshotV1 struct {
	Header Header      `json:"header"`
	State  model.State `json:"state"`
}

// FileName is the save name for a week; names sort in week order.
func FileName(week int) string {
	return fmt.Sprintf("week-%06d.snap.zst", week)
}

// WriteSnapshot writes a save via a temp file so a crash never leaves a
// truncated save under path.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := write(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func write(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap.State); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	h, err := readHeader(br)
	if err != nil {
		return snap, err
	}
	snap.Header = h
	if err := json.NewDecoder(br).Decode(&snap.State); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	if snap.State.Week != h.Week || snap.State.Seed != h.Seed {
		return snap, fmt.Errorf("%w: header week=%d seed=%d, state week=%d seed=%d",
			ErrBadHeader, h.Week, h.Seed, snap.State.Week, snap.State.Seed)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, h.Version)
	}
	return h, nil
}

// Latest returns the newest save in dir, or "" when there is none.
func Latest(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "week-") && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

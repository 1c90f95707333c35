package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

// SQLiteIndex is a queryable archive of finished weeks. Writes are queued
// to a single writer goroutine and dropped when the queue is full; the week
// log and saves remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropWeek atomic.Uint64
	dropSave atomic.Uint64
}

type reqKind int

const (
	reqWeek reqKind = iota + 1
	reqSave
	reqSync
)

type req struct {
	kind reqKind

	week weekRow
	save saveRow
	done chan struct{}
}

type weekRow struct {
	Week          int
	Date          string
	Digest        string
	Fast          bool
	Entries       []model.ChartEntry
	Awards        []awardRow
	Notifications []model.Notification
}

type awardRow struct {
	EntityID   string
	Kind       string
	Title      string
	Artist     string
	NPC        bool
	Level      string
	Multiplier int
	Units      int64
}

type saveRow struct {
	Week   int
	Path   string
	Seed   int64
	Digest string
}

type Stats struct {
	DropWeekTotal uint64
	DropSaveTotal uint64
	QueueDepth    int
	QueueCapacity int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS weeks (
			week INTEGER PRIMARY KEY,
			date TEXT NOT NULL,
			digest TEXT NOT NULL,
			fast INTEGER NOT NULL,
			notifications INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chart_entries (
			week INTEGER NOT NULL,
			chart TEXT NOT NULL,
			rank INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			npc INTEGER NOT NULL,
			units REAL NOT NULL,
			last_week INTEGER NOT NULL,
			peak INTEGER NOT NULL,
			weeks_on_chart INTEGER NOT NULL,
			movement TEXT NOT NULL,
			PRIMARY KEY (week, chart, rank)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chart_entries_entity ON chart_entries(entity_id, chart, week);`,
		`CREATE TABLE IF NOT EXISTS certifications (
			entity_id TEXT NOT NULL,
			level TEXT NOT NULL,
			multiplier INTEGER NOT NULL,
			week INTEGER NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			npc INTEGER NOT NULL,
			units INTEGER NOT NULL,
			PRIMARY KEY (entity_id, level, multiplier)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			week INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (week, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			week INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropWeekTotal: s.dropWeek.Load(),
		DropSaveTotal: s.dropSave.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// RecordWeek queues a finished week for indexing.
func (s *SQLiteIndex) RecordWeek(res engine.WeekResult) {
	if s == nil || s.closed.Load() {
		return
	}
	row := weekRow{
		Week:          res.State.Week,
		Date:          res.State.Date.Format("2006-01-02"),
		Digest:        res.Digest,
		Fast:          res.Fast,
		Notifications: res.Notifications,
	}
	for _, id := range model.ChartIDs {
		row.Entries = append(row.Entries, res.State.Charts.Get(id)...)
	}
	for _, a := range res.Awards {
		row.Awards = append(row.Awards, awardRow{
			EntityID:   a.EntityID,
			Kind:       string(a.Kind),
			Title:      a.Title,
			Artist:     a.Artist,
			NPC:        a.NPC,
			Level:      string(a.Tier.Level),
			Multiplier: a.Tier.Multiplier,
			Units:      a.Units,
		})
	}
	select {
	case s.ch <- req{kind: reqWeek, week: row}:
	default:
		s.dropWeek.Add(1)
	}
}

func (s *SQLiteIndex) RecordSave(path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSave, save: saveRow{Week: h.Week, Path: path, Seed: h.Seed, Digest: h.StateDigest}}:
	default:
		s.dropSave.Add(1)
	}
}

// Sync blocks until everything queued so far is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertCatalogs stores the reference data the game runs with, so archived
// weeks can be traced to their inputs.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	add := func(name, digest string, v any) {
		b, err := json.Marshal(v)
		if err != nil || len(b) == 0 {
			return
		}
		if digest == "" {
			sum := sha256.Sum256(b)
			digest = hex.EncodeToString(sum[:])
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	add("charts", cats.Charts.Digest, cats.Charts.ByID)
	add("certifications", cats.Certs.Digest, cats.Certs.Ladder)
	add("vocab", cats.Vocab.Digest, cats.Vocab)
	add("roster", cats.Roster.Digest, cats.Roster.Artists)
	add("tuning", "", tune)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalogs_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertWeek, _ := s.db.Prepare(`INSERT OR REPLACE INTO weeks(week,date,digest,fast,notifications) VALUES(?,?,?,?,?)`)
	clearEntries, _ := s.db.Prepare(`DELETE FROM chart_entries WHERE week=?`)
	insertEntry, _ := s.db.Prepare(`INSERT OR REPLACE INTO chart_entries(week,chart,rank,entity_id,kind,title,artist,npc,units,last_week,peak,weeks_on_chart,movement) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertCert, _ := s.db.Prepare(`INSERT OR IGNORE INTO certifications(entity_id,level,multiplier,week,kind,title,artist,npc,units) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertNote, _ := s.db.Prepare(`INSERT OR REPLACE INTO notifications(week,seq,id,category,message) VALUES(?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(week,path,seed,digest) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertWeek, clearEntries, insertEntry, insertCert, insertNote, insertSave} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqWeek:
			w := r.week
			if !exec(insertWeek, w.Week, w.Date, w.Digest, boolInt(w.Fast), len(w.Notifications)) {
				continue
			}
			if !exec(clearEntries, w.Week) {
				continue
			}
			ok := true
			for _, e := range w.Entries {
				if ok = exec(insertEntry, w.Week, string(e.Chart), e.Rank, e.EntityID, string(e.Kind), e.Title, e.Artist,
					boolInt(e.NPC), e.Units, e.LastWeek, e.Peak, e.WeeksOnChart, string(e.Movement)); !ok {
					break
				}
			}
			for _, a := range w.Awards {
				if !ok {
					break
				}
				ok = exec(insertCert, a.EntityID, a.Level, a.Multiplier, w.Week, a.Kind, a.Title, a.Artist, boolInt(a.NPC), a.Units)
			}
			for i, n := range w.Notifications {
				if !ok {
					break
				}
				ok = exec(insertNote, w.Week, i, n.ID, n.Category, n.Message)
			}

		case reqSave:
			sv := r.save
			exec(insertSave, sv.Week, sv.Path, sv.Seed, sv.Digest)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

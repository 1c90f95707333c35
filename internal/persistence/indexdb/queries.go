package indexdb

import (
	"context"
	"database/sql"
	"errors"

	"charttopper.fm/internal/sim/model"
)

// RunWeek is one week of an entity's chart run.
type RunWeek struct {
	Week     int
	Rank     int
	Peak     int
	Movement model.Movement
}

// ChartRun returns every archived week entityID spent on chart, oldest first.
func (s *SQLiteIndex) ChartRun(ctx context.Context, chart model.ChartID, entityID string) ([]RunWeek, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week, rank, peak, movement FROM chart_entries WHERE entity_id=? AND chart=? ORDER BY week`,
		entityID, string(chart))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunWeek
	for rows.Next() {
		var r RunWeek
		var mv string
		if err := rows.Scan(&r.Week, &r.Rank, &r.Peak, &mv); err != nil {
			return nil, err
		}
		r.Movement = model.Movement(mv)
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeekCount is the number of archived weeks.
func (s *SQLiteIndex) WeekCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weeks`).Scan(&n)
	return n, err
}

// LatestWeek is the newest archived week, 0 when empty.
func (s *SQLiteIndex) LatestWeek(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(week), 0) FROM weeks`).Scan(&n)
	return n, err
}

// WeekDigest returns the state digest recorded for week, or "" if absent.
func (s *SQLiteIndex) WeekDigest(ctx context.Context, week int) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM weeks WHERE week=?`, week).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d, err
}

// Top returns the first n rows of chart for week.
func (s *SQLiteIndex) Top(ctx context.Context, chart model.ChartID, week, n int) ([]model.ChartEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, entity_id, kind, title, artist, npc, units, last_week, peak, weeks_on_chart, movement
		 FROM chart_entries WHERE week=? AND chart=? ORDER BY rank LIMIT ?`,
		week, string(chart), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChartEntry
	for rows.Next() {
		e := model.ChartEntry{Chart: chart}
		var kind, mv string
		var npc int
		if err := rows.Scan(&e.Rank, &e.EntityID, &kind, &e.Title, &e.Artist, &npc, &e.Units,
			&e.LastWeek, &e.Peak, &e.WeeksOnChart, &mv); err != nil {
			return nil, err
		}
		e.Kind = model.Kind(kind)
		e.NPC = npc != 0
		e.Movement = model.Movement(mv)
		out = append(out, e)
	}
	return out, rows.Err()
}

type CertRow struct {
	Level      model.CertLevel
	Multiplier int
	Week       int
	Units      int64
}

// Certifications lists the awards archived for entityID in award order.
func (s *SQLiteIndex) Certifications(ctx context.Context, entityID string) ([]CertRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, multiplier, week, units FROM certifications WHERE entity_id=? ORDER BY week, rowid`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CertRow
	for rows.Next() {
		var c CertRow
		var lvl string
		if err := rows.Scan(&lvl, &c.Multiplier, &c.Week, &c.Units); err != nil {
			return nil, err
		}
		c.Level = model.CertLevel(lvl)
		out = append(out, c)
	}
	return out, rows.Err()
}

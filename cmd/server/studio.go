package main

import (
	"context"
	"errors"
	"fmt"

	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/transport/mcp"
)

var errAutoplay = errors.New("autoplay is on; restart with -autoplay=false to play by hand")

// studio lets mcp tools play the live game. Every call runs on the loop
// goroutine; decisions are checked against the preview state and applied
// for real at the start of the next week.
type studio struct{ g *gameLoop }

func (s studio) Status(ctx context.Context) (mcp.Status, error) {
	var out mcp.Status
	err := s.g.exec(ctx, func() {
		st := s.g.preview
		out = mcp.Status{
			Week:             st.Week,
			Date:             st.Date.Format("2006-01-02"),
			Player:           st.Player.Name,
			Money:            st.Player.Money,
			MonthlyListeners: st.Player.MonthlyListeners,
			Reputation:       st.Player.Reputation,
			Unreleased:       []string{},
			Pending:          len(s.g.pending),
		}
		for _, id := range model.SortedIDs(st.Tracks) {
			if t := st.Tracks[id]; t.Release.Status != model.ReleaseReleased && t.ProjectID == "" {
				out.Unreleased = append(out.Unreleased, id)
			}
		}
		for _, id := range model.SortedIDs(st.Projects) {
			if st.Projects[id].Release.Status != model.ReleaseReleased {
				out.Unreleased = append(out.Unreleased, id)
			}
		}
	})
	return out, err
}

func (s studio) Charts(ctx context.Context, chart model.ChartID, top int) ([]model.ChartEntry, error) {
	known := false
	for _, id := range model.ChartIDs {
		known = known || id == chart
	}
	if !known {
		return nil, fmt.Errorf("unknown chart %q", chart)
	}
	var out []model.ChartEntry
	err := s.g.exec(ctx, func() {
		rows := s.g.state.Charts.Get(chart)
		if len(rows) > top {
			rows = rows[:top]
		}
		out = append([]model.ChartEntry(nil), rows...)
	})
	return out, err
}

func (s studio) Decide(ctx context.Context, d engine.Decision) (mcp.Decided, error) {
	var out mcp.Decided
	var derr error
	err := s.g.exec(ctx, func() {
		if s.g.auto != nil {
			derr = errAutoplay
			return
		}
		next, id, err := engine.Apply(s.g.preview, d)
		if err != nil {
			derr = err
			return
		}
		s.g.preview = next
		s.g.pending = append(s.g.pending, d)
		out = mcp.Decided{ID: id, Pending: len(s.g.pending)}
	})
	if err != nil {
		return out, err
	}
	return out, derr
}

func (s studio) Pending(ctx context.Context) ([]engine.Decision, error) {
	var out []engine.Decision
	err := s.g.exec(ctx, func() {
		out = append([]engine.Decision{}, s.g.pending...)
	})
	return out, err
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

type fakeIndex struct {
	weeks []int
	saves []string
}

func (f *fakeIndex) RecordWeek(res engine.WeekResult)          { f.weeks = append(f.weeks, res.State.Week) }
func (f *fakeIndex) RecordSave(path string, h snapshot.Header) { f.saves = append(f.saves, path) }

type fakeFeed struct{ n int }

func (f *fakeFeed) Publish(engine.WeekResult) { f.n++ }

type fakeMirror struct{ paths []string }

func (f *fakeMirror) Enqueue(p string) bool {
	f.paths = append(f.paths, p)
	return true
}
func (f *fakeMirror) EnqueueIfExists(p string) bool {
	if _, err := os.Stat(p); err != nil {
		return false
	}
	return f.Enqueue(p)
}

type fakeNotes struct{ n int }

func (f *fakeNotes) WriteNotifications(week int, ns []model.Notification) error {
	f.n += len(ns)
	return nil
}

func newTestLoop(t *testing.T) (*gameLoop, *fakeIndex, *fakeFeed, *fakeMirror) {
	t.Helper()
	cats := catalogs.Defaults()
	tune := tuning.Defaults()
	sim, err := engine.New(engine.Config{Tuning: tune, Catalogs: cats})
	if err != nil {
		t.Fatal(err)
	}
	st := engine.NewGame(tune, engine.GameConfig{Seed: 9, PlayerName: "Loop"})
	g := newGameLoop(sim, st, log.New(io.Discard, "", 0))
	dir := t.TempDir()
	g.gameDir = dir
	g.saveDir = filepath.Join(dir, "saves")
	g.every = 13
	g.fastRuns = true
	ap := engine.DefaultAutoplay(cats)
	g.auto = &ap
	idx, fd, mir := &fakeIndex{}, &fakeFeed{}, &fakeMirror{}
	g.index, g.feed, g.mirror, g.notes = idx, fd, mir, &fakeNotes{}
	return g, idx, fd, mir
}

func TestGameLoopStepSavesAndArchives(t *testing.T) {
	g, idx, fd, mir := newTestLoop(t)
	for i := 0; i < 52; i++ {
		g.step()
	}
	if g.state.Week != 52 || len(idx.weeks) != 52 || fd.n != 52 {
		t.Fatalf("week=%d indexed=%d published=%d", g.state.Week, len(idx.weeks), fd.n)
	}
	if len(idx.saves) != 4 {
		t.Fatalf("saves=%v want 4", idx.saves)
	}

	last := filepath.Join(g.saveDir, snapshot.FileName(52))
	snap, err := snapshot.ReadSnapshot(last)
	if err != nil {
		t.Fatalf("read save: %v", err)
	}
	if !snap.Header.Autoplay || snap.Header.StateDigest != g.digest || engine.Digest(snap.State) != g.digest {
		t.Fatalf("header=%+v digest=%s", snap.Header, g.digest)
	}
	if _, err := os.Stat(filepath.Join(g.gameDir, "archives", "year_001", "meta.json")); err != nil {
		t.Fatalf("year archive: %v", err)
	}
	// 4 saves plus the archived copy and its meta.
	if len(mir.paths) != 6 {
		t.Fatalf("mirrored=%v", mir.paths)
	}
}

func TestGameLoopAdminRequests(t *testing.T) {
	g, _, _, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/state", loopbackOnly(g.stateHandler()))
	mux.HandleFunc("/admin/v1/step", loopbackOnly(g.stepHandler()))
	mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(g.saveHandler()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/v1/step", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		State stateSummary `json:"state"`
		Path  string       `json:"path"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if err != nil || out.State.Week != 1 || out.State.Player != "Loop" {
		t.Fatalf("step: %+v err=%v", out, err)
	}

	resp, err = http.Post(srv.URL+"/admin/v1/snapshot", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if err != nil || filepath.Base(out.Path) != snapshot.FileName(1) {
		t.Fatalf("save: %+v err=%v", out, err)
	}

	resp, err = http.Post(srv.URL+"/admin/v1/state", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST state status=%d", resp.StatusCode)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.4:1234":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestStudioQueuesDecisionsForNextWeek(t *testing.T) {
	g, _, _, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := studio{g: g}

	go g.Run(ctx, time.Hour)
	if _, err := st.Decide(ctx, engine.Decision{Kind: engine.DecideRecordTrack, Track: &engine.TrackSpec{Title: "x", Quality: 50}}); err != errAutoplay {
		t.Fatalf("err=%v want errAutoplay", err)
	}
	cancel()

	g, _, _, _ = newTestLoop(t)
	g.auto = nil
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx, time.Hour)
	st = studio{g: g}

	d, err := st.Decide(ctx, engine.Decision{Kind: engine.DecideRecordTrack, Track: &engine.TrackSpec{Title: "Hand Made", Genre: "Pop", Quality: 85}})
	if err != nil || d.ID != "trk_1" || d.Pending != 1 {
		t.Fatalf("decided=%+v err=%v", d, err)
	}
	status, err := st.Status(ctx)
	if err != nil || status.Pending != 1 || len(status.Unreleased) != 1 || status.Unreleased[0] != "trk_1" {
		t.Fatalf("status=%+v err=%v", status, err)
	}
	if _, err := st.Decide(ctx, engine.Decision{Kind: engine.DecideSchedule, ID: "trk_1", At: engine.DefaultStartDate.AddDate(0, 0, -7)}); err == nil {
		t.Fatalf("expected past date to be rejected")
	}
	if _, err := st.Decide(ctx, engine.Decision{Kind: engine.DecideSchedule, ID: "trk_1", At: engine.DefaultStartDate.AddDate(0, 0, 7)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if _, err := g.request(ctx, adminStep); err != nil {
		t.Fatal(err)
	}
	pending, err := st.Pending(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending=%v err=%v", pending, err)
	}
	var tr model.Track
	if err := g.exec(ctx, func() { tr = g.state.Tracks["trk_1"] }); err != nil {
		t.Fatal(err)
	}
	if tr.Release.Status != model.ReleaseReleased {
		t.Fatalf("track=%+v", tr)
	}
	rows, err := st.Charts(ctx, model.ChartHot100, 5)
	if err != nil || len(rows) != 5 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
	if _, err := st.Charts(ctx, "top40", 5); err == nil {
		t.Fatalf("expected unknown chart error")
	}
}

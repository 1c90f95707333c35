package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	persistlog "charttopper.fm/internal/persistence/log"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/tuning"
)

// record plays n autoplay weeks from a fresh game, logging each week, and
// returns the week-0 save.
func record(t *testing.T, gameDir string, n int) (*engine.Simulator, snapshot.SnapshotV1) {
	t.Helper()
	cats := catalogs.Defaults()
	tune := tuning.Defaults()
	sim, err := engine.New(engine.Config{Tuning: tune, Catalogs: cats})
	if err != nil {
		t.Fatal(err)
	}
	st := engine.NewGame(tune, engine.GameConfig{Seed: 77})
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:        snapshot.Version,
			Seed:           st.Seed,
			CatalogsDigest: cats.Digest(),
			TuningVersion:  tune.Version,
			StateDigest:    engine.Digest(st),
			Autoplay:       true,
		},
		State: st,
	}
	if err := snapshot.WriteSnapshot(filepath.Join(gameDir, "saves", snapshot.FileName(0)), snap); err != nil {
		t.Fatal(err)
	}

	wl := persistlog.NewWeekLogger(gameDir)
	sim.SetWeekLogger(wl)
	ap := engine.DefaultAutoplay(cats)
	for i := 0; i < n; i++ {
		st = sim.SimulateWeek(ap.Plan(st), engine.Options{Fast: i%2 == 0}).State
	}
	if err := wl.Close(); err != nil {
		t.Fatal(err)
	}
	sim.SetWeekLogger(nil)
	return sim, snap
}

func TestReplayVerifiesLoggedWeeks(t *testing.T) {
	gameDir := t.TempDir()
	sim, _ := record(t, gameDir, 8)

	p, err := earliestSave(filepath.Join(gameDir, "saves"))
	if err != nil || filepath.Base(p) != snapshot.FileName(0) {
		t.Fatalf("earliest=%q err=%v", p, err)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := persistlog.ReadWeeks(gameDir)
	if err != nil {
		t.Fatal(err)
	}

	n, err := replay(sim, snap, entries, 0)
	if err != nil || n != 8 {
		t.Fatalf("checked=%d err=%v", n, err)
	}
	n, err = replay(sim, snap, entries, 5)
	if err != nil || n != 5 {
		t.Fatalf("to_week: checked=%d err=%v", n, err)
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	gameDir := t.TempDir()
	sim, snap := record(t, gameDir, 4)
	entries, err := persistlog.ReadWeeks(gameDir)
	if err != nil {
		t.Fatal(err)
	}
	entries[2].Digest = "bogus"
	n, err := replay(sim, snap, entries, 0)
	if err == nil || !strings.Contains(err.Error(), "week 3") || n != 2 {
		t.Fatalf("checked=%d err=%v", n, err)
	}
}

func TestReplayWithoutAutoplayDiverges(t *testing.T) {
	gameDir := t.TempDir()
	sim, snap := record(t, gameDir, 4)
	entries, err := persistlog.ReadWeeks(gameDir)
	if err != nil {
		t.Fatal(err)
	}
	snap.Header.Autoplay = false
	if _, err := replay(sim, snap, entries, 0); err == nil {
		t.Fatalf("expected mismatch when autoplay decisions are skipped")
	}
}

func TestReplayRejectsChangedCatalogs(t *testing.T) {
	sim, err := engine.New(engine.Config{Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatal(err)
	}
	snap := snapshot.SnapshotV1{Header: snapshot.Header{CatalogsDigest: "other"}}
	if _, err := replay(sim, snap, nil, 0); err == nil || !strings.Contains(err.Error(), "catalogs") {
		t.Fatalf("err=%v", err)
	}
}

func TestEarliestSaveMissingDir(t *testing.T) {
	if _, err := earliestSave(filepath.Join(t.TempDir(), "none")); !os.IsNotExist(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestReplayAppliesLoggedDecisions(t *testing.T) {
	gameDir := t.TempDir()
	tune := tuning.Defaults()
	sim, err := engine.New(engine.Config{Tuning: tune})
	if err != nil {
		t.Fatal(err)
	}
	st := engine.NewGame(tune, engine.GameConfig{Seed: 5})
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Seed: 5, StateDigest: engine.Digest(st)}, State: st}

	wl := persistlog.NewWeekLogger(gameDir)
	sim.SetWeekLogger(wl)
	ds := []engine.Decision{
		{Kind: engine.DecideRecordTrack, Track: &engine.TrackSpec{Title: "By Hand", Genre: "Pop", Quality: 70}},
		{Kind: engine.DecideSchedule, ID: "trk_1", At: st.Date.AddDate(0, 0, 14)},
	}
	st = sim.SimulateWeek(st, engine.Options{Decisions: ds}).State
	st = sim.SimulateWeek(st, engine.Options{}).State
	if err := wl.Close(); err != nil {
		t.Fatal(err)
	}
	sim.SetWeekLogger(nil)

	entries, err := persistlog.ReadWeeks(gameDir)
	if err != nil {
		t.Fatal(err)
	}
	n, err := replay(sim, snap, entries, 0)
	if err != nil || n != 2 {
		t.Fatalf("checked=%d err=%v", n, err)
	}
	if st.Tracks["trk_1"].Release.Status != "released" {
		t.Fatalf("track=%+v", st.Tracks["trk_1"])
	}
}

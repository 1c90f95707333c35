package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "charttopper.fm/internal/persistence/log"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (default: earliest save of -game)")
		gameDir    = flag.String("game", "", "game dir containing saves/ and weeks/ (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		toWeek     = flag.Int("to_week", 0, "stop at week (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *gameDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -game")
		os.Exit(2)
	}
	if *snapPath == "" {
		p, err := earliestSave(filepath.Join(*gameDir, "saves"))
		if err != nil || p == "" {
			fmt.Fprintln(os.Stderr, "no save found in", *gameDir, err)
			os.Exit(1)
		}
		*snapPath = p
	}
	if *gameDir == "" {
		// <game>/saves/<file>
		*gameDir = filepath.Dir(filepath.Dir(*snapPath))
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("save v%d week=%d seed=%d autoplay=%v tracks=%d projects=%d npc_tracks=%d npc_projects=%d\n",
		snap.Header.Version, snap.Header.Week, snap.Header.Seed, snap.Header.Autoplay,
		len(snap.State.Tracks), len(snap.State.Projects), len(snap.State.NPCTracks), len(snap.State.NPCProjects))

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	sim, err := engine.New(engine.Config{Tuning: tune, Catalogs: cats})
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}

	entries, err := persistlog.ReadWeeks(*gameDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read week log:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("no week log; save verified only")
	}

	checked, err := replay(sim, snap, entries, *toWeek)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d weeks (from save week=%d)\n", checked, snap.Header.Week)
}

// replay re-simulates the logged weeks after snap and compares digests. It
// stops at the first week missing from the log, or after toWeek when set.
func replay(sim *engine.Simulator, snap snapshot.SnapshotV1, entries []engine.WeekLogEntry, toWeek int) (int, error) {
	if d := snap.Header.CatalogsDigest; d != "" && d != sim.Catalogs().Digest() {
		return 0, fmt.Errorf("catalogs changed since save: save=%s now=%s", d, sim.Catalogs().Digest())
	}
	if v := snap.Header.TuningVersion; v != "" && v != sim.Tuning().Version {
		return 0, fmt.Errorf("tuning version changed since save: save=%s now=%s", v, sim.Tuning().Version)
	}
	st := snap.State
	if d := snap.Header.StateDigest; d != "" && d != engine.Digest(st) {
		return 0, fmt.Errorf("save digest mismatch at week %d", st.Week)
	}

	// A restart from an older save logs some weeks twice; both copies must agree.
	byWeek := make(map[int]engine.WeekLogEntry, len(entries))
	for _, e := range entries {
		if prev, ok := byWeek[e.Week]; ok && prev.Digest != e.Digest {
			return 0, fmt.Errorf("week %d logged with two digests", e.Week)
		}
		byWeek[e.Week] = e
	}

	var auto *engine.Autoplay
	if snap.Header.Autoplay {
		ap := engine.DefaultAutoplay(sim.Catalogs())
		auto = &ap
	}

	checked := 0
	for {
		want, ok := byWeek[st.Week+1]
		if !ok || (toWeek > 0 && want.Week > toWeek) {
			return checked, nil
		}
		if auto != nil {
			st = auto.Plan(st)
		}
		res := sim.SimulateWeek(st, engine.Options{Fast: want.Fast, Decisions: want.Decisions})
		if res.Digest != want.Digest {
			return checked, fmt.Errorf("digest mismatch at week %d: got=%s want=%s", want.Week, res.Digest, want.Digest)
		}
		if !want.Date.IsZero() && !res.State.Date.Equal(want.Date) {
			return checked, fmt.Errorf("date mismatch at week %d: got=%s want=%s", want.Week, res.State.Date, want.Date)
		}
		st = res.State
		checked++
	}
}

func earliestSave(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range ents {
		// ReadDir sorts by name, and save names sort by week.
		if !e.IsDir() && strings.HasPrefix(e.Name(), "week-") && strings.HasSuffix(e.Name(), ".snap.zst") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}

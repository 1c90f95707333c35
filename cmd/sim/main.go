package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rhymond/go-money"

	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

func main() {
	var (
		weeks      = flag.Int("weeks", 52, "weeks to simulate")
		seed       = flag.Int64("seed", 1337, "game seed")
		player     = flag.String("player", "New Artist", "player artist name")
		difficulty = flag.String("difficulty", "", "difficulty key (default from tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		autoplay   = flag.Bool("autoplay", true, "let the scripted manager make release decisions")
		fast       = flag.Bool("fast", false, "skip feed posts and summaries")
		top        = flag.Int("top", 10, "rows to print per chart")
		quiet      = flag.Bool("quiet", false, "print only the final week")
		out        = flag.String("out", "", "write a save of the final state here (optional)")
		verbose    = flag.Bool("v", false, "log simulator diagnostics to stderr")
	)
	flag.Parse()

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

	var simLog io.Writer = io.Discard
	if *verbose {
		simLog = os.Stderr
	}
	sim, err := engine.New(engine.Config{
		Tuning:   tune,
		Catalogs: cats,
		Logger:   log.New(simLog, "[sim] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}

	st := engine.NewGame(tune, engine.GameConfig{Seed: *seed, PlayerName: *player, Difficulty: *difficulty})
	var auto *engine.Autoplay
	if *autoplay {
		ap := engine.DefaultAutoplay(cats)
		auto = &ap
	}

	var res engine.WeekResult
	for i := 0; i < *weeks; i++ {
		if auto != nil {
			st = auto.Plan(st)
		}
		res = sim.SimulateWeek(st, engine.Options{Fast: *fast})
		st = res.State
		if !*quiet || i == *weeks-1 {
			printWeek(os.Stdout, res, *top)
		}
	}

	if *out != "" {
		h := snapshot.Header{
			Week:           st.Week,
			Seed:           st.Seed,
			CatalogsDigest: cats.Digest(),
			TuningVersion:  tune.Version,
			StateDigest:    engine.Digest(st),
			Autoplay:       auto != nil,
		}
		if err := snapshot.WriteSnapshot(*out, snapshot.SnapshotV1{Header: h, State: st}); err != nil {
			fmt.Fprintln(os.Stderr, "write save:", err)
			os.Exit(1)
		}
		fmt.Printf("saved week=%d to %s\n", st.Week, *out)
	}
}

func printWeek(w io.Writer, res engine.WeekResult, top int) {
	st := res.State
	fmt.Fprintf(w, "=== week %d (%s) digest=%s\n", st.Week, st.Date.Format("2006-01-02"), short(res.Digest))
	fmt.Fprintf(w, "player %q money=%s listeners=%d reputation=%.1f\n",
		st.Player.Name, dollars(st.Player.Money), st.Player.MonthlyListeners, st.Player.Reputation)
	for _, id := range model.ChartIDs {
		rows := st.Charts.Get(id)
		fmt.Fprintf(w, "-- %s (%d entries)\n", id, len(rows))
		for i, e := range rows {
			if i >= top {
				break
			}
			fmt.Fprintf(w, "%3d %-8s %-32s %-24s peak=%d wks=%d\n",
				e.Rank, movement(e), clip(e.Title, 32), clip(e.Artist, 24), e.Peak, e.WeeksOnChart)
		}
	}
	for _, n := range res.Notifications {
		fmt.Fprintf(w, "[%s] %s\n", n.Category, n.Message)
	}
	if len(res.TopTracks) > 0 {
		fmt.Fprintf(w, "your top tracks:")
		for _, t := range res.TopTracks {
			fmt.Fprintf(w, " %q", t.Title)
		}
		fmt.Fprintln(w)
	}
}

func movement(e model.ChartEntry) string {
	switch e.Movement {
	case model.MovementUp:
		return fmt.Sprintf("+%d", e.LastWeek-e.Rank)
	case model.MovementDown:
		return fmt.Sprintf("-%d", e.Rank-e.LastWeek)
	default:
		return string(e.Movement)
	}
}

func dollars(v float64) string {
	return money.New(int64(math.Round(v*100)), "USD").Display()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

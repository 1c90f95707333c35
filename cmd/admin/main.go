package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"charttopper.fm/internal/persistence/archive"
	"charttopper.fm/internal/persistence/indexdb"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/model"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "step":
			stepCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the saves of a game, or the games under -data.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "games")
	if *gameID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}

	saveDir := filepath.Join(base, *gameID, "saves")
	entries, err := os.ReadDir(saveDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAVE\tWEEK\tSEED\tAUTOPLAY\tDIGEST")
	for _, name := range names {
		h, err := snapshot.ReadHeader(filepath.Join(saveDir, name))
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", name, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%s\n", name, h.Week, h.Seed, h.Autoplay, short(h.StateDigest))
	}
	_ = tw.Flush()
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "game_1", "game id")
	_ = fs.Parse(args)

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	for year := 1; ; year++ {
		m, err := archive.ReadYearMeta(gameDir, year)
		if err != nil {
			if year == 1 {
				fmt.Println("no archived years")
			}
			return
		}
		fmt.Printf("year=%d end_week=%d save=%s digest=%s created=%s\n", m.Year, m.EndWeek, m.Save, short(m.StateDigest), m.CreatedAt)
	}
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "game_1", "game id")
	chart := fs.String("chart", string(model.ChartHot100), "chart id (hot100|bubblingUnderHot50|albums200)")
	week := fs.Int("week", 0, "week for `top` (0 = latest)")
	n := fs.Int("n", 10, "rows for `top`")
	id := fs.String("id", "", "entity id for `run` and `certs`")
	_ = fs.Parse(args)

	query := "weeks"
	if fs.NArg() > 0 {
		query = fs.Arg(0)
	}

	path := filepath.Join(*dataDir, "games", *gameID, "index", "charts.sqlite")
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch query {
	case "weeks":
		cnt, err := idx.WeekCount(ctx)
		exitOn(err)
		latest, err := idx.LatestWeek(ctx)
		exitOn(err)
		d, err := idx.WeekDigest(ctx, latest)
		exitOn(err)
		fmt.Printf("weeks=%d latest=%d digest=%s\n", cnt, latest, d)
	case "top":
		w := *week
		if w == 0 {
			w, err = idx.LatestWeek(ctx)
			exitOn(err)
		}
		rows, err := idx.Top(ctx, model.ChartID(*chart), w, *n)
		exitOn(err)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "#\tTITLE\tARTIST\tLW\tPEAK\tWKS\tMOVE\n")
		for _, e := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n", e.Rank, e.Title, e.Artist, e.LastWeek, e.Peak, e.WeeksOnChart, e.Movement)
		}
		_ = tw.Flush()
	case "run":
		requireID(*id)
		run, err := idx.ChartRun(ctx, model.ChartID(*chart), *id)
		exitOn(err)
		for _, r := range run {
			fmt.Printf("week=%d rank=%d peak=%d %s\n", r.Week, r.Rank, r.Peak, r.Movement)
		}
	case "certs":
		requireID(*id)
		certs, err := idx.Certifications(ctx, *id)
		exitOn(err)
		for _, c := range certs {
			fmt.Printf("week=%d %s x%d units=%d\n", c.Week, c.Level, c.Multiplier, c.Units)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown db query:", query, "(weeks|top|run|certs)")
		os.Exit(2)
	}
}

func requireID(id string) {
	if strings.TrimSpace(id) == "" {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

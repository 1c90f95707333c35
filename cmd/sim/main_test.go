package main

import (
	"bytes"
	"strings"
	"testing"

	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

func TestPrintWeek(t *testing.T) {
	sim, err := engine.New(engine.Config{Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatal(err)
	}
	res := sim.SimulateWeeks(engine.NewGame(tuning.Defaults(), engine.GameConfig{Seed: 3, PlayerName: "Printer"}), 2, engine.Options{})

	var buf bytes.Buffer
	printWeek(&buf, res, 3)
	out := buf.String()
	for _, want := range []string{"=== week 2", `player "Printer"`, "-- hot100", "-- albums200", "money=$"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMovement(t *testing.T) {
	cases := []struct {
		e    model.ChartEntry
		want string
	}{
		{model.ChartEntry{Rank: 3, LastWeek: 10, Movement: model.MovementUp}, "+7"},
		{model.ChartEntry{Rank: 12, LastWeek: 4, Movement: model.MovementDown}, "-8"},
		{model.ChartEntry{Rank: 1, Movement: model.MovementNew}, "new"},
	}
	for _, c := range cases {
		if got := movement(c.e); got != c.want {
			t.Fatalf("movement(%+v)=%q want %q", c.e, got, c.want)
		}
	}
}

func TestDollars(t *testing.T) {
	if got := dollars(1234.5); got != "$1,234.50" {
		t.Fatalf("dollars=%q", got)
	}
}

func TestClip(t *testing.T) {
	if got := clip("abcdef", 4); got != "abc…" {
		t.Fatalf("clip=%q", got)
	}
	if got := clip("abc", 4); got != "abc" {
		t.Fatalf("clip=%q", got)
	}
}

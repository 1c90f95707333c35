package mathx

import (
	"math"
	"testing"
)

func TestHashString_Stable(t *testing.T) {
	a := HashString("trk-1|2024-01-07")
	b := HashString("trk-1|2024-01-07")
	if a != b {
		t.Fatalf("hash not stable: %x vs %x", a, b)
	}
	if a == HashString("trk-1|2024-01-14") {
		t.Fatalf("expected different hash for different date")
	}
}

func TestUnit01_Range(t *testing.T) {
	for _, h := range []uint64{0, 1, 1 << 63, ^uint64(0)} {
		u := Unit01(h)
		if u < 0 || u >= 1 {
			t.Fatalf("Unit01(%x)=%v out of [0,1)", h, u)
		}
	}
}

func TestSeedFor_DiffersByStage(t *testing.T) {
	if SeedFor(42, 3, "npc") == SeedFor(42, 3, "review") {
		t.Fatalf("expected stage salt to change seed")
	}
	if SeedFor(42, 3, "npc") != SeedFor(42, 3, "npc") {
		t.Fatalf("seed not deterministic")
	}
}

func TestFloorDiv(t *testing.T) {
	if got := FloorDiv(-1, 7); got != -1 {
		t.Fatalf("FloorDiv(-1,7)=%d want -1", got)
	}
	if got := FloorDiv(13, 7); got != 1 {
		t.Fatalf("FloorDiv(13,7)=%d want 1", got)
	}
}

func TestFloorInt64_Saturates(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{2.9, 2},
		{-2.1, -3},
		{1e19, math.MaxInt64},
		{math.Inf(1), math.MaxInt64},
		{-1e19, math.MinInt64},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		if got := FloorInt64(c.in); got != c.want {
			t.Fatalf("FloorInt64(%v)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestAddSat(t *testing.T) {
	if got := AddSat(math.MaxInt64-5, 10); got != math.MaxInt64 {
		t.Fatalf("got=%d want max", got)
	}
	if got := AddSat(math.MinInt64+5, -10); got != math.MinInt64 {
		t.Fatalf("got=%d want min", got)
	}
	if got := AddSat(40, 2); got != 42 {
		t.Fatalf("got=%d want 42", got)
	}
}

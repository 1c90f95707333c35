package perf

import (
	"math"
	"testing"
	"time"

	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

var week0 = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func newModel() Model { return New(tuning.Defaults().Performance) }

func TestDecayStaysAboveCatalogFloor(t *testing.T) {
	m := newModel()
	in := Input{
		ID:         "trk_hit",
		Quality:    95,
		ReleasedAt: week0,
		Date:       week0,
		Listeners:  1_000_000,
		Reputation: 50,
	}
	first := m.WeeklyUnits(in)
	in.Date = week0.AddDate(0, 0, 70)
	tenth := m.WeeklyUnits(in)

	if first <= tenth {
		t.Fatalf("week0=%v week10=%v want decay", first, tenth)
	}
	if floor := 0.005 * 1_000_000; tenth <= floor {
		t.Fatalf("week10=%v want above floor %v", tenth, floor)
	}
}

func TestCatalogFloorAppliesLast(t *testing.T) {
	m := newModel()
	in := Input{
		ID:         "trk_old",
		Quality:    40,
		ReleasedAt: week0,
		Date:       week0.AddDate(5, 0, 0),
		Listeners:  200_000,
	}
	if got, want := m.WeeklyUnits(in), 1000.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("got=%v want floor %v", got, want)
	}
}

func TestSingleHasLargestPositionWeight(t *testing.T) {
	m := newModel()
	weights := []float64{
		m.PositionWeight(0, false),
		m.PositionWeight(1, true),
		m.PositionWeight(2, false),
	}
	for i, w := range weights {
		if i != 1 && w >= weights[1] {
			t.Fatalf("track %d weight=%v >= single weight %v", i, w, weights[1])
		}
	}
}

func TestPositionWeightDeepCuts(t *testing.T) {
	m := newModel()
	if got := m.PositionWeight(9, false); got != 0.5 {
		t.Fatalf("index 9=%v want 0.5", got)
	}
	if got, want := m.PositionWeight(10, false), 0.5*0.85; math.Abs(got-want) > 1e-12 {
		t.Fatalf("index 10=%v want %v", got, want)
	}
	if m.PositionWeight(14, false) >= m.PositionWeight(12, false) {
		t.Fatalf("deep cuts must keep decaying")
	}
}

func TestVarianceIsBitIdentical(t *testing.T) {
	m := newModel()
	a := m.Variance("trk_abc", week0)
	b := m.Variance("trk_abc", week0.Add(13*time.Hour))
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Fatalf("variance differs on same day: %v vs %v", a, b)
	}
	if a < 0.9 || a >= 1.1 {
		t.Fatalf("variance=%v outside [0.9,1.1)", a)
	}
	if m.Variance("trk_abc", week0.AddDate(0, 0, 7)) == a {
		t.Fatalf("variance should change with the date")
	}
}

func TestPromotionMultiplier(t *testing.T) {
	m := newModel()
	promos := []model.Promotion{
		{TargetID: "trk_a", Budget: 9000, WeeksRemaining: 2},
		{TargetID: "trk_a", Budget: 0, WeeksRemaining: 1},
		{TargetID: "trk_b", Budget: 1e6, WeeksRemaining: 4},
		{TargetID: "trk_a", Budget: 1e6, WeeksRemaining: 0},
	}
	// (2 + 1.5*log10(10)) * (2 + 0)
	if got, want := m.PromotionMultiplier("trk_a", promos), 3.5*2.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("multiplier=%v want %v", got, want)
	}
	if got := m.PromotionMultiplier("trk_c", promos); got != 1 {
		t.Fatalf("no promotions=%v want 1", got)
	}
}

func TestStabilityTiers(t *testing.T) {
	m := newModel()
	cases := map[int]float64{100: 0.93, 90: 0.93, 89: 0.88, 80: 0.88, 75: 0.82, 69: 0.75, 0: 0.75}
	for q, want := range cases {
		if got := m.Stability(q); got != want {
			t.Fatalf("stability(%d)=%v want %v", q, got, want)
		}
	}
}

func TestDebutBoostRange(t *testing.T) {
	m := newModel()
	for _, id := range []string{"a", "b", "trk_1", "trk_2", "npct_x"} {
		b := m.DebutBoost(id)
		if b < 6 || b >= 12 {
			t.Fatalf("boost(%s)=%v outside [6,12)", id, b)
		}
	}
}

func TestNPCPathIgnoresOwnerInputs(t *testing.T) {
	m := newModel()
	in := Input{ID: "npct_1", Quality: 85, ReleasedAt: week0, Date: week0.AddDate(0, 0, 14), NPC: true, Seed: 1e6}
	base := m.WeeklyUnits(in)
	want := 1e6 * 0.88 * 0.88 * m.Variance("npct_1", in.Date)
	if math.Abs(base-want) > 1e-6 {
		t.Fatalf("npc=%v want %v", base, want)
	}
	in.Listeners = 5_000_000
	in.Reputation = 100
	in.Promotions = []model.Promotion{{TargetID: "npct_1", Budget: 1e6, WeeksRemaining: 3}}
	if got := m.WeeklyUnits(in); got != base {
		t.Fatalf("npc score changed with owner inputs: %v vs %v", got, base)
	}
}

func TestOutOfRangeInputsClamp(t *testing.T) {
	m := newModel()
	hi := Input{ID: "trk_q", Quality: 250, ReleasedAt: week0, Date: week0, Listeners: 10_000}
	capped := hi
	capped.Quality = 100
	if m.WeeklyUnits(hi) != m.WeeklyUnits(capped) {
		t.Fatalf("quality above 100 should clamp to 100")
	}

	neg := Input{ID: "trk_n", Quality: 70, ReleasedAt: week0, Date: week0, Listeners: -500, Reputation: -20}
	if got := m.WeeklyUnits(neg); got != 0 {
		t.Fatalf("negative owner inputs=%v want 0", got)
	}

	// Scored before release: treated as debut week.
	early := Input{ID: "trk_e", Quality: 70, ReleasedAt: week0, Date: week0.AddDate(0, 0, -14), Listeners: 10_000}
	onTime := early
	onTime.Date = week0
	if m.WeeklyUnits(early) <= m.WeeklyUnits(onTime)*0.5 {
		t.Fatalf("pre-release date should score like a debut")
	}
}

func TestStreamMultiplier(t *testing.T) {
	m := newModel()
	in := Input{ID: "trk_m", Quality: 80, ReleasedAt: week0, Date: week0.AddDate(0, 0, 7), Listeners: 100_000, Reputation: 10}
	base := m.WeeklyUnits(in)
	in.StreamMultiplier = 1.25
	if got := m.WeeklyUnits(in); math.Abs(got-base*1.25) > 1e-6 {
		t.Fatalf("multiplied=%v want %v", got, base*1.25)
	}
}

func TestSalesAndProjectUnits(t *testing.T) {
	m := newModel()
	if got := m.TrackSales(1_000_000); got != 400 {
		t.Fatalf("track sales=%d want 400", got)
	}
	if got := m.ProjectPureSales(10_000); got != 15 {
		t.Fatalf("pure sales=%d want 15", got)
	}
	if got := ProjectUnits(100, 3000, 25); got != 100+2+2 {
		t.Fatalf("project units=%d want 104", got)
	}
}

package engine

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

func newSim(t *testing.T) *Simulator {
	t.Helper()
	s, err := New(Config{Tuning: tuning.Defaults(), Catalogs: catalogs.Defaults()})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return s
}

func newState(seed int64) model.State {
	return NewGame(tuning.Defaults(), GameConfig{Seed: seed, PlayerName: "Test Artist"})
}

// run advances n weeks with autoplay decisions and calls check after each.
func run(t *testing.T, s *Simulator, st model.State, n int, check func(prev model.State, res WeekResult)) model.State {
	t.Helper()
	ap := DefaultAutoplay(s.Catalogs())
	for i := 0; i < n; i++ {
		st = ap.Plan(st)
		res := s.SimulateWeek(st, Options{})
		if check != nil {
			check(st, res)
		}
		st = res.State
	}
	return st
}

func TestDeterministicAcrossRuns(t *testing.T) {
	var digests [2][]string
	for r := 0; r < 2; r++ {
		s := newSim(t)
		run(t, s, newState(42), 20, func(_ model.State, res WeekResult) {
			digests[r] = append(digests[r], res.Digest)
		})
	}
	for i := range digests[0] {
		if digests[0][i] != digests[1][i] {
			t.Fatalf("week %d digest differs: %s vs %s", i+1, digests[0][i], digests[1][i])
		}
	}

	other := newSim(t)
	var d []string
	run(t, other, newState(43), 3, func(_ model.State, res WeekResult) { d = append(d, res.Digest) })
	if d[2] == digests[0][2] {
		t.Fatalf("different seeds produced the same state")
	}
}

func TestInputStateUntouched(t *testing.T) {
	s := newSim(t)
	st := run(t, s, newState(1), 8, nil)
	before := Digest(st)
	_ = s.SimulateWeek(st, Options{})
	if after := Digest(st); after != before {
		t.Fatalf("SimulateWeek modified its input")
	}
}

func TestWeekInvariants(t *testing.T) {
	s := newSim(t)
	sizes := map[model.ChartID]int{model.ChartHot100: 100, model.ChartBubblingUnder: 50, model.ChartAlbums: 200}
	best := map[string]int{}

	run(t, s, newState(7), 40, func(prev model.State, res WeekResult) {
		next := res.State
		if next.Week != prev.Week+1 || !next.Date.Equal(prev.Date.AddDate(0, 0, 7)) {
			t.Fatalf("week=%d date=%v after week=%d date=%v", next.Week, next.Date, prev.Week, prev.Date)
		}

		for _, chart := range model.ChartIDs {
			entries := next.Charts.Get(chart)
			if len(entries) > sizes[chart] {
				t.Fatalf("%s has %d entries", chart, len(entries))
			}
			for i, e := range entries {
				if e.Rank != i+1 {
					t.Fatalf("%s rank=%d at index %d", chart, e.Rank, i)
				}
				if i > 0 && e.Units > entries[i-1].Units {
					t.Fatalf("%s not sorted at %d", chart, i)
				}
				key := string(chart) + "|" + e.EntityID
				if b, ok := best[key]; !ok || e.Rank < b {
					best[key] = e.Rank
				}
				if e.Peak != best[key] || e.Peak > e.Rank {
					t.Fatalf("%s %s peak=%d best=%d rank=%d", chart, e.EntityID, e.Peak, best[key], e.Rank)
				}
			}
		}

		onHot := map[string]bool{}
		for _, e := range next.Charts.Hot100 {
			onHot[e.EntityID] = true
		}
		for _, e := range next.Charts.BubblingUnder {
			if onHot[e.EntityID] {
				t.Fatalf("week %d: %s on both hot100 and bubbling under", next.Week, e.EntityID)
			}
			tr, ok := next.NPCTracks[e.EntityID]
			if !ok {
				tr = next.Tracks[e.EntityID]
			}
			if tr.History.Hot100 != nil {
				t.Fatalf("week %d: %s bubbling under despite hot100 history", next.Week, e.EntityID)
			}
		}

		checkTracks := func(before, after map[string]model.Track) {
			for id, a := range before {
				b, ok := after[id]
				if !ok {
					t.Fatalf("track %s disappeared", id)
				}
				if b.PrimaryStreams < a.PrimaryStreams || b.SecondaryStreams < a.SecondaryStreams || b.Sales < a.Sales ||
					b.VideoViews < a.VideoViews || b.AudioViews < a.AudioViews {
					t.Fatalf("track %s counters went down", id)
				}
				if len(b.Certifications) < len(a.Certifications) {
					t.Fatalf("track %s lost certifications", id)
				}
				for i := range a.Certifications {
					if b.Certifications[i] != a.Certifications[i] {
						t.Fatalf("track %s certification %d changed", id, i)
					}
				}
				if a.History.Hot100 != nil && b.History.Hot100 == nil {
					t.Fatalf("track %s lost hot100 history", id)
				}
			}
		}
		checkTracks(prev.Tracks, next.Tracks)
		checkTracks(prev.NPCTracks, next.NPCTracks)
		checkProjects := func(before, after map[string]model.Project) {
			for id, a := range before {
				b := after[id]
				if b.PureSales < a.PureSales || b.TotalUnits < a.TotalUnits {
					t.Fatalf("project %s counters went down", id)
				}
				if len(b.Certifications) < len(a.Certifications) {
					t.Fatalf("project %s lost certifications", id)
				}
			}
		}
		checkProjects(prev.Projects, next.Projects)
		checkProjects(prev.NPCProjects, next.NPCProjects)

		for _, e := range res.State.Charts.Hot100 {
			tr, ok := next.NPCTracks[e.EntityID]
			if !ok {
				tr = next.Tracks[e.EntityID]
			}
			if tr.Charts.Hot100 == nil || tr.Charts.Hot100.Rank != e.Rank {
				t.Fatalf("entry %s rank %d not written back", e.EntityID, e.Rank)
			}
		}
	})
}

func TestNPCReleasesAccumulate(t *testing.T) {
	s := newSim(t)
	res := s.SimulateWeeks(newState(3), 4, Options{Fast: true})
	if got := len(res.State.NPCTracks); got != 4*17 {
		t.Fatalf("npc tracks=%d want %d", got, 4*17)
	}
	// Weeks 1..4: one surge week (4) of 5 plus three regular weeks of 2.
	if got := len(res.State.NPCProjects); got != 3*2+5 {
		t.Fatalf("npc projects=%d want 11", got)
	}
	if len(res.State.Charts.Hot100) == 0 || len(res.State.Charts.Albums) == 0 {
		t.Fatalf("charts empty after four weeks")
	}
}

func TestScheduledReleaseActivates(t *testing.T) {
	s := newSim(t)
	st := newState(5)
	st, id := RecordTrack(st, TrackSpec{Title: "First Light", Quality: 80, MusicVideo: true})
	st, err := Schedule(st, id, st.Date.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	res := s.SimulateWeek(st, Options{})
	tr := res.State.Tracks[id]
	if tr.Release.Status != model.ReleaseReleased || !tr.Release.ReleasedAt.Equal(res.State.Date) {
		t.Fatalf("release=%+v want released on %v", tr.Release, res.State.Date)
	}
	if tr.Review == nil || tr.Review.Score < 0 || tr.Review.Score > 10 || tr.Review.Outlet == "" {
		t.Fatalf("review=%+v", tr.Review)
	}
	if tr.WeeklyStreams <= 0 {
		t.Fatalf("released track has no streams")
	}
	if tr.PrimaryStreams+tr.SecondaryStreams != tr.WeeklyStreams {
		t.Fatalf("cumulative=%d want %d after first week", tr.TotalStreams(), tr.WeeklyStreams)
	}
	if want := int64(math.Floor(float64(tr.WeeklyStreams) * 0.6)); tr.PrimaryStreams != want {
		t.Fatalf("primary=%d want %d", tr.PrimaryStreams, want)
	}
	if tr.VideoViews <= 0 || tr.AudioViews <= 0 {
		t.Fatalf("music video views not counted: %+v", tr)
	}

	found := false
	for _, n := range res.Notifications {
		if n.Category == model.CategoryRelease {
			found = true
		}
	}
	if !found {
		t.Fatalf("no release notification")
	}
	if st.Tracks[id].Release.Status != model.ReleaseScheduled {
		t.Fatalf("input track was modified")
	}
}

func TestRoyaltiesAndListeners(t *testing.T) {
	s := newSim(t)
	st := newState(11)
	st, id := RecordTrack(st, TrackSpec{Title: "Payday", Quality: 90})
	st, _ = Schedule(st, id, st.Date)

	res := s.SimulateWeek(st, Options{})
	streams := res.State.Tracks[id].WeeklyStreams
	if streams <= 0 {
		t.Fatalf("no streams")
	}
	wantMoney := st.Player.Money + float64(streams)*0.004*1.0
	if math.Abs(res.State.Player.Money-wantMoney) > 1e-6 {
		t.Fatalf("money=%v want %v", res.State.Player.Money, wantMoney)
	}
	econ := tuning.Defaults().Economy
	diff := tuning.Defaults().Difficulties["normal"]
	l := float64(st.Player.MonthlyListeners)
	gained := float64(streams) / econ.StreamsPerListener * diff.ListenerInflow * (1 - l/float64(econ.MaxListeners))
	wantListeners := int64(math.Floor(l*(1-diff.ListenerDecay) + gained))
	if res.State.Player.MonthlyListeners != wantListeners {
		t.Fatalf("listeners=%d want %d", res.State.Player.MonthlyListeners, wantListeners)
	}
	if res.State.Player.Energy != res.State.Player.MaxEnergy {
		t.Fatalf("energy not restored")
	}
}

func TestListenersStayBounded(t *testing.T) {
	econ := tuning.Defaults().Economy
	diff := tuning.Defaults().Difficulties["easy"]
	l := econ.StartingListeners
	for i := 0; i < 200; i++ {
		next := nextListeners(l, math.MaxInt64, diff.ListenerDecay, diff.ListenerInflow, econ)
		if next < 0 || next > econ.MaxListeners {
			t.Fatalf("step %d listeners=%d outside [0,%d]", i, next, econ.MaxListeners)
		}
		l = next
	}
	if got := nextListeners(econ.MaxListeners, 1e12, diff.ListenerDecay, diff.ListenerInflow, econ); got >= econ.MaxListeners {
		t.Fatalf("listeners at the ceiling still grew: %d", got)
	}
	if got := nextListeners(-50, 0, diff.ListenerDecay, diff.ListenerInflow, econ); got != 0 {
		t.Fatalf("negative listeners=%d want 0", got)
	}
}

// Ten years of autoplay: weekly values stay non-negative, cumulative counters
// never go down and the audience stays under the ceiling.
func TestLongRunCountersStayMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("long run")
	}
	maxListeners := tuning.Defaults().Economy.MaxListeners
	for _, seed := range []int64{7, 11, 2024} {
		s := newSim(t)
		ap := DefaultAutoplay(s.Catalogs())
		st := newState(seed)
		for i := 0; i < 520; i++ {
			st = ap.Plan(st)
			res := s.SimulateWeek(st, Options{Fast: true})
			next := res.State
			if l := next.Player.MonthlyListeners; l < 0 || l > maxListeners {
				t.Fatalf("seed %d week %d listeners=%d", seed, next.Week, l)
			}
			if next.Player.Money < st.Player.Money || math.IsInf(next.Player.Money, 0) {
				t.Fatalf("seed %d week %d money %v -> %v", seed, next.Week, st.Player.Money, next.Player.Money)
			}
			for _, m := range []struct{ before, after map[string]model.Track }{
				{st.Tracks, next.Tracks}, {st.NPCTracks, next.NPCTracks},
			} {
				for id, b := range m.after {
					if b.WeeklyStreams < 0 || b.WeeklySales < 0 {
						t.Fatalf("seed %d week %d %s weekly streams=%d sales=%d", seed, next.Week, id, b.WeeklyStreams, b.WeeklySales)
					}
					a := m.before[id]
					if b.PrimaryStreams < a.PrimaryStreams || b.SecondaryStreams < a.SecondaryStreams || b.Sales < a.Sales ||
						b.VideoViews < a.VideoViews || b.AudioViews < a.AudioViews {
						t.Fatalf("seed %d week %d %s counters went down: %+v -> %+v", seed, next.Week, id,
							[]int64{a.PrimaryStreams, a.SecondaryStreams, a.Sales}, []int64{b.PrimaryStreams, b.SecondaryStreams, b.Sales})
					}
				}
			}
			for _, m := range []struct{ before, after map[string]model.Project }{
				{st.Projects, next.Projects}, {st.NPCProjects, next.NPCProjects},
			} {
				for id, b := range m.after {
					if b.WeeklyPureSales < 0 || b.WeeklyUnitSales < 0 {
						t.Fatalf("seed %d week %d %s weekly units=%d", seed, next.Week, id, b.WeeklyUnitSales)
					}
					a := m.before[id]
					if b.PureSales < a.PureSales || b.TotalUnits < a.TotalUnits {
						t.Fatalf("seed %d week %d project %s counters went down", seed, next.Week, id)
					}
				}
			}
			st = next
		}
	}
}

func TestFirstWeekGoalQuotesTitlePlainly(t *testing.T) {
	s := newSim(t)
	st := newState(21)
	st, pid := RecordProject(st, ProjectSpec{
		Title:         `Café "Live"`,
		Type:          model.ProjectEP,
		Quality:       70,
		FirstWeekGoal: 1,
		Tracks:        []TrackSpec{{Title: "Intro", Quality: 70}},
	})
	st, _ = Schedule(st, pid, st.Date.AddDate(0, 0, 7))
	res := s.SimulateWeek(st, Options{})
	for _, n := range res.Notifications {
		if strings.Contains(n.Message, "first-week goal") {
			if !strings.HasPrefix(n.Message, `"Café "Live""`) {
				t.Fatalf("message=%q", n.Message)
			}
			return
		}
	}
	t.Fatalf("missing first-week goal notification")
}

func TestProjectActivationAndUnits(t *testing.T) {
	s := newSim(t)
	st := newState(13)
	st.Player.MonthlyListeners = 200_000
	st, pid := RecordProject(st, ProjectSpec{
		Title:         "Debut LP",
		Type:          model.ProjectAlbum,
		Quality:       85,
		FirstWeekGoal: 1,
		Tracks:        []TrackSpec{{Title: "One", Quality: 85}, {Title: "Two", Quality: 80}, {Title: "Three", Quality: 75}},
	})
	st, _ = Schedule(st, pid, st.Date.AddDate(0, 0, 7))

	res := s.SimulateWeek(st, Options{})
	p := res.State.Projects[pid]
	if !p.ReleasedBy(res.State.Date) {
		t.Fatalf("project not released")
	}
	var streams, sales int64
	for _, tid := range p.TrackIDs {
		tr := res.State.Tracks[tid]
		if !tr.ReleasedBy(res.State.Date) {
			t.Fatalf("track %s not released with its project", tid)
		}
		streams += tr.WeeklyStreams
		sales += tr.WeeklySales
	}
	if want := p.WeeklyPureSales + streams/1500 + sales/10; p.WeeklyUnitSales != want {
		t.Fatalf("weekly units=%d want %d", p.WeeklyUnitSales, want)
	}
	if p.FirstWeekUnits != p.WeeklyUnitSales {
		t.Fatalf("first week units=%d want %d", p.FirstWeekUnits, p.WeeklyUnitSales)
	}
	goal := false
	for _, n := range res.Notifications {
		if n.Category == model.CategoryRelease && strings.Contains(n.Message, "first-week goal") {
			goal = true
		}
	}
	if !goal {
		t.Fatalf("missing first-week goal notification")
	}
}

func TestPromotionsCountDown(t *testing.T) {
	s := newSim(t)
	st := newState(17)
	st, id := RecordTrack(st, TrackSpec{Title: "Promo", Quality: 70})
	st, err := Promote(st, model.PromotionRadio, id, 1000, 2)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if st.Player.Money != 4000 {
		t.Fatalf("money=%v want 4000", st.Player.Money)
	}
	res := s.SimulateWeek(st, Options{Fast: true})
	if len(res.State.Promotions) != 1 || res.State.Promotions[0].WeeksRemaining != 1 {
		t.Fatalf("promotions=%+v", res.State.Promotions)
	}
	res = s.SimulateWeek(res.State, Options{Fast: true})
	if len(res.State.Promotions) != 0 {
		t.Fatalf("expired promotion kept: %+v", res.State.Promotions)
	}
	if _, err := Promote(st, model.PromotionRadio, "nope", 10, 1); err == nil {
		t.Fatalf("unknown target accepted")
	}
}

func TestFastSkipsPostsAndSummary(t *testing.T) {
	s := newSim(t)
	st := newState(19)
	st, id := RecordTrack(st, TrackSpec{Title: "Quiet", Quality: 75})
	st, _ = Schedule(st, id, st.Date.AddDate(0, 0, 7))

	fast := s.SimulateWeek(st, Options{Fast: true})
	if len(fast.Posts) != 0 || len(fast.State.Player.Feed) != 0 || fast.TopTracks != nil {
		t.Fatalf("fast week produced posts=%d feed=%d top=%d", len(fast.Posts), len(fast.State.Player.Feed), len(fast.TopTracks))
	}
	full := s.SimulateWeek(st, Options{})
	if len(full.Posts) == 0 || len(full.State.Player.Feed) != len(full.Posts) {
		t.Fatalf("full week posts=%d feed=%d", len(full.Posts), len(full.State.Player.Feed))
	}
	if len(full.TopTracks) != 1 || full.TopTracks[0].ID != id {
		t.Fatalf("top tracks=%+v", full.TopTracks)
	}
	// Charts and counters do not depend on the flag.
	if !sameCharts(fast.State.Charts, full.State.Charts) {
		t.Fatalf("fast flag changed the charts")
	}
}

func TestSimulateYear(t *testing.T) {
	s := newSim(t)
	st := newState(23)
	res := s.SimulateYear(st)
	if res.State.Week != 52 {
		t.Fatalf("week=%d want 52", res.State.Week)
	}
	if !res.State.Date.Equal(st.Date.AddDate(0, 0, 364)) {
		t.Fatalf("date=%v", res.State.Date)
	}
	if len(res.State.Charts.Hot100) != 100 {
		t.Fatalf("hot100 has %d entries after a year", len(res.State.Charts.Hot100))
	}
	if len(res.State.Charts.BubblingUnder) == 0 {
		t.Fatalf("bubbling under empty after a year")
	}
}

func TestStateSurvivesJSONRoundTrip(t *testing.T) {
	s := newSim(t)
	st := run(t, s, newState(29), 10, nil)

	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back model.State
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if Digest(back) != Digest(st) {
		t.Fatalf("digest changed across round trip")
	}
	a := s.SimulateWeek(st, Options{})
	c := s.SimulateWeek(back, Options{})
	if a.Digest != c.Digest {
		t.Fatalf("simulation diverged after round trip")
	}
}

func TestNewGameDefaults(t *testing.T) {
	st := NewGame(tuning.Defaults(), GameConfig{Difficulty: "impossible"})
	if st.Player.Difficulty != "normal" {
		t.Fatalf("difficulty=%q want normal", st.Player.Difficulty)
	}
	if !st.Date.Equal(DefaultStartDate) || st.Week != 0 {
		t.Fatalf("start=%v week=%d", st.Date, st.Week)
	}
	if st.Player.MonthlyListeners != 1000 || st.Player.Money != 5000 {
		t.Fatalf("player=%+v", st.Player)
	}
}

func TestNewRejectsUnknownTier(t *testing.T) {
	c := catalogs.Defaults()
	c.Roster.Artists = append([]model.NPCArtist{{Name: "Ghost", Tier: "Mythic"}}, c.Roster.Artists...)
	if _, err := New(Config{Tuning: tuning.Defaults(), Catalogs: c}); err == nil {
		t.Fatalf("unknown tier accepted")
	}
}

type memWeekLog struct{ entries []WeekLogEntry }

func (m *memWeekLog) WriteWeek(e WeekLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestWeekLogger(t *testing.T) {
	s := newSim(t)
	wl := &memWeekLog{}
	s.SetWeekLogger(wl)
	res := s.SimulateWeeks(newState(31), 3, Options{Fast: true})
	if len(wl.entries) != 3 {
		t.Fatalf("entries=%d want 3", len(wl.entries))
	}
	last := wl.entries[2]
	if last.Week != 3 || last.Digest != res.Digest || !last.Fast {
		t.Fatalf("last entry=%+v", last)
	}
}

func sameCharts(a, b model.ChartBook) bool {
	for _, id := range model.ChartIDs {
		x, y := a.Get(id), b.Get(id)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
	}
	return true
}

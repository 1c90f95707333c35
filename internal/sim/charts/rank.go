package charts

import (
	"sort"
	"time"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/model"
)

type Spec struct {
	Chart     model.ChartID
	Size      int
	Kind      model.Kind
	MinUnits  float64
	Evictions []catalogs.EvictionRule

	// Exclude drops these ids before ranking.
	Exclude map[string]bool
	Date    time.Time
}

func SpecFor(def catalogs.ChartDef, date time.Time, exclude map[string]bool) Spec {
	return Spec{
		Chart:     def.ID,
		Size:      def.Size,
		Kind:      def.Kind,
		MinUnits:  def.MinUnits,
		Evictions: def.Evictions,
		Exclude:   exclude,
		Date:      model.Day(date),
	}
}

// Update is the new per-chart state for one entity. A nil Position clears
// the entity's slot; History is carried even when the entity drops off.
type Update struct {
	Position *model.ChartPosition
	History  *model.ChartHistory
}

type Result struct {
	Entries []model.ChartEntry
	Updates map[string]Update
}

// Eligible reports whether e may appear on the chart described by spec.
func Eligible(e model.Charted, spec Spec) bool {
	if e.EntityKind() != spec.Kind {
		return false
	}
	if !e.ReleasedBy(spec.Date) {
		return false
	}
	if spec.Exclude[e.EntityID()] {
		return false
	}
	units := e.Units()
	if units <= 0 || units < spec.MinUnits {
		return false
	}
	weeks := 0
	if h := e.HistoryFor(spec.Chart); h != nil {
		weeks = h.WeeksOnChart
	}
	for _, r := range spec.Evictions {
		if weeks > r.AfterWeeks && units < r.BelowUnits {
			return false
		}
	}
	return true
}

// Rank sorts the eligible part of pool by weekly units (descending, ties by
// id ascending), keeps the top spec.Size and computes per-entity chart state.
// Pool members that held a position last week but did not make the cut get
// a clearing update.
func Rank(pool []model.Charted, spec Spec) Result {
	eligible := make([]model.Charted, 0, len(pool))
	for _, e := range pool {
		if Eligible(e, spec) {
			eligible = append(eligible, e)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		ui, uj := eligible[i].Units(), eligible[j].Units()
		if ui != uj {
			return ui > uj
		}
		return eligible[i].EntityID() < eligible[j].EntityID()
	})
	if spec.Size >= 0 && len(eligible) > spec.Size {
		eligible = eligible[:spec.Size]
	}

	res := Result{
		Entries: make([]model.ChartEntry, 0, len(eligible)),
		Updates: make(map[string]Update, len(eligible)),
	}
	for i, e := range eligible {
		pos, hist, improved := advance(e.Position(spec.Chart), e.HistoryFor(spec.Chart), i+1, spec.Date)
		title, artist := e.Label()
		res.Entries = append(res.Entries, model.ChartEntry{
			Chart:        spec.Chart,
			Rank:         pos.Rank,
			EntityID:     e.EntityID(),
			Kind:         e.EntityKind(),
			Title:        title,
			Artist:       artist,
			NPC:          e.IsNPC(),
			Units:        e.Units(),
			LastWeek:     pos.LastWeek,
			Peak:         pos.Peak,
			WeeksOnChart: pos.WeeksOnChart,
			Movement:     pos.Movement,
			PeakImproved: improved,
		})
		res.Updates[e.EntityID()] = Update{Position: &pos, History: &hist}
	}

	for _, e := range pool {
		if _, ranked := res.Updates[e.EntityID()]; ranked {
			continue
		}
		if e.Position(spec.Chart) == nil {
			continue
		}
		res.Updates[e.EntityID()] = Update{History: e.HistoryFor(spec.Chart)}
	}
	return res
}

// advance computes this week's position and history from last week's. prev
// is read before anything is overwritten.
func advance(prev *model.ChartPosition, hist *model.ChartHistory, rank int, date time.Time) (model.ChartPosition, model.ChartHistory, bool) {
	lastWeek := 0
	if prev != nil {
		lastWeek = prev.Rank
	}

	var mv model.Movement
	switch {
	case hist == nil:
		mv = model.MovementNew
	case lastWeek == 0:
		mv = model.MovementReEntry
	case rank < lastWeek:
		mv = model.MovementUp
	case rank > lastWeek:
		mv = model.MovementDown
	default:
		mv = model.MovementSame
	}

	h := model.ChartHistory{Peak: rank, WeeksOnChart: 1, FirstCharted: date, LastCharted: date}
	improved := false
	if hist != nil {
		h.WeeksOnChart = hist.WeeksOnChart + 1
		h.FirstCharted = hist.FirstCharted
		h.Peak = hist.Peak
		if rank < hist.Peak {
			h.Peak = rank
			improved = true
		}
	}

	pos := model.ChartPosition{
		Rank:         rank,
		LastWeek:     lastWeek,
		Peak:         h.Peak,
		WeeksOnChart: h.WeeksOnChart,
		Movement:     mv,
	}
	return pos, h, improved
}

func ApplyTracks(in map[string]model.Track, chart model.ChartID, updates map[string]Update) map[string]model.Track {
	out := make(map[string]model.Track, len(in))
	for id, t := range in {
		if u, ok := updates[id]; ok {
			t.Charts = t.Charts.With(chart, u.Position)
			t.History = t.History.With(chart, u.History)
		}
		out[id] = t
	}
	return out
}

func ApplyProjects(in map[string]model.Project, chart model.ChartID, updates map[string]Update) map[string]model.Project {
	out := make(map[string]model.Project, len(in))
	for id, p := range in {
		if u, ok := updates[id]; ok {
			p.Charts = p.Charts.With(chart, u.Position)
			p.History = p.History.With(chart, u.History)
		}
		out[id] = p
	}
	return out
}

// EverCharted collects ids with any history on chart.
func EverCharted[E model.Charted](chart model.ChartID, pools ...map[string]E) map[string]bool {
	out := map[string]bool{}
	for _, pool := range pools {
		for id, e := range pool {
			if e.HistoryFor(chart) != nil {
				out[id] = true
			}
		}
	}
	return out
}

// Pool flattens entity maps into a ranking pool in id order.
func Pool[E model.Charted](pools ...map[string]E) []model.Charted {
	n := 0
	for _, p := range pools {
		n += len(p)
	}
	out := make([]model.Charted, 0, n)
	for _, p := range pools {
		for _, id := range model.SortedIDs(p) {
			out = append(out, p[id])
		}
	}
	return out
}

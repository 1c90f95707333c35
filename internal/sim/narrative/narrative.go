package narrative

import (
	"fmt"
	"time"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/ids"
	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

// Event is one chart story about a player-owned entity.
type Event struct {
	Kind       model.PostKind
	EntityID   string
	EntityKind model.Kind
	Title      string
	Artist     string

	Chart     model.ChartID
	ChartName string

	Rank         int
	LastWeek     int
	Peak         int
	WeeksOnChart int
	DelayWeeks   int
}

// Departure is an entry that was on a chart last week and is gone now.
type Departure struct {
	Chart        model.ChartID
	EntityID     string
	Kind         model.Kind
	Title        string
	Artist       string
	NPC          bool
	LastRank     int
	Peak         int
	WeeksOnChart int
}

// Lookup resolves an entity id against the post-ranking state.
type Lookup func(id string) (model.Charted, bool)

// Departures diffs two chart books. Peak and weeks come from the entity's
// own history when lookup finds it, since the old snapshot may be stale.
func Departures(prev, next model.ChartBook, lookup Lookup) []Departure {
	var out []Departure
	for _, chart := range model.ChartIDs {
		still := map[string]bool{}
		for _, e := range next.Get(chart) {
			still[e.EntityID] = true
		}
		for _, e := range prev.Get(chart) {
			if still[e.EntityID] {
				continue
			}
			d := Departure{
				Chart:        chart,
				EntityID:     e.EntityID,
				Kind:         e.Kind,
				Title:        e.Title,
				Artist:       e.Artist,
				NPC:          e.NPC,
				LastRank:     e.Rank,
				Peak:         e.Peak,
				WeeksOnChart: e.WeeksOnChart,
			}
			if lookup != nil {
				if ent, ok := lookup(e.EntityID); ok {
					if h := ent.HistoryFor(chart); h != nil {
						d.Peak = h.Peak
						d.WeeksOnChart = h.WeeksOnChart
					}
				}
			}
			out = append(out, d)
		}
	}
	return out
}

type Generator struct {
	cfg     tuning.Narrative
	charts  catalogs.ChartCatalog
	handles []string
	flavor  FlavorProvider
}

// New builds a generator; a nil flavor uses Templates.
func New(t tuning.Tuning, c *catalogs.Catalogs, flavor FlavorProvider) *Generator {
	if flavor == nil {
		flavor = Templates{}
	}
	return &Generator{cfg: t.Narrative, charts: c.Charts, handles: c.Vocab.Handles, flavor: flavor}
}

type Input struct {
	Player     model.Player
	Tracks     map[string]model.Track
	Projects   map[string]model.Project
	Next       model.ChartBook
	Prev       model.ChartBook
	Departures []Departure

	Week int
	Date time.Time

	// SkipPosts still detects events and notifications.
	SkipPosts bool
}

type Output struct {
	Events        []Event
	Posts         []model.SocialPost
	Notifications []model.Notification
}

func (g *Generator) Weekly(in Input) Output {
	var out Output
	date := model.Day(in.Date)

	for _, chart := range g.charts.Order {
		name := g.chartName(chart)
		for _, e := range in.Next.Get(chart) {
			if e.NPC {
				continue
			}
			ev := Event{
				EntityID:     e.EntityID,
				EntityKind:   e.Kind,
				Title:        e.Title,
				Artist:       e.Artist,
				Chart:        chart,
				ChartName:    name,
				Rank:         e.Rank,
				LastWeek:     e.LastWeek,
				Peak:         e.Peak,
				WeeksOnChart: e.WeeksOnChart,
			}
			switch e.Movement {
			case model.MovementNew:
				ev.Kind = model.PostDebut
				if at, ok := g.releasedAt(in, e.EntityID); ok {
					if delay := model.WeeksBetween(at, date); delay > 1 {
						ev.Kind = model.PostDelayedDebut
						ev.DelayWeeks = delay
					}
				}
				out.Events = append(out.Events, ev)
			case model.MovementReEntry:
				ev.Kind = model.PostReEntry
				out.Events = append(out.Events, ev)
			}
			if e.PeakImproved {
				ev.Kind = model.PostNewPeak
				ev.DelayWeeks = 0
				out.Events = append(out.Events, ev)
			}
		}
	}

	for _, d := range in.Departures {
		if d.NPC {
			continue
		}
		out.Events = append(out.Events, Event{
			Kind:         model.PostDeparted,
			EntityID:     d.EntityID,
			EntityKind:   d.Kind,
			Title:        d.Title,
			Artist:       d.Artist,
			Chart:        d.Chart,
			ChartName:    g.chartName(d.Chart),
			LastWeek:     d.LastRank,
			Peak:         d.Peak,
			WeeksOnChart: d.WeeksOnChart,
		})
	}

	charted := map[string]bool{}
	for _, chart := range model.ChartIDs {
		for _, e := range in.Next.Get(chart) {
			charted[e.EntityID] = true
		}
	}
	for _, id := range model.SortedIDs(in.Tracks) {
		t := in.Tracks[id]
		if t.NPC || charted[id] || !t.ReleasedBy(date) {
			continue
		}
		if model.WeeksBetween(t.Release.ReleasedAt, date) != 0 {
			continue
		}
		out.Events = append(out.Events, Event{
			Kind:       model.PostFailedDebut,
			EntityID:   t.ID,
			EntityKind: model.KindTrack,
			Title:      t.Title,
			Artist:     t.Artist,
		})
	}

	for _, ev := range out.Events {
		if n, ok := g.notification(ev, in.Week, date); ok {
			out.Notifications = append(out.Notifications, n)
		}
		if !in.SkipPosts {
			out.Posts = append(out.Posts, g.post(ev, in.Player, in.Week, date))
		}
	}
	return out
}

func (g *Generator) releasedAt(in Input, id string) (time.Time, bool) {
	if t, ok := in.Tracks[id]; ok {
		return t.Release.ReleasedAt, true
	}
	if p, ok := in.Projects[id]; ok {
		return p.Release.ReleasedAt, true
	}
	return time.Time{}, false
}

func (g *Generator) chartName(id model.ChartID) string {
	if d, ok := g.charts.Chart(id); ok && d.Name != "" {
		return d.Name
	}
	return string(id)
}

func (g *Generator) post(ev Event, player model.Player, week int, date time.Time) model.SocialPost {
	id := ids.Post(week, string(ev.Kind), ev.EntityID, string(ev.Chart))
	text := g.flavor.PostText(ev)
	if text == "" {
		text = Templates{}.PostText(ev)
	}
	likes, reposts := g.Engagement(player.MonthlyListeners, id)
	handle := ""
	if len(g.handles) > 0 {
		handle = g.handles[mathx.HashString(id)%uint64(len(g.handles))]
	}
	return model.SocialPost{
		ID:       id,
		Kind:     ev.Kind,
		Handle:   handle,
		Message:  text,
		Likes:    likes,
		Reposts:  reposts,
		EntityID: ev.EntityID,
		Chart:    ev.Chart,
		Date:     date,
	}
}

// Engagement scales with the listener base; the post id only jitters it
// within +-25%.
func (g *Generator) Engagement(listeners int64, postID string) (likes, reposts int64) {
	if listeners < 0 {
		listeners = 0
	}
	u := mathx.Unit01(mathx.HashString(postID + "|likes"))
	likes = mathx.FloorInt64(float64(listeners) * g.cfg.EngagementRate * (0.75 + 0.5*u))
	if likes < g.cfg.MinLikes {
		likes = g.cfg.MinLikes
	}
	if g.cfg.RepostDivisor > 0 {
		reposts = likes / g.cfg.RepostDivisor
	}
	return likes, reposts
}

func (g *Generator) notification(ev Event, week int, date time.Time) (model.Notification, bool) {
	var msg string
	switch ev.Kind {
	case model.PostDebut, model.PostDelayedDebut:
		msg = fmt.Sprintf("%s debuted at #%d on the %s.", Quote(ev.Title), ev.Rank, ev.ChartName)
	case model.PostNewPeak:
		if ev.Rank > g.cfg.NotifyTopPeak {
			return model.Notification{}, false
		}
		if ev.Rank == 1 {
			msg = fmt.Sprintf("%s is #1 on the %s!", Quote(ev.Title), ev.ChartName)
		} else {
			msg = fmt.Sprintf("%s reached a new peak of #%d on the %s.", Quote(ev.Title), ev.Rank, ev.ChartName)
		}
	case model.PostDeparted:
		msg = fmt.Sprintf("%s left the %s after %s (peak #%d).", Quote(ev.Title), ev.ChartName, plural(ev.WeeksOnChart, "week"), ev.Peak)
	default:
		return model.Notification{}, false
	}
	return model.Notification{
		ID:       ids.Notification(week, model.CategoryChart, string(ev.Kind), ev.EntityID, string(ev.Chart)),
		Message:  msg,
		Category: model.CategoryChart,
		Date:     date,
	}, true
}

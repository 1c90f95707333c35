package certs

import (
	"sort"
	"strconv"
	"time"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/ids"
	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/perf"
)

type Engine struct {
	ladder []catalogs.CertTier
}

func New(c catalogs.CertCatalog) *Engine {
	return &Engine{ladder: c.Ladder}
}

type Input struct {
	Tracks      map[string]model.Track
	Projects    map[string]model.Project
	NPCTracks   map[string]model.Track
	NPCProjects map[string]model.Project

	Week int
	Date time.Time
}

// Award is one newly recorded certification.
type Award struct {
	EntityID string
	Kind     model.Kind
	Title    string
	Artist   string
	NPC      bool
	Units    int64
	Tier     catalogs.CertTier
}

type Result struct {
	Tracks      map[string]model.Track
	Projects    map[string]model.Project
	NPCTracks   map[string]model.Track
	NPCProjects map[string]model.Project

	Awards        []Award
	Notifications []model.Notification
}

// Update records every newly crossed threshold. Running it again on
// unchanged counters awards nothing. Notifications are only produced for
// player-owned entities.
func (e *Engine) Update(in Input) Result {
	var res Result
	date := model.Day(in.Date)

	res.Tracks, res.Awards = e.tracks(in.Tracks, date, res.Awards)
	res.NPCTracks, res.Awards = e.tracks(in.NPCTracks, date, res.Awards)
	res.Projects, res.Awards = e.projects(in.Projects, in.Tracks, date, res.Awards)
	res.NPCProjects, res.Awards = e.projects(in.NPCProjects, in.NPCTracks, date, res.Awards)

	for _, a := range res.Awards {
		if a.NPC {
			continue
		}
		res.Notifications = append(res.Notifications, model.Notification{
			ID:       ids.Notification(in.Week, model.CategoryCertification, a.EntityID, strconv.FormatInt(a.Tier.Threshold, 10)),
			Message:  a.Tier.Render(a.Title, a.Artist, a.Units),
			Category: model.CategoryCertification,
			Date:     date,
		})
	}
	return res
}

func (e *Engine) tracks(in map[string]model.Track, date time.Time, awards []Award) (map[string]model.Track, []Award) {
	out := make(map[string]model.Track, len(in))
	for _, id := range model.SortedIDs(in) {
		t := in[id]
		units := t.CumulativeUnits()
		certs, added := e.Check(units, t.Certifications, date)
		if len(added) > 0 {
			t.Certifications = certs
			for _, tier := range added {
				awards = append(awards, Award{EntityID: t.ID, Kind: model.KindTrack, Title: t.Title, Artist: t.Artist, NPC: t.NPC, Units: units, Tier: tier})
			}
		}
		out[id] = t
	}
	return out, awards
}

func (e *Engine) projects(in map[string]model.Project, tracks map[string]model.Track, date time.Time, awards []Award) (map[string]model.Project, []Award) {
	out := make(map[string]model.Project, len(in))
	for _, id := range model.SortedIDs(in) {
		p := in[id]
		units := ProjectUnits(p, tracks)
		certs, added := e.Check(units, p.Certifications, date)
		if len(added) > 0 {
			p.Certifications = certs
			for _, tier := range added {
				awards = append(awards, Award{EntityID: p.ID, Kind: model.KindProject, Title: p.Title, Artist: p.Artist, NPC: p.NPC, Units: units, Tier: tier})
			}
		}
		out[id] = p
	}
	return out, awards
}

// Check returns the certification list with every tier met by units added,
// plus the tiers that were new. existing is never modified or shortened.
func (e *Engine) Check(units int64, existing []model.Certification, date time.Time) ([]model.Certification, []catalogs.CertTier) {
	have := make(map[int64]bool, len(existing))
	for _, c := range existing {
		have[c.Threshold] = true
	}
	var added []catalogs.CertTier
	for _, tier := range e.ladder {
		if units < tier.Threshold || have[tier.Threshold] {
			continue
		}
		added = append(added, tier)
	}
	if len(added) == 0 {
		return existing, nil
	}
	out := make([]model.Certification, 0, len(existing)+len(added))
	out = append(out, existing...)
	for _, tier := range added {
		out = append(out, model.Certification{
			Level:      tier.Level,
			Threshold:  tier.Threshold,
			Multiplier: tier.Multiplier,
			AchievedAt: date,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	// Ascending order for the notification stream too.
	sort.SliceStable(added, func(i, j int) bool { return added[i].Threshold < added[j].Threshold })
	return out, added
}

// ProjectUnits is pure sales plus the stream and sales equivalents of the
// project's tracks found in tracks.
func ProjectUnits(p model.Project, tracks map[string]model.Track) int64 {
	var streams, sales int64
	for _, id := range p.TrackIDs {
		t, ok := tracks[id]
		if !ok {
			continue
		}
		streams = mathx.AddSat(streams, t.TotalStreams())
		sales = mathx.AddSat(sales, t.Sales)
	}
	return perf.ProjectUnits(p.PureSales, streams, sales)
}

package npc

import (
	"math"
	"math/rand"
	"time"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/ids"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

// Generator synthesizes the weekly NPC release slate. It holds only static
// reference data; everything that changes lives in the maps passed in.
type Generator struct {
	cfg    tuning.NPC
	tiers  map[string]tuning.FameTier
	roster []model.NPCArtist
	vocab  catalogs.VocabCatalog
	seed   int64
}

func New(t tuning.Tuning, c *catalogs.Catalogs, seed int64) *Generator {
	return &Generator{
		cfg:    t.NPC,
		tiers:  t.FameTiers,
		roster: c.Roster.Artists,
		vocab:  c.Vocab,
		seed:   seed,
	}
}

// WeeklyReleases returns this week's new NPC tracks and projects, all
// released on date. Existing pools are read for album cooldowns and title
// collisions only.
func (g *Generator) WeeklyReleases(existingTracks map[string]model.Track, existingProjects map[string]model.Project, week int, date time.Time, rng *rand.Rand) ([]model.Track, []model.Project) {
	date = model.Day(date)
	if len(g.roster) == 0 {
		return nil, nil
	}

	taken := map[string]bool{}
	for _, t := range existingTracks {
		taken[t.Artist+"|"+t.Title] = true
	}

	tracks := make([]model.Track, 0, g.cfg.TracksPerWeek)
	for n := 0; n < g.cfg.TracksPerWeek; n++ {
		artist := g.roster[rng.Intn(len(g.roster))]
		title := g.trackTitle(rng)
		for tries := 0; taken[artist.Name+"|"+title] && tries < 4; tries++ {
			title = g.trackTitle(rng)
		}
		taken[artist.Name+"|"+title] = true

		q := g.quality(rng)
		tracks = append(tracks, model.Track{
			ID:             ids.NPCTrack(g.seed, week, n),
			Title:          title,
			Artist:         artist.Name,
			NPC:            true,
			Genre:          pick(rng, g.vocab.Genres),
			Mood:           pick(rng, g.vocab.Moods),
			Topic:          pick(rng, g.vocab.Topics),
			Quality:        q,
			Single:         true,
			Release:        model.Release{Status: model.ReleaseReleased, ReleasedAt: date},
			RawPerformance: g.seedValue(artist.Tier, q, g.cfg.TrackSeedScale, rng),
		})
	}

	return tracks, g.albums(existingProjects, week, date, rng)
}

// AlbumQuota is the number of albums attempted in week.
func (g *Generator) AlbumQuota(week int) int {
	if g.cfg.SurgeEveryWeeks > 0 && week%g.cfg.SurgeEveryWeeks == 0 {
		return g.cfg.SurgeAlbums
	}
	return g.cfg.AlbumsPerWeek
}

func (g *Generator) albums(existing map[string]model.Project, week int, date time.Time, rng *rand.Rand) []model.Project {
	last := map[string]time.Time{}
	for _, p := range existing {
		if !p.NPC {
			continue
		}
		if prev, ok := last[p.Artist]; !ok || p.Release.ReleasedAt.After(prev) {
			last[p.Artist] = p.Release.ReleasedAt
		}
	}

	eligible := make([]model.NPCArtist, 0, len(g.roster))
	for _, a := range g.roster {
		if at, ok := last[a.Name]; ok && model.WeeksBetween(at, date) < g.cfg.AlbumCooldownWeeks {
			continue
		}
		eligible = append(eligible, a)
	}

	quota := g.AlbumQuota(week)
	out := make([]model.Project, 0, quota)
	for n := 0; n < quota && len(eligible) > 0; n++ {
		i := rng.Intn(len(eligible))
		artist := eligible[i]
		eligible = append(eligible[:i], eligible[i+1:]...)

		q := g.quality(rng)
		out = append(out, model.Project{
			ID:             ids.NPCProject(g.seed, week, n),
			Title:          pick(rng, g.vocab.TitleWords) + " " + pick(rng, g.vocab.AlbumWords),
			Artist:         artist.Name,
			NPC:            true,
			Type:           g.projectType(rng),
			Genre:          pick(rng, g.vocab.Genres),
			Quality:        q,
			Release:        model.Release{Status: model.ReleaseReleased, ReleasedAt: date},
			RawPerformance: g.seedValue(artist.Tier, q, g.cfg.AlbumSeedScale, rng),
		})
	}
	return out
}

func (g *Generator) quality(rng *rand.Rand) int {
	return g.cfg.QualityMin + rng.Intn(g.cfg.QualityMax-g.cfg.QualityMin)
}

// seedValue is tier power * scale * (q/pivot)^exp * jitter.
func (g *Generator) seedValue(tier string, q int, scale float64, rng *rand.Rand) float64 {
	power := g.tiers[tier].Power
	jitter := g.cfg.JitterMin + g.cfg.JitterSpan*rng.Float64()
	return power * scale * math.Pow(float64(q)/g.cfg.QualityPivot, g.cfg.QualityExponent) * jitter
}

func (g *Generator) projectType(rng *rand.Rand) model.ProjectType {
	roll := rng.Intn(100)
	switch {
	case roll < g.cfg.AlbumTypeEPPercent:
		return model.ProjectEP
	case roll < g.cfg.AlbumTypeEPPercent+g.cfg.AlbumTypeMixPercent:
		return model.ProjectMixtape
	default:
		return model.ProjectAlbum
	}
}

func (g *Generator) trackTitle(rng *rand.Rand) string {
	if rng.Intn(3) == 0 {
		return pick(rng, g.vocab.TitleWords)
	}
	return pick(rng, g.vocab.TitleWords) + " " + pick(rng, g.vocab.TitleWords)
}

func pick(rng *rand.Rand, from []string) string {
	if len(from) == 0 {
		return ""
	}
	return from[rng.Intn(len(from))]
}

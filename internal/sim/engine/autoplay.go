package engine

import (
	"math/rand"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
)

// Autoplay is a scripted artist manager for headless runs: it records and
// schedules releases on a fixed cadence and promotes fresh singles when it
// can afford to. Its choices are seeded like everything else.
type Autoplay struct {
	Vocab       catalogs.VocabCatalog
	SingleEvery int
	AlbumEvery  int
	AlbumTracks int
	PromoBudget float64
	PromoWeeks  int
}

func DefaultAutoplay(c *catalogs.Catalogs) Autoplay {
	return Autoplay{
		Vocab:       c.Vocab,
		SingleEvery: 3,
		AlbumEvery:  13,
		AlbumTracks: 10,
		PromoBudget: 2000,
		PromoWeeks:  4,
	}
}

// Plan applies this week's studio decisions to s before it is simulated.
func (a Autoplay) Plan(s model.State) model.State {
	rng := rand.New(rand.NewSource(mathx.SeedFor(s.Seed, s.Week, "autoplay")))
	next := s.Date.AddDate(0, 0, 7)

	if a.SingleEvery > 0 && s.Week%a.SingleEvery == 0 {
		var id string
		s, id = RecordTrack(s, a.trackSpec(rng))
		s, _ = Schedule(s, id, next)
	}

	if a.AlbumEvery > 0 && s.Week%a.AlbumEvery == a.AlbumEvery-1 {
		spec := ProjectSpec{
			Title:         a.word(rng, a.Vocab.TitleWords) + " " + a.word(rng, a.Vocab.AlbumWords),
			Type:          model.ProjectAlbum,
			Genre:         a.word(rng, a.Vocab.Genres),
			Quality:       60 + rng.Intn(36),
			FirstWeekGoal: int64(1000 + rng.Intn(9000)),
		}
		for i := 0; i < a.AlbumTracks; i++ {
			spec.Tracks = append(spec.Tracks, a.trackSpec(rng))
		}
		var id string
		s, id = RecordProject(s, spec)
		s, _ = Schedule(s, id, next.AddDate(0, 0, 7))
	}

	if a.PromoBudget > 0 && s.Player.Money >= 2*a.PromoBudget {
		for _, id := range model.SortedIDs(s.Tracks) {
			t := s.Tracks[id]
			if t.Single && t.ReleasedBy(s.Date) && model.WeeksBetween(t.Release.ReleasedAt, s.Date) == 0 {
				s, _ = Promote(s, model.PromotionPlaylist, id, a.PromoBudget, a.PromoWeeks)
				break
			}
		}
	}
	return s
}

func (a Autoplay) trackSpec(rng *rand.Rand) TrackSpec {
	title := a.word(rng, a.Vocab.TitleWords)
	if rng.Intn(2) == 0 {
		title += " " + a.word(rng, a.Vocab.TitleWords)
	}
	return TrackSpec{
		Title:      title,
		Genre:      a.word(rng, a.Vocab.Genres),
		Mood:       a.word(rng, a.Vocab.Moods),
		Topic:      a.word(rng, a.Vocab.Topics),
		Quality:    55 + rng.Intn(45),
		MusicVideo: rng.Intn(3) == 0,
	}
}

func (a Autoplay) word(rng *rand.Rand, from []string) string {
	if len(from) == 0 {
		return "Untitled"
	}
	return from[rng.Intn(len(from))]
}

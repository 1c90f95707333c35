package engine

import (
	"math/rand"
	"strconv"
	"time"

	"charttopper.fm/internal/sim/certs"
	"charttopper.fm/internal/sim/charts"
	"charttopper.fm/internal/sim/ids"
	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/narrative"
	"charttopper.fm/internal/sim/npc"
	"charttopper.fm/internal/sim/perf"
	"charttopper.fm/internal/sim/tuning"
)

// week carries one tick through its stages. Each stage replaces the maps it
// changes with fresh ones, so the caller's State is never written to.
type week struct {
	s    *Simulator
	in   model.State
	num  int
	date time.Time
	diff tuning.Difficulty

	player      model.Player
	tracks      map[string]model.Track
	projects    map[string]model.Project
	npcTracks   map[string]model.Track
	npcProjects map[string]model.Project
	promotions  []model.Promotion
	book        model.ChartBook

	departures []narrative.Departure
	awards     []certs.Award
	events     []narrative.Event
	posts      []model.SocialPost

	released      []model.Notification
	certNotes     []model.Notification
	chartNotes    []model.Notification
	economyNotes  []model.Notification
	playerStreams int64
}

func (s *Simulator) begin(state model.State) *week {
	p := state.Player
	p.Feed = append([]model.SocialPost(nil), state.Player.Feed...)
	return &week{
		s:           s,
		in:          state,
		num:         state.Week + 1,
		date:        model.Day(state.Date).AddDate(0, 0, 7),
		diff:        s.tun.DifficultyFor(state.Player.Difficulty),
		player:      p,
		tracks:      state.Tracks,
		projects:    state.Projects,
		npcTracks:   state.NPCTracks,
		npcProjects: state.NPCProjects,
		book:        state.Charts,
	}
}

func (w *week) rng(stage string) *rand.Rand {
	return rand.New(rand.NewSource(mathx.SeedFor(w.in.Seed, w.num, stage)))
}

func (w *week) advancePromotions() {
	out := make([]model.Promotion, 0, len(w.in.Promotions))
	for _, p := range w.in.Promotions {
		p.WeeksRemaining--
		if p.WeeksRemaining > 0 {
			out = append(out, p)
		}
	}
	w.promotions = out
}

func (w *week) releaseNPCs() {
	gen := npc.New(w.s.tun, w.s.cats, w.in.Seed)
	newTracks, newProjects := gen.WeeklyReleases(w.npcTracks, w.npcProjects, w.num, w.date, w.rng("npc"))

	tracks := make(map[string]model.Track, len(w.npcTracks)+len(newTracks))
	for id, t := range w.npcTracks {
		tracks[id] = t
	}
	for _, t := range newTracks {
		tracks[t.ID] = t
	}
	projects := make(map[string]model.Project, len(w.npcProjects)+len(newProjects))
	for id, p := range w.npcProjects {
		projects[id] = p
	}
	for _, p := range newProjects {
		projects[p.ID] = p
	}
	w.npcTracks, w.npcProjects = tracks, projects
}

func (w *week) activateReleases() {
	tracks := copyTracks(w.tracks)
	projects := copyProjects(w.projects)
	rng := w.rng("review")
	outlets := w.s.cats.Vocab.Outlets

	due := func(r model.Release) bool {
		return r.Status == model.ReleaseScheduled && !model.Day(r.ScheduledFor).After(w.date)
	}
	review := func(q int) *model.Review {
		noise := (rng.Float64()*2 - 1) * w.s.tun.Review.Noise
		score := mathx.Round1(mathx.Clamp(float64(q)/10+w.diff.ReviewBias+noise, 0, 10))
		outlet := ""
		if len(outlets) > 0 {
			outlet = outlets[rng.Intn(len(outlets))]
		}
		return &model.Review{Score: score, Outlet: outlet, Date: w.date}
	}
	activate := func(t model.Track) model.Track {
		t.Release = model.Release{Status: model.ReleaseReleased, ScheduledFor: t.Release.ScheduledFor, ReleasedAt: w.date}
		t.WeeklyStreams, t.WeeklySales = 0, 0
		t.Review = review(t.Quality)
		return t
	}

	for _, id := range model.SortedIDs(projects) {
		p := projects[id]
		if !due(p.Release) {
			continue
		}
		p.Release = model.Release{Status: model.ReleaseReleased, ScheduledFor: p.Release.ScheduledFor, ReleasedAt: w.date}
		p.WeeklyPureSales, p.WeeklyUnitSales = 0, 0
		p.Review = review(p.Quality)
		projects[id] = p
		w.released = append(w.released, w.releaseNote(p.ID, p.Title, p.TypeLabel(), p.Review))

		// Tracks ride along with their project unless already out as singles.
		for _, tid := range p.TrackIDs {
			t, ok := tracks[tid]
			if !ok || t.Release.Status == model.ReleaseReleased {
				continue
			}
			tracks[tid] = activate(t)
		}
	}
	for _, id := range model.SortedIDs(tracks) {
		t := tracks[id]
		if !due(t.Release) {
			continue
		}
		t = activate(t)
		tracks[id] = t
		w.released = append(w.released, w.releaseNote(t.ID, t.Title, "single", t.Review))
	}
	w.tracks, w.projects = tracks, projects
}

func (w *week) releaseNote(id, title, what string, r *model.Review) model.Notification {
	msg := narrative.Quote(title) + " (" + what + ") is out now."
	if r != nil && r.Outlet != "" {
		msg += " " + r.Outlet + " gives it " + strconv.FormatFloat(r.Score, 'f', 1, 64) + "/10."
	}
	return model.Notification{
		ID:       ids.Notification(w.num, model.CategoryRelease, id),
		Message:  msg,
		Category: model.CategoryRelease,
		Date:     w.date,
	}
}

func (w *week) computePerformance() {
	m := w.s.perf
	pl := w.player

	tracks := make(map[string]model.Track, len(w.tracks))
	for id, t := range w.tracks {
		t.WeeklyStreams, t.WeeklySales = 0, 0
		if t.ReleasedBy(w.date) {
			v := m.WeeklyUnits(perf.Input{
				ID:               t.ID,
				Quality:          t.Quality,
				ReleasedAt:       t.Release.ReleasedAt,
				Date:             w.date,
				Listeners:        pl.MonthlyListeners,
				Reputation:       pl.Reputation,
				Promotions:       w.promotions,
				StreamMultiplier: w.diff.StreamMultiplier,
				InProject:        t.ProjectID != "",
				TrackIndex:       t.TrackNumber,
				Single:           t.Single,
			})
			t.WeeklyStreams = mathx.FloorInt64(v)
			t.WeeklySales = m.TrackSales(t.WeeklyStreams)
		}
		tracks[id] = t
	}

	npcTracks := make(map[string]model.Track, len(w.npcTracks))
	for id, t := range w.npcTracks {
		t.WeeklyStreams, t.WeeklySales = 0, 0
		if t.ReleasedBy(w.date) {
			v := m.WeeklyUnits(perf.Input{
				ID:         t.ID,
				Quality:    t.Quality,
				ReleasedAt: t.Release.ReleasedAt,
				Date:       w.date,
				NPC:        true,
				Seed:       t.RawPerformance,
			})
			t.WeeklyStreams = mathx.FloorInt64(v)
			t.WeeklySales = m.TrackSales(t.WeeklyStreams)
		}
		npcTracks[id] = t
	}

	projects := make(map[string]model.Project, len(w.projects))
	for id, p := range w.projects {
		p.WeeklyPureSales, p.WeeklyUnitSales = 0, 0
		if p.ReleasedBy(w.date) {
			score := m.WeeklyUnits(perf.Input{
				ID:               p.ID,
				Quality:          p.Quality,
				ReleasedAt:       p.Release.ReleasedAt,
				Date:             w.date,
				Listeners:        pl.MonthlyListeners,
				Reputation:       pl.Reputation,
				Promotions:       w.promotions,
				StreamMultiplier: w.diff.StreamMultiplier,
			})
			p.WeeklyPureSales = m.ProjectPureSales(score)
			var streams, sales int64
			for _, tid := range p.TrackIDs {
				if t, ok := tracks[tid]; ok {
					streams = mathx.AddSat(streams, t.WeeklyStreams)
					sales = mathx.AddSat(sales, t.WeeklySales)
				}
			}
			p.WeeklyUnitSales = perf.ProjectUnits(p.WeeklyPureSales, streams, sales)
		}
		projects[id] = p
	}

	npcProjects := make(map[string]model.Project, len(w.npcProjects))
	for id, p := range w.npcProjects {
		p.WeeklyPureSales, p.WeeklyUnitSales = 0, 0
		if p.ReleasedBy(w.date) {
			v := m.WeeklyUnits(perf.Input{
				ID:         p.ID,
				Quality:    p.Quality,
				ReleasedAt: p.Release.ReleasedAt,
				Date:       w.date,
				NPC:        true,
				Seed:       p.RawPerformance,
			})
			// NPC albums have no modelled tracks; all units are pure sales.
			p.WeeklyPureSales = mathx.FloorInt64(v)
			p.WeeklyUnitSales = p.WeeklyPureSales
		}
		npcProjects[id] = p
	}

	w.tracks, w.npcTracks, w.projects, w.npcProjects = tracks, npcTracks, projects, npcProjects
}

func (w *week) rankCharts() {
	book := model.ChartBook{}
	for _, id := range w.s.cats.Charts.Order {
		def := w.s.cats.Charts.ByID[id]
		var exclude map[string]bool
		if def.ExcludeEverOn != "" {
			if def.Kind == model.KindProject {
				exclude = charts.EverCharted(def.ExcludeEverOn, w.projects, w.npcProjects)
			} else {
				exclude = charts.EverCharted(def.ExcludeEverOn, w.tracks, w.npcTracks)
			}
		}
		spec := charts.SpecFor(def, w.date, exclude)

		var res charts.Result
		if def.Kind == model.KindProject {
			res = charts.Rank(charts.Pool(w.projects, w.npcProjects), spec)
			w.projects = charts.ApplyProjects(w.projects, id, res.Updates)
			w.npcProjects = charts.ApplyProjects(w.npcProjects, id, res.Updates)
		} else {
			res = charts.Rank(charts.Pool(w.tracks, w.npcTracks), spec)
			w.tracks = charts.ApplyTracks(w.tracks, id, res.Updates)
			w.npcTracks = charts.ApplyTracks(w.npcTracks, id, res.Updates)
		}
		book = book.With(id, res.Entries)
	}
	w.book = book
}

func (w *week) lookup(id string) (model.Charted, bool) {
	if t, ok := w.tracks[id]; ok {
		return t, true
	}
	if t, ok := w.npcTracks[id]; ok {
		return t, true
	}
	if p, ok := w.projects[id]; ok {
		return p, true
	}
	if p, ok := w.npcProjects[id]; ok {
		return p, true
	}
	return nil, false
}

func (w *week) detectDepartures() {
	w.departures = narrative.Departures(w.in.Charts, w.book, w.lookup)
}

func (w *week) accumulate() {
	econ := w.s.tun.Economy
	add := func(in map[string]model.Track, player bool) map[string]model.Track {
		out := make(map[string]model.Track, len(in))
		for id, t := range in {
			if t.WeeklyStreams > 0 || t.WeeklySales > 0 {
				primary := mathx.FloorInt64(float64(t.WeeklyStreams) * econ.PrimaryShare)
				t.PrimaryStreams = mathx.AddSat(t.PrimaryStreams, primary)
				t.SecondaryStreams = mathx.AddSat(t.SecondaryStreams, t.WeeklyStreams-primary)
				t.Sales = mathx.AddSat(t.Sales, t.WeeklySales)
				if t.MusicVideo {
					t.VideoViews = mathx.AddSat(t.VideoViews, mathx.FloorInt64(float64(t.WeeklyStreams)*econ.VideoViewRatio))
					t.AudioViews = mathx.AddSat(t.AudioViews, mathx.FloorInt64(float64(t.WeeklyStreams)*econ.AudioViewRatio))
				}
				if player {
					w.playerStreams = mathx.AddSat(w.playerStreams, t.WeeklyStreams)
				}
			}
			out[id] = t
		}
		return out
	}
	w.tracks = add(w.tracks, true)
	w.npcTracks = add(w.npcTracks, false)

	projects := make(map[string]model.Project, len(w.projects))
	for id, p := range w.projects {
		p.PureSales = mathx.AddSat(p.PureSales, p.WeeklyPureSales)
		p.TotalUnits = certs.ProjectUnits(p, w.tracks)
		if p.ReleasedBy(w.date) && model.WeeksBetween(p.Release.ReleasedAt, w.date) == 0 {
			p.FirstWeekUnits = p.WeeklyUnitSales
		}
		projects[id] = p
	}
	npcProjects := make(map[string]model.Project, len(w.npcProjects))
	for id, p := range w.npcProjects {
		p.PureSales = mathx.AddSat(p.PureSales, p.WeeklyPureSales)
		p.TotalUnits = p.PureSales
		npcProjects[id] = p
	}
	w.projects, w.npcProjects = projects, npcProjects
}

func (w *week) certify() {
	res := w.s.certs.Update(certs.Input{
		Tracks:      w.tracks,
		Projects:    w.projects,
		NPCTracks:   w.npcTracks,
		NPCProjects: w.npcProjects,
		Week:        w.num,
		Date:        w.date,
	})
	w.tracks, w.projects, w.npcTracks, w.npcProjects = res.Tracks, res.Projects, res.NPCTracks, res.NPCProjects
	w.awards = res.Awards
	w.certNotes = res.Notifications
}

func (w *week) tellStory(fast bool) {
	out := w.s.story.Weekly(narrative.Input{
		Player:     w.player,
		Tracks:     w.tracks,
		Projects:   w.projects,
		Next:       w.book,
		Prev:       w.in.Charts,
		Departures: w.departures,
		Week:       w.num,
		Date:       w.date,
		SkipPosts:  fast,
	})
	w.events = out.Events
	w.chartNotes = out.Notifications
	w.posts = out.Posts

	if len(out.Posts) > 0 {
		feed := make([]model.SocialPost, 0, len(out.Posts)+len(w.player.Feed))
		// Newest first.
		for i := len(out.Posts) - 1; i >= 0; i-- {
			feed = append(feed, out.Posts[i])
		}
		feed = append(feed, w.player.Feed...)
		if n := w.s.tun.FeedCap; n > 0 && len(feed) > n {
			feed = feed[:n]
		}
		w.player.Feed = feed
	}
}

func (w *week) finish(opts Options) WeekResult {
	st := w.in
	st.Week = w.num
	st.Date = w.date
	st.Player = w.player
	st.Tracks = w.tracks
	st.Projects = w.projects
	st.NPCTracks = w.npcTracks
	st.NPCProjects = w.npcProjects
	st.Promotions = w.promotions
	st.Charts = w.book

	var notes []model.Notification
	notes = append(notes, w.released...)
	notes = append(notes, w.certNotes...)
	notes = append(notes, w.chartNotes...)
	notes = append(notes, w.economyNotes...)

	res := WeekResult{
		State:         st,
		Notifications: notes,
		Departures:    w.departures,
		Awards:        w.awards,
		Events:        w.events,
		Posts:         w.posts,
		Fast:          opts.Fast,
	}
	if !opts.Fast {
		res.TopTracks = TopTracks(w.tracks, w.s.tun.Economy.SummaryTopTracks)
	}
	return res
}

func copyTracks(in map[string]model.Track) map[string]model.Track {
	out := make(map[string]model.Track, len(in))
	for id, t := range in {
		out[id] = t
	}
	return out
}

func copyProjects(in map[string]model.Project) map[string]model.Project {
	out := make(map[string]model.Project, len(in))
	for id, p := range in {
		out[id] = p
	}
	return out
}

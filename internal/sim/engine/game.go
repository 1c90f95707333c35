package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

// DefaultStartDate is a Friday, the usual chart week boundary.
var DefaultStartDate = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

type GameConfig struct {
	Seed       int64
	PlayerName string
	Difficulty string
	StartDate  time.Time
}

// NewGame returns a week-0 state with an empty catalog.
func NewGame(t tuning.Tuning, cfg GameConfig) model.State {
	start := cfg.StartDate
	if start.IsZero() {
		start = DefaultStartDate
	}
	diff := cfg.Difficulty
	if _, ok := t.Difficulties[diff]; !ok {
		diff = t.DefaultDifficulty
	}
	name := cfg.PlayerName
	if name == "" {
		name = "New Artist"
	}
	return model.State{
		Seed: cfg.Seed,
		Week: 0,
		Date: model.Day(start),
		Player: model.Player{
			Name:             name,
			Difficulty:       diff,
			Money:            t.Economy.StartingMoney,
			Energy:           t.Economy.DefaultMaxEnergy,
			MaxEnergy:        t.Economy.DefaultMaxEnergy,
			MonthlyListeners: t.Economy.StartingListeners,
		},
		Tracks:      map[string]model.Track{},
		Projects:    map[string]model.Project{},
		NPCTracks:   map[string]model.Track{},
		NPCProjects: map[string]model.Project{},
	}
}

// Digest is the sha256 of the state's JSON encoding. encoding/json sorts map
// keys, so equal states always hash equal.
func Digest(s model.State) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("engine: state not encodable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TrackSpec describes a recording made in the studio.
type TrackSpec struct {
	Title      string `json:"title"`
	Genre      string `json:"genre"`
	Mood       string `json:"mood,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Quality    int    `json:"quality"`
	MusicVideo bool   `json:"musicVideo,omitempty"`
}

// RecordTrack adds an unreleased single to the player's catalog.
func RecordTrack(s model.State, spec TrackSpec) (model.State, string) {
	id := nextID(s, "trk_", len(s.Tracks))
	tracks := copyTracks(s.Tracks)
	tracks[id] = model.Track{
		ID:         id,
		Title:      spec.Title,
		Artist:     s.Player.Name,
		Genre:      spec.Genre,
		Mood:       spec.Mood,
		Topic:      spec.Topic,
		Quality:    spec.Quality,
		Single:     true,
		MusicVideo: spec.MusicVideo,
		Release:    model.Release{Status: model.ReleaseUnreleased},
	}
	s.Tracks = tracks
	return s, id
}

type ProjectSpec struct {
	Title         string            `json:"title"`
	Type          model.ProjectType `json:"type"`
	Genre         string            `json:"genre"`
	Quality       int               `json:"quality"`
	FirstWeekGoal int64             `json:"firstWeekGoal,omitempty"`
	Tracks        []TrackSpec       `json:"tracks"`
}

// RecordProject adds an unreleased project and its tracks. Tracks are
// numbered in the order given.
func RecordProject(s model.State, spec ProjectSpec) (model.State, string) {
	pid := nextID(s, "prj_", len(s.Projects))
	tracks := copyTracks(s.Tracks)
	trackIDs := make([]string, 0, len(spec.Tracks))
	for i, ts := range spec.Tracks {
		tid := pid + "_t" + strconv.Itoa(i+1)
		tracks[tid] = model.Track{
			ID:          tid,
			Title:       ts.Title,
			Artist:      s.Player.Name,
			Genre:       ts.Genre,
			Mood:        ts.Mood,
			Topic:       ts.Topic,
			Quality:     ts.Quality,
			MusicVideo:  ts.MusicVideo,
			ProjectID:   pid,
			TrackNumber: i,
			Release:     model.Release{Status: model.ReleaseUnreleased},
		}
		trackIDs = append(trackIDs, tid)
	}
	projects := copyProjects(s.Projects)
	projects[pid] = model.Project{
		ID:            pid,
		Title:         spec.Title,
		Artist:        s.Player.Name,
		Type:          spec.Type,
		Genre:         spec.Genre,
		TrackIDs:      trackIDs,
		Quality:       spec.Quality,
		FirstWeekGoal: spec.FirstWeekGoal,
		Release:       model.Release{Status: model.ReleaseUnreleased},
	}
	s.Tracks, s.Projects = tracks, projects
	return s, pid
}

// Schedule sets a release date on an unreleased track or project. Promoting
// an album track to a single keeps it on the project.
func Schedule(s model.State, id string, at time.Time) (model.State, error) {
	at = model.Day(at)
	if t, ok := s.Tracks[id]; ok {
		if t.Release.Status == model.ReleaseReleased {
			return s, fmt.Errorf("track %s already released", id)
		}
		t.Release = model.Release{Status: model.ReleaseScheduled, ScheduledFor: at}
		if t.ProjectID != "" {
			t.Single = true
		}
		tracks := copyTracks(s.Tracks)
		tracks[id] = t
		s.Tracks = tracks
		return s, nil
	}
	if p, ok := s.Projects[id]; ok {
		if p.Release.Status == model.ReleaseReleased {
			return s, fmt.Errorf("project %s already released", id)
		}
		p.Release = model.Release{Status: model.ReleaseScheduled, ScheduledFor: at}
		projects := copyProjects(s.Projects)
		projects[id] = p
		s.Projects = projects
		return s, nil
	}
	return s, fmt.Errorf("unknown release %s", id)
}

// Promote starts a promotion charged to the player's money up front. The
// counter is decremented before scoring, so weeks=N boosts N-1 ticks.
func Promote(s model.State, kind model.PromotionType, target string, budget float64, weeks int) (model.State, error) {
	if _, ok := s.Tracks[target]; !ok {
		if _, ok := s.Projects[target]; !ok {
			return s, fmt.Errorf("unknown promotion target %s", target)
		}
	}
	if budget < 0 || weeks <= 0 {
		return s, fmt.Errorf("promotion needs budget >= 0 and weeks > 0")
	}
	if budget > s.Player.Money {
		return s, fmt.Errorf("budget %.2f exceeds money %.2f", budget, s.Player.Money)
	}
	s.Player.Money -= budget
	id := "promo_" + strconv.Itoa(s.Week) + "_" + strconv.Itoa(len(s.Promotions)+1)
	s.Promotions = append(append([]model.Promotion(nil), s.Promotions...), model.Promotion{
		ID:             id,
		Type:           kind,
		TargetID:       target,
		Budget:         budget,
		WeeksRemaining: weeks,
	})
	return s, nil
}

func nextID(s model.State, prefix string, n int) string {
	for i := n + 1; ; i++ {
		id := prefix + strconv.Itoa(i)
		if _, ok := s.Tracks[id]; ok {
			continue
		}
		if _, ok := s.Projects[id]; ok {
			continue
		}
		return id
	}
}

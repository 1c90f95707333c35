package model

import (
	"sort"
	"time"
)

// State is the full game snapshot consumed and produced by one weekly tick.
// Entities live in flat id-keyed maps; ticks never modify a map they were
// given, they build new ones.
type State struct {
	Seed int64     `json:"seed"`
	Week int       `json:"week"`
	Date time.Time `json:"date"`

	Player Player `json:"player"`

	Tracks      map[string]Track   `json:"tracks"`
	Projects    map[string]Project `json:"projects"`
	NPCTracks   map[string]Track   `json:"npcTracks"`
	NPCProjects map[string]Project `json:"npcProjects"`

	Promotions []Promotion `json:"promotions,omitempty"`
	Charts     ChartBook   `json:"charts"`

	// Notifications is owned by the caller; ticks pass it through untouched.
	Notifications []Notification `json:"notifications,omitempty"`
}

func (s State) Clone() State {
	s.Player.Feed = append([]SocialPost(nil), s.Player.Feed...)
	s.Tracks = CloneTracks(s.Tracks)
	s.Projects = CloneProjects(s.Projects)
	s.NPCTracks = CloneTracks(s.NPCTracks)
	s.NPCProjects = CloneProjects(s.NPCProjects)
	s.Promotions = append([]Promotion(nil), s.Promotions...)
	s.Charts = s.Charts.Clone()
	s.Notifications = append([]Notification(nil), s.Notifications...)
	return s
}

func CloneTracks(in map[string]Track) map[string]Track {
	out := make(map[string]Track, len(in))
	for id, t := range in {
		out[id] = t.Clone()
	}
	return out
}

func CloneProjects(in map[string]Project) map[string]Project {
	out := make(map[string]Project, len(in))
	for id, p := range in {
		out[id] = p.Clone()
	}
	return out
}

// SortedIDs returns the keys of m in ascending order; every stage iterates in
// this order so results never depend on map iteration.
func SortedIDs[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Day truncates t to midnight UTC. Game dates are always day-aligned.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeeksBetween counts whole weeks from -> to; negative when to is earlier.
func WeeksBetween(from, to time.Time) int {
	days := int(Day(to).Sub(Day(from)).Hours() / 24)
	q := days / 7
	if days%7 < 0 {
		q--
	}
	return q
}

package model

import "time"

type ChartID string

const (
	ChartHot100        ChartID = "hot100"
	ChartBubblingUnder ChartID = "bubblingUnderHot50"
	ChartAlbums        ChartID = "albums200"
)

// ChartIDs lists every known chart in ranking order.
var ChartIDs = []ChartID{ChartHot100, ChartBubblingUnder, ChartAlbums}

type Movement string

const (
	MovementNew      Movement = "new"
	MovementReEntry  Movement = "re-entry"
	MovementUp       Movement = "up"
	MovementDown     Movement = "down"
	MovementSame     Movement = "same"
	MovementDeparted Movement = "departed"
)

// ChartPosition is where an entity sits on a chart this week.
type ChartPosition struct {
	Rank         int      `json:"rank"`
	LastWeek     int      `json:"lastWeek,omitempty"` // 0 = not on the chart last week
	Peak         int      `json:"peak"`
	WeeksOnChart int      `json:"weeksOnChart"`
	Movement     Movement `json:"movement"`
}

// ChartHistory survives after the entity drops off the chart.
type ChartHistory struct {
	Peak         int       `json:"peak"`
	WeeksOnChart int       `json:"weeksOnChart"`
	FirstCharted time.Time `json:"firstCharted"`
	LastCharted  time.Time `json:"lastCharted"`
}

// ChartSlots holds one optional value per known chart. A nil slot means
// absent; there is no shared default object to alias.
type ChartSlots[T any] struct {
	Hot100        *T `json:"hot100,omitempty"`
	BubblingUnder *T `json:"bubblingUnderHot50,omitempty"`
	Albums        *T `json:"albums200,omitempty"`
}

func (s ChartSlots[T]) Get(id ChartID) *T {
	switch id {
	case ChartHot100:
		return s.Hot100
	case ChartBubblingUnder:
		return s.BubblingUnder
	case ChartAlbums:
		return s.Albums
	}
	return nil
}

// With returns a copy of s with the slot for id replaced by a copy of *v
// (or cleared when v is nil).
func (s ChartSlots[T]) With(id ChartID, v *T) ChartSlots[T] {
	var p *T
	if v != nil {
		c := *v
		p = &c
	}
	switch id {
	case ChartHot100:
		s.Hot100 = p
	case ChartBubblingUnder:
		s.BubblingUnder = p
	case ChartAlbums:
		s.Albums = p
	}
	return s
}

func (s ChartSlots[T]) Clone() ChartSlots[T] {
	var out ChartSlots[T]
	for _, id := range ChartIDs {
		out = out.With(id, s.Get(id))
	}
	return out
}

// ChartEntry is one row of a ranked chart. Entries are rebuilt every week.
type ChartEntry struct {
	Chart        ChartID  `json:"chart"`
	Rank         int      `json:"rank"`
	EntityID     string   `json:"entityId"`
	Kind         Kind     `json:"kind"`
	Title        string   `json:"title"`
	Artist       string   `json:"artist"`
	NPC          bool     `json:"npc,omitempty"`
	Units        float64  `json:"units"`
	LastWeek     int      `json:"lastWeek,omitempty"`
	Peak         int      `json:"peak"`
	WeeksOnChart int      `json:"weeksOnChart"`
	Movement     Movement `json:"movement"`
	PeakImproved bool     `json:"peakImproved,omitempty"`
}

// ChartBook is the full chart snapshot for one week.
type ChartBook struct {
	Hot100        []ChartEntry `json:"hot100"`
	BubblingUnder []ChartEntry `json:"bubblingUnderHot50"`
	Albums        []ChartEntry `json:"albums200"`
}

func (b ChartBook) Get(id ChartID) []ChartEntry {
	switch id {
	case ChartHot100:
		return b.Hot100
	case ChartBubblingUnder:
		return b.BubblingUnder
	case ChartAlbums:
		return b.Albums
	}
	return nil
}

func (b ChartBook) With(id ChartID, entries []ChartEntry) ChartBook {
	switch id {
	case ChartHot100:
		b.Hot100 = entries
	case ChartBubblingUnder:
		b.BubblingUnder = entries
	case ChartAlbums:
		b.Albums = entries
	}
	return b
}

// Find returns the entry for entityID on chart id, if any.
func (b ChartBook) Find(id ChartID, entityID string) (ChartEntry, bool) {
	for _, e := range b.Get(id) {
		if e.EntityID == entityID {
			return e, true
		}
	}
	return ChartEntry{}, false
}

func (b ChartBook) Clone() ChartBook {
	var out ChartBook
	for _, id := range ChartIDs {
		src := b.Get(id)
		if src == nil {
			continue
		}
		out = out.With(id, append([]ChartEntry(nil), src...))
	}
	return out
}

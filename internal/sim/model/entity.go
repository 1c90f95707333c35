package model

import (
	"time"

	"charttopper.fm/internal/sim/mathx"
)

// Kind discriminates the Track | Project sum type.
type Kind string

const (
	KindTrack   Kind = "track"
	KindProject Kind = "project"
)

// StreamsPerUnit converts streams into chart/certification units.
const StreamsPerUnit = 1500

// TrackSalesPerAlbumUnit is how many track sales count as one album unit.
const TrackSalesPerAlbumUnit = 10

type ReleaseStatus string

const (
	ReleaseUnreleased ReleaseStatus = "unreleased"
	ReleaseScheduled  ReleaseStatus = "scheduled"
	ReleaseReleased   ReleaseStatus = "released"
)

type Release struct {
	Status       ReleaseStatus `json:"status"`
	ScheduledFor time.Time     `json:"scheduledFor"`
	ReleasedAt   time.Time     `json:"releasedAt"`
}

func (r Release) ReleasedBy(t time.Time) bool {
	return r.Status == ReleaseReleased && !r.ReleasedAt.After(t)
}

type CertLevel string

const (
	CertGold          CertLevel = "Gold"
	CertPlatinum      CertLevel = "Platinum"
	CertMultiPlatinum CertLevel = "Multi-Platinum"
	CertDiamond       CertLevel = "Diamond"
)

// Certification is immutable once recorded.
type Certification struct {
	Level      CertLevel `json:"level"`
	Threshold  int64     `json:"threshold"`
	Multiplier int       `json:"multiplier,omitempty"`
	AchievedAt time.Time `json:"achievedAt"`
}

type Review struct {
	Score  float64   `json:"score"`
	Outlet string    `json:"outlet"`
	Date   time.Time `json:"date"`
}

// Charted is the capability set shared by tracks and projects that the
// ranking and certification engines operate on.
type Charted interface {
	EntityID() string
	EntityKind() Kind
	Label() (title, artist string)
	IsNPC() bool
	Units() float64
	ReleasedBy(t time.Time) bool
	Position(id ChartID) *ChartPosition
	HistoryFor(id ChartID) *ChartHistory
}

type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	NPC    bool   `json:"npc,omitempty"`

	Genre   string `json:"genre"`
	Mood    string `json:"mood"`
	Topic   string `json:"topic"`
	Quality int    `json:"quality"` // 0..100, fixed at creation

	// Cumulative counters, never decreasing.
	PrimaryStreams   int64 `json:"primaryStreams"`
	SecondaryStreams int64 `json:"secondaryStreams"`
	Sales            int64 `json:"sales"`

	// Replaced every week.
	WeeklyStreams int64 `json:"weeklyStreams"`
	WeeklySales   int64 `json:"weeklySales"`

	Release Release                   `json:"release"`
	Charts  ChartSlots[ChartPosition] `json:"charts"`
	History ChartSlots[ChartHistory]  `json:"chartHistory"`

	Certifications []Certification `json:"certifications,omitempty"`

	ProjectID   string `json:"projectId,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"` // 0-based position in the project
	Single      bool   `json:"single,omitempty"`      // released as a standalone single

	// RawPerformance caches the seeded debut value for NPC tracks.
	RawPerformance float64 `json:"rawPerformance,omitempty"`

	MusicVideo bool  `json:"musicVideo,omitempty"`
	VideoViews int64 `json:"videoViews,omitempty"`
	AudioViews int64 `json:"audioViews,omitempty"`

	Review *Review `json:"review,omitempty"`
}

func (t Track) EntityID() string                    { return t.ID }
func (t Track) EntityKind() Kind                    { return KindTrack }
func (t Track) Label() (string, string)             { return t.Title, t.Artist }
func (t Track) IsNPC() bool                         { return t.NPC }
func (t Track) ReleasedBy(at time.Time) bool        { return t.Release.ReleasedBy(at) }
func (t Track) Position(id ChartID) *ChartPosition  { return t.Charts.Get(id) }
func (t Track) HistoryFor(id ChartID) *ChartHistory { return t.History.Get(id) }
func (t Track) TotalStreams() int64                 { return mathx.AddSat(t.PrimaryStreams, t.SecondaryStreams) }
func (t Track) CumulativeUnits() int64              { return mathx.AddSat(t.Sales, t.TotalStreams()/StreamsPerUnit) }

// Units is this week's consumption: streams/1500 + sales.
func (t Track) Units() float64 {
	return float64(t.WeeklyStreams)/StreamsPerUnit + float64(t.WeeklySales)
}

// Clone deep-copies slices and chart slots so the copy can be modified freely.
func (t Track) Clone() Track {
	t.Charts = t.Charts.Clone()
	t.History = t.History.Clone()
	t.Certifications = append([]Certification(nil), t.Certifications...)
	if t.Review != nil {
		r := *t.Review
		t.Review = &r
	}
	return t
}

type ProjectType string

const (
	ProjectAlbum   ProjectType = "Album"
	ProjectEP      ProjectType = "EP"
	ProjectMixtape ProjectType = "Mixtape"
)

type Project struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Artist string      `json:"artist"`
	NPC    bool        `json:"npc,omitempty"`
	Type   ProjectType `json:"type"`
	Genre  string      `json:"genre"`

	TrackIDs []string `json:"trackIds,omitempty"`
	Quality  int      `json:"quality"`

	// Cumulative.
	PureSales  int64 `json:"pureSales"`
	TotalUnits int64 `json:"totalUnits"`

	// Weekly, derived from constituent tracks plus pure sales.
	WeeklyPureSales int64 `json:"weeklyPureSales"`
	WeeklyUnitSales int64 `json:"weeklyUnitSales"`

	FirstWeekGoal  int64 `json:"firstWeekGoal,omitempty"`
	FirstWeekUnits int64 `json:"firstWeekUnits,omitempty"`

	Release Release                   `json:"release"`
	Charts  ChartSlots[ChartPosition] `json:"charts"`
	History ChartSlots[ChartHistory]  `json:"chartHistory"`

	Certifications []Certification `json:"certifications,omitempty"`

	RawPerformance float64 `json:"rawPerformance,omitempty"`

	Review *Review `json:"review,omitempty"`
}

func (p Project) EntityID() string                    { return p.ID }
func (p Project) EntityKind() Kind                    { return KindProject }
func (p Project) Label() (string, string)             { return p.Title, p.Artist }
func (p Project) IsNPC() bool                         { return p.NPC }
func (p Project) Units() float64                      { return float64(p.WeeklyUnitSales) }
func (p Project) ReleasedBy(at time.Time) bool        { return p.Release.ReleasedBy(at) }
func (p Project) Position(id ChartID) *ChartPosition  { return p.Charts.Get(id) }
func (p Project) HistoryFor(id ChartID) *ChartHistory { return p.History.Get(id) }

func (p Project) Clone() Project {
	p.TrackIDs = append([]string(nil), p.TrackIDs...)
	p.Charts = p.Charts.Clone()
	p.History = p.History.Clone()
	p.Certifications = append([]Certification(nil), p.Certifications...)
	if p.Review != nil {
		r := *p.Review
		p.Review = &r
	}
	return p
}

// TypeLabel falls back to "project" when the type is unset.
func (p Project) TypeLabel() string {
	if p.Type == "" {
		return "project"
	}
	return string(p.Type)
}

package perf

import (
	"math"
	"time"

	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
)

// Model turns an entity's quality, age and owner strength into this week's
// raw score. For tracks the score is streams; for projects it feeds pure
// sales. All randomness is keyed by id and date, so recomputing a week gives
// bit-identical results.
type Model struct {
	p tuning.Performance
}

func New(p tuning.Performance) Model { return Model{p: p} }

type Input struct {
	ID      string
	Quality int

	ReleasedAt time.Time
	Date       time.Time

	// Player path.
	Listeners        int64
	Reputation       float64
	Promotions       []model.Promotion
	StreamMultiplier float64 // 0 means 1

	// Album tracks only.
	InProject  bool
	TrackIndex int
	Single     bool

	// NPC path: the score is Seed decayed by age, nothing else.
	NPC  bool
	Seed float64
}

func (m Model) WeeklyUnits(in Input) float64 {
	q := int(mathx.Clamp(float64(in.Quality), 0, 100))
	weeks := model.WeeksBetween(in.ReleasedAt, in.Date)
	if weeks < 0 {
		weeks = 0
	}
	stab := m.Stability(q)

	if in.NPC {
		return math.Max(0, in.Seed) * math.Pow(stab, float64(weeks)) * m.Variance(in.ID, in.Date)
	}

	listeners := float64(in.Listeners)
	if listeners < 0 {
		listeners = 0
	}
	rep := math.Max(0, in.Reputation)

	power := m.p.ListenerWeight*listeners +
		m.p.ReputationListenerWeight*(rep/100)*listeners +
		m.p.ReputationFlat*rep
	qm := math.Pow(float64(q)/m.p.QualityPivot, m.p.QualityExponent)
	v := power*m.p.QualityBlend*qm + power*m.p.RawPowerBlend

	if weeks == 0 {
		v *= m.DebutBoost(in.ID)
	} else {
		v *= math.Pow(stab, float64(weeks))
	}
	if in.InProject {
		v *= m.PositionWeight(in.TrackIndex, in.Single)
	}
	v *= m.PromotionMultiplier(in.ID, in.Promotions)
	v *= m.Variance(in.ID, in.Date)
	if in.StreamMultiplier > 0 {
		v *= in.StreamMultiplier
	}

	if floor := m.p.CatalogFloor * listeners; v < floor {
		v = floor
	}
	return v
}

// Stability is the weekly retention factor for quality q.
func (m Model) Stability(q int) float64 {
	for _, t := range m.p.Stability {
		if q >= t.MinQuality {
			return t.Stability
		}
	}
	return m.p.Stability[len(m.p.Stability)-1].Stability
}

func (m Model) DebutBoost(id string) float64 {
	u := mathx.Unit01(mathx.HashString(id + "|debut"))
	return m.p.DebutBoostMin + (m.p.DebutBoostMax-m.p.DebutBoostMin)*u
}

// Variance is a pure function of id and calendar day.
func (m Model) Variance(id string, date time.Time) float64 {
	u := mathx.Unit01(mathx.HashString(id + "|" + model.Day(date).Format("2006-01-02")))
	return m.p.VarianceMin + m.p.VarianceSpan*u
}

// PositionWeight scales an album track by its 0-based index. Singles always
// get the top weight.
func (m Model) PositionWeight(index int, single bool) float64 {
	switch {
	case single:
		return m.p.SingleWeight
	case index < m.p.LeadTracks:
		return m.p.LeadTrackWeight
	case index < m.p.DeepCutAfter:
		return m.p.AlbumTrackWeight
	default:
		return m.p.AlbumTrackWeight * math.Pow(m.p.DeepCutDecay, float64(index-m.p.DeepCutAfter+1))
	}
}

// PromotionMultiplier multiplies one factor per active promotion on id.
func (m Model) PromotionMultiplier(id string, promos []model.Promotion) float64 {
	mult := 1.0
	for _, p := range promos {
		if p.TargetID != id || p.WeeksRemaining <= 0 {
			continue
		}
		budget := math.Max(0, p.Budget)
		mult *= 1 + m.p.PromotionBase + math.Log10(budget/m.p.PromotionBudgetUnit+1)*m.p.PromotionLogScale
	}
	return mult
}

func (m Model) TrackSales(streams int64) int64 {
	return mathx.FloorInt64(float64(streams) * m.p.TrackSalesRatio)
}

func (m Model) ProjectPureSales(score float64) int64 {
	return mathx.FloorInt64(score * m.p.ProjectPureSalesRatio)
}

// ProjectUnits is the album-equivalent total: pure sales plus stream and
// track-sale equivalents of its tracks.
func ProjectUnits(pureSales, trackStreams, trackSales int64) int64 {
	return mathx.AddSat(mathx.AddSat(pureSales, trackStreams/model.StreamsPerUnit), trackSales/model.TrackSalesPerAlbumUnit)
}

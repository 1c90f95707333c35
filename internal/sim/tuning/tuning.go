package tuning

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Version           string `yaml:"version"`
	DefaultDifficulty string `yaml:"default_difficulty"`
	FeedCap           int    `yaml:"feed_cap"`

	Performance Performance `yaml:"performance"`
	NPC         NPC         `yaml:"npc"`
	Economy     Economy     `yaml:"economy"`
	Review      Review      `yaml:"review"`
	Narrative   Narrative   `yaml:"narrative"`

	Difficulties map[string]Difficulty `yaml:"difficulties"`
	FameTiers    map[string]FameTier   `yaml:"fame_tiers"`
}

type Performance struct {
	ListenerWeight           float64 `yaml:"listener_weight"`
	ReputationListenerWeight float64 `yaml:"reputation_listener_weight"`
	ReputationFlat           float64 `yaml:"reputation_flat"`

	QualityPivot    float64 `yaml:"quality_pivot"`
	QualityExponent float64 `yaml:"quality_exponent"`
	QualityBlend    float64 `yaml:"quality_blend"`
	RawPowerBlend   float64 `yaml:"raw_power_blend"`

	DebutBoostMin float64 `yaml:"debut_boost_min"`
	DebutBoostMax float64 `yaml:"debut_boost_max"`

	// Stability tiers, matched by the first MinQuality <= quality (highest first).
	Stability []StabilityTier `yaml:"stability"`

	CatalogFloor float64 `yaml:"catalog_floor"`

	SingleWeight     float64 `yaml:"single_weight"`
	LeadTrackWeight  float64 `yaml:"lead_track_weight"`
	LeadTracks       int     `yaml:"lead_tracks"`
	AlbumTrackWeight float64 `yaml:"album_track_weight"`
	DeepCutAfter     int     `yaml:"deep_cut_after"`
	DeepCutDecay     float64 `yaml:"deep_cut_decay"`

	PromotionBase       float64 `yaml:"promotion_base"`
	PromotionLogScale   float64 `yaml:"promotion_log_scale"`
	PromotionBudgetUnit float64 `yaml:"promotion_budget_unit"`

	VarianceMin  float64 `yaml:"variance_min"`
	VarianceSpan float64 `yaml:"variance_span"`

	TrackSalesRatio       float64 `yaml:"track_sales_ratio"`
	ProjectPureSalesRatio float64 `yaml:"project_pure_sales_ratio"`
}

type StabilityTier struct {
	MinQuality int     `yaml:"min_quality"`
	Stability  float64 `yaml:"stability"`
}

type NPC struct {
	TracksPerWeek   int     `yaml:"tracks_per_week"`
	QualityMin      int     `yaml:"quality_min"`
	QualityMax      int     `yaml:"quality_max"` // exclusive
	TrackSeedScale  float64 `yaml:"track_seed_scale"`
	AlbumSeedScale  float64 `yaml:"album_seed_scale"`
	QualityPivot    float64 `yaml:"quality_pivot"`
	QualityExponent float64 `yaml:"quality_exponent"`
	JitterMin       float64 `yaml:"jitter_min"`
	JitterSpan      float64 `yaml:"jitter_span"`

	AlbumsPerWeek       int `yaml:"albums_per_week"`
	SurgeEveryWeeks     int `yaml:"surge_every_weeks"`
	SurgeAlbums         int `yaml:"surge_albums"`
	AlbumCooldownWeeks  int `yaml:"album_cooldown_weeks"`
	AlbumTypeEPPercent  int `yaml:"album_type_ep_percent"`
	AlbumTypeMixPercent int `yaml:"album_type_mixtape_percent"`
}

type Economy struct {
	RoyaltyPerStream  float64 `yaml:"royalty_per_stream"`
	PrimaryShare      float64 `yaml:"primary_share"`
	VideoViewRatio    float64 `yaml:"video_view_ratio"`
	AudioViewRatio    float64 `yaml:"audio_view_ratio"`
	DebutReputation   float64 `yaml:"debut_reputation"`
	NumberOneRep      float64 `yaml:"number_one_reputation"`
	MaxReputation     float64 `yaml:"max_reputation"`
	DefaultMaxEnergy  int     `yaml:"default_max_energy"`
	SummaryTopTracks  int     `yaml:"summary_top_tracks"`
	StartingMoney     float64 `yaml:"starting_money"`
	StartingListeners int64   `yaml:"starting_listeners"`
	// Weekly streams that bring in one new listener, before the difficulty inflow rate.
	StreamsPerListener float64 `yaml:"streams_per_listener"`
	MaxListeners       int64   `yaml:"max_listeners"`
}

type Review struct {
	Noise float64 `yaml:"noise"`
}

type Narrative struct {
	EngagementRate float64 `yaml:"engagement_rate"`
	MinLikes       int64   `yaml:"min_likes"`
	RepostDivisor  int64   `yaml:"repost_divisor"`
	NotifyTopPeak  int     `yaml:"notify_top_peak"`
}

type Difficulty struct {
	StreamMultiplier  float64 `yaml:"stream_multiplier"`
	ListenerDecay     float64 `yaml:"listener_decay"`
	ListenerInflow    float64 `yaml:"listener_inflow"`
	RoyaltyMultiplier float64 `yaml:"royalty_multiplier"`
	ReviewBias        float64 `yaml:"review_bias"`
}

type FameTier struct {
	Power float64 `yaml:"power"`
	Cost  float64 `yaml:"cost"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		Version:           "1",
		DefaultDifficulty: "normal",
		FeedCap:           200,
		Performance: Performance{
			ListenerWeight:           0.8,
			ReputationListenerWeight: 0.4,
			ReputationFlat:           500,
			QualityPivot:             60,
			QualityExponent:          4,
			QualityBlend:             0.5,
			RawPowerBlend:            0.1,
			DebutBoostMin:            6,
			DebutBoostMax:            12,
			Stability: []StabilityTier{
				{MinQuality: 90, Stability: 0.93},
				{MinQuality: 80, Stability: 0.88},
				{MinQuality: 70, Stability: 0.82},
				{MinQuality: 0, Stability: 0.75},
			},
			CatalogFloor:          0.005,
			SingleWeight:          1.0,
			LeadTrackWeight:       0.75,
			LeadTracks:            3,
			AlbumTrackWeight:      0.5,
			DeepCutAfter:          10,
			DeepCutDecay:          0.85,
			PromotionBase:         1.0,
			PromotionLogScale:     1.5,
			PromotionBudgetUnit:   1000,
			VarianceMin:           0.9,
			VarianceSpan:          0.2,
			TrackSalesRatio:       0.0004,
			ProjectPureSalesRatio: 0.0015,
		},
		NPC: NPC{
			TracksPerWeek:       17,
			QualityMin:          65,
			QualityMax:          95,
			TrackSeedScale:      1500000,
			AlbumSeedScale:      1000,
			QualityPivot:        80,
			QualityExponent:     3,
			JitterMin:           0.8,
			JitterSpan:          0.4,
			AlbumsPerWeek:       2,
			SurgeEveryWeeks:     4,
			SurgeAlbums:         5,
			AlbumCooldownWeeks:  20,
			AlbumTypeEPPercent:  20,
			AlbumTypeMixPercent: 10,
		},
		Economy: Economy{
			RoyaltyPerStream:   0.004,
			PrimaryShare:       0.6,
			VideoViewRatio:     0.35,
			AudioViewRatio:     0.10,
			DebutReputation:    1,
			NumberOneRep:       3,
			MaxReputation:      100,
			DefaultMaxEnergy:   100,
			SummaryTopTracks:   5,
			StartingMoney:      5000,
			StartingListeners:  1000,
			StreamsPerListener: 4,
			MaxListeners:       150_000_000,
		},
		Review: Review{Noise: 1.5},
		Narrative: Narrative{
			EngagementRate: 0.01,
			MinLikes:       12,
			RepostDivisor:  8,
			NotifyTopPeak:  10,
		},
		Difficulties: map[string]Difficulty{
			"easy":      {StreamMultiplier: 1.25, ListenerDecay: 0.10, ListenerInflow: 0.15, RoyaltyMultiplier: 1.5, ReviewBias: 0.5},
			"normal":    {StreamMultiplier: 1.0, ListenerDecay: 0.15, ListenerInflow: 0.12, RoyaltyMultiplier: 1.0, ReviewBias: 0},
			"hard":      {StreamMultiplier: 0.8, ListenerDecay: 0.20, ListenerInflow: 0.10, RoyaltyMultiplier: 0.8, ReviewBias: -0.5},
			"realistic": {StreamMultiplier: 0.6, ListenerDecay: 0.25, ListenerInflow: 0.08, RoyaltyMultiplier: 0.6, ReviewBias: -1},
		},
		FameTiers: map[string]FameTier{
			"Legend":      {Power: 10, Cost: 250000},
			"Superstar":   {Power: 6, Cost: 120000},
			"Star":        {Power: 3.5, Cost: 50000},
			"Established": {Power: 1.8, Cost: 15000},
			"Rising":      {Power: 0.8, Cost: 4000},
		},
	}
}

func (t *Tuning) normalize() {
	sort.SliceStable(t.Performance.Stability, func(i, j int) bool {
		return t.Performance.Stability[i].MinQuality > t.Performance.Stability[j].MinQuality
	})
	if strings.TrimSpace(t.DefaultDifficulty) == "" {
		t.DefaultDifficulty = "normal"
	}
}

func (t Tuning) Validate() error {
	if len(t.Difficulties) == 0 {
		return fmt.Errorf("difficulties must not be empty")
	}
	if _, ok := t.Difficulties[t.DefaultDifficulty]; !ok {
		return fmt.Errorf("default_difficulty %q is not defined", t.DefaultDifficulty)
	}
	for name, d := range t.Difficulties {
		if d.ListenerDecay < 0 || d.ListenerDecay > 1 {
			return fmt.Errorf("difficulty %s listener_decay must be in [0,1]", name)
		}
		if d.StreamMultiplier <= 0 {
			return fmt.Errorf("difficulty %s stream_multiplier must be > 0", name)
		}
	}
	if len(t.FameTiers) == 0 {
		return fmt.Errorf("fame_tiers must not be empty")
	}
	if len(t.Performance.Stability) == 0 {
		return fmt.Errorf("performance.stability must not be empty")
	}
	for _, s := range t.Performance.Stability {
		if s.Stability <= 0 || s.Stability > 1 {
			return fmt.Errorf("stability %v for min_quality %d must be in (0,1]", s.Stability, s.MinQuality)
		}
	}
	if t.Performance.DebutBoostMax < t.Performance.DebutBoostMin {
		return fmt.Errorf("debut_boost_max must be >= debut_boost_min")
	}
	if t.NPC.QualityMax <= t.NPC.QualityMin {
		return fmt.Errorf("npc quality_max must be > quality_min")
	}
	if t.NPC.TracksPerWeek < 0 || t.NPC.AlbumsPerWeek < 0 || t.NPC.SurgeAlbums < 0 {
		return fmt.Errorf("npc release counts must be >= 0")
	}
	if t.Economy.PrimaryShare < 0 || t.Economy.PrimaryShare > 1 {
		return fmt.Errorf("economy primary_share must be in [0,1]")
	}
	if t.Economy.StreamsPerListener <= 0 {
		return fmt.Errorf("economy streams_per_listener must be > 0")
	}
	if t.Economy.MaxListeners <= 0 || t.Economy.StartingListeners > t.Economy.MaxListeners {
		return fmt.Errorf("economy max_listeners must be > 0 and >= starting_listeners")
	}
	return nil
}

// DifficultyFor falls back to the default difficulty for unknown keys.
func (t Tuning) DifficultyFor(name string) Difficulty {
	if d, ok := t.Difficulties[name]; ok {
		return d
	}
	return t.Difficulties[t.DefaultDifficulty]
}

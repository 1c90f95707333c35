package model

import "time"

type PromotionType string

const (
	PromotionPlaylist PromotionType = "playlist"
	PromotionRadio    PromotionType = "radio"
	PromotionSocial   PromotionType = "social"
	PromotionTV       PromotionType = "tv"
)

// Promotion boosts its target while WeeksRemaining > 0.
type Promotion struct {
	ID             string        `json:"id"`
	Type           PromotionType `json:"type"`
	TargetID       string        `json:"targetId"`
	Budget         float64       `json:"budget"`
	WeeksRemaining int           `json:"weeksRemaining"`
}

type Player struct {
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`

	Money            float64 `json:"money"`
	Energy           int     `json:"energy"`
	MaxEnergy        int     `json:"maxEnergy"`
	MonthlyListeners int64   `json:"monthlyListeners"`
	Reputation       float64 `json:"reputation"`

	Hot100StreakWeeks int `json:"hot100StreakWeeks"`
	NumberOneWeeks    int `json:"numberOneWeeks"`

	// Feed is newest first.
	Feed []SocialPost `json:"feed,omitempty"`
}

// NPCArtist is a static roster identity; gameplay never mutates it.
type NPCArtist struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
}

type Notification struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
}

const (
	CategoryCertification = "certification"
	CategoryChart         = "chart"
	CategoryMoney         = "money"
	CategoryRelease       = "release"
)

type PostKind string

const (
	PostDebut        PostKind = "debut"
	PostDelayedDebut PostKind = "delayed_debut"
	PostReEntry      PostKind = "re_entry"
	PostNewPeak      PostKind = "new_peak"
	PostDeparted     PostKind = "departed"
	PostFailedDebut  PostKind = "failed_debut"
)

type SocialPost struct {
	ID       string    `json:"id"`
	Kind     PostKind  `json:"kind"`
	Handle   string    `json:"handle"`
	Message  string    `json:"message"`
	Likes    int64     `json:"likes"`
	Reposts  int64     `json:"reposts"`
	EntityID string    `json:"entityId,omitempty"`
	Chart    ChartID   `json:"chart,omitempty"`
	Date     time.Time `json:"date"`
}

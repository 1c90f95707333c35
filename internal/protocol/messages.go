package protocol

// SUBSCRIBE (client -> server)
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ClientName      string   `json:"client_name,omitempty"`
	Charts          []string `json:"charts,omitempty"` // empty = all charts
	Top             int      `json:"top,omitempty"`    // rows per chart; 0 = server default
	MaxQueue        int      `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Game            GameInfo       `json:"game"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Charts          []string       `json:"charts"`
	Top             int            `json:"top"`
}

type GameInfo struct {
	Seed       int64  `json:"seed"`
	Week       int    `json:"week"`
	Date       string `json:"date"`
	Player     string `json:"player"`
	Difficulty string `json:"difficulty"`
}

type CatalogDigests struct {
	CatalogsDigest string `json:"catalogs_digest"`
	TuningVersion  string `json:"tuning_version"`
}

// WEEK (server -> client): one finished simulation week.
type WeekMsg struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Week            int                   `json:"week"`
	Date            string                `json:"date"`
	Digest          string                `json:"digest"`
	Charts          map[string][]ChartRow `json:"charts"`
	Notifications   []NotificationRow     `json:"notifications"`
	Posts           []PostRow             `json:"posts,omitempty"`
	Player          PlayerRow             `json:"player"`
}

type ChartRow struct {
	Rank         int     `json:"rank"`
	EntityID     string  `json:"entity_id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	NPC          bool    `json:"npc,omitempty"`
	Units        float64 `json:"units"`
	LastWeek     int     `json:"last_week,omitempty"`
	Peak         int     `json:"peak"`
	WeeksOnChart int     `json:"weeks_on_chart"`
	Movement     string  `json:"movement"`
}

type NotificationRow struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

type PostRow struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Handle  string `json:"handle"`
	Message string `json:"message"`
	Likes   int64  `json:"likes"`
	Reposts int64  `json:"reposts"`
}

type PlayerRow struct {
	Name             string  `json:"name"`
	Money            float64 `json:"money"`
	MonthlyListeners int64   `json:"monthly_listeners"`
	Reputation       float64 `json:"reputation"`
	Hot100Streak     int     `json:"hot100_streak_weeks"`
}

// ERROR (server -> client), sent before closing a rejected connection.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

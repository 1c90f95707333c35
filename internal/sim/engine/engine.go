package engine

import (
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/certs"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/narrative"
	"charttopper.fm/internal/sim/perf"
	"charttopper.fm/internal/sim/tuning"
)

// Simulator advances a game one week at a time. It holds only reference
// data and optional sinks; every call consumes a State and returns a new one.
type Simulator struct {
	tun   tuning.Tuning
	cats  *catalogs.Catalogs
	perf  perf.Model
	certs *certs.Engine
	story *narrative.Generator

	logger     *log.Logger
	weekLogger WeekLogger
}

type WeekLogger interface {
	WriteWeek(entry WeekLogEntry) error
}

// WeekLogEntry is enough to re-run and verify a week: the flag that changes
// behaviour plus the resulting digest.
type WeekLogEntry struct {
	Week          int        `json:"week"`
	Date          time.Time  `json:"date"`
	Fast          bool       `json:"fast,omitempty"`
	Notifications int        `json:"notifications"`
	Hot100Top     string     `json:"hot100_top,omitempty"`
	Decisions     []Decision `json:"decisions,omitempty"`
	Digest        string     `json:"digest"`
}

type Options struct {
	// Fast skips feed posts and the top-tracks summary.
	Fast bool
	// Decisions are applied to the input state before the week runs.
	Decisions []Decision
}

type WeekResult struct {
	State         model.State
	Notifications []model.Notification
	TopTracks     []model.Track

	Departures []narrative.Departure
	Awards     []certs.Award
	Events     []narrative.Event
	Posts      []model.SocialPost
	Fast       bool
	// Rejected holds one message per decision that could not be applied.
	Rejected []string
	Digest   string
}

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Flavor   narrative.FlavorProvider
	Logger   *log.Logger
}

func New(cfg Config) (*Simulator, error) {
	if cfg.Catalogs == nil {
		cfg.Catalogs = catalogs.Defaults()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if err := cfg.Catalogs.Roster.CheckTiers(func(tier string) bool {
		_, ok := cfg.Tuning.FameTiers[tier]
		return ok
	}); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Simulator{
		tun:    cfg.Tuning,
		cats:   cfg.Catalogs,
		perf:   perf.New(cfg.Tuning.Performance),
		certs:  certs.New(cfg.Catalogs.Certs),
		story:  narrative.New(cfg.Tuning, cfg.Catalogs, cfg.Flavor),
		logger: cfg.Logger,
	}, nil
}

func (s *Simulator) SetWeekLogger(l WeekLogger) { s.weekLogger = l }

func (s *Simulator) Tuning() tuning.Tuning        { return s.tun }
func (s *Simulator) Catalogs() *catalogs.Catalogs { return s.cats }

// SimulateWeek runs one tick. The input state is not modified.
func (s *Simulator) SimulateWeek(state model.State, opts Options) WeekResult {
	var rejected []string
	if len(opts.Decisions) > 0 {
		var errs []error
		state, errs = ApplyAll(state, opts.Decisions)
		for i, err := range errs {
			if err != nil {
				rejected = append(rejected, fmt.Sprintf("%s: %v", opts.Decisions[i].Kind, err))
			}
		}
	}
	w := s.begin(state)

	w.advancePromotions()
	w.releaseNPCs()
	w.activateReleases()
	w.computePerformance()
	w.rankCharts()
	w.detectDepartures()
	w.accumulate()
	w.certify()
	w.settleEconomy()
	w.tellStory(opts.Fast)

	res := w.finish(opts)
	res.Rejected = rejected
	res.Digest = Digest(res.State)

	top := ""
	if len(res.State.Charts.Hot100) > 0 {
		e := res.State.Charts.Hot100[0]
		top = e.Title + " - " + e.Artist
	}
	if s.weekLogger != nil {
		_ = s.weekLogger.WriteWeek(WeekLogEntry{
			Week:          res.State.Week,
			Date:          res.State.Date,
			Fast:          opts.Fast,
			Notifications: len(res.Notifications),
			Hot100Top:     top,
			Decisions:     opts.Decisions,
			Digest:        res.Digest,
		})
	}
	s.logger.Printf("week=%d date=%s npc_tracks=%d hot100_top=%q notifications=%d",
		res.State.Week, res.State.Date.Format("2006-01-02"), len(res.State.NPCTracks), top, len(res.Notifications))
	return res
}

// SimulateWeeks runs n sequential ticks, each consuming the previous
// result, and merges their notifications in order. Decisions apply to the
// first week only.
func (s *Simulator) SimulateWeeks(state model.State, n int, opts Options) WeekResult {
	var res WeekResult
	res.State = state
	var all []model.Notification
	for i := 0; i < n; i++ {
		res = s.SimulateWeek(res.State, opts)
		opts.Decisions = nil
		all = append(all, res.Notifications...)
	}
	res.Notifications = all
	return res
}

// SimulateYear is 52 ticks; all but the last run fast, so the returned
// summary and feed reflect the final week.
func (s *Simulator) SimulateYear(state model.State) WeekResult {
	fast := s.SimulateWeeks(state, 51, Options{Fast: true})
	last := s.SimulateWeek(fast.State, Options{})
	last.Notifications = append(fast.Notifications, last.Notifications...)
	return last
}

// TopTracks returns the n player tracks with the most streams this week.
func TopTracks(tracks map[string]model.Track, n int) []model.Track {
	out := make([]model.Track, 0, len(tracks))
	for _, id := range model.SortedIDs(tracks) {
		if t := tracks[id]; t.WeeklyStreams > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeeklyStreams > out[j].WeeklyStreams })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

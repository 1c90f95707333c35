package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"charttopper.fm/internal/persistence/archive"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
)

type weekIndex interface {
	RecordWeek(res engine.WeekResult)
	RecordSave(path string, h snapshot.Header)
}

type weekPublisher interface {
	Publish(res engine.WeekResult)
}

type fileMirror interface {
	Enqueue(localPath string) bool
	EnqueueIfExists(localPath string) bool
}

type notificationWriter interface {
	WriteNotifications(week int, ns []model.Notification) error
}

// gameLoop owns the live State; everything else reads it through requests
// handled on the loop goroutine.
type gameLoop struct {
	sim      *engine.Simulator
	auto     *engine.Autoplay
	state    model.State
	digest   string
	gameDir  string
	saveDir  string
	every    int // save every N weeks; 0 disables periodic saves
	fastRuns bool

	index  weekIndex
	feed   weekPublisher
	notes  notificationWriter
	mirror fileMirror
	log    *log.Logger

	// Decisions queued for the next week and the state they preview.
	pending []engine.Decision
	preview model.State

	admin chan adminReq
}

type adminKind int

const (
	adminState adminKind = iota + 1
	adminSave
	adminStep
)

type adminReq struct {
	kind adminKind
	fn   func()
	resp chan adminResp
}

type adminResp struct {
	Summary stateSummary
	Path    string
	Err     error
}

type stateSummary struct {
	Seed             int64   `json:"seed"`
	Week             int     `json:"week"`
	Date             string  `json:"date"`
	Digest           string  `json:"digest"`
	Player           string  `json:"player"`
	Money            float64 `json:"money"`
	MonthlyListeners int64   `json:"monthly_listeners"`
	Reputation       float64 `json:"reputation"`
	Tracks           int     `json:"tracks"`
	Projects         int     `json:"projects"`
	NPCTracks        int     `json:"npc_tracks"`
	NPCProjects      int     `json:"npc_projects"`
	Hot100Top        string  `json:"hot100_top,omitempty"`
}

func newGameLoop(sim *engine.Simulator, st model.State, logger *log.Logger) *gameLoop {
	return &gameLoop{
		sim:     sim,
		state:   st,
		preview: st,
		digest:  engine.Digest(st),
		log:     logger,
		admin:   make(chan adminReq, 16),
	}
}

// Run advances one week per interval until ctx is done.
func (g *gameLoop) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-g.admin:
			if r.fn != nil {
				r.fn()
				r.resp <- adminResp{}
				continue
			}
			r.resp <- g.handle(r.kind)
		case <-t.C:
			g.step()
		}
	}
}

func (g *gameLoop) handle(kind adminKind) adminResp {
	switch kind {
	case adminSave:
		p, err := g.save()
		return adminResp{Summary: g.summary(), Path: p, Err: err}
	case adminStep:
		g.step()
	}
	return adminResp{Summary: g.summary()}
}

func (g *gameLoop) step() engine.WeekResult {
	st := g.state
	if g.auto != nil {
		st = g.auto.Plan(st)
	}
	res := g.sim.SimulateWeek(st, engine.Options{Fast: g.fastRuns, Decisions: g.pending})
	g.state, g.digest = res.State, res.Digest
	g.preview, g.pending = res.State, nil
	for _, msg := range res.Rejected {
		g.log.Printf("week %d: decision rejected: %s", res.State.Week, msg)
	}

	if g.notes != nil {
		if err := g.notes.WriteNotifications(res.State.Week, res.Notifications); err != nil {
			g.log.Printf("notification log: %v", err)
		}
	}
	if g.index != nil {
		g.index.RecordWeek(res)
	}
	if g.feed != nil {
		g.feed.Publish(res)
	}
	_, yearEnd := archive.YearEnd(res.State.Week)
	if yearEnd || (g.every > 0 && res.State.Week%g.every == 0) {
		if _, err := g.save(); err != nil {
			g.log.Printf("save week %d: %v", res.State.Week, err)
		}
	}
	return res
}

func (g *gameLoop) save() (string, error) {
	path := filepath.Join(g.saveDir, snapshot.FileName(g.state.Week))
	h := snapshot.Header{
		Week:           g.state.Week,
		Seed:           g.state.Seed,
		CatalogsDigest: g.sim.Catalogs().Digest(),
		TuningVersion:  g.sim.Tuning().Version,
		StateDigest:    g.digest,
		Autoplay:       g.auto != nil,
	}
	if err := snapshot.WriteSnapshot(path, snapshot.SnapshotV1{Header: h, State: g.state}); err != nil {
		return "", err
	}
	if g.index != nil {
		g.index.RecordSave(path, h)
	}
	if g.mirror != nil {
		g.mirror.Enqueue(path)
	}
	if year, archived, ok, err := archive.ArchiveYearSave(g.gameDir, path, h); err != nil {
		g.log.Printf("archive week %d: %v", h.Week, err)
	} else if ok {
		g.log.Printf("archived year=%d path=%s", year, archived)
		if g.mirror != nil {
			g.mirror.Enqueue(archived)
			g.mirror.EnqueueIfExists(filepath.Join(filepath.Dir(archived), "meta.json"))
		}
	}
	g.log.Printf("saved week=%d path=%s", g.state.Week, path)
	return path, nil
}

func (g *gameLoop) summary() stateSummary {
	st := g.state
	s := stateSummary{
		Seed:             st.Seed,
		Week:             st.Week,
		Date:             st.Date.Format("2006-01-02"),
		Digest:           g.digest,
		Player:           st.Player.Name,
		Money:            st.Player.Money,
		MonthlyListeners: st.Player.MonthlyListeners,
		Reputation:       st.Player.Reputation,
		Tracks:           len(st.Tracks),
		Projects:         len(st.Projects),
		NPCTracks:        len(st.NPCTracks),
		NPCProjects:      len(st.NPCProjects),
	}
	if len(st.Charts.Hot100) > 0 {
		e := st.Charts.Hot100[0]
		s.Hot100Top = e.Title + " - " + e.Artist
	}
	return s
}

// exec runs fn on the loop goroutine.
func (g *gameLoop) exec(ctx context.Context, fn func()) error {
	r := adminReq{fn: fn, resp: make(chan adminResp, 1)}
	select {
	case g.admin <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request runs kind on the loop goroutine.
func (g *gameLoop) request(ctx context.Context, kind adminKind) (adminResp, error) {
	r := adminReq{kind: kind, resp: make(chan adminResp, 1)}
	select {
	case g.admin <- r:
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}
	select {
	case resp := <-r.resp:
		return resp, nil
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}
}

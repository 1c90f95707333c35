// Package mcp serves the studio over JSON-RPC so scripts and agents can play
// a running game: read charts, record music, schedule releases, promote.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
)

// Studio is the game side. Decisions are queued for the next week.
type Studio interface {
	Status(ctx context.Context) (Status, error)
	Charts(ctx context.Context, chart model.ChartID, top int) ([]model.ChartEntry, error)
	Decide(ctx context.Context, d engine.Decision) (Decided, error)
	Pending(ctx context.Context) ([]engine.Decision, error)
}

type Status struct {
	Week             int      `json:"week"`
	Date             string   `json:"date"`
	Player           string   `json:"player"`
	Money            float64  `json:"money"`
	MonthlyListeners int64    `json:"monthlyListeners"`
	Reputation       float64  `json:"reputation"`
	Unreleased       []string `json:"unreleased"`
	Pending          int      `json:"pending"`
}

type Decided struct {
	ID      string `json:"id"`
	Pending int    `json:"pending"`
}

type Config struct {
	Studio     Studio
	HMACSecret string
}

type Server struct {
	studio     Studio
	hmacSecret []byte
	guard      *replayGuard
	now        func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Studio == nil {
		return nil, fmt.Errorf("nil studio")
	}
	s := &Server{studio: cfg.Studio, now: time.Now}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.guard = newReplayGuard(0)
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return s.handleMCP
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	if len(s.hmacSecret) > 0 {
		now := s.now()
		vr := verifyHMAC(r, body, s.hmacSecret, now)
		if vr.HTTPStatus != 0 {
			http.Error(rw, vr.Message, vr.HTTPStatus)
			return
		}
		if !s.guard.allow(vr.AgentID, vr.Signature, now) {
			http.Error(rw, "replayed request", http.StatusConflict)
			return
		}
	}

	req, err := parseRPCRequest(body)
	if err != nil {
		http.Error(rw, "bad jsonrpc request", http.StatusBadRequest)
		return
	}
	resp := s.dispatch(r.Context(), req)
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": "charttopper"},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools", "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})

	case "call_tool", "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		if p.Name == "" {
			return rpcErr(req.ID, codeInvalidParams, "missing tool name", nil)
		}
		if !isKnownTool(p.Name) {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, p.Name, p.Arguments)
		if err != nil {
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

const (
	toolStatus        = "charttopper.get_status"
	toolCharts        = "charttopper.get_charts"
	toolRecordTrack   = "charttopper.record_track"
	toolRecordProject = "charttopper.record_project"
	toolSchedule      = "charttopper.schedule_release"
	toolPromote       = "charttopper.promote"
	toolPending       = "charttopper.pending"
)

func isKnownTool(name string) bool {
	switch name {
	case toolStatus, toolCharts, toolRecordTrack, toolRecordProject, toolSchedule, toolPromote, toolPending:
		return true
	default:
		return false
	}
}

func toolsList() []map[string]any {
	noArgs := map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}
	trackProps := map[string]any{
		"title":      map[string]any{"type": "string"},
		"genre":      map[string]any{"type": "string"},
		"mood":       map[string]any{"type": "string"},
		"topic":      map[string]any{"type": "string"},
		"quality":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"musicVideo": map[string]any{"type": "boolean"},
	}
	return []map[string]any{
		{
			"name":        toolStatus,
			"description": "Current week, date, money, listeners and unreleased catalog.",
			"inputSchema": noArgs,
		},
		{
			"name":        toolCharts,
			"description": "Top rows of a chart as of the last simulated week.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chart": map[string]any{"type": "string", "enum": []string{"hot100", "bubblingUnderHot50", "albums200"}},
					"top":   map[string]any{"type": "integer", "minimum": 1, "maximum": 200},
				},
			},
		},
		{
			"name":        toolRecordTrack,
			"description": "Record an unreleased single.",
			"inputSchema": map[string]any{"type": "object", "properties": trackProps, "required": []string{"title", "quality"}},
		},
		{
			"name":        toolRecordProject,
			"description": "Record an album, EP or mixtape with its tracks.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":         map[string]any{"type": "string"},
					"type":          map[string]any{"type": "string", "enum": []string{"Album", "EP", "Mixtape"}},
					"genre":         map[string]any{"type": "string"},
					"quality":       map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
					"firstWeekGoal": map[string]any{"type": "integer"},
					"tracks":        map[string]any{"type": "array", "items": map[string]any{"type": "object", "properties": trackProps}},
				},
				"required": []string{"title", "type", "tracks"},
			},
		},
		{
			"name":        toolSchedule,
			"description": "Schedule a recorded track or project for release on a date (YYYY-MM-DD).",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"date": map[string]any{"type": "string"},
				},
				"required": []string{"id", "date"},
			},
		},
		{
			"name":        toolPromote,
			"description": "Pay for a promotion campaign on a track or project.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":     map[string]any{"type": "string"},
					"type":   map[string]any{"type": "string", "enum": []string{"playlist", "radio", "social", "tv"}},
					"budget": map[string]any{"type": "number", "minimum": 0},
					"weeks":  map[string]any{"type": "integer", "minimum": 1},
				},
				"required": []string{"id", "type", "budget", "weeks"},
			},
		},
		{
			"name":        toolPending,
			"description": "Decisions queued for the next week.",
			"inputSchema": noArgs,
		},
	}
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolStatus:
		return s.studio.Status(ctx)

	case toolCharts:
		p := struct {
			Chart string `json:"chart"`
			Top   int    `json:"top"`
		}{Chart: string(model.ChartHot100), Top: 10}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		if p.Top <= 0 || p.Top > 200 {
			p.Top = 10
		}
		rows, err := s.studio.Charts(ctx, model.ChartID(p.Chart), p.Top)
		if err != nil {
			return nil, err
		}
		return map[string]any{"chart": p.Chart, "rows": rows}, nil

	case toolRecordTrack:
		var t engine.TrackSpec
		if err := decodeArgs(args, &t); err != nil {
			return nil, err
		}
		return s.studio.Decide(ctx, engine.Decision{Kind: engine.DecideRecordTrack, Track: &t})

	case toolRecordProject:
		var p engine.ProjectSpec
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return s.studio.Decide(ctx, engine.Decision{Kind: engine.DecideRecordProject, Project: &p})

	case toolSchedule:
		var p struct {
			ID   string `json:"id"`
			Date string `json:"date"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		at, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q: want YYYY-MM-DD", p.Date)
		}
		return s.studio.Decide(ctx, engine.Decision{Kind: engine.DecideSchedule, ID: p.ID, At: at})

	case toolPromote:
		var p struct {
			ID     string              `json:"id"`
			Type   model.PromotionType `json:"type"`
			Budget float64             `json:"budget"`
			Weeks  int                 `json:"weeks"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return s.studio.Decide(ctx, engine.Decision{Kind: engine.DecidePromote, ID: p.ID, Promotion: p.Type, Budget: p.Budget, Weeks: p.Weeks})

	case toolPending:
		ds, err := s.studio.Pending(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"decisions": ds}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("bad arguments: %w", err)
	}
	return nil
}

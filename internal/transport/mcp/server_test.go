package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
)

type stubStudio struct {
	decided []engine.Decision
}

func (s *stubStudio) Status(ctx context.Context) (Status, error) {
	return Status{Week: 3, Player: "Stub", Pending: len(s.decided)}, nil
}

func (s *stubStudio) Charts(ctx context.Context, chart model.ChartID, top int) ([]model.ChartEntry, error) {
	if chart != model.ChartHot100 {
		return nil, fmt.Errorf("unknown chart %s", chart)
	}
	return []model.ChartEntry{{Chart: chart, Rank: 1, Title: "Song", Artist: "A"}}[:min(top, 1)], nil
}

func (s *stubStudio) Decide(ctx context.Context, d engine.Decision) (Decided, error) {
	s.decided = append(s.decided, d)
	return Decided{ID: fmt.Sprintf("trk_%d", len(s.decided)), Pending: len(s.decided)}, nil
}

func (s *stubStudio) Pending(ctx context.Context) ([]engine.Decision, error) {
	return s.decided, nil
}

func rpcPost(t *testing.T, url string, payload any, sign func(*http.Request, []byte)) (int, rpcResponse) {
	t.Helper()
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, url+"/mcp", bytes.NewReader(b))
	req.Header.Set("content-type", "application/json")
	if sign != nil {
		sign(req, b)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var out rpcResponse
	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return res.StatusCode, out
}

func newTestServer(t *testing.T, studio Studio, secret string) *httptest.Server {
	t.Helper()
	s, err := NewServer(Config{Studio: studio, HMACSecret: secret})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func call(name string, args any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params":  map[string]any{"name": name, "arguments": args},
	}
}

func TestInitializeAndListTools(t *testing.T) {
	ts := newTestServer(t, &stubStudio{}, "")

	_, initResp := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"}, nil)
	if initResp.Error != nil {
		t.Fatalf("initialize error: %+v", initResp.Error)
	}
	rm, _ := initResp.Result.(map[string]any)
	if rm["protocolVersion"] == "" {
		t.Fatalf("missing protocolVersion in result")
	}

	_, lt := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "list_tools"}, nil)
	rm2, ok := lt.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected list_tools result type: %T", lt.Result)
	}
	tools, _ := rm2["tools"].([]any)
	if len(tools) != 7 {
		t.Fatalf("tools=%d want 7", len(tools))
	}
}

func TestCallToolUnknown(t *testing.T) {
	ts := newTestServer(t, &stubStudio{}, "")
	_, resp := rpcPost(t, ts.URL, call("nope", map[string]any{}), nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected tool not found, got %+v", resp.Error)
	}
}

func TestCallToolsReachStudio(t *testing.T) {
	studio := &stubStudio{}
	ts := newTestServer(t, studio, "")

	_, resp := rpcPost(t, ts.URL, call(toolRecordTrack, map[string]any{"title": "Neon", "genre": "Pop", "quality": 77}), nil)
	if resp.Error != nil {
		t.Fatalf("record: %+v", resp.Error)
	}
	_, resp = rpcPost(t, ts.URL, call(toolSchedule, map[string]any{"id": "trk_1", "date": "2024-02-02"}), nil)
	if resp.Error != nil {
		t.Fatalf("schedule: %+v", resp.Error)
	}
	_, resp = rpcPost(t, ts.URL, call(toolPromote, map[string]any{"id": "trk_1", "type": "radio", "budget": 500, "weeks": 3}), nil)
	if resp.Error != nil {
		t.Fatalf("promote: %+v", resp.Error)
	}
	if len(studio.decided) != 3 {
		t.Fatalf("decided=%d", len(studio.decided))
	}
	if d := studio.decided[0]; d.Kind != engine.DecideRecordTrack || d.Track.Title != "Neon" || d.Track.Quality != 77 {
		t.Fatalf("record decision=%+v", d)
	}
	if d := studio.decided[1]; d.Kind != engine.DecideSchedule || !d.At.Equal(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("schedule decision=%+v", d)
	}
	if d := studio.decided[2]; d.Promotion != model.PromotionRadio || d.Budget != 500 || d.Weeks != 3 {
		t.Fatalf("promote decision=%+v", d)
	}

	_, resp = rpcPost(t, ts.URL, call(toolSchedule, map[string]any{"id": "trk_1", "date": "next friday"}), nil)
	if resp.Error == nil || resp.Error.Code != codeToolFailed {
		t.Fatalf("bad date: %+v", resp.Error)
	}

	_, resp = rpcPost(t, ts.URL, call(toolCharts, map[string]any{"chart": "albums200"}), nil)
	if resp.Error == nil {
		t.Fatalf("expected studio error to surface")
	}
}

func TestHMACRequiredAndReplayRejected(t *testing.T) {
	secret := []byte("topsecret")
	ts := newTestServer(t, &stubStudio{}, string(secret))
	payload := map[string]any{"jsonrpc": "2.0", "id": 1, "method": "list_tools"}

	if code, _ := rpcPost(t, ts.URL, payload, nil); code != http.StatusUnauthorized {
		t.Fatalf("unsigned status=%d", code)
	}

	var sig http.Header
	sign := func(req *http.Request, body []byte) {
		SignRequest(req, body, secret, "agent_1", "n-1", time.Now())
		sig = req.Header.Clone()
	}
	if code, resp := rpcPost(t, ts.URL, payload, sign); code != http.StatusOK || resp.Error != nil {
		t.Fatalf("signed status=%d err=%+v", code, resp.Error)
	}

	replay := func(req *http.Request, body []byte) {
		for k, v := range sig {
			req.Header[k] = v
		}
	}
	if code, _ := rpcPost(t, ts.URL, payload, replay); code != http.StatusConflict {
		t.Fatalf("replayed status=%d", code)
	}
}

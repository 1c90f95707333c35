package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func (g *gameLoop) stateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.respond(rw, r, adminState)
	}
}

func (g *gameLoop) saveHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.respond(rw, r, adminSave)
	}
}

// stepHandler advances one week immediately, for manual play.
func (g *gameLoop) stepHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.respond(rw, r, adminStep)
	}
}

func (g *gameLoop) respond(rw http.ResponseWriter, r *http.Request, kind adminKind) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	resp, err := g.request(ctx, kind)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if resp.Err != nil {
		http.Error(rw, resp.Err.Error(), http.StatusInternalServerError)
		return
	}
	out := map[string]any{"state": resp.Summary}
	if resp.Path != "" {
		out["path"] = resp.Path
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(out)
}

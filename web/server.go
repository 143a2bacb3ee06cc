// Package web serves the JSON inspection API for the dashboard.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mvalenta/kiri/agent"
	"github.com/mvalenta/kiri/logstore"
)

type Server struct {
	res        *agent.Resources
	router     *agent.Router
	logs       *logstore.Store // nil when the log db is not configured
	httpServer *http.Server
}

func New(addr string, res *agent.Resources, router *agent.Router, logs *logstore.Store) *Server {
	s := &Server{
		res:    res,
		router: router,
		logs:   logs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/profiles", s.handleListProfiles)
	mux.HandleFunc("GET /api/profiles/{id}", s.handleGetProfile)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"agents":         s.router.Status(),
		"uptime_seconds": int(time.Since(s.res.StartedAt).Seconds()),
		"maintenance":    s.res.Maintenance.Load(),
	})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.res.Profiles.All()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"profiles": profiles,
		"total":    len(profiles),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	prof, ok := s.res.Profiles.All()[id]
	if !ok {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prof)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.Error(w, "log store not configured", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := s.logs.List(r.Context(), q.Get("channel_id"), q.Get("level"), limit, offset)
	if err != nil {
		slog.Error("list logs", "error", err)
		http.Error(w, "failed to list logs", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []logstore.LogRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"logs":  rows,
		"total": total,
	})
}

// Package api serves the simulation timeline over HTTP for the map
// dashboard. GET endpoints are public (read-only observation); POST
// endpoints that start or cancel runs require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefiq/reliefsim/internal/sim"
)

// Server serves districts, timelines, and run control over HTTP.
type Server struct {
	Runner   *Runner
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	BaseConfig sim.Config // Defaults applied to run requests
}

// Router builds the chi router for the API.
func (s *Server) Router() http.Handler {
	runLimiter := NewRateLimiter(12, time.Hour)

	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/districts", s.handleDistricts)
	r.Get("/api/v1/timeline", s.handleTimeline)
	r.Get("/api/v1/timeline/{index}", s.handleSnapshot)
	r.Get("/api/v1/movements", s.handleMovements)
	r.Get("/api/v1/runs", s.handleRuns)

	r.Post("/api/v1/run", s.adminOnly(RateLimitMiddleware(runLimiter, s.handleStartRun)))
	r.Post("/api/v1/cancel", s.adminOnly(s.handleCancel))

	return r
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := http.ListenAndServe(addr, s.Router()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Runner.Status()
	latest := s.Runner.Timeline().Last()

	out := map[string]any{
		"running":         status.Running,
		"run_id":          status.RunID,
		"steps_completed": status.StepsCompleted,
		"horizon_months":  s.BaseConfig.HorizonMonths,
		"step_months":     s.BaseConfig.StepMonths,
		"districts":       len(s.Runner.Districts),
	}
	if latest != nil {
		out["current_month"] = latest.Month
		out["total_active_ngos"] = latest.TotalActiveNGOs
	}
	writeJSON(w, out)
}

func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	type districtEntry struct {
		ID               string   `json:"id"`
		DisplayName      string   `json:"display_name"`
		InitialDamagePct float64  `json:"initial_damage_pct"`
		Lon              *float64 `json:"lon,omitempty"`
		Lat              *float64 `json:"lat,omitempty"`
	}

	out := make([]districtEntry, 0, len(s.Runner.Districts))
	for _, d := range s.Runner.Districts {
		entry := districtEntry{
			ID:               d.ID,
			DisplayName:      d.DisplayName,
			InitialDamagePct: d.InitialDamagePct,
		}
		if c, ok := s.Runner.Coordinates[d.ID]; ok {
			lon, lat := c.Lon, c.Lat
			entry.Lon, entry.Lat = &lon, &lat
		}
		out = append(out, entry)
	}
	writeJSON(w, out)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Runner.Timeline())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "snapshot index must be an integer", http.StatusBadRequest)
		return
	}
	snap, err := s.Runner.Timeline().At(idx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	timeline := s.Runner.Timeline()
	var out []any
	for _, snap := range timeline {
		for _, m := range snap.Movements {
			out = append(out, m)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Runner.DB == nil {
		writeJSON(w, []any{})
		return
	}
	runs, err := s.Runner.DB.RecentRuns(20)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HorizonMonths *int  `json:"horizon_months"`
		StepMonths    *int  `json:"step_months"`
		Spreading     *bool `json:"spreading"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // Empty body = defaults
	}

	cfg := s.BaseConfig
	if req.HorizonMonths != nil {
		cfg.HorizonMonths = *req.HorizonMonths
	}
	if req.StepMonths != nil {
		cfg.StepMonths = *req.StepMonths
	}
	if req.Spreading != nil {
		cfg.Policy.EnableSpreading = *req.Spreading
	}

	runID, err := s.Runner.Start(cfg)
	if errors.Is(err, ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		// Anything else is a config/validation failure from the request.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"run_id": runID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.Runner.Cancel() {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"cancelled": true})
}

// adminOnly requires a bearer token on POST endpoints.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "control endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// corsMiddleware allows the dashboard dev servers to call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

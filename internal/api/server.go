// Package api provides the HTTP API for observing a running market.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/gridmarket/internal/agents"
	"github.com/talgya/gridmarket/internal/engine"
	"github.com/talgya/gridmarket/internal/persistence"
)

const defaultEventLimit = 100

// Server serves market state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Runner   *engine.Runner  // Optional; enables POST /api/v1/stop
	DB       *persistence.DB // Optional; enables /api/v1/runs
	RunID    string          // ID of the run being recorded, if any
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	RateLimit float64 // Requests per second per client
	RateBurst int

	httpServer *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgentDetail)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/metrics/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/v1/metrics/prices", s.handlePrices)
	mux.HandleFunc("GET /api/v1/metrics/mean-price", s.handleMeanPrice)

	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/transactions", s.handleRunTransactions)
	mux.HandleFunc("GET /api/v1/runs/{id}/mean-price", s.handleRunMeanPrice)

	mux.HandleFunc("POST /api/v1/stop", s.adminOnly(s.handleStop))

	var h http.Handler = mux
	if s.RateLimit > 0 {
		burst := s.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h = RateLimitMiddleware(NewRateLimiter(s.RateLimit, burst), h)
	}
	return h
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "persistence", s.DB != nil)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no api.admin_key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running := false
	if s.Runner != nil {
		running = s.Runner.Running()
	}
	writeJSON(w, map[string]any{
		"name":    "gridmarket",
		"run_id":  s.RunID,
		"running": running,
		"market":  s.Sim.Snapshot(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	all := s.Sim.AgentSnapshot()

	var role *agents.Role
	switch r.URL.Query().Get("role") {
	case "":
	case "seller":
		v := agents.RoleSeller
		role = &v
	case "buyer":
		v := agents.RoleBuyer
		role = &v
	default:
		http.Error(w, "role must be seller or buyer", http.StatusBadRequest)
		return
	}

	type agentSummary struct {
		ID           agents.AgentID `json:"id"`
		Role         string         `json:"role"`
		X            int            `json:"x"`
		Y            int            `json:"y"`
		Transactions int            `json:"transactions"`
		Resources    int            `json:"resources"`
		Price        *float64       `json:"price,omitempty"`
		Budget       *float64       `json:"budget,omitempty"`
	}

	out := make([]agentSummary, 0, len(all))
	for i := range all {
		a := &all[i]
		if role != nil && a.Role != *role {
			continue
		}
		sum := agentSummary{
			ID:           a.ID,
			Role:         a.Role.String(),
			X:            a.Position.X,
			Y:            a.Position.Y,
			Transactions: a.Transactions,
			Resources:    a.Resources(),
		}
		if p, ok := a.Price(); ok {
			sum.Price = &p
		}
		if a.Purse != nil {
			b := a.Purse.Budget
			sum.Budget = &b
		}
		out = append(out, sum)
	}
	writeJSON(w, out)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a, ok := s.Sim.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultEventLimit)
	if !ok {
		return
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Metrics.TransactionSeries())
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	since, ok := intParam(w, r, "since", 0)
	if !ok {
		return
	}
	series := s.Sim.Metrics.PriceSeries()
	out := make([]engine.PriceObservation, 0, len(series))
	for _, p := range series {
		if p.Step >= since {
			out = append(out, p)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleMeanPrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Metrics.MeanPriceSeries())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit, ok := intParam(w, r, "limit", 50)
	if !ok {
		return
	}
	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunTransactions(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")
	if !s.requireRun(w, id) {
		return
	}
	series, err := s.DB.LoadTransactionSeries(id)
	if err != nil {
		slog.Error("load transactions failed", "run_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, series)
}

func (s *Server) handleRunMeanPrice(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")
	if !s.requireRun(w, id) {
		return
	}
	series, err := s.DB.LoadMeanPriceSeries(id)
	if err != nil {
		slog.Error("load mean price failed", "run_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, series)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		http.Error(w, "no runner attached", http.StatusConflict)
		return
	}
	s.Runner.Stop()
	slog.Info("stop requested via API", "remote", clientIP(r))
	writeJSON(w, map[string]any{"stopping": true, "step": s.Sim.CurrentStep()})
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.DB == nil {
		http.Error(w, "persistence disabled", http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) requireRun(w http.ResponseWriter, id string) bool {
	_, err := s.DB.GetRun(id)
	if errors.Is(err, persistence.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return false
	}
	if err != nil {
		slog.Error("get run failed", "run_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	return true
}

// intParam reads a non-negative integer query parameter.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		http.Error(w, name+" must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

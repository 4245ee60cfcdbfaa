// Package api provides the HTTP control and query surface of the crowd
// simulation, plus a websocket stream of per-tick frames.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token when an admin key is configured.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/talgya/crowdforce/internal/agents"
	"github.com/talgya/crowdforce/internal/engine"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/persistence"
)

// Populate calls placed per client per minute.
const populateRate = 60

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	DB       *persistence.DB // Scenario store; nil disables the scenario routes
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = open.

	hub      *Hub
	populate *RateLimiter
}

// NewServer creates a server for sim.
func NewServer(sim *engine.Simulation, db *persistence.DB, port int, adminKey string) *Server {
	return &Server{
		Sim:      sim,
		DB:       db,
		Port:     port,
		AdminKey: adminKey,
		hub:      NewHub(),
		populate: NewRateLimiter(populateRate, time.Minute),
	}
}

// Broadcast pushes a frame to every stream subscriber.
func (s *Server) Broadcast(f engine.Frame) {
	s.hub.Broadcast(f)
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints.
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	v1.HandleFunc("/obstacles", s.handleObstacles).Methods(http.MethodGet)
	v1.HandleFunc("/target", s.handleTarget).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios", s.handleListScenarios).Methods(http.MethodGet)
	v1.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	// Admin endpoints.
	v1.HandleFunc("/target", s.adminOnly(s.handleSetTarget)).Methods(http.MethodPost)
	v1.HandleFunc("/populate", s.adminOnly(RateLimitMiddleware(s.populate, s.handlePopulate))).Methods(http.MethodPost)
	v1.HandleFunc("/agents", s.adminOnly(s.handleSpawn)).Methods(http.MethodPost)
	v1.HandleFunc("/start", s.adminOnly(s.handleStart)).Methods(http.MethodPost)
	v1.HandleFunc("/pause", s.adminOnly(s.handlePause)).Methods(http.MethodPost)
	v1.HandleFunc("/resume", s.adminOnly(s.handleResume)).Methods(http.MethodPost)
	v1.HandleFunc("/reset", s.adminOnly(s.handleReset)).Methods(http.MethodPost)
	v1.HandleFunc("/step", s.adminOnly(s.handleStep)).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios", s.adminOnly(s.handleSaveScenario)).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios/{id}/load", s.adminOnly(s.handleLoadScenario)).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios/{id}", s.adminOnly(s.handleDeleteScenario)).Methods(http.MethodDelete)

	return corsMiddleware(r)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "scenarios", s.DB != nil)

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS is a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a mutating handler with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	views := s.Sim.Agents()
	if views == nil {
		views = []agents.View{}
	}
	writeJSON(w, views)
}

func (s *Server) handleObstacles(w http.ResponseWriter, r *http.Request) {
	rects := s.Sim.ObstacleRects()
	if rects == nil {
		rects = []geom.Rect{}
	}
	writeJSON(w, rects)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Target())
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var p geom.Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.Sim.SetTarget(p)
	slog.Info("target moved", "x", p.X, "y", p.Y)
	writeJSON(w, p)
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		X1   int    `json:"x1"`
		Y1   int    `json:"y1"`
		X2   int    `json:"x2"`
		Y2   int    `json:"y2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	placed, err := s.Sim.Populate(req.Kind, geom.Point{X: req.X1, Y: req.Y1}, geom.Point{X: req.X2, Y: req.Y2})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"kind": req.Kind, "placed": placed})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		X    int    `json:"x"`
		Y    int    `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind, ok := agents.ParseKind(req.Kind)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown agent kind %q", req.Kind), http.StatusBadRequest)
		return
	}

	id, err := s.Sim.SpawnAgent(kind, geom.Point{X: req.X, Y: req.Y})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"id": id})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Start(); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("simulation started")
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Sim.Pause()
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Sim.Resume()
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Reset(); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("simulation reset")
	s.Broadcast(s.Sim.Snapshot())
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Step(); err != nil {
		writeError(w, err)
		return
	}
	s.Broadcast(s.Sim.Snapshot())
	writeJSON(w, s.Sim.Status())
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.DB == nil {
		http.Error(w, "scenario store disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	list, err := s.DB.ListScenarios()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleSaveScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	id, err := s.DB.SaveScenario(req.Name, s.Sim.Scenario())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleLoadScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := mux.Vars(r)["id"]
	info, sc, err := s.DB.LoadScenario(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Sim.Replay(sc); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("scenario loaded", "id", id, "name", info.Name, "ops", len(sc.Ops))
	s.Broadcast(s.Sim.Snapshot())
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	if err := s.DB.DeleteScenario(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps engine and store errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownKind), errors.Is(err, agents.ErrOutOfBounds):
		code = http.StatusBadRequest
	case errors.Is(err, persistence.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrNotInitialized), errors.Is(err, agents.ErrCellOccupied):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

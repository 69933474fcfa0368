// Package api provides the HTTP API server for Corvid.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/autodev"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/frontier"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/scheduler"
	"github.com/corvidlabs/corvid/internal/storage"
)

const defaultListLimit = 50

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	supervisor *scheduler.Supervisor
	frontier   *frontier.Frontier
	autodev    *autodev.Runner

	agents *storage.AgentStore
	ticks  *storage.TickLogStore
	crawl  *storage.CrawlStore
	devs   *storage.AutoDevStore
	ledger *ledger.Store

	wsHub *WebSocketHub
}

// Config for the server
type Config struct {
	Port int

	Supervisor *scheduler.Supervisor
	Frontier   *frontier.Frontier
	AutoDev    *autodev.Runner

	AgentStore   *storage.AgentStore
	TickLogStore *storage.TickLogStore
	CrawlStore   *storage.CrawlStore
	AutoDevStore *storage.AutoDevStore
	LedgerStore  *ledger.Store
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		supervisor: cfg.Supervisor,
		frontier:   cfg.Frontier,
		autodev:    cfg.AutoDev,
		agents:     cfg.AgentStore,
		ticks:      cfg.TickLogStore,
		crawl:      cfg.CrawlStore,
		devs:       cfg.AutoDevStore,
		ledger:     cfg.LedgerStore,
		wsHub:      NewWebSocketHub(),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Agents
		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleCreateAgent)
		r.Get("/agents/{agentID}", s.handleGetAgent)
		r.Put("/agents/{agentID}", s.handleUpdateAgent)
		r.Post("/agents/{agentID}/start", s.handleStartLoop)
		r.Post("/agents/{agentID}/stop", s.handleStopLoop)
		r.Post("/agents/{agentID}/run-once", s.handleRunOnce)
		r.Get("/agents/{agentID}/ticks", s.handleGetTicks)
		r.Get("/agents/{agentID}/crawl", s.handleGetCrawlItems)

		// AutoDev (daily schedules, runs, proposals)
		devAPI := NewAutoDevAPI(s.devs, s.agents)
		devAPI.RegisterRoutes(r)

		// Ledger (read-only)
		if s.ledger != nil {
			ledgerAPI := NewLedgerAPI(s.ledger)
			ledgerAPI.RegisterRoutes(r)
		}

		// Cron (external pollers drive the frontier and the daily job)
		cronAPI := NewCronAPI(s.frontier, s.autodev, s.agents, s)
		cronAPI.RegisterRoutes(r)
	})

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()

	fmt.Printf("API server starting on http://localhost%s\n", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	agentCount, _ := s.agents.Count()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"agents": agentCount,
	})
}

// --- Agent handlers ---

// CreateAgentRequest is the request body for creating an agent
type CreateAgentRequest struct {
	OwnerID          string            `json:"owner_id"`
	Name             string            `json:"name"`
	Objective        string            `json:"objective"`
	Capabilities     core.Capabilities `json:"capabilities"`
	TickIntervalSecs int               `json:"tick_interval_secs"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.OwnerID == "" || req.Name == "" || req.Objective == "" {
		s.respondError(w, http.StatusBadRequest, "owner_id, name, and objective required")
		return
	}

	agent := &core.Agent{
		ID:           core.AgentID(uuid.New().String()),
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Objective:    req.Objective,
		Capabilities: req.Capabilities,
		TickInterval: time.Duration(req.TickIntervalSecs) * time.Second,
		Status:       core.AgentStatusIdle,
	}

	if err := s.agents.Create(agent); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Broadcast("agent.created", agent)
	s.respondJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)

	agents, err := s.agents.List(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []*core.Agent{}
	}

	s.respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetByID(core.AgentID(chi.URLParam(r, "agentID")))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetByID(core.AgentID(chi.URLParam(r, "agentID")))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	var updates struct {
		Name             string             `json:"name"`
		Objective        string             `json:"objective"`
		Capabilities     *core.Capabilities `json:"capabilities"`
		TickIntervalSecs *int               `json:"tick_interval_secs"`
	}

	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if updates.Name != "" {
		agent.Name = updates.Name
	}
	if updates.Objective != "" {
		agent.Objective = updates.Objective
	}
	if updates.Capabilities != nil {
		agent.Capabilities = *updates.Capabilities
	}
	if updates.TickIntervalSecs != nil {
		agent.TickInterval = time.Duration(*updates.TickIntervalSecs) * time.Second
	}

	if err := s.agents.Update(agent); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Broadcast("agent.updated", agent)
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleStartLoop(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))

	if err := s.supervisor.StartLoop(agentID); err != nil {
		if errors.Is(err, core.ErrAgentNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Broadcast("agent.started", map[string]string{"agent_id": string(agentID)})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStopLoop(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))

	if err := s.supervisor.StopLoop(agentID); err != nil {
		if errors.Is(err, core.ErrAgentNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Broadcast("agent.stopped", map[string]string{"agent_id": string(agentID)})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))

	err := s.supervisor.RunOnce(agentID)
	switch {
	case errors.Is(err, core.ErrAgentNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, core.ErrTickInFlight):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Broadcast("tick.completed", map[string]string{"agent_id": string(agentID)})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleGetTicks(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))
	limit := queryLimit(r, defaultListLimit)

	logs, err := s.ticks.Recent(agentID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []*core.TickLog{}
	}

	s.respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handleGetCrawlItems(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))
	limit := queryLimit(r, defaultListLimit)

	items, err := s.crawl.NextQueued(agentID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []*core.CrawlItem{}
	}

	count, _ := s.crawl.CountItems(agentID)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queued":      items,
		"total_items": count,
	})
}

// queryLimit parses ?limit= with a default
func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			return l
		}
	}
	return def
}

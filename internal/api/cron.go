package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidlabs/corvid/internal/autodev"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/frontier"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/storage"
)

// CronAPI hosts the endpoints an external scheduler hits on a fixed
// cadence: the crawl frontier every few minutes, the daily dev job once
// a day. Both accept an optional ?agent= pin.
type CronAPI struct {
	frontier *frontier.Frontier
	autodev  *autodev.Runner
	agents   *storage.AgentStore
	server   *Server
}

// NewCronAPI creates a new cron API handler
func NewCronAPI(f *frontier.Frontier, dev *autodev.Runner, agents *storage.AgentStore, server *Server) *CronAPI {
	return &CronAPI{frontier: f, autodev: dev, agents: agents, server: server}
}

// RegisterRoutes registers cron routes
func (api *CronAPI) RegisterRoutes(r chi.Router) {
	r.Post("/cron/frontier", api.handleFrontierPoll)
	r.Post("/cron/autodev", api.handleAutoDevPoll)
}

// handleFrontierPoll expands the crawl frontier for every loop-enabled
// agent, or for a single agent when ?agent= is set. One agent's failure
// never blocks the rest.
func (api *CronAPI) handleFrontierPoll(w http.ResponseWriter, r *http.Request) {
	if api.frontier == nil {
		api.respondError(w, http.StatusServiceUnavailable, "frontier not configured")
		return
	}

	agents, err := api.pollTargets(core.AgentID(r.URL.Query().Get("agent")))
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs := make([]*core.CrawlRun, 0, len(agents))
	skipped := 0
	for _, agent := range agents {
		run, err := api.frontier.Expand(r.Context(), agent)
		if errors.Is(err, core.ErrLoopDisabled) {
			skipped++
			continue
		}
		if err != nil {
			logging.WithAgent(string(agent.ID)).Error("frontier poll: %v", err)
			skipped++
			continue
		}
		runs = append(runs, run)
	}

	if api.server != nil {
		api.server.Broadcast("frontier.polled", map[string]int{"runs": len(runs)})
	}

	api.respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":     runs,
		"expanded": len(runs),
		"skipped":  skipped,
	})
}

// handleAutoDevPoll runs every due daily schedule, optionally pinned to
// one agent via ?agent=.
func (api *CronAPI) handleAutoDevPoll(w http.ResponseWriter, r *http.Request) {
	if api.autodev == nil {
		api.respondError(w, http.StatusServiceUnavailable, "autodev not configured")
		return
	}

	agentID := core.AgentID(r.URL.Query().Get("agent"))
	if err := api.autodev.Poll(r.Context(), agentID); err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if api.server != nil {
		api.server.Broadcast("autodev.polled", map[string]string{"agent": string(agentID)})
	}

	api.respondJSON(w, http.StatusOK, map[string]string{"status": "polled"})
}

// pollTargets resolves the frontier poll's agent set
func (api *CronAPI) pollTargets(agentID core.AgentID) ([]*core.Agent, error) {
	if agentID != "" {
		agent, err := api.agents.GetByID(agentID)
		if err != nil {
			return nil, err
		}
		return []*core.Agent{agent}, nil
	}
	return api.agents.ListLoopEnabled()
}

func (api *CronAPI) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *CronAPI) respondError(w http.ResponseWriter, status int, message string) {
	api.respondJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/storage"
)

// AutoDevAPI exposes daily schedules, dev runs, and change proposals
type AutoDevAPI struct {
	store  *storage.AutoDevStore
	agents *storage.AgentStore
}

// NewAutoDevAPI creates a new autodev API handler
func NewAutoDevAPI(store *storage.AutoDevStore, agents *storage.AgentStore) *AutoDevAPI {
	return &AutoDevAPI{store: store, agents: agents}
}

// RegisterRoutes registers autodev routes
func (api *AutoDevAPI) RegisterRoutes(r chi.Router) {
	r.Get("/agents/{agentID}/schedule", api.handleGetSchedule)
	r.Put("/agents/{agentID}/schedule", api.handleUpsertSchedule)
	r.Get("/agents/{agentID}/dev-runs", api.handleListRuns)
	r.Get("/dev-runs/{runID}", api.handleGetRun)
	r.Get("/dev-runs/{runID}/proposals", api.handleListProposals)
}

func (api *AutoDevAPI) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))

	sched, err := api.store.GetScheduleByAgent(agentID)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sched == nil {
		api.respondError(w, http.StatusNotFound, "no schedule for agent")
		return
	}

	api.respondJSON(w, http.StatusOK, sched)
}

// ScheduleRequest is the upsert body for a daily schedule
type ScheduleRequest struct {
	Enabled bool `json:"enabled"`
	Hour    int  `json:"hour"`   // UTC
	Minute  int  `json:"minute"` // UTC
}

func (api *AutoDevAPI) handleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Hour < 0 || req.Hour > 23 || req.Minute < 0 || req.Minute > 59 {
		api.respondError(w, http.StatusBadRequest, "hour must be 0-23 and minute 0-59")
		return
	}

	if _, err := api.agents.GetByID(agentID); err != nil {
		api.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	sched, err := api.store.GetScheduleByAgent(agentID)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if sched == nil {
		sched = &core.AutoDevSchedule{
			AgentID: agentID,
			Enabled: req.Enabled,
			Hour:    req.Hour,
			Minute:  req.Minute,
		}
		if err := api.store.CreateSchedule(sched); err != nil {
			api.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.respondJSON(w, http.StatusCreated, sched)
		return
	}

	sched.Enabled = req.Enabled
	sched.Hour = req.Hour
	sched.Minute = req.Minute
	if err := api.store.UpdateSchedule(sched); err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, http.StatusOK, sched)
}

func (api *AutoDevAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	agentID := core.AgentID(chi.URLParam(r, "agentID"))
	limit := queryLimit(r, defaultListLimit)

	runs, err := api.store.RunsForAgent(agentID, limit)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*core.DevRun{}
	}

	api.respondJSON(w, http.StatusOK, runs)
}

func (api *AutoDevAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.store.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		api.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	api.respondJSON(w, http.StatusOK, run)
}

func (api *AutoDevAPI) handleListProposals(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	proposals, err := api.store.ProposalsForRun(runID)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if proposals == nil {
		proposals = []*core.CodeChangeProposal{}
	}

	api.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    runID,
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (api *AutoDevAPI) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *AutoDevAPI) respondError(w http.ResponseWriter, status int, message string) {
	api.respondJSON(w, status, map[string]string{"error": message})
}

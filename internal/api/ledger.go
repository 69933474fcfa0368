package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
)

// LedgerAPI provides read-only access to the economic ledger
type LedgerAPI struct {
	store *ledger.Store
}

// NewLedgerAPI creates a new ledger API
func NewLedgerAPI(store *ledger.Store) *LedgerAPI {
	return &LedgerAPI{store: store}
}

// RegisterRoutes registers ledger API routes (all read-only)
func (api *LedgerAPI) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", api.handleListEntries)                 // GET /api/v1/ledger
		r.Get("/balance/{account}", api.handleGetBalance) // GET /api/v1/ledger/balance/{account}
	})
}

// handleListEntries returns ledger entries with optional filtering
// GET /api/v1/ledger?account=&reason=&agent_id=&since=&limit=
func (api *LedgerAPI) handleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := ledger.QueryOptions{
		Account: query.Get("account"),
		Reason:  query.Get("reason"),
		AgentID: core.AgentID(query.Get("agent_id")),
	}

	if since := query.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = t
		}
	}

	if limit := query.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			opts.Limit = l
		}
	} else {
		opts.Limit = 100
	}

	entries, err := api.store.Query(opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*core.LedgerEntry{}
	}

	count, _ := api.store.Count()

	response := map[string]interface{}{
		"entries":       entries,
		"count":         len(entries),
		"total_entries": count,
		"limit":         opts.Limit,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetBalance returns the folded balance for one account
// GET /api/v1/ledger/balance/{account}
func (api *LedgerAPI) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if account == "" {
		http.Error(w, "missing account", http.StatusBadRequest)
		return
	}

	balance, err := api.store.Balance(account)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

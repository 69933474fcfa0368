package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corvidlabs/corvid/internal/autodev"
	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/frontier"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/scheduler"
	"github.com/corvidlabs/corvid/internal/storage"
	"github.com/corvidlabs/corvid/internal/testutil"
)

// testServer wires a full server against an in-memory database
func testServer(t *testing.T, orc oracle.Oracle) (*Server, *storage.DB) {
	t.Helper()

	db := testutil.TestDB(t)
	agents := storage.NewAgentStore(db)
	ticks := storage.NewTickLogStore(db)
	corpus := storage.NewCorpusStore(db)
	crawl := storage.NewCrawlStore(db)
	devs := storage.NewAutoDevStore(db)
	led := ledger.NewStore(db.Conn())
	indexer := chunker.NewIndexer(corpus, led, nil)

	sup := scheduler.New(agents, ticks, corpus, led, indexer, orc, nil)
	t.Cleanup(sup.Shutdown)

	srv := New(Config{
		Supervisor:   sup,
		Frontier:     frontier.New(crawl, ticks, corpus, indexer, orc, 10),
		AutoDev:      autodev.NewRunner(agents, devs, corpus, ticks, orc, indexer),
		AgentStore:   agents,
		TickLogStore: ticks,
		CrawlStore:   crawl,
		AutoDevStore: devs,
		LedgerStore:  led,
	})

	return srv, db
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	return rr
}

// --- Agent Tests ---

func TestAPI_CreateAgent(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "POST", "/api/v1/agents", CreateAgentRequest{
		OwnerID:          "alice",
		Name:             "curator",
		Objective:        "collect distributed systems papers",
		TickIntervalSecs: 60,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var agent core.Agent
	json.Unmarshal(rr.Body.Bytes(), &agent)

	if agent.ID == "" {
		t.Error("expected generated agent ID")
	}
	if agent.Status != core.AgentStatusIdle {
		t.Errorf("expected idle status, got %q", agent.Status)
	}
}

func TestAPI_CreateAgent_MissingFields(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "POST", "/api/v1/agents", CreateAgentRequest{Name: "curator"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAPI_CreateAgent_InvalidJSON(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	req := httptest.NewRequest("POST", "/api/v1/agents", bytes.NewBufferString("invalid"))
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAPI_GetAgent_NotFound(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "GET", "/api/v1/agents/nonexistent", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestAPI_UpdateAgent(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")

	rr := doJSON(t, srv, "PUT", "/api/v1/agents/"+string(agent.ID),
		map[string]string{"objective": "track consensus protocols"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	updated, err := storage.NewAgentStore(db).GetByID(agent.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, updated.Objective, "track consensus protocols")
}

func TestAPI_ListAgents(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	testutil.SeedAgent(t, db, "alice")
	testutil.SeedAgent(t, db, "bob")

	rr := doJSON(t, srv, "GET", "/api/v1/agents", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var agents []*core.Agent
	json.Unmarshal(rr.Body.Bytes(), &agents)
	if len(agents) != 2 {
		t.Errorf("expected 2 agents, got %d", len(agents))
	}
}

// --- Loop Control Tests ---

func TestAPI_RunOnce(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})

	// No development capability: only the tick fee hits the ledger
	agent := testutil.MakeAgent("alice")
	agent.Capabilities.Development = false
	if err := storage.NewAgentStore(db).Create(agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	rr := doJSON(t, srv, "POST", fmt.Sprintf("/api/v1/agents/%s/run-once", agent.ID), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Tick left a log and charged the owner
	ticksRR := doJSON(t, srv, "GET", fmt.Sprintf("/api/v1/agents/%s/ticks", agent.ID), nil)
	var logs []*core.TickLog
	json.Unmarshal(ticksRR.Body.Bytes(), &logs)
	if len(logs) == 0 {
		t.Error("expected at least one tick log")
	}

	balRR := doJSON(t, srv, "GET", "/api/v1/ledger/balance/alice", nil)
	var bal struct {
		Account string  `json:"account"`
		Balance float64 `json:"balance"`
	}
	json.Unmarshal(balRR.Body.Bytes(), &bal)
	if bal.Balance >= 0 {
		t.Errorf("expected negative balance after tick fee, got %v", bal.Balance)
	}
}

func TestAPI_RunOnce_NotFound(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "POST", "/api/v1/agents/nonexistent/run-once", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestAPI_StartStopLoop(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")

	rr := doJSON(t, srv, "POST", fmt.Sprintf("/api/v1/agents/%s/start", agent.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, "POST", fmt.Sprintf("/api/v1/agents/%s/stop", agent.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	updated, err := storage.NewAgentStore(db).GetByID(agent.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, updated.LoopEnabled, "loop still enabled after stop")
}

// --- Ledger Tests ---

func TestAPI_LedgerList(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")

	doJSON(t, srv, "POST", fmt.Sprintf("/api/v1/agents/%s/run-once", agent.ID), nil)

	rr := doJSON(t, srv, "GET", "/api/v1/ledger?account=alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Entries []*core.LedgerEntry `json:"entries"`
		Count   int                 `json:"count"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Count == 0 {
		t.Error("expected ledger entries for alice after a tick")
	}
}

func TestAPI_LedgerList_Empty(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "GET", "/api/v1/ledger", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Entries []*core.LedgerEntry `json:"entries"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Entries == nil {
		t.Error("expected empty array, got null")
	}
}

// --- Schedule Tests ---

func TestAPI_UpsertSchedule(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")
	path := fmt.Sprintf("/api/v1/agents/%s/schedule", agent.ID)

	rr := doJSON(t, srv, "PUT", path, ScheduleRequest{Enabled: true, Hour: 9, Minute: 30})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, "PUT", path, ScheduleRequest{Enabled: true, Hour: 10, Minute: 0})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, srv, "GET", path, nil)
	var sched core.AutoDevSchedule
	json.Unmarshal(rr.Body.Bytes(), &sched)
	testutil.AssertEqual(t, sched.Hour, 10)
	testutil.AssertEqual(t, sched.Minute, 0)
}

func TestAPI_UpsertSchedule_InvalidTime(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")

	rr := doJSON(t, srv, "PUT", fmt.Sprintf("/api/v1/agents/%s/schedule", agent.ID),
		ScheduleRequest{Enabled: true, Hour: 25, Minute: 0})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAPI_GetSchedule_NotFound(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})
	agent := testutil.SeedAgent(t, db, "alice")

	rr := doJSON(t, srv, "GET", fmt.Sprintf("/api/v1/agents/%s/schedule", agent.ID), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

// --- Cron Tests ---

func TestAPI_CronFrontier(t *testing.T) {
	orc := &testutil.FakeOracle{
		PlanCrawlFn: func(ctx context.Context, objective string, _ []string) (*oracle.CrawlPlan, error) {
			return &oracle.CrawlPlan{SeedURLs: []string{"https://example.com/a"}}, nil
		},
	}
	srv, db := testServer(t, orc)
	agent := testutil.SeedAgent(t, db, "alice") // loop-enabled

	rr := doJSON(t, srv, "POST", "/api/v1/cron/frontier?agent="+string(agent.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Expanded int `json:"expanded"`
		Skipped  int `json:"skipped"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	testutil.AssertEqual(t, resp.Expanded, 1)
	testutil.AssertEqual(t, resp.Skipped, 0)
}

func TestAPI_CronFrontier_SkipsDisabledLoop(t *testing.T) {
	srv, db := testServer(t, &testutil.FakeOracle{})

	agent := testutil.MakeAgent("alice")
	agent.LoopEnabled = false
	if err := storage.NewAgentStore(db).Create(agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	rr := doJSON(t, srv, "POST", "/api/v1/cron/frontier?agent="+string(agent.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Expanded int `json:"expanded"`
		Skipped  int `json:"skipped"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	testutil.AssertEqual(t, resp.Expanded, 0)
	testutil.AssertEqual(t, resp.Skipped, 1)
}

func TestAPI_CronAutoDev_NoSchedules(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})

	rr := doJSON(t, srv, "POST", "/api/v1/cron/autodev", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

// --- WebSocket Hub Tests ---

func TestWebSocketHub_BroadcastNoClients(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	// Should not panic or block with no clients
	hub.Broadcast(WebSocketMessage{Type: "test", Data: "data", Timestamp: time.Now()})
}

func TestAPI_Broadcast(t *testing.T) {
	srv, _ := testServer(t, &testutil.FakeOracle{})
	go srv.wsHub.Run()

	srv.Broadcast("test.event", map[string]string{"key": "value"})
}

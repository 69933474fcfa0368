package autodev

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/storage"
	"github.com/corvidlabs/corvid/internal/testutil"
)

func TestDue(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 30, hour, minute, 0, 0, time.UTC)
	}
	sched := func(lastRun string) *core.AutoDevSchedule {
		return &core.AutoDevSchedule{Enabled: true, Hour: 9, Minute: 0, LastRunDate: lastRun}
	}

	tests := []struct {
		name  string
		sched *core.AutoDevSchedule
		now   time.Time
		want  bool
	}{
		{"inside window before target", sched(""), at(8, 51), true},
		{"outside window before target", sched(""), at(8, 49), false},
		{"exactly on target", sched(""), at(9, 0), true},
		{"inside window after target", sched(""), at(9, 10), true},
		{"outside window after target", sched(""), at(9, 11), false},
		{"already ran today", sched("2026-08-30"), at(9, 0), false},
		{"ran yesterday", sched("2026-08-29"), at(9, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Due(tt.sched, tt.now); got != tt.want {
				t.Errorf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueDisabled(t *testing.T) {
	sched := &core.AutoDevSchedule{Enabled: false, Hour: 9, Minute: 0}
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if Due(sched, now) {
		t.Error("disabled schedule must never be due")
	}
}

func TestDueMidnightWrap(t *testing.T) {
	sched := &core.AutoDevSchedule{Enabled: true, Hour: 0, Minute: 2}
	now := time.Date(2026, 8, 30, 23, 55, 0, 0, time.UTC)
	if !Due(sched, now) {
		t.Error("23:55 should be within 10 minutes of 00:02 across midnight")
	}
}

func newTestRunner(t *testing.T, orc oracle.Oracle, now time.Time) (*Runner, *storage.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	corpus := storage.NewCorpusStore(db)
	led := ledger.NewStore(db.Conn())
	r := NewRunner(storage.NewAgentStore(db), storage.NewAutoDevStore(db),
		corpus, storage.NewTickLogStore(db), orc, chunker.NewIndexer(corpus, led, nil))
	r.now = func() time.Time { return now }
	return r, db
}

func seedSchedule(t *testing.T, db *storage.DB, agentID core.AgentID, hour, minute int) *core.AutoDevSchedule {
	t.Helper()
	sched := &core.AutoDevSchedule{AgentID: agentID, Enabled: true, Hour: hour, Minute: minute}
	if err := storage.NewAutoDevStore(db).CreateSchedule(sched); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return sched
}

func TestPollRunsDueSchedule(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 3, 0, 0, time.UTC)

	orc := &testutil.FakeOracle{
		BrainstormFn: func(ctx context.Context, objective string, _ []string) ([]string, error) {
			return []string{"add caching", "improve retries", "tighten logging", "a fourth idea"}, nil
		},
		GenerateFn: func(ctx context.Context, objective, topic string) (*oracle.GeneratedContent, error) {
			return &oracle.GeneratedContent{
				Title: strings.Repeat("long title ", 30), // over the cap
				Body:  "a long-form note about " + topic,
			}, nil
		},
		DraftProposalsFn: func(ctx context.Context, objective string, ideas []string) ([]oracle.ProposalDraft, error) {
			return []oracle.ProposalDraft{
				{Path: "internal/cache/cache.go", Kind: "create", Content: "package cache", Rationale: "new cache"},
				{Path: "internal/tick/tick.go", Kind: "tweak", Find: "a", Replace: "b", ReplaceAll: true, Rationale: "rename"},
			}, nil
		},
	}

	r, db := newTestRunner(t, orc, now)
	agent := testutil.SeedAgent(t, db, "alice")
	seedSchedule(t, db, agent.ID, 9, 0)

	if err := r.Poll(context.Background(), ""); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	store := storage.NewAutoDevStore(db)
	updated, err := store.GetScheduleByAgent(agent.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, updated.LastRunDate, "2026-08-30")

	// Run recorded as completed with at most 3 ideas
	runs, err := storageRuns(db, agent.ID)
	testutil.AssertNoError(t, err)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != core.DevRunCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	if len(run.Ideas) != 3 {
		t.Errorf("ideas = %d, want capped at 3", len(run.Ideas))
	}
	if run.FinishedAt == nil {
		t.Error("run not finished")
	}

	// Proposals persisted with normalized kinds
	proposals, err := store.ProposalsForRun(run.ID)
	testutil.AssertNoError(t, err)
	if len(proposals) != 2 {
		t.Fatalf("got %d proposals, want 2", len(proposals))
	}
	testutil.AssertEqual(t, proposals[0].Kind, core.ChangeCreate)
	testutil.AssertEqual(t, proposals[1].Kind, core.ChangeModify) // "tweak" normalizes
	if proposals[0].ReplaceAll {
		t.Error("create proposal should not carry replace-all")
	}
	if !proposals[1].ReplaceAll {
		t.Error("replace-all flag dropped on the modify proposal")
	}
}

func TestPollFailureDoesNotAdvanceSchedule(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	orc := &testutil.FakeOracle{
		BrainstormFn: func(ctx context.Context, objective string, _ []string) ([]string, error) {
			return nil, fmt.Errorf("oracle down")
		},
	}

	r, db := newTestRunner(t, orc, now)
	agent := testutil.SeedAgent(t, db, "alice")
	seedSchedule(t, db, agent.ID, 9, 0)

	if err := r.Poll(context.Background(), ""); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	store := storage.NewAutoDevStore(db)
	updated, err := store.GetScheduleByAgent(agent.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, updated.LastRunDate, "")

	runs, err := storageRuns(db, agent.ID)
	testutil.AssertNoError(t, err)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Status != core.DevRunError {
		t.Errorf("run status = %q, want error", runs[0].Status)
	}
	if !strings.Contains(runs[0].Notes, "oracle down") {
		t.Errorf("notes = %q, want the failure text", runs[0].Notes)
	}
}

func TestPollOneFailureDoesNotBlockOthers(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	r, db := newTestRunner(t, &testutil.FakeOracle{
		BrainstormFn: func(ctx context.Context, objective string, _ []string) ([]string, error) {
			if objective == "broken" {
				return nil, fmt.Errorf("oracle down")
			}
			return []string{"one idea"}, nil
		},
	}, now)

	broken := testutil.MakeAgent("alice")
	broken.Objective = "broken"
	if err := storage.NewAgentStore(db).Create(broken); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	healthy := testutil.SeedAgent(t, db, "bob")

	seedSchedule(t, db, broken.ID, 9, 0)
	seedSchedule(t, db, healthy.ID, 9, 0)

	if err := r.Poll(context.Background(), ""); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	store := storage.NewAutoDevStore(db)
	healthySched, err := store.GetScheduleByAgent(healthy.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, healthySched.LastRunDate, "2026-08-30")

	brokenSched, err := store.GetScheduleByAgent(broken.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, brokenSched.LastRunDate, "")
}

func TestPollPinnedToAgent(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	r, db := newTestRunner(t, &testutil.FakeOracle{
		BrainstormFn: func(ctx context.Context, objective string, _ []string) ([]string, error) {
			return []string{"one idea"}, nil
		},
	}, now)

	first := testutil.SeedAgent(t, db, "alice")
	second := testutil.SeedAgent(t, db, "bob")
	seedSchedule(t, db, first.ID, 9, 0)
	seedSchedule(t, db, second.ID, 9, 0)

	if err := r.Poll(context.Background(), first.ID); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	store := storage.NewAutoDevStore(db)
	pinned, _ := store.GetScheduleByAgent(first.ID)
	testutil.AssertEqual(t, pinned.LastRunDate, "2026-08-30")

	other, _ := store.GetScheduleByAgent(second.ID)
	testutil.AssertEqual(t, other.LastRunDate, "")
}

// storageRuns lists dev runs for an agent, newest first
func storageRuns(db *storage.DB, agentID core.AgentID) ([]*core.DevRun, error) {
	return storage.NewAutoDevStore(db).RunsForAgent(agentID, 10)
}

// Package autodev runs the once-per-day development job: per enabled
// schedule, brainstorm ideas, draft one long-form note into the corpus,
// and record code-change proposals. No per-agent timers; an external
// cron-style poll drives it.
package autodev

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/storage"
)

const (
	// Tolerance is the due window around the schedule's target time
	Tolerance = 10 * time.Minute

	maxIdeas     = 3
	maxProposals = 3
	maxTitle     = 180

	summaryWindow = 10
)

// Runner executes due daily schedules
type Runner struct {
	agents  *storage.AgentStore
	store   *storage.AutoDevStore
	corpus  *storage.CorpusStore
	ticks   *storage.TickLogStore
	oracle  oracle.Oracle
	indexer *chunker.Indexer

	now func() time.Time // injectable clock
}

// NewRunner creates a runner
func NewRunner(agents *storage.AgentStore, store *storage.AutoDevStore, corpus *storage.CorpusStore,
	ticks *storage.TickLogStore, orc oracle.Oracle, indexer *chunker.Indexer) *Runner {
	return &Runner{
		agents:  agents,
		store:   store,
		corpus:  corpus,
		ticks:   ticks,
		oracle:  orc,
		indexer: indexer,
		now:     time.Now,
	}
}

// Due reports whether a schedule should run now: it must be enabled, not
// yet run today (UTC), and the current time-of-day must sit within the
// tolerance window of the target. Both conditions are required.
func Due(sched *core.AutoDevSchedule, now time.Time) bool {
	if !sched.Enabled {
		return false
	}

	now = now.UTC()
	if sched.LastRunDate == now.Format("2006-01-02") {
		return false
	}

	target := sched.Hour*60 + sched.Minute
	current := now.Hour()*60 + now.Minute()

	diff := target - current
	if diff < 0 {
		diff = -diff
	}
	// Windows spanning midnight wrap around
	if wrapped := 24*60 - diff; wrapped < diff {
		diff = wrapped
	}

	return time.Duration(diff)*time.Minute <= Tolerance
}

// Poll runs every due schedule. An empty agentID processes all enabled
// schedules; a non-empty one pins the poll to a single agent. One
// schedule's failure never blocks the others.
func (r *Runner) Poll(ctx context.Context, agentID core.AgentID) error {
	scheds, err := r.store.ListEnabledSchedules(agentID)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	now := r.now()
	for _, sched := range scheds {
		if !Due(sched, now) {
			continue
		}
		if err := r.runOne(ctx, sched); err != nil {
			logging.WithAgent(string(sched.AgentID)).Error("daily run: %v", err)
		}
	}

	return nil
}

// runOne executes the daily job for one schedule. Success advances
// last-run-date; failure records an errored DevRun and leaves the
// schedule due for another attempt inside the same window.
func (r *Runner) runOne(ctx context.Context, sched *core.AutoDevSchedule) error {
	agent, err := r.agents.GetByID(sched.AgentID)
	if err != nil {
		return err
	}

	run := &core.DevRun{AgentID: agent.ID, Status: core.DevRunRunning}
	if err := r.store.CreateRun(run); err != nil {
		return fmt.Errorf("open run: %w", err)
	}

	if err := r.produce(ctx, agent, run); err != nil {
		run.Status = core.DevRunError
		run.Notes = err.Error()
		r.store.FinishRun(run)
		return err
	}

	run.Status = core.DevRunCompleted
	if err := r.store.FinishRun(run); err != nil {
		return fmt.Errorf("close run: %w", err)
	}

	today := r.now().UTC().Format("2006-01-02")
	if err := r.store.AdvanceScheduleLastRun(sched.ID, today); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	logging.WithAgent(string(agent.ID)).Info("daily run %s completed: %d ideas", run.ID, len(run.Ideas))
	return nil
}

func (r *Runner) produce(ctx context.Context, agent *core.Agent, run *core.DevRun) error {
	summaries, err := r.ticks.RecentSummaries(agent.ID, summaryWindow)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}

	ideas, err := r.oracle.Brainstorm(ctx, agent.Objective, summaries)
	if err != nil {
		return fmt.Errorf("brainstorm: %w", err)
	}
	if len(ideas) > maxIdeas {
		ideas = ideas[:maxIdeas]
	}
	run.Ideas = ideas

	if len(ideas) > 0 {
		if err := r.draftNote(ctx, agent, ideas[0]); err != nil {
			return err
		}
	}

	proposals, err := r.oracle.DraftProposals(ctx, agent.Objective, ideas)
	if err != nil {
		return fmt.Errorf("draft proposals: %w", err)
	}
	if len(proposals) > maxProposals {
		proposals = proposals[:maxProposals]
	}

	for _, draft := range proposals {
		p := &core.CodeChangeProposal{
			RunID:      run.ID,
			Path:       draft.Path,
			Kind:       core.NormalizeChangeKind(draft.Kind),
			Find:       draft.Find,
			Replace:    draft.Replace,
			ReplaceAll: draft.ReplaceAll,
			Content:    draft.Content,
			Rationale:  draft.Rationale,
		}
		if err := r.store.CreateProposal(p); err != nil {
			return fmt.Errorf("store proposal: %w", err)
		}
	}

	return nil
}

// draftNote generates one long-form document for the top idea
func (r *Runner) draftNote(ctx context.Context, agent *core.Agent, idea string) error {
	content, err := r.oracle.Generate(ctx, agent.Objective, idea)
	if err != nil {
		return fmt.Errorf("generate note: %w", err)
	}

	title := content.Title
	if title == "" {
		title = idea
	}
	if len(title) > maxTitle {
		title = title[:maxTitle]
	}

	doc := &core.Document{
		OwnerID:   agent.OwnerID,
		Title:     title,
		Source:    agent.Name,
		Category:  "autodev",
		Text:      content.Body,
		WordCount: len(strings.Fields(content.Body)),
	}
	if err := r.corpus.CreateDocument(doc); err != nil {
		return fmt.Errorf("store note: %w", err)
	}

	// Daily output lands in the agent's corpus like any other document
	if _, err := r.indexer.Ingest(ctx, agent, doc); err != nil {
		return fmt.Errorf("index note: %w", err)
	}

	return nil
}

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/oracle"
)

const (
	maxActionsPerTick = 3
	tickSummaryWindow = 10
	maxGeneratedTitle = 180
	chatPassageCount  = 3
)

// runTick executes one full tick for the agent. Any unrecovered failure
// leaves the agent in status=error with an error TickLog; success
// advances the tick counter, last-run stamp, and rate gate.
func (s *Supervisor) runTick(ctx context.Context, agentID core.AgentID) error {
	agent, err := s.agents.GetByID(agentID)
	if err != nil {
		return err
	}
	log := logging.WithAgent(string(agentID))

	agent.Status = core.AgentStatusRunning
	if err := s.agents.Update(agent); err != nil {
		return err
	}

	if err := s.tickBody(ctx, agent, log); err != nil {
		agent.Status = core.AgentStatusError
		s.agents.Update(agent)
		s.ticks.Append(&core.TickLog{
			AgentID: agentID,
			Kind:    core.TickLogError,
			Success: false,
			Summary: fmt.Sprintf("tick failed: %v", err),
		})
		log.Error("tick failed: %v", err)
		return err
	}

	now := nowUTC()
	agent.Status = core.AgentStatusIdle
	agent.TickCount++
	agent.LastRunAt = &now
	if err := s.agents.Update(agent); err != nil {
		return err
	}

	s.advanceGate(agentID, agent.EffectiveInterval())
	return nil
}

// tickBody runs the fixed tick pipeline: charge, analyze, act, fallback
// generation, auto-chat, collect/trade.
func (s *Supervisor) tickBody(ctx context.Context, agent *core.Agent, log *logging.Logger) error {
	if err := s.ledger.ChargeCompute(agent.OwnerID, ledger.TickFee, ledger.ReasonTickCompute, agent.ID); err != nil {
		return fmt.Errorf("charge tick: %w", err)
	}

	summaries, err := s.ticks.RecentSummaries(agent.ID, tickSummaryWindow)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}

	decision, err := s.oracle.Decide(ctx, agent.Objective, summaries)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	payload, _ := json.Marshal(decision)
	s.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogTick,
		Success: true,
		Summary: firstLine(decision.Analysis),
		Payload: string(payload),
	})

	generated := s.executeActions(ctx, agent, decision.Actions, log)

	// Fallback generation runs only when no generate action executed
	if agent.Capabilities.Development && !generated {
		if err := s.generateContent(ctx, agent, "", log); err != nil {
			return fmt.Errorf("fallback generation: %w", err)
		}
	}

	s.autoChat(ctx, agent, log)

	if s.trader != nil {
		if err := s.trader.CollectTrade(agent, s.ticks); err != nil {
			log.Warn("collect/trade: %v", err)
		}
	}

	return nil
}

// executeActions runs up to 3 suggested actions, at most one per intent.
// Individual action failures are logged and skipped; they do not fail the
// tick. Returns whether a generate action completed.
func (s *Supervisor) executeActions(ctx context.Context, agent *core.Agent, actions []oracle.SuggestedAction, log *logging.Logger) bool {
	done := make(map[oracle.Intent]bool)
	executed := 0
	generated := false

	for _, action := range actions {
		if executed == maxActionsPerTick {
			break
		}
		if action.Intent == oracle.IntentNone || done[action.Intent] {
			continue
		}

		var err error
		switch action.Intent {
		case oracle.IntentGenerate:
			err = s.generateContent(ctx, agent, action.Topic, log)
			if err == nil {
				generated = true
			}
		case oracle.IntentIndex:
			err = s.reindex(ctx, agent)
		case oracle.IntentResearch:
			err = s.research(ctx, agent, action)
		}

		if err != nil {
			log.Warn("action %s: %v", action.Intent, err)
			s.ticks.Append(&core.TickLog{
				AgentID: agent.ID,
				Kind:    core.TickLogAction,
				Success: false,
				Summary: fmt.Sprintf("%s failed: %v", action.Intent, err),
			})
		}

		done[action.Intent] = true
		executed++
	}

	return generated
}

// generateContent asks the oracle for a document, persists it, indexes
// it, and pays the content reward.
func (s *Supervisor) generateContent(ctx context.Context, agent *core.Agent, topic string, log *logging.Logger) error {
	content, err := s.oracle.Generate(ctx, agent.Objective, topic)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	title := content.Title
	if title == "" {
		title = agent.Objective
	}
	if len(title) > maxGeneratedTitle {
		title = title[:maxGeneratedTitle]
	}

	doc := &core.Document{
		OwnerID:   agent.OwnerID,
		Title:     title,
		Source:    agent.Name,
		Category:  "generated",
		Text:      content.Body,
		WordCount: len(strings.Fields(content.Body)),
	}
	if err := s.corpus.CreateDocument(doc); err != nil {
		return fmt.Errorf("store document: %w", err)
	}

	if _, err := s.indexer.Ingest(ctx, agent, doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	if err := s.ledger.RewardContent(agent.OwnerID, agent.ID, doc.ID); err != nil {
		return fmt.Errorf("reward content: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"document_id": doc.ID, "title": title})
	s.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogAction,
		Success: true,
		Summary: fmt.Sprintf("generated %q", title),
		Payload: string(payload),
	})

	log.Info("generated document %s", doc.ID)
	return nil
}

// reindex re-ingests the most recent corpus document
func (s *Supervisor) reindex(ctx context.Context, agent *core.Agent) error {
	job, err := s.indexer.ReindexLatest(ctx, agent)
	if errors.Is(err, core.ErrIndexNotFound) {
		// Nothing ingested yet; not a failure
		return nil
	}
	if err != nil {
		return err
	}

	s.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogAction,
		Success: true,
		Summary: fmt.Sprintf("reindexed latest document, index job at %d chunks", job.ChunkCount),
	})
	return nil
}

// research runs one extra charged oracle research call
func (s *Supervisor) research(ctx context.Context, agent *core.Agent, action oracle.SuggestedAction) error {
	if err := s.ledger.ChargeCompute(agent.OwnerID, ledger.ResearchFee, ledger.ReasonResearchCompute, agent.ID); err != nil {
		return fmt.Errorf("charge research: %w", err)
	}

	question := action.Topic
	if question == "" {
		question = action.Description
	}

	findings, err := s.oracle.Research(ctx, agent.Objective, question)
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"question": question, "findings": findings})
	s.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogResult,
		Success: true,
		Summary: fmt.Sprintf("researched: %s", firstLine(question)),
		Payload: string(payload),
	})
	return nil
}

// autoChat runs one chat cycle against the agent's own index, charging
// the per-chat fee to the index owner. Best effort: failures are logged,
// never escalated.
func (s *Supervisor) autoChat(ctx context.Context, agent *core.Agent, log *logging.Logger) {
	idx, err := s.corpus.GetIndexByName(chunker.IndexName(agent.ID))
	if err != nil || idx == nil || len(idx.SourceDocIDs) == 0 {
		return
	}

	latest := idx.SourceDocIDs[len(idx.SourceDocIDs)-1]
	chunks, err := s.corpus.ChunksForDocument(idx.ID, latest)
	if err != nil || len(chunks) == 0 {
		return
	}
	if len(chunks) > chatPassageCount {
		chunks = chunks[:chatPassageCount]
	}

	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Text
	}

	question := fmt.Sprintf("What should the agent pursue next for: %s?", agent.Objective)
	answer, err := s.oracle.Chat(ctx, passages, question)
	if err != nil {
		log.Warn("auto-chat: %v", err)
		return
	}

	if err := s.ledger.ChargeChat(agent.OwnerID, idx.OwnerID, ledger.Refs{
		AgentID: agent.ID,
		IndexID: idx.ID,
	}); err != nil {
		log.Warn("charge chat: %v", err)
		return
	}

	payload, _ := json.Marshal(map[string]string{"question": question, "answer": answer})
	s.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogResult,
		Success: true,
		Summary: "auto-chat cycle",
		Payload: string(payload),
	})
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

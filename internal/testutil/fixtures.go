package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/storage"
)

// MakeAgent returns a loop-enabled research agent with sane defaults.
// Overrides go through the returned pointer before persisting.
func MakeAgent(owner string) *core.Agent {
	return &core.Agent{
		ID:           core.AgentID(uuid.New().String()),
		OwnerID:      owner,
		Name:         "test-agent",
		Objective:    "collect distributed systems papers",
		Capabilities: core.Capabilities{Research: true, Development: true, Refinement: true},
		TickInterval: core.MinTickInterval,
		LoopEnabled:  true,
		Status:       core.AgentStatusIdle,
	}
}

// SeedAgent persists a fresh agent and returns it.
func SeedAgent(t *testing.T, db *storage.DB, owner string) *core.Agent {
	t.Helper()

	agent := MakeAgent(owner)
	if err := storage.NewAgentStore(db).Create(agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return agent
}

// SeedDocument persists a processed document with the given text.
func SeedDocument(t *testing.T, db *storage.DB, owner, text string) *core.Document {
	t.Helper()

	doc := &core.Document{
		OwnerID:   owner,
		Title:     "test document",
		Source:    "https://example.com/doc",
		Category:  "research",
		Text:      text,
		Status:    core.DocumentPending,
		WordCount: len(text) / 5,
	}
	if err := storage.NewCorpusStore(db).CreateDocument(doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

// DateUTC formats a time as the schedule last-run date key.
func DateUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

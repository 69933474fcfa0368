// Package oracle provides the reasoning backend for agents. The scheduler,
// frontier, and autodev runner all consult it through the Oracle interface;
// the concrete implementation talks to the Anthropic API.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Intent tags what an agent action wants to do. The client asks the model
// for a tagged intent directly so downstream dispatch never has to guess
// from prose.
type Intent string

const (
	IntentGenerate Intent = "generate"
	IntentIndex    Intent = "index"
	IntentResearch Intent = "research"
	IntentNone     Intent = "none"
)

// ParseIntent maps a raw tag to an Intent, defaulting to none.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentGenerate, IntentIndex, IntentResearch:
		return Intent(strings.ToLower(strings.TrimSpace(s)))
	default:
		return IntentNone
	}
}

// SuggestedAction is one executable step from a tick decision.
type SuggestedAction struct {
	Intent      Intent `json:"intent"`
	Description string `json:"description"`
	Topic       string `json:"topic,omitempty"` // subject hint for generate/research
}

// TickDecision is the structured result of a tick analysis.
type TickDecision struct {
	Analysis string            `json:"analysis"`
	Actions  []SuggestedAction `json:"actions"`
}

// GeneratedContent is a titled body produced for the corpus.
type GeneratedContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Crawl plan limits
const (
	MaxSeedURLs    = 25
	MaxSeedQueries = 15
)

// CrawlPlan is the oracle's suggestion for expanding an agent's frontier.
type CrawlPlan struct {
	SeedURLs []string `json:"seed_urls"` // at most MaxSeedURLs
	Queries  []string `json:"queries"`   // at most MaxSeedQueries, for run bookkeeping
}

// Page is fetched page content as reported by the oracle.
type Page struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// ProposalDraft is one code-change suggestion from a dev run.
type ProposalDraft struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"` // create, modify, or delete
	Find       string `json:"find,omitempty"`
	Replace    string `json:"replace,omitempty"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
	Content    string `json:"content,omitempty"`
	Rationale  string `json:"rationale"`
}

// Oracle is the reasoning surface agents depend on.
type Oracle interface {
	// Decide analyzes recent activity against the objective and returns
	// a structured plan for the tick.
	Decide(ctx context.Context, objective string, recentSummaries []string) (*TickDecision, error)

	// Research answers a focused question in service of the objective.
	Research(ctx context.Context, objective, question string) (string, error)

	// PlanCrawl proposes seed URLs and focused queries for the agent's
	// frontier, scoped by the objective and recent activity.
	PlanCrawl(ctx context.Context, objective string, recentSummaries []string) (*CrawlPlan, error)

	// FetchPage retrieves a URL's title, content, and content type.
	FetchPage(ctx context.Context, url string) (*Page, error)

	// Generate produces a titled document for the agent's corpus.
	Generate(ctx context.Context, objective, topic string) (*GeneratedContent, error)

	// Brainstorm returns improvement ideas for the daily dev run.
	Brainstorm(ctx context.Context, objective string, recentSummaries []string) ([]string, error)

	// DraftProposals turns ideas into concrete code-change drafts.
	DraftProposals(ctx context.Context, objective string, ideas []string) ([]ProposalDraft, error)

	// Chat answers a free-form question grounded in the given context
	// passages.
	Chat(ctx context.Context, passages []string, question string) (string, error)
}

// APIError is a failed call to the oracle backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oracle api error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is a rate-limit rejection: either an
// HTTP 429 or a message mentioning rate limiting. Only these errors are
// worth retrying; everything else fails the call immediately.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate") || strings.Contains(msg, "too many")
}

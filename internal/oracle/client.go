package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/corvidlabs/corvid/internal/core"
)

// Client talks to the Anthropic messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config for the oracle client
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		BaseURL: "https://api.anthropic.com",
		Model:   "claude-sonnet-4-20250514",
		Timeout: 60 * time.Second,
	}
}

// NewClient creates a new oracle client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsConfigured checks if an API key is set
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// complete sends one prompt and returns the text of the first content block.
// Rate-limit rejections are retried per the backoff policy.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", core.ErrOracleUnavailable
	}

	return withRetry(ctx, func(ctx context.Context) (string, error) {
		body, err := json.Marshal(apiRequest{
			Model:     c.model,
			MaxTokens: 4096,
			System:    system,
			Messages:  []message{{Role: "user", Content: user}},
		})
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}

		var parsed apiResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
			return "", core.ErrEmptyResponse
		}

		return parsed.Content[0].Text, nil
	})
}

// Decide implements Oracle
func (c *Client) Decide(ctx context.Context, objective string, recentSummaries []string) (*TickDecision, error) {
	system := `You plan the next step for an autonomous research agent.
Respond with JSON only: {"analysis": "...", "actions": [{"intent": "generate|index|research|none", "description": "...", "topic": "..."}]}.
Suggest at most 3 actions. Use intent "none" for observations that need no execution.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n", objective)
	if len(recentSummaries) > 0 {
		sb.WriteString("Recent activity, newest first:\n")
		for _, s := range recentSummaries {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	} else {
		sb.WriteString("No activity yet. This is the first tick.\n")
	}

	text, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}

	var decision TickDecision
	if err := unmarshalLoose(text, &decision); err != nil {
		return nil, fmt.Errorf("parse decision: %w", err)
	}

	// Normalize intents so dispatch only ever sees known tags
	for i := range decision.Actions {
		decision.Actions[i].Intent = ParseIntent(string(decision.Actions[i].Intent))
	}

	return &decision, nil
}

// Research implements Oracle
func (c *Client) Research(ctx context.Context, objective, question string) (string, error) {
	system := "You research topics for an autonomous agent. Answer concisely with concrete findings."
	user := fmt.Sprintf("Objective: %s\n\nQuestion: %s", objective, question)
	return c.complete(ctx, system, user)
}

// PlanCrawl implements Oracle
func (c *Client) PlanCrawl(ctx context.Context, objective string, recentSummaries []string) (*CrawlPlan, error) {
	system := fmt.Sprintf(`You plan web crawls for a research agent.
Respond with JSON only: {"seed_urls": ["https://..."], "queries": ["..."]}.
Suggest at most %d real, publicly reachable URLs and at most %d focused search queries.`,
		MaxSeedURLs, MaxSeedQueries)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n", objective)
	if len(recentSummaries) > 0 {
		sb.WriteString("Recent activity:\n")
		for _, s := range recentSummaries {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	text, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}

	var plan CrawlPlan
	if err := unmarshalLoose(text, &plan); err != nil {
		return nil, fmt.Errorf("parse crawl plan: %w", err)
	}

	if len(plan.SeedURLs) > MaxSeedURLs {
		plan.SeedURLs = plan.SeedURLs[:MaxSeedURLs]
	}
	if len(plan.Queries) > MaxSeedQueries {
		plan.Queries = plan.Queries[:MaxSeedQueries]
	}
	return &plan, nil
}

// FetchPage implements Oracle
func (c *Client) FetchPage(ctx context.Context, url string) (*Page, error) {
	system := `You fetch web pages for a research agent.
Respond with JSON only: {"title": "...", "content": "...", "content_type": "..."}.
Content is the page's readable text as markdown, preserving links as [text](url).`

	text, err := c.complete(ctx, system, fmt.Sprintf("Fetch: %s", url))
	if err != nil {
		return nil, err
	}

	var page Page
	if err := unmarshalLoose(text, &page); err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if page.Content == "" {
		return nil, core.ErrEmptyResponse
	}

	return &page, nil
}

// Generate implements Oracle
func (c *Client) Generate(ctx context.Context, objective, topic string) (*GeneratedContent, error) {
	system := `You write corpus documents for a research agent.
Respond with JSON only: {"title": "...", "body": "..."}. The body is substantive prose, 300-800 words.`

	user := fmt.Sprintf("Objective: %s", objective)
	if topic != "" {
		user += fmt.Sprintf("\nTopic: %s", topic)
	}

	text, err := c.complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var content GeneratedContent
	if err := unmarshalLoose(text, &content); err != nil {
		return nil, fmt.Errorf("parse generated content: %w", err)
	}
	if content.Body == "" {
		return nil, core.ErrEmptyResponse
	}

	return &content, nil
}

// Brainstorm implements Oracle
func (c *Client) Brainstorm(ctx context.Context, objective string, recentSummaries []string) ([]string, error) {
	system := `You review an autonomous agent's recent work and propose improvements.
Respond with JSON only: {"ideas": ["..."]}. Suggest 2-5 specific, actionable ideas.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n", objective)
	if len(recentSummaries) > 0 {
		sb.WriteString("Recent activity:\n")
		for _, s := range recentSummaries {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	text, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Ideas []string `json:"ideas"`
	}
	if err := unmarshalLoose(text, &parsed); err != nil {
		return nil, fmt.Errorf("parse ideas: %w", err)
	}

	return parsed.Ideas, nil
}

// DraftProposals implements Oracle
func (c *Client) DraftProposals(ctx context.Context, objective string, ideas []string) ([]ProposalDraft, error) {
	system := `You turn improvement ideas into concrete code-change proposals.
Respond with JSON only: {"proposals": [{"path": "...", "kind": "create|modify|delete", "find": "...", "replace": "...", "replace_all": false, "content": "...", "rationale": "..."}]}.
For modify, fill find and replace; set replace_all true only when every occurrence should change.
For create, fill content. Keep proposals small and reviewable.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\nIdeas:\n", objective)
	for _, idea := range ideas {
		fmt.Fprintf(&sb, "- %s\n", idea)
	}

	text, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Proposals []ProposalDraft `json:"proposals"`
	}
	if err := unmarshalLoose(text, &parsed); err != nil {
		return nil, fmt.Errorf("parse proposals: %w", err)
	}

	return parsed.Proposals, nil
}

// Chat implements Oracle
func (c *Client) Chat(ctx context.Context, passages []string, question string) (string, error) {
	system := "Answer the question using only the provided context passages. Say so when the context does not cover the question."

	var sb strings.Builder
	if len(passages) > 0 {
		sb.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, p)
		}
	}
	fmt.Fprintf(&sb, "Question: %s", question)

	return c.complete(ctx, system, sb.String())
}

// unmarshalLoose parses JSON from model output, tolerating prose or code
// fences around the object.
func unmarshalLoose(text string, v interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

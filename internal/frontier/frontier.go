// Package frontier expands each agent's prioritized crawl queue: oracle
// seed generation, deduplicated enqueueing, fetching, relevance gating
// into the corpus, and breadth-first link discovery.
package frontier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/storage"
)

const (
	// DefaultPageBudget bounds pages fetched per run
	DefaultPageBudget = 300

	// ContentCap truncates stored page content
	ContentCap = 200_000

	// recentSummaryWindow scopes the crawl-plan prompt
	recentSummaryWindow = 10
)

// CrawlStore is the queue persistence the frontier drives. Satisfied by
// storage.CrawlStore.
type CrawlStore interface {
	KnownURLs(agentID core.AgentID) (map[string]bool, error)
	InsertItem(item *core.CrawlItem) (bool, error)
	NextQueued(agentID core.AgentID, limit int) ([]*core.CrawlItem, error)
	MarkFetching(id string) error
	MarkFetched(item *core.CrawlItem) error
	MarkError(id, message string) error
	CreateRun(run *core.CrawlRun) error
	FinishRun(run *core.CrawlRun) error
}

// Frontier drives crawl runs for agents
type Frontier struct {
	crawl   CrawlStore
	ticks   *storage.TickLogStore
	corpus  *storage.CorpusStore
	indexer *chunker.Indexer
	oracle  oracle.Oracle
	budget  int
}

// New creates a frontier
func New(crawl CrawlStore, ticks *storage.TickLogStore, corpus *storage.CorpusStore,
	indexer *chunker.Indexer, orc oracle.Oracle, budget int) *Frontier {
	if budget <= 0 {
		budget = DefaultPageBudget
	}
	return &Frontier{
		crawl:   crawl,
		ticks:   ticks,
		corpus:  corpus,
		indexer: indexer,
		oracle:  orc,
		budget:  budget,
	}
}

// Expand runs one frontier session for the agent: seed, fetch up to the
// page budget, promote relevant pages, and discover child links. Only
// loop-enabled agents are crawled.
func (f *Frontier) Expand(ctx context.Context, agent *core.Agent) (*core.CrawlRun, error) {
	if !agent.LoopEnabled {
		return nil, core.ErrLoopDisabled
	}

	log := logging.WithAgent(string(agent.ID))

	known, err := f.crawl.KnownURLs(agent.ID)
	if err != nil {
		return nil, fmt.Errorf("load known urls: %w", err)
	}

	plan := f.seed(ctx, agent, known, log)

	run := &core.CrawlRun{AgentID: agent.ID, Budget: f.budget}
	if err := f.crawl.CreateRun(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	items, err := f.crawl.NextQueued(agent.ID, f.budget)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	terms := ObjectiveTerms(agent.Objective)

	for _, item := range items {
		if err := f.fetchOne(ctx, agent, item, terms, known, log); err != nil {
			// One item's failure never aborts the run
			run.PagesErrored++
			continue
		}
		run.PagesFetched++
	}

	if err := f.crawl.FinishRun(run); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"run_id":        run.ID,
		"pages_fetched": run.PagesFetched,
		"pages_errored": run.PagesErrored,
		"queries":       plan.Queries,
	})
	f.ticks.Append(&core.TickLog{
		AgentID: agent.ID,
		Kind:    core.TickLogResult,
		Success: true,
		Summary: fmt.Sprintf("crawl run: %d fetched, %d errored", run.PagesFetched, run.PagesErrored),
		Payload: string(payload),
	})

	log.Info("crawl run %s: %d fetched, %d errored", run.ID, run.PagesFetched, run.PagesErrored)
	return run, nil
}

// seed asks the oracle for fresh starting points and enqueues the unseen
// ones. Seed failure degrades to draining the existing queue.
func (f *Frontier) seed(ctx context.Context, agent *core.Agent, known map[string]bool, log *logging.Logger) *oracle.CrawlPlan {
	summaries, err := f.ticks.RecentSummaries(agent.ID, recentSummaryWindow)
	if err != nil {
		log.Warn("load recent summaries: %v", err)
	}

	plan, err := f.oracle.PlanCrawl(ctx, agent.Objective, summaries)
	if err != nil {
		log.Warn("plan crawl: %v", err)
		return &oracle.CrawlPlan{}
	}

	for _, url := range plan.SeedURLs {
		if !strings.HasPrefix(url, "http") || known[url] {
			continue
		}
		inserted, err := f.crawl.InsertItem(&core.CrawlItem{
			AgentID:        agent.ID,
			URL:            url,
			Domain:         domainOf(url),
			Priority:       core.SeedPriority,
			Depth:          0,
			DiscoveredFrom: core.SeedOrigin,
		})
		if err != nil {
			log.Warn("enqueue seed %s: %v", url, err)
			continue
		}
		if inserted {
			known[url] = true
		}
	}

	return plan
}

// fetchOne processes a single queued item through its full lifecycle.
func (f *Frontier) fetchOne(ctx context.Context, agent *core.Agent, item *core.CrawlItem,
	terms []string, known map[string]bool, log *logging.Logger) error {

	if err := f.crawl.MarkFetching(item.ID); err != nil {
		return err
	}

	page, err := f.oracle.FetchPage(ctx, item.URL)
	if err != nil {
		log.Warn("fetch %s: %v", item.URL, err)
		f.crawl.MarkError(item.ID, err.Error())
		return err
	}

	content := page.Content
	if len(content) > ContentCap {
		content = content[:ContentCap]
	}

	item.Title = page.Title
	item.Content = content
	item.ContentType = page.ContentType
	item.TokenEstimate = TokenEstimate(content)
	if err := f.crawl.MarkFetched(item); err != nil {
		// Don't strand the item in fetching; errored items leave the queue too
		f.crawl.MarkError(item.ID, err.Error())
		return err
	}

	if Relevant(terms, item.Title, item.Content) {
		if err := f.promote(ctx, agent, item); err != nil {
			log.Warn("promote %s: %v", item.URL, err)
		}
	}

	f.discoverLinks(agent, item, known, log)
	return nil
}

// promote turns a relevant page into a corpus document and indexes it.
func (f *Frontier) promote(ctx context.Context, agent *core.Agent, item *core.CrawlItem) error {
	title := item.Title
	if title == "" {
		title = item.URL
	}

	doc := &core.Document{
		OwnerID:   agent.OwnerID,
		Title:     title,
		Source:    item.URL,
		Category:  "crawl",
		Text:      item.Content,
		WordCount: len(strings.Fields(item.Content)),
	}
	if err := f.corpus.CreateDocument(doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	if _, err := f.indexer.Ingest(ctx, agent, doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

// discoverLinks enqueues unseen child links one hop deeper. The known set
// is updated as items land so later pages in the same run cannot
// re-discover them.
func (f *Frontier) discoverLinks(agent *core.Agent, parent *core.CrawlItem, known map[string]bool, log *logging.Logger) {
	for _, url := range ExtractLinks(parent.Content) {
		if known[url] {
			continue
		}
		inserted, err := f.crawl.InsertItem(&core.CrawlItem{
			AgentID:        agent.ID,
			URL:            url,
			Domain:         domainOf(url),
			Priority:       core.ChildPriority,
			Depth:          parent.Depth + 1,
			DiscoveredFrom: parent.URL,
		})
		if err != nil {
			log.Warn("enqueue child %s: %v", url, err)
			continue
		}
		if inserted {
			known[url] = true
		}
	}
}

// TokenEstimate approximates token count as ceil(words * 1.3)
func TokenEstimate(content string) int {
	words := len(strings.Fields(content))
	return int(math.Ceil(float64(words) * 1.3))
}

func domainOf(url string) string {
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

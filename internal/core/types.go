// Package core defines the fundamental types for Corvid.
// Every other package speaks in these types.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// AGENT - An autonomous worker with an objective and a tick cadence
// -----------------------------------------------------------------------------

// AgentID is a type-safe identifier for agents
type AgentID string

// AgentStatus represents the agent's current execution state
type AgentStatus string

const (
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusRunning AgentStatus = "running"
	AgentStatusError   AgentStatus = "error"
)

// MinTickInterval is the floor for an agent's tick cadence.
const MinTickInterval = 30 * time.Second

// Capabilities flags what kinds of work an agent is allowed to do.
type Capabilities struct {
	Research    bool `json:"research"`
	Development bool `json:"development"`
	Refinement  bool `json:"refinement"`
}

// Agent represents one autonomous worker. The scheduler is the only
// component that mutates Status, TickCount, and LastRunAt.
type Agent struct {
	ID      AgentID `json:"id"`
	OwnerID string  `json:"owner_id"` // ledger account of the creator
	Name    string  `json:"name"`

	Objective    string       `json:"objective"` // free-text goal
	Capabilities Capabilities `json:"capabilities"`

	TickInterval time.Duration `json:"tick_interval"` // floored to MinTickInterval
	LoopEnabled  bool          `json:"loop_enabled"`

	Status    AgentStatus `json:"status"`
	TickCount int64       `json:"tick_count"`
	LastRunAt *time.Time  `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveInterval returns the tick interval with the floor applied.
func (a *Agent) EffectiveInterval() time.Duration {
	if a.TickInterval < MinTickInterval {
		return MinTickInterval
	}
	return a.TickInterval
}

// -----------------------------------------------------------------------------
// TICK LOG - Immutable record of what happened during a tick
// -----------------------------------------------------------------------------

// TickLogKind classifies a tick log entry
type TickLogKind string

const (
	TickLogTick   TickLogKind = "tick"   // the analysis/plan step
	TickLogAction TickLogKind = "action" // an executed suggestion
	TickLogResult TickLogKind = "result" // research output and similar
	TickLogError  TickLogKind = "error"
)

// TickLog is an immutable per-step record. Never updated after creation;
// queried most-recent-first.
type TickLog struct {
	ID      string      `json:"id"`
	AgentID AgentID     `json:"agent_id"`
	Kind    TickLogKind `json:"kind"`
	Success bool        `json:"success"`
	Summary string      `json:"summary"`
	Payload string      `json:"payload"` // JSON blob

	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// CRAWL - Frontier entries and run bookkeeping
// -----------------------------------------------------------------------------

// CrawlStatus is the lifecycle state of a frontier item
type CrawlStatus string

const (
	CrawlQueued   CrawlStatus = "queued"
	CrawlFetching CrawlStatus = "fetching"
	CrawlFetched  CrawlStatus = "fetched"
	CrawlError    CrawlStatus = "error"
)

// SeedOrigin marks items created from oracle seeds rather than discovered links.
const SeedOrigin = "seed"

// Default priorities: fresh seeds beat breadth expansion.
const (
	SeedPriority  = 5
	ChildPriority = 3
)

// CrawlItem is one frontier entry. URL is unique per agent; a previously
// seen URL is never re-queued.
type CrawlItem struct {
	ID      string  `json:"id"`
	AgentID AgentID `json:"agent_id"`

	URL            string `json:"url"`
	Domain         string `json:"domain"`
	Priority       int    `json:"priority"` // higher = sooner
	Depth          int    `json:"depth"`    // hops from a seed
	DiscoveredFrom string `json:"discovered_from"`

	Status        CrawlStatus `json:"status"`
	Title         string      `json:"title,omitempty"`
	Content       string      `json:"content,omitempty"`
	ContentType   string      `json:"content_type,omitempty"`
	TokenEstimate int         `json:"token_estimate,omitempty"`
	FetchedAt     *time.Time  `json:"fetched_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CrawlRun is one frontier-expansion session.
type CrawlRun struct {
	ID      string  `json:"id"`
	AgentID AgentID `json:"agent_id"`

	Budget       int `json:"budget"`
	PagesFetched int `json:"pages_fetched"`
	PagesErrored int `json:"pages_errored"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// -----------------------------------------------------------------------------
// CORPUS - Promoted documents, per-agent indexes, jobs, chunks
// -----------------------------------------------------------------------------

// DocumentStatus is the processing state of a corpus document
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
)

// Document is a promoted, persisted unit of text.
type Document struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"` // ledger account of the document owner

	Title     string         `json:"title"`
	Source    string         `json:"source"` // author or origin URL
	Category  string         `json:"category"`
	Text      string         `json:"text"`
	Status    DocumentStatus `json:"status"`
	WordCount int            `json:"word_count"`

	CreatedAt time.Time `json:"created_at"`
}

// IndexStatus is the training state of a corpus index
type IndexStatus string

const (
	IndexQueued    IndexStatus = "queued"
	IndexTraining  IndexStatus = "training"
	IndexCompleted IndexStatus = "completed"
)

// CorpusIndex aggregates the documents an agent has ingested. There is at
// most one per agent, identified by a name derived from the agent id.
type CorpusIndex struct {
	ID      string  `json:"id"`
	AgentID AgentID `json:"agent_id"`
	OwnerID string  `json:"owner_id"`
	Name    string  `json:"name"`

	SourceDocIDs []string    `json:"source_doc_ids"`
	Status       IndexStatus `json:"status"`
	Progress     int         `json:"progress"` // 0-100

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus is the state of an indexing job
type JobStatus string

const (
	JobIndexing  JobStatus = "indexing"
	JobCompleted JobStatus = "completed"
)

// IndexJob tracks the indexing operation for an index. At most one active
// job per index is consulted and updated.
type IndexJob struct {
	ID      string `json:"id"`
	IndexID string `json:"index_id"`

	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	ChunkCount int       `json:"chunk_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is one content slice. The full ordered sequence for a document
// reconstructs the original minus inter-chunk overlap.
type Chunk struct {
	ID         string `json:"id"`
	IndexID    string `json:"index_id"`
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"` // 0-based emission order
	Text       string `json:"text"`

	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// AUTODEV - Daily schedules, runs, and code-change proposals
// -----------------------------------------------------------------------------

// AutoDevSchedule is a per-agent daily trigger. At most one successful run
// advances LastRunDate per UTC calendar day.
type AutoDevSchedule struct {
	ID      string  `json:"id"`
	AgentID AgentID `json:"agent_id"`

	Enabled     bool   `json:"enabled"`
	Hour        int    `json:"hour"`          // UTC
	Minute      int    `json:"minute"`        // UTC
	LastRunDate string `json:"last_run_date"` // "2006-01-02", empty if never run

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DevRunStatus is the state of a daily run
type DevRunStatus string

const (
	DevRunRunning   DevRunStatus = "running"
	DevRunCompleted DevRunStatus = "completed"
	DevRunError     DevRunStatus = "error"
)

// DevRun is one invocation of the daily job. Completed and error are
// terminal; a run is never reopened.
type DevRun struct {
	ID      string  `json:"id"`
	AgentID AgentID `json:"agent_id"`

	Status DevRunStatus `json:"status"`
	Ideas  []string     `json:"ideas"`
	Notes  string       `json:"notes"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ChangeKind classifies a code-change proposal
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// NormalizeChangeKind maps unrecognized kinds to modify.
func NormalizeChangeKind(kind string) ChangeKind {
	switch ChangeKind(kind) {
	case ChangeCreate, ChangeModify, ChangeDelete:
		return ChangeKind(kind)
	default:
		return ChangeModify
	}
}

// CodeChangeProposal is one proposed edit belonging to a DevRun. Immutable
// once created except for status transitions made by an external reviewer.
type CodeChangeProposal struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	Path       string     `json:"path"`
	Kind       ChangeKind `json:"kind"`
	Find       string     `json:"find,omitempty"`
	Replace    string     `json:"replace,omitempty"`
	ReplaceAll bool       `json:"replace_all"`
	Content    string     `json:"content,omitempty"` // full content for create
	Rationale  string     `json:"rationale"`
	Status     string     `json:"status"` // "proposed", then reviewer-owned

	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// LEDGER - Immutable economic transfers
// -----------------------------------------------------------------------------

// SystemAccount absorbs compute charges and funds rewards.
const SystemAccount = "system"

// LedgerEntry is one immutable transfer between accounts.
type LedgerEntry struct {
	ID string `json:"id"`

	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"` // always > 0
	Reason      string  `json:"reason"`

	// Optional foreign references
	AgentID    AgentID `json:"agent_id,omitempty"`
	IndexID    string  `json:"index_id,omitempty"`
	DocumentID string  `json:"document_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

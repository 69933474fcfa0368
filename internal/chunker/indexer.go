package chunker

import (
	"context"
	"fmt"

	"github.com/corvidlabs/corvid/internal/core"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/logging"
	"github.com/corvidlabs/corvid/internal/storage"
)

// IndexName derives the corpus index name for an agent. One index per
// agent, stable across restarts.
func IndexName(agentID core.AgentID) string {
	return fmt.Sprintf("corpus-%s", agentID)
}

// Embedder produces chunk vectors. Optional; the indexer works without one.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() uint64
}

// VectorSink receives chunk vectors. Optional best-effort mirror of the
// chunk table.
type VectorSink interface {
	EnsureCollection(ctx context.Context, dimension uint64) error
	UpsertChunks(ctx context.Context, indexName string, chunks []*core.Chunk, vectors [][]float32) error
}

// Indexer ingests documents into an agent's corpus index: split, store
// chunks, advance job state, pay indexing rewards.
type Indexer struct {
	corpus   *storage.CorpusStore
	ledger   *ledger.Store
	splitter *Splitter

	embedder Embedder   // nil disables vector mirroring
	vectors  VectorSink // nil disables vector mirroring
}

// NewIndexer creates an indexer
func NewIndexer(corpus *storage.CorpusStore, led *ledger.Store, splitter *Splitter) *Indexer {
	if splitter == nil {
		splitter = NewSplitter(DefaultWindow, DefaultOverlap)
	}
	return &Indexer{
		corpus:   corpus,
		ledger:   led,
		splitter: splitter,
	}
}

// WithVectorSink attaches an optional embedding mirror
func (ix *Indexer) WithVectorSink(embedder Embedder, sink VectorSink) *Indexer {
	ix.embedder = embedder
	ix.vectors = sink
	return ix
}

// Ingest runs the full pipeline for one document: ensure the agent's index
// exists, open a job, split and persist chunks, complete the job, mark the
// document processed, and pay per-chunk rewards to the agent owner and the
// document owner.
func (ix *Indexer) Ingest(ctx context.Context, agent *core.Agent, doc *core.Document) (*core.IndexJob, error) {
	log := logging.WithAgent(string(agent.ID))

	idx, err := ix.ensureIndex(agent)
	if err != nil {
		return nil, err
	}

	// Record the source document before any chunk work so a crash leaves
	// the doc reachable for re-indexing
	if !contains(idx.SourceDocIDs, doc.ID) {
		idx.SourceDocIDs = append(idx.SourceDocIDs, doc.ID)
	}
	idx.Status = core.IndexTraining
	idx.Progress = 0
	if err := ix.corpus.UpdateIndex(idx); err != nil {
		return nil, fmt.Errorf("update index: %w", err)
	}

	// One job record per index, carried across ingests
	job, err := ix.corpus.LatestJob(idx.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup job: %w", err)
	}
	if job == nil {
		job = &core.IndexJob{IndexID: idx.ID, Status: core.JobIndexing}
		if err := ix.corpus.CreateJob(job); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	} else {
		job.Status = core.JobIndexing
		job.Progress = 0
		if err := ix.corpus.UpdateJob(job); err != nil {
			return nil, fmt.Errorf("reopen job: %w", err)
		}
	}

	pieces := ix.splitter.Split(doc.Text)
	chunks := make([]*core.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = &core.Chunk{
			IndexID:    idx.ID,
			DocumentID: doc.ID,
			Position:   i,
			Text:       text,
		}
	}

	if err := ix.corpus.BulkCreateChunks(chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	job.Status = core.JobCompleted
	job.Progress = 100
	job.ChunkCount += len(chunks)
	if err := ix.corpus.UpdateJob(job); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	idx.Status = core.IndexCompleted
	idx.Progress = 100
	if err := ix.corpus.UpdateIndex(idx); err != nil {
		return nil, fmt.Errorf("complete index: %w", err)
	}

	if err := ix.corpus.UpdateDocumentStatus(doc.ID, core.DocumentProcessed); err != nil {
		return nil, fmt.Errorf("mark document processed: %w", err)
	}

	if err := ix.ledger.RewardIndexing(agent.OwnerID, doc.OwnerID, len(chunks), ledger.Refs{
		AgentID:    agent.ID,
		IndexID:    idx.ID,
		DocumentID: doc.ID,
	}); err != nil {
		return nil, fmt.Errorf("pay indexing rewards: %w", err)
	}

	ix.mirrorVectors(ctx, idx.Name, chunks, log)

	log.Info("indexed document %s: %d chunks", doc.ID, len(chunks))
	return job, nil
}

// ReindexLatest re-ingests the most recently added source document of the
// agent's index. Returns ErrIndexNotFound when the agent has no index or
// the index has no sources.
func (ix *Indexer) ReindexLatest(ctx context.Context, agent *core.Agent) (*core.IndexJob, error) {
	idx, err := ix.corpus.GetIndexByName(IndexName(agent.ID))
	if err != nil {
		return nil, err
	}
	if idx == nil || len(idx.SourceDocIDs) == 0 {
		return nil, core.ErrIndexNotFound
	}

	docID := idx.SourceDocIDs[len(idx.SourceDocIDs)-1]
	doc, err := ix.corpus.GetDocument(docID)
	if err != nil {
		return nil, err
	}

	return ix.Ingest(ctx, agent, doc)
}

func (ix *Indexer) ensureIndex(agent *core.Agent) (*core.CorpusIndex, error) {
	name := IndexName(agent.ID)

	idx, err := ix.corpus.GetIndexByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup index: %w", err)
	}
	if idx != nil {
		return idx, nil
	}

	idx = &core.CorpusIndex{
		AgentID: agent.ID,
		OwnerID: agent.OwnerID,
		Name:    name,
		Status:  core.IndexQueued,
	}
	if err := ix.corpus.CreateIndex(idx); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return idx, nil
}

// mirrorVectors embeds and upserts chunks when a sink is configured.
// Failures are logged, never propagated: SQLite already holds the chunks.
func (ix *Indexer) mirrorVectors(ctx context.Context, indexName string, chunks []*core.Chunk, log *logging.Logger) {
	if ix.embedder == nil || ix.vectors == nil || len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn("embed chunks: %v", err)
		return
	}
	if err := ix.vectors.EnsureCollection(ctx, ix.embedder.Dimension()); err != nil {
		log.Warn("ensure vector collection: %v", err)
		return
	}
	if err := ix.vectors.UpsertChunks(ctx, indexName, chunks, vecs); err != nil {
		log.Warn("mirror chunk vectors: %v", err)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Package storage provides persistence for Corvid.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/internal/core"
)

// CorpusStore handles documents, indexes, jobs, and chunks
type CorpusStore struct {
	db *DB
}

// NewCorpusStore creates a new corpus store
func NewCorpusStore(db *DB) *CorpusStore {
	return &CorpusStore{db: db}
}

// --- Documents ---

// CreateDocument persists a promoted or generated document
func (s *CorpusStore) CreateDocument(doc *core.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now().UTC()
	if doc.Status == "" {
		doc.Status = core.DocumentPending
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO documents (id, owner_id, title, source, category, text, status, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Title, doc.Source, doc.Category, doc.Text,
		doc.Status, doc.WordCount, doc.CreatedAt)

	return err
}

// GetDocument returns a document by ID
func (s *CorpusStore) GetDocument(id string) (*core.Document, error) {
	doc := &core.Document{}

	err := s.db.conn.QueryRow(`
		SELECT id, owner_id, title, source, category, text, status, word_count, created_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Source, &doc.Category,
		&doc.Text, &doc.Status, &doc.WordCount, &doc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// UpdateDocumentStatus marks a document's processing state
func (s *CorpusStore) UpdateDocumentStatus(id string, status core.DocumentStatus) error {
	_, err := s.db.conn.Exec("UPDATE documents SET status = ? WHERE id = ?", status, id)
	return err
}

// --- Indexes ---

// GetIndexByName returns the index with the given derived name, or nil
func (s *CorpusStore) GetIndexByName(name string) (*core.CorpusIndex, error) {
	idx := &core.CorpusIndex{}
	var sources string

	err := s.db.conn.QueryRow(`
		SELECT id, agent_id, owner_id, name, source_doc_ids, status, progress, created_at, updated_at
		FROM corpus_indexes WHERE name = ?
	`, name).Scan(&idx.ID, &idx.AgentID, &idx.OwnerID, &idx.Name, &sources,
		&idx.Status, &idx.Progress, &idx.CreatedAt, &idx.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(sources), &idx.SourceDocIDs)
	return idx, nil
}

// CreateIndex persists a new corpus index
func (s *CorpusStore) CreateIndex(idx *core.CorpusIndex) error {
	if idx.ID == "" {
		idx.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	idx.CreatedAt = now
	idx.UpdatedAt = now
	if idx.Status == "" {
		idx.Status = core.IndexQueued
	}

	sources, _ := json.Marshal(idx.SourceDocIDs)

	_, err := s.db.conn.Exec(`
		INSERT INTO corpus_indexes (id, agent_id, owner_id, name, source_doc_ids, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, idx.ID, idx.AgentID, idx.OwnerID, idx.Name, string(sources),
		idx.Status, idx.Progress, idx.CreatedAt, idx.UpdatedAt)

	return err
}

// UpdateIndex persists index mutations (sources, status, progress)
func (s *CorpusStore) UpdateIndex(idx *core.CorpusIndex) error {
	idx.UpdatedAt = time.Now().UTC()
	sources, _ := json.Marshal(idx.SourceDocIDs)

	_, err := s.db.conn.Exec(`
		UPDATE corpus_indexes SET source_doc_ids = ?, status = ?, progress = ?, updated_at = ?
		WHERE id = ?
	`, string(sources), idx.Status, idx.Progress, idx.UpdatedAt, idx.ID)

	return err
}

// --- Jobs ---

// LatestJob returns the most recent job for an index, or nil
func (s *CorpusStore) LatestJob(indexID string) (*core.IndexJob, error) {
	job := &core.IndexJob{}

	err := s.db.conn.QueryRow(`
		SELECT id, index_id, status, progress, chunk_count, created_at, updated_at
		FROM index_jobs
		WHERE index_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, indexID).Scan(&job.ID, &job.IndexID, &job.Status, &job.Progress,
		&job.ChunkCount, &job.CreatedAt, &job.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

// CreateJob persists a new index job
func (s *CorpusStore) CreateJob(job *core.IndexJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = core.JobIndexing
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO index_jobs (id, index_id, status, progress, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.IndexID, job.Status, job.Progress, job.ChunkCount,
		job.CreatedAt, job.UpdatedAt)

	return err
}

// UpdateJob persists job mutations
func (s *CorpusStore) UpdateJob(job *core.IndexJob) error {
	job.UpdatedAt = time.Now().UTC()

	_, err := s.db.conn.Exec(`
		UPDATE index_jobs SET status = ?, progress = ?, chunk_count = ?, updated_at = ?
		WHERE id = ?
	`, job.Status, job.Progress, job.ChunkCount, job.UpdatedAt, job.ID)

	return err
}

// --- Chunks ---

// BulkCreateChunks inserts a batch of chunks in one transaction
func (s *CorpusStore) BulkCreateChunks(chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO chunks (id, index_id, document_id, position, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, c := range chunks {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.CreatedAt = now
			if _, err := stmt.Exec(c.ID, c.IndexID, c.DocumentID, c.Position, c.Text, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ChunksForDocument returns a document's chunks in position order
func (s *CorpusStore) ChunksForDocument(indexID, documentID string) ([]*core.Chunk, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, index_id, document_id, position, text, created_at
		FROM chunks
		WHERE index_id = ? AND document_id = ?
		ORDER BY position ASC
	`, indexID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		c := &core.Chunk{}
		if err := rows.Scan(&c.ID, &c.IndexID, &c.DocumentID, &c.Position, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

// CountChunks returns the chunk count for an index
func (s *CorpusStore) CountChunks(indexID string) (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM chunks WHERE index_id = ?", indexID).Scan(&count)
	return count, err
}

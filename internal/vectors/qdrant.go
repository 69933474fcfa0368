// Package vectors provides semantic chunk storage via Qdrant. The indexer
// treats it as a best-effort sink: SQLite remains the source of truth for
// chunks, Qdrant only accelerates retrieval.
package vectors

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/corvidlabs/corvid/internal/core"
)

// ChunkCollection holds every indexed chunk across all corpus indexes.
// Points are filtered by index name at query time.
const ChunkCollection = "chunks"

// Store wraps the Qdrant client for chunk vector operations
type Store struct {
	client *qdrant.Client
}

// Config for the vector store
type Config struct {
	Host   string // Qdrant host, default "localhost"
	Port   int    // Qdrant gRPC port, default 6334
	UseTLS bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host: "localhost",
		Port: 6334,
	}
}

// NewStore creates a new vector store
func NewStore(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Qdrant connection
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the chunk collection if it does not exist
func (s *Store) EnsureCollection(ctx context.Context, dimension uint64) error {
	exists, err := s.client.CollectionExists(ctx, ChunkCollection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ChunkCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// UpsertChunks stores chunk vectors. chunks and vectors are parallel slices.
func (s *Store) UpsertChunks(ctx context.Context, indexName string, chunks []*core.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"index_name":  indexName,
				"document_id": c.DocumentID,
				"position":    int64(c.Position),
				"text":        c.Text,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ChunkCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// ChunkHit is one semantic search result
type ChunkHit struct {
	ChunkID    string
	DocumentID string
	Position   int
	Text       string
	Score      float32
}

// SearchChunks finds the closest chunks within one index
func (s *Store) SearchChunks(ctx context.Context, indexName string, vector []float32, limit uint64) ([]ChunkHit, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ChunkCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("index_name", indexName),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	hits := make([]ChunkHit, len(results))
	for i, r := range results {
		hit := ChunkHit{
			ChunkID: r.Id.GetUuid(),
			Score:   r.Score,
		}
		if v, ok := r.Payload["document_id"]; ok {
			hit.DocumentID = v.GetStringValue()
		}
		if v, ok := r.Payload["position"]; ok {
			hit.Position = int(v.GetIntegerValue())
		}
		if v, ok := r.Payload["text"]; ok {
			hit.Text = v.GetStringValue()
		}
		hits[i] = hit
	}

	return hits, nil
}

// DeleteChunks removes chunk points by ID
func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ChunkCollection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

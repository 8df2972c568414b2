// Package chunkindex wraps the store's vector index in domain terms: chunk
// upserts on the write path, filtered nearest-neighbor queries on the read
// path, and the soft-delete flag flip.
package chunkindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/citedex/internal/db"
	"github.com/kailas-cloud/citedex/internal/domain"
)

// store is the consumer interface for the chunk index (ISP).
type store interface {
	EnsureReady(ctx context.Context, vectorDim int) error
	NextSeq(ctx context.Context) (int64, error)
	UpsertChunk(ctx context.Context, rec db.ChunkRecord) error
	QueryKNN(ctx context.Context, vector []float32, topK int, f db.ChunkFilter) ([]db.ChunkHit, error)
	SetChunksActive(ctx context.Context, documentID string, active bool) (int, error)
}

// Repository is the vector index in domain terms.
type Repository struct {
	store store
}

// New creates a chunk index repository.
func New(s store) *Repository {
	return &Repository{store: s}
}

// EnsureReady prepares the underlying index for the given vector dimension.
func (r *Repository) EnsureReady(ctx context.Context, vectorDim int) error {
	if err := r.store.EnsureReady(ctx, vectorDim); err != nil {
		return fmt.Errorf("%w: ensure index: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Upsert writes one chunk. The ingestion sequence number is assigned here so
// equal-score query results have a deterministic order (earlier-indexed wins).
func (r *Repository) Upsert(ctx context.Context, chunk domain.Chunk) error {
	seq, err := r.store.NextSeq(ctx)
	if err != nil {
		return fmt.Errorf("%w: next seq: %w", domain.ErrIndexUnavailable, err)
	}

	rec := db.ChunkRecord{
		ID:           chunk.ID,
		DocumentID:   chunk.DocumentID,
		DocumentName: chunk.DocumentName,
		Version:      chunk.Version,
		Section:      chunk.Section,
		Ordinal:      chunk.Ordinal,
		Seq:          seq,
		Active:       true,
		Text:         chunk.Text,
		Vector:       chunk.Vector,
	}
	if err := r.store.UpsertChunk(ctx, rec); err != nil {
		return fmt.Errorf("%w: upsert chunk: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Query returns the topK nearest active passages under the version filter,
// ordered by descending score with ties broken by ascending ingestion
// sequence. An empty result is a normal outcome, never an error.
func (r *Repository) Query(
	ctx context.Context, vector []float32, topK int, version string,
) ([]domain.Passage, error) {
	hits, err := r.store.QueryKNN(ctx, vector, topK, db.ChunkFilter{
		Version:    version,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query knn: %w", domain.ErrIndexUnavailable, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Seq < hits[j].Seq
		}
		return hits[i].Score > hits[j].Score
	})

	passages := make([]domain.Passage, 0, len(hits))
	for _, hit := range hits {
		passages = append(passages, domain.Passage{
			ChunkID:      hit.ID,
			DocumentID:   hit.DocumentID,
			DocumentName: hit.DocumentName,
			Version:      hit.Version,
			Section:      hit.Section,
			Seq:          hit.Seq,
			Score:        hit.Score,
			Text:         hit.Text,
		})
	}
	return passages, nil
}

// SetActive flips the active flag on every chunk of a document and returns
// the number of chunks touched.
func (r *Repository) SetActive(ctx context.Context, documentID string, active bool) (int, error) {
	n, err := r.store.SetChunksActive(ctx, documentID, active)
	if err != nil {
		return 0, fmt.Errorf("%w: set chunks active: %w", domain.ErrIndexUnavailable, err)
	}
	return n, nil
}

package ingest

import (
	"context"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// chunkIndex is the consumer interface for the vector index (ISP).
type chunkIndex interface {
	Upsert(ctx context.Context, chunk domain.Chunk) error
	SetActive(ctx context.Context, documentID string, active bool) (int, error)
}

// registry is the consumer interface for the document registry (ISP).
type registry interface {
	Save(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// embedder is the consumer interface for batch vectorization (ISP).
type embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

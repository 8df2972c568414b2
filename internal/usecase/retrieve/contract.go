package retrieve

import (
	"context"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// embedder is the consumer interface for query vectorization (ISP).
type embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// index is the consumer interface for the vector index (ISP).
type index interface {
	Query(ctx context.Context, vector []float32, topK int, version string) ([]domain.Passage, error)
}

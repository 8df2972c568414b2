package answer

import (
	"context"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// retriever is the consumer interface for evidence retrieval (ISP).
type retriever interface {
	Retrieve(ctx context.Context, q domain.Query) ([]domain.Passage, error)
}

// generator is the consumer interface for text generation (ISP).
type generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}

// enricher is the consumer interface for optional market-intel enrichment.
// The block is appended after citation validation and never counts as
// evidence.
type enricher interface {
	Block(ctx context.Context, question string) (string, bool)
}

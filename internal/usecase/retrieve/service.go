// Package retrieve implements threshold-gated passage retrieval: embed the
// question, pull nearest candidates from the index, drop everything below the
// similarity threshold, rerank what survives and deduplicate. An empty result
// means the corpus holds no evidence and the caller must refuse to answer.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/metrics"
)

// Service retrieves evidence passages for a question.
type Service struct {
	embedder embedder
	index    index
	reranker *Reranker
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// New creates a retrieve service.
func New(e embedder, idx index, cfg config.RetrievalConfig, logger *zap.Logger) *Service {
	return &Service{
		embedder: e,
		index:    idx,
		reranker: NewReranker(cfg.Reranker),
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns up to TopK deduplicated passages scoring at or above the
// similarity threshold, best first. The question is embedded exactly once.
// A nil result with a nil error is the no-evidence outcome.
func (s *Service) Retrieve(ctx context.Context, q domain.Query) ([]domain.Passage, error) {
	res, err := s.embedder.Embed(ctx, q.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	candidates, err := s.index.Query(ctx, res.Embedding, s.cfg.CandidateK, q.Version)
	if err != nil {
		return nil, err
	}

	// Threshold gate on raw vector similarity, before any lexical boost. A
	// passage with no semantic relation to the question must not be rescued
	// by keyword overlap.
	gated := candidates[:0:0]
	for _, p := range candidates {
		if p.Score >= s.cfg.SimilarityThreshold {
			gated = append(gated, p)
		}
	}
	metrics.RetrievalPassages.Observe(float64(len(gated)))
	if len(gated) == 0 {
		s.logger.Debug("No passages above threshold",
			zap.Int("candidates", len(candidates)),
			zap.Float64("threshold", s.cfg.SimilarityThreshold),
		)
		return nil, nil
	}

	for i := range gated {
		gated[i].Score = s.reranker.Score(q.Question, gated[i].Text, gated[i].Score)
	}
	sort.SliceStable(gated, func(i, j int) bool {
		if gated[i].Score == gated[j].Score {
			return gated[i].Seq < gated[j].Seq
		}
		return gated[i].Score > gated[j].Score
	})

	deduped := dedupe(gated)
	if len(deduped) > s.cfg.TopK {
		deduped = deduped[:s.cfg.TopK]
	}

	s.logger.Debug("Passages retrieved",
		zap.Int("candidates", len(candidates)),
		zap.Int("gated", len(gated)),
		zap.Int("returned", len(deduped)),
	)
	return deduped, nil
}

const dedupePrefixLen = 80

// dedupe drops passages that repeat an already-kept passage's document,
// section and opening text. Overlapping chunk windows from the same document
// region would otherwise crowd out distinct evidence.
func dedupe(passages []domain.Passage) []domain.Passage {
	seen := make(map[string]struct{}, len(passages))
	out := passages[:0:0]
	for _, p := range passages {
		key := p.DocumentID + "\x00" + p.Section + "\x00" + textPrefix(p.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func textPrefix(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) > dedupePrefixLen {
		t = t[:dedupePrefixLen]
	}
	return t
}

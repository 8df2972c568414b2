// Package answer assembles the final answer for one ask request: retrieval,
// closed-context generation, citation validation, refusal handling. The
// refusal message is a single literal regardless of which stage triggered it,
// so callers never need to distinguish a retrieval refusal from a validation
// refusal.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/metrics"
)

// extractiveFloor is the minimum top-passage score at which a generator
// refusal is overridden with an extractive answer built from the passages
// themselves.
const extractiveFloor = 0.15

// Service answers questions from the indexed corpus.
type Service struct {
	retriever retriever
	generator generator
	enricher  enricher // nil when market enrichment is disabled
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// New creates an answer service. enricher may be nil.
func New(
	r retriever,
	g generator,
	e enricher,
	cfg config.RetrievalConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		retriever: r,
		generator: g,
		enricher:  e,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask runs the full pipeline. Infrastructure failures come back as errors;
// refusals are successful answers with Refusal=true and the canonical text.
func (s *Service) Ask(ctx context.Context, q domain.Query) (domain.Answer, error) {
	if err := q.Normalize(); err != nil {
		return domain.Answer{}, err
	}

	passages, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Answer{}, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(passages) == 0 {
		metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeRefusedNoEvidence).Inc()
		s.logger.Info("Ask refused: no evidence", zap.String("version", q.Version))
		return domain.Refuse(), nil
	}

	res, err := s.generator.Generate(ctx, domain.GenerationRequest{
		System: buildSystemPrompt(q),
		User:   buildUserPrompt(q, passages),
	})
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	raw := res.Text
	if looksLikeRefusal(raw) {
		// The model declined even though retrieval found evidence. With
		// strong enough evidence an extractive answer beats a refusal.
		if passages[0].Score >= extractiveFloor {
			raw = extractiveAnswer(passages, s.cfg.MaxSources)
		} else {
			metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeRefusedUnsupported).Inc()
			return domain.Refuse(), nil
		}
	}

	raw = shapeForMode(raw, q.Mode, passages)

	v := Validate(raw, passages)
	if !v.OK {
		metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeRefusedUnsupported).Inc()
		s.logger.Info("Ask refused: no valid citations survived",
			zap.Int("passages", len(passages)),
		)
		return domain.Refuse(), nil
	}

	text := v.Text
	if s.enricher != nil {
		if block, ok := s.enricher.Block(ctx, q.Question); ok {
			text += "\n\n" + block
		}
	}

	metrics.AskRequestsTotal.WithLabelValues(metrics.OutcomeAnswered).Inc()
	s.logger.Info("Ask answered",
		zap.Float64("confidence", v.Confidence),
		zap.Int("passages", len(passages)),
		zap.Strings("used_documents", v.UsedDocuments),
		zap.Int("output_tokens", res.OutputTokens),
	)

	return domain.Answer{
		Text:          text,
		Confidence:    v.Confidence,
		UsedDocuments: v.UsedDocuments,
		Refusal:       false,
	}, nil
}

// looksLikeRefusal reports whether the raw model output is a refusal rather
// than an answer.
func looksLikeRefusal(raw string) bool {
	t := strings.TrimSpace(raw)
	if t == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t), strings.ToLower(domain.RefusalText))
}

// extractiveAnswer builds an answer directly from the top passages, each line
// citing its own source marker. By construction every marker is valid.
func extractiveAnswer(passages []domain.Passage, maxSources int) string {
	n := len(passages)
	if maxSources > 0 && n > maxSources {
		n = maxSources
	}

	var b strings.Builder
	b.WriteString("From the documentation:\n")
	for i := 0; i < n; i++ {
		b.WriteString("- ")
		b.WriteString(snippet(passages[i].Text))
		b.WriteString(fmt.Sprintf(" [S%d]\n", i+1))
	}
	return b.String()
}

const snippetLen = 240

func snippet(text string) string {
	t := strings.TrimSpace(text)
	if len(t) <= snippetLen {
		return t
	}
	cut := strings.LastIndex(t[:snippetLen], " ")
	if cut <= 0 {
		cut = snippetLen
	}
	return t[:cut] + "…"
}

// shapeForMode adjusts verbosity before validation so the final text and its
// citations are validated as one unit. It never touches the closed-context
// constraint.
func shapeForMode(raw string, mode domain.AnswerMode, passages []domain.Passage) string {
	switch mode {
	case domain.ModeBrief:
		return firstSentences(raw, 3)
	case domain.ModeDeep:
		if len(raw) >= 400 || len(passages) < 2 {
			return raw
		}
		// Short answer in deep mode: append supporting context from the
		// next-best passages, each with its own valid marker.
		var b strings.Builder
		b.WriteString(raw)
		b.WriteString("\n\nSupporting context:\n")
		limit := 3
		if len(passages) < limit {
			limit = len(passages)
		}
		for i := 1; i < limit; i++ {
			b.WriteString(fmt.Sprintf("- %s [S%d]\n", snippet(passages[i].Text), i+1))
		}
		return b.String()
	default:
		return raw
	}
}

// firstSentences keeps the first n sentence-terminated segments.
func firstSentences(text string, n int) string {
	t := strings.TrimSpace(text)
	count := 0
	for i, r := range t {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n && i+1 < len(t) {
				return strings.TrimSpace(t[:i+1])
			}
		}
	}
	return t
}

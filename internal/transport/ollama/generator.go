// Package ollama adapts a local ollama server to the generation contract,
// for running the pipeline fully offline.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/metrics"
)

// Generator is a text generator backed by a local ollama server.
type Generator struct {
	llm         *ollama.LLM
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// Config holds the ollama generator settings.
type Config struct {
	ServerURL   string
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *zap.Logger
}

// NewGenerator connects to an ollama server.
func NewGenerator(cfg *Config) (*Generator, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect ollama: %w", err)
	}

	return &Generator{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}, nil
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}

	start := time.Now()

	resp, err := g.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("ollama", g.model, "error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("%w: ollama: %v", domain.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues("ollama", g.model, "error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("%w: empty ollama response", domain.ErrGenerationUnavailable)
	}

	metrics.GenerationRequestsTotal.WithLabelValues("ollama", g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues("ollama", g.model).Observe(duration.Seconds())

	return domain.GenerationResult{Text: resp.Choices[0].Content}, nil
}

package domain

import "context"

// Generator is the text-generation contract. The prompt is fully assembled by
// the caller; implementations are black boxes whose raw output is untrusted
// and must pass citation validation before reaching a user.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// GenerationRequest carries the assembled closed-context prompt.
type GenerationRequest struct {
	System string
	User   string
}

// GenerationResult carries the raw model output and token usage.
type GenerationResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

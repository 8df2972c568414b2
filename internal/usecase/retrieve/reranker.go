package retrieve

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/citedex/internal/config"
)

// Reranker fuses the vector similarity with cheap lexical signals. Pure
// vector ranking misses exact terms that matter in product questions: model
// numbers, throughput figures, feature names.
type Reranker struct {
	weights config.RerankerConfig
}

// NewReranker creates a reranker with the given fusion weights.
func NewReranker(weights config.RerankerConfig) *Reranker {
	return &Reranker{weights: weights}
}

// Score fuses the semantic similarity of a passage with lexical and numeric
// overlap against the question. The result is clamped to [0, 1].
func (r *Reranker) Score(question, passage string, semantic float64) float64 {
	qTokens := tokenize(question)
	pTokens := tokenize(passage)

	score := r.weights.SemanticWeight*clamp01(semantic) +
		r.weights.LexicalWeight*overlap(qTokens, pTokens) +
		r.weights.NumericWeight*overlap(numbers(qTokens), numbers(pTokens))

	if phraseMatch(question, passage) {
		score += r.weights.PhraseBonus
	}

	return clamp01(score)
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}._-]*`)

// tokenize lowercases and extracts word-like tokens, keeping dots and dashes
// inside tokens so version strings and model names survive intact.
func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// overlap is the share of query tokens present in the passage. Empty query
// token sets score zero, not one: no signal is not a match.
func overlap(query, passage []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(passage))
	for _, t := range passage {
		set[t] = struct{}{}
	}
	hits := 0
	for _, t := range query {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// numbers filters tokens that contain at least one digit.
func numbers(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if strings.ContainsAny(t, "0123456789") {
			out = append(out, t)
		}
	}
	return out
}

// phraseMatch reports whether the question, as a contiguous phrase, occurs in
// the passage. Only meaningful for short questions; long ones never match and
// that is fine.
func phraseMatch(question, passage string) bool {
	q := strings.TrimSpace(strings.ToLower(question))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(passage), q)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

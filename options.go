package citedex

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// Embedder vectorizes text. domain.Embedder re-exported for SDK users.
type Embedder = domain.Embedder

// Generator produces text from an assembled prompt.
type Generator = domain.Generator

type retrievalSettings struct {
	topK         int
	candidateK   int
	threshold    float64
	maxSources   int
	chunkSize    int
	chunkOverlap int
}

type clientConfig struct {
	driver           string
	addrs            []string
	password         string
	path             string
	vectorDimensions int
	embedder         domain.Embedder
	generator        domain.Generator
	logger           *zap.Logger
	retrieval        retrievalSettings
}

// Option configures the Client.
type Option func(*clientConfig)

// WithRedis selects the Redis store driver.
func WithRedis(addrs []string, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = addrs
		c.password = password
	}
}

// WithEmbeddedStore selects the embedded driver persisted at path. An empty
// path keeps everything in memory.
func WithEmbeddedStore(path string) Option {
	return func(c *clientConfig) {
		c.driver = "chromem"
		c.path = path
	}
}

// WithEmbedder sets the embedding backend (required).
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithGenerator sets the generation backend (required).
func WithGenerator(g Generator) Option {
	return func(c *clientConfig) { c.generator = g }
}

// WithVectorDimensions declares the embedding dimension for index creation.
func WithVectorDimensions(dim int) Option {
	return func(c *clientConfig) { c.vectorDimensions = dim }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithSimilarityThreshold sets the refusal gate.
func WithSimilarityThreshold(t float64) Option {
	return func(c *clientConfig) { c.retrieval.threshold = t }
}

// WithTopK sets how many passages retrieval returns.
func WithTopK(k int) Option {
	return func(c *clientConfig) {
		c.retrieval.topK = k
		if c.retrieval.candidateK < k {
			c.retrieval.candidateK = k * 3
		}
	}
}

// WithChunking sets the chunk window in words.
func WithChunking(sizeWords, overlapWords int) Option {
	return func(c *clientConfig) {
		c.retrieval.chunkSize = sizeWords
		c.retrieval.chunkOverlap = overlapWords
	}
}

// AskOption adjusts one Ask call.
type AskOption func(*domain.Query)

// ForVersion filters retrieval to one corpus version.
func ForVersion(version string) AskOption {
	return func(q *domain.Query) { q.Version = version }
}

// Technical selects the technical question profile.
func Technical() AskOption {
	return func(q *domain.Query) { q.Type = domain.QueryTechnical }
}

// Brief requests a short answer.
func Brief() AskOption {
	return func(q *domain.Query) { q.Mode = domain.ModeBrief }
}

// Deep requests an elaborate answer.
func Deep() AskOption {
	return func(q *domain.Query) { q.Mode = domain.ModeDeep }
}

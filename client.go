// Package citedex is the embedded SDK: the full ask/ingest pipeline wired
// over a store directly, for in-process use without the HTTP layer.
package citedex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/chunker"
	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/db"
	dbChromem "github.com/kailas-cloud/citedex/internal/db/chromem"
	dbRedis "github.com/kailas-cloud/citedex/internal/db/redis"
	"github.com/kailas-cloud/citedex/internal/domain"
	chunkindexrepo "github.com/kailas-cloud/citedex/internal/repository/chunkindex"
	documentrepo "github.com/kailas-cloud/citedex/internal/repository/document"
	answeruc "github.com/kailas-cloud/citedex/internal/usecase/answer"
	ingestuc "github.com/kailas-cloud/citedex/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/citedex/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the citedex SDK entry point.
type Client struct {
	store     db.Store
	ingestSvc *ingestuc.Service
	askSvc    *answeruc.Service
}

// New creates a citedex Client. Without store options an in-memory embedded
// store is used; an Embedder and a Generator are required.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}

	if cfg.embedder == nil {
		return nil, fmt.Errorf("citedex: embedder required (use WithEmbedder)")
	}
	if cfg.generator == nil {
		return nil, fmt.Errorf("citedex: generator required (use WithGenerator)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("citedex: store not ready: %w", err)
	}

	return wireClient(store, cfg)
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("citedex: create redis store: %w", err)
		}
		return s, nil
	case "chromem":
		s, err := dbChromem.NewStore(dbChromem.Config{Path: cfg.path})
		if err != nil {
			return nil, fmt.Errorf("citedex: create embedded store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("citedex: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	indexRepo := chunkindexrepo.New(store)
	docRepo := documentrepo.New(store)

	if err := indexRepo.EnsureReady(context.Background(), cfg.vectorDimensions); err != nil {
		store.Close()
		return nil, fmt.Errorf("citedex: prepare index: %w", err)
	}

	ch, err := chunker.New(cfg.retrieval.chunkSize, cfg.retrieval.chunkOverlap)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("citedex: %w", err)
	}

	ingestSvc := ingestuc.New(ch, asBatch(cfg.embedder), indexRepo, docRepo, cfg.logger)
	retrieveSvc := retrieveuc.New(cfg.embedder, indexRepo, cfg.retrievalConfig(), cfg.logger)
	askSvc := answeruc.New(retrieveSvc, cfg.generator, nil, cfg.retrievalConfig(), cfg.logger)

	return &Client{
		store:     store,
		ingestSvc: ingestSvc,
		askSvc:    askSvc,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// IngestInput is one document to index.
type IngestInput struct {
	Name    string
	Version string
	Text    string
}

// Document mirrors one registry entry.
type Document struct {
	ID         string
	Name       string
	Version    string
	ChunkCount int
	UploadedAt time.Time
	Active     bool
}

// Answer is the outcome of one Ask call. Refusal answers carry the canonical
// refusal text with zero confidence.
type Answer struct {
	Text          string
	Confidence    float64
	UsedDocuments []string
	Refusal       bool
}

// Ingest chunks, embeds and indexes one document.
func (c *Client) Ingest(ctx context.Context, in IngestInput) (Document, error) {
	doc, err := c.ingestSvc.Ingest(ctx, ingestuc.Request{
		Name:    in.Name,
		Version: in.Version,
		Text:    in.Text,
	})
	if err != nil {
		return Document{}, err
	}
	return fromDomainDocument(doc), nil
}

// Ask answers a question from the indexed corpus.
func (c *Client) Ask(ctx context.Context, question string, opts ...AskOption) (Answer, error) {
	q := domain.Query{Question: question}
	for _, o := range opts {
		o(&q)
	}

	ans, err := c.askSvc.Ask(ctx, q)
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		Text:          ans.Text,
		Confidence:    ans.Confidence,
		UsedDocuments: ans.UsedDocuments,
		Refusal:       ans.Refusal,
	}, nil
}

// SoftDelete removes a document from retrieval without deleting its chunks.
func (c *Client) SoftDelete(ctx context.Context, documentID string) error {
	return c.ingestSvc.SoftDelete(ctx, documentID)
}

// Documents lists all registry entries.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	docs, err := c.ingestSvc.Documents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDomainDocument(d))
	}
	return out, nil
}

func fromDomainDocument(d domain.Document) Document {
	return Document{
		ID:         d.ID,
		Name:       d.Name,
		Version:    d.Version,
		ChunkCount: d.ChunkCount,
		UploadedAt: d.UploadedAt,
		Active:     d.Active,
	}
}

// asBatch upgrades a plain embedder with the per-text fallback.
func asBatch(e domain.Embedder) domain.BatchEmbedder {
	if be, ok := e.(domain.BatchEmbedder); ok {
		return be
	}
	return batchAdapter{e}
}

type batchAdapter struct {
	domain.Embedder
}

func (a batchAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, a.Embedder, texts)
}

// retrievalConfig builds the internal retrieval config from client settings.
func (c *clientConfig) retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopK:                c.retrieval.topK,
		CandidateK:          c.retrieval.candidateK,
		SimilarityThreshold: c.retrieval.threshold,
		MaxSources:          c.retrieval.maxSources,
		Reranker: config.RerankerConfig{
			SemanticWeight: 0.6,
			LexicalWeight:  0.3,
			NumericWeight:  0.1,
			PhraseBonus:    0.05,
		},
	}
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		driver: "chromem",
		logger: zap.NewNop(),
		retrieval: retrievalSettings{
			topK:         8,
			candidateK:   24,
			threshold:    0.2,
			maxSources:   3,
			chunkSize:    220,
			chunkOverlap: 40,
		},
	}
}

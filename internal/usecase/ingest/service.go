// Package ingest turns raw document text into indexed, embedded chunks and a
// registry entry. Ingestion is the only write path into the corpus.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/chunker"
	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/metrics"
)

// Section is one extracted element of an uploaded document. Atomic sections
// (normalized table rows) are indexed as single chunks.
type Section struct {
	Title  string
	Text   string
	Atomic bool
}

// Request is one document upload.
type Request struct {
	Name     string
	Version  string
	Text     string
	Sections []Section // optional; when set, Text is ignored
}

// Service ingests documents: chunk, embed, index, register.
type Service struct {
	chunker  *chunker.Chunker
	embedder embedder
	index    chunkIndex
	registry registry
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an ingest service.
func New(
	c *chunker.Chunker,
	e embedder,
	index chunkIndex,
	reg registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		chunker:  c,
		embedder: e,
		index:    index,
		registry: reg,
		logger:   logger,
		locks:    map[string]*sync.Mutex{},
	}
}

// Ingest chunks and embeds one document, writes every chunk to the index and
// records the document in the registry. Concurrent uploads of the same
// document name are serialized; distinct documents proceed in parallel.
func (s *Service) Ingest(ctx context.Context, req Request) (domain.Document, error) {
	if req.Name == "" {
		return domain.Document{}, fmt.Errorf("document name is required")
	}
	if req.Version != "" {
		if err := domain.ValidateVersion(req.Version); err != nil {
			return domain.Document{}, err
		}
	}

	lock := s.docLock(req.Name)
	lock.Lock()
	defer lock.Unlock()

	pieces := s.split(req)
	if len(pieces) == 0 {
		return domain.Document{}, domain.ErrEmptyDocument
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	start := time.Now()
	batch, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.Document{}, fmt.Errorf("embed document %q: %w", req.Name, err)
	}
	if len(batch.Embeddings) != len(pieces) {
		return domain.Document{}, fmt.Errorf(
			"embed document %q: got %d embeddings for %d chunks",
			req.Name, len(batch.Embeddings), len(pieces),
		)
	}

	doc := domain.Document{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Version:    req.Version,
		ChunkCount: len(pieces),
		UploadedAt: time.Now().UTC(),
		Active:     true,
	}

	for i, p := range pieces {
		chunk := domain.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Version:      doc.Version,
			Ordinal:      p.Ordinal,
			Section:      p.Section,
			Text:         p.Text,
			Vector:       batch.Embeddings[i],
		}
		if err := s.index.Upsert(ctx, chunk); err != nil {
			return domain.Document{}, fmt.Errorf("index chunk %d of %q: %w", p.Ordinal, req.Name, err)
		}
	}

	if err := s.registry.Save(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("register document %q: %w", req.Name, err)
	}

	metrics.IngestedChunksTotal.Add(float64(len(pieces)))
	s.logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("name", doc.Name),
		zap.String("version", doc.Version),
		zap.Int("chunks", doc.ChunkCount),
		zap.Int("embedding_tokens", batch.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return doc, nil
}

// SoftDelete flips the document and its chunks to inactive. Chunks remain in
// storage; retrieval stops seeing them immediately. Idempotent.
func (s *Service) SoftDelete(ctx context.Context, documentID string) error {
	doc, err := s.registry.Get(ctx, documentID)
	if err != nil {
		return err
	}

	n, err := s.index.SetActive(ctx, documentID, false)
	if err != nil {
		return fmt.Errorf("deactivate chunks of %q: %w", documentID, err)
	}
	if err := s.registry.SetActive(ctx, documentID, false); err != nil {
		return fmt.Errorf("deactivate document %q: %w", documentID, err)
	}

	s.logger.Info("Document soft-deleted",
		zap.String("document_id", documentID),
		zap.String("name", doc.Name),
		zap.Int("chunks", n),
	)
	return nil
}

// Documents returns every registry entry, active and inactive alike.
func (s *Service) Documents(ctx context.Context) ([]domain.Document, error) {
	return s.registry.List(ctx)
}

func (s *Service) split(req Request) []chunker.Piece {
	if len(req.Sections) == 0 {
		return s.chunker.Split(req.Text)
	}

	spans := make([]chunker.Span, 0, len(req.Sections))
	for _, sec := range req.Sections {
		spans = append(spans, chunker.Span{
			Text:    sec.Text,
			Section: sec.Title,
			Atomic:  sec.Atomic,
		})
	}
	return s.chunker.SplitSpans(spans)
}

func (s *Service) docLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

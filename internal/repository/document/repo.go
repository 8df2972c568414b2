// Package document persists the document registry: one entry per upload with
// its version label and the soft-delete flag.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/citedex/internal/db"
	"github.com/kailas-cloud/citedex/internal/domain"
)

// store is the consumer interface for the registry (ISP).
type store interface {
	SaveDocument(ctx context.Context, rec db.DocumentRecord) error
	GetDocument(ctx context.Context, id string) (db.DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]db.DocumentRecord, error)
	SetDocumentActive(ctx context.Context, id string, active bool) error
}

// Repository is the document registry.
type Repository struct {
	store store
}

// New creates a document repository.
func New(s store) *Repository {
	return &Repository{store: s}
}

// Save stores a registry entry.
func (r *Repository) Save(ctx context.Context, doc domain.Document) error {
	rec := db.DocumentRecord{
		ID:         doc.ID,
		Name:       doc.Name,
		Version:    doc.Version,
		ChunkCount: doc.ChunkCount,
		UploadedAt: doc.UploadedAt,
		Active:     doc.Active,
	}
	if err := r.store.SaveDocument(ctx, rec); err != nil {
		return fmt.Errorf("%w: save document: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Get fetches a registry entry by id.
func (r *Repository) Get(ctx context.Context, id string) (domain.Document, error) {
	rec, err := r.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("%w: get document: %w", domain.ErrIndexUnavailable, err)
	}
	return fromRecord(rec), nil
}

// List returns all registry entries.
func (r *Repository) List(ctx context.Context) ([]domain.Document, error) {
	recs, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", domain.ErrIndexUnavailable, err)
	}
	docs := make([]domain.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, fromRecord(rec))
	}
	return docs, nil
}

// SetActive flips the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	if err := r.store.SetDocumentActive(ctx, id, active); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("%w: set document active: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func fromRecord(rec db.DocumentRecord) domain.Document {
	return domain.Document{
		ID:         rec.ID,
		Name:       rec.Name,
		Version:    rec.Version,
		ChunkCount: rec.ChunkCount,
		UploadedAt: rec.UploadedAt,
		Active:     rec.Active,
	}
}

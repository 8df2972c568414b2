// Package db defines the storage contract behind the vector index and the
// document registry. Drivers live in subpackages; upper layers depend only on
// the interfaces here.
package db

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// ChunkRecord is a chunk as stored in the index: vector plus metadata, written
// together so a chunk becomes visible to queries atomically.
type ChunkRecord struct {
	ID           string
	DocumentID   string
	DocumentName string
	Version      string
	Section      string
	Ordinal      int
	Seq          int64
	Active       bool
	Text         string
	Vector       []float32
}

// ChunkHit is one nearest-neighbor result with its similarity score in [0,1].
type ChunkHit struct {
	ChunkRecord
	Score float64
}

// ChunkFilter restricts a KNN query. Zero value matches everything.
type ChunkFilter struct {
	Version    string // "" = any version
	ActiveOnly bool   // exclude chunks of soft-deleted documents
}

// DocumentRecord is a registry entry for an uploaded document.
type DocumentRecord struct {
	ID         string
	Name       string
	Version    string
	ChunkCount int
	UploadedAt time.Time
	Active     bool
}

// Store is the driver facade. Consumers use the narrow sub-interfaces.
type Store interface {
	Pinger
	VectorIndex
	DocumentRegistry
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VectorIndex stores chunk vectors and answers nearest-neighbor queries.
// QueryKNN returns an empty slice, not an error, when nothing matches the
// filter. Hit ordering across equal scores is driver-dependent; the repository
// layer applies the deterministic tie-break.
type VectorIndex interface {
	EnsureReady(ctx context.Context, vectorDim int) error
	NextSeq(ctx context.Context) (int64, error)
	UpsertChunk(ctx context.Context, rec ChunkRecord) error
	QueryKNN(ctx context.Context, vector []float32, topK int, f ChunkFilter) ([]ChunkHit, error)
	SetChunksActive(ctx context.Context, documentID string, active bool) (int, error)
}

// DocumentRegistry persists document metadata and the soft-delete flag.
type DocumentRegistry interface {
	SaveDocument(ctx context.Context, rec DocumentRecord) error
	GetDocument(ctx context.Context, id string) (DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	SetDocumentActive(ctx context.Context, id string, active bool) error
}

// KVStore provides simple key-value operations (embedding cache).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

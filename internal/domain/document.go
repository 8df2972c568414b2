package domain

import "time"

// Document is an uploaded corpus entry. Immutable once indexed except for the
// Active flag, which is the only mutation path (soft delete).
type Document struct {
	ID         string
	Name       string
	Version    string
	ChunkCount int
	UploadedAt time.Time
	Active     bool
}

// Chunk is the atomic unit of indexing and retrieval: a bounded span of a
// document's text with its embedding vector. Version is denormalized from the
// owning document so the index can filter without a join.
type Chunk struct {
	ID           string
	DocumentID   string
	DocumentName string
	Version      string
	Ordinal      int
	Section      string
	Text         string
	Vector       []float32
}

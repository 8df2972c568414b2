package domain

import "errors"

var (
	// ErrEmbeddingUnavailable signals that the embedding model cannot be reached or loaded.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrGenerationUnavailable signals that the generation model cannot be reached or loaded.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrIndexUnavailable signals that the vector store is unreachable or corrupt.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrInvalidVersionFilter signals a malformed version filter string.
	ErrInvalidVersionFilter = errors.New("invalid version filter")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyDocument signals that ingestion produced no chunks.
	ErrEmptyDocument = errors.New("document contains no indexable text")
)

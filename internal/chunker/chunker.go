// Package chunker splits extracted document text into overlapping word-window
// passages suitable for embedding. It is a pure transform with no side effects.
package chunker

import (
	"fmt"
	"strings"
)

// Piece is a single text chunk with its position within the document. Section
// is set only when chunking pre-sectioned spans.
type Piece struct {
	Text    string
	Section string
	Ordinal int
}

// Span is one extracted element of a document. Atomic spans (e.g. normalized
// table rows) are emitted as single chunks even when they exceed the nominal
// size, rather than being corrupted by a mid-row split.
type Span struct {
	Text    string
	Section string
	Atomic  bool
}

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	sizeWords    int
	overlapWords int
}

// New creates a chunker. Overlap must be smaller than the chunk size so every
// step makes forward progress.
func New(sizeWords, overlapWords int) (*Chunker, error) {
	if sizeWords <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", sizeWords)
	}
	if overlapWords < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlapWords)
	}
	if overlapWords >= sizeWords {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlapWords, sizeWords)
	}
	return &Chunker{sizeWords: sizeWords, overlapWords: overlapWords}, nil
}

// Split returns non-empty overlapping chunks preserving original word order.
// Empty or whitespace-only input yields zero chunks.
func (c *Chunker) Split(text string) []Piece {
	normalized := CleanText(text)
	if normalized == "" {
		return nil
	}

	words := strings.Split(normalized, " ")
	step := c.sizeWords - c.overlapWords

	var pieces []Piece
	start := 0
	ordinal := 0

	for start < len(words) {
		end := start + c.sizeWords
		if end > len(words) {
			end = len(words)
		}
		chunkText := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunkText != "" {
			pieces = append(pieces, Piece{Text: chunkText, Ordinal: ordinal})
			ordinal++
		}
		if end == len(words) {
			break
		}
		start += step
	}

	return pieces
}

// SplitSpans chunks a sequence of document spans, keeping ordinals continuous
// across spans. Atomic spans bypass the size window and are emitted whole.
func (c *Chunker) SplitSpans(spans []Span) []Piece {
	var pieces []Piece
	ordinal := 0

	for _, span := range spans {
		if span.Atomic {
			text := CleanText(span.Text)
			if text == "" {
				continue
			}
			pieces = append(pieces, Piece{Text: text, Section: span.Section, Ordinal: ordinal})
			ordinal++
			continue
		}
		for _, p := range c.Split(span.Text) {
			p.Section = span.Section
			p.Ordinal = ordinal
			pieces = append(pieces, p)
			ordinal++
		}
	}

	return pieces
}

// Package chromem implements db.Store over the embedded chromem-go vector
// database. It backs the "chromem" store driver: no external service, index
// persisted under a local directory. The document registry and ingestion
// sequence live in a JSON sidecar file since chromem only stores vectors.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/citedex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const collectionName = "chunks"

// Config holds settings for the embedded store.
type Config struct {
	Path     string // empty = in-memory only
	Compress bool
}

// Store implements db.Store over chromem-go.
type Store struct {
	cdb        *chromem.DB
	collection *chromem.Collection

	mu       sync.Mutex
	path     string
	seq      int64
	docs     map[string]db.DocumentRecord
	kv       map[string][]byte
	inactive map[string]bool // documentID -> soft-deleted
}

// NewStore opens or creates an embedded store. An empty path keeps everything
// in memory, which is what the tests use.
func NewStore(cfg Config) (*Store, error) {
	var (
		cdb *chromem.DB
		err error
	)
	if cfg.Path == "" {
		cdb = chromem.NewDB()
	} else {
		cdb, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	}

	// nil embedding func: vectors are always supplied by the caller.
	collection, err := cdb.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	s := &Store{
		cdb:        cdb,
		collection: collection,
		path:       cfg.Path,
		docs:       make(map[string]db.DocumentRecord),
		kv:         make(map[string][]byte),
		inactive:   make(map[string]bool),
	}
	if err := s.loadSidecar(); err != nil {
		return nil, err
	}
	return s, nil
}

// Ping reports readiness; the embedded store is always reachable once open.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close flushes the sidecar state.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.saveSidecarLocked()
}

// WaitForReady is immediate for the embedded store.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// EnsureReady is a no-op: chromem needs no schema, dimensions are implicit.
func (s *Store) EnsureReady(_ context.Context, vectorDim int) error {
	if vectorDim <= 0 {
		return fmt.Errorf("vector dim must be positive, got %d", vectorDim)
	}
	return nil
}

// NextSeq returns the next monotonic ingestion sequence number.
func (s *Store) NextSeq(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	seq := s.seq
	return seq, s.saveSidecarLocked()
}

// UpsertChunk adds a chunk document; vector and metadata land in one call so
// the chunk becomes queryable atomically.
func (s *Store) UpsertChunk(ctx context.Context, rec db.ChunkRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("chunk id is required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("chunk vector is required")
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Vector,
		Metadata: map[string]string{
			"document_id":   rec.DocumentID,
			"document_name": rec.DocumentName,
			"version":       rec.Version,
			"section":       rec.Section,
			"ordinal":       strconv.Itoa(rec.Ordinal),
			"seq":           strconv.FormatInt(rec.Seq, 10),
		},
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add chunk document: %w", err)
	}
	return nil
}

// QueryKNN runs a similarity search. chromem scores every stored vector
// anyway, so we fetch the full candidate set and apply the active filter in
// process: soft-deleted chunks stay in storage but never reach callers.
func (s *Store) QueryKNN(
	ctx context.Context, vector []float32, topK int, f db.ChunkFilter,
) ([]db.ChunkHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	opts := chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       count,
	}
	if f.Version != "" {
		opts.Where = map[string]string{"version": f.Version}
	}

	results, err := s.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	s.mu.Lock()
	inactive := make(map[string]bool, len(s.inactive))
	for id, v := range s.inactive {
		inactive[id] = v
	}
	s.mu.Unlock()

	hits := make([]db.ChunkHit, 0, topK)
	for _, res := range results {
		docID := res.Metadata["document_id"]
		if f.ActiveOnly && inactive[docID] {
			continue
		}
		hit := db.ChunkHit{
			ChunkRecord: db.ChunkRecord{
				ID:           res.ID,
				DocumentID:   docID,
				DocumentName: res.Metadata["document_name"],
				Version:      res.Metadata["version"],
				Section:      res.Metadata["section"],
				Active:       !inactive[docID],
				Text:         res.Content,
			},
			Score: clamp01(float64(res.Similarity)),
		}
		if v, err := strconv.Atoi(res.Metadata["ordinal"]); err == nil {
			hit.Ordinal = v
		}
		if v, err := strconv.ParseInt(res.Metadata["seq"], 10, 64); err == nil {
			hit.Seq = v
		}
		hits = append(hits, hit)
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// SetChunksActive records the document-level soft-delete flag. Chunk vectors
// are untouched; the query path excludes them, keeping deletion reversible.
func (s *Store) SetChunksActive(_ context.Context, documentID string, active bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active {
		delete(s.inactive, documentID)
	} else {
		s.inactive[documentID] = true
	}
	count := 0
	if doc, ok := s.docs[documentID]; ok {
		count = doc.ChunkCount
	}
	return count, s.saveSidecarLocked()
}

// SaveDocument stores a registry entry.
func (s *Store) SaveDocument(_ context.Context, rec db.DocumentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rec.ID] = rec
	if !rec.Active {
		s.inactive[rec.ID] = true
	}
	return s.saveSidecarLocked()
}

// GetDocument fetches one registry entry.
func (s *Store) GetDocument(_ context.Context, id string) (db.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return db.DocumentRecord{}, db.ErrKeyNotFound
	}
	return rec, nil
}

// ListDocuments returns all registry entries sorted by upload time.
func (s *Store) ListDocuments(_ context.Context) ([]db.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]db.DocumentRecord, 0, len(s.docs))
	for _, rec := range s.docs {
		docs = append(docs, rec)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
	return docs, nil
}

// SetDocumentActive flips the registry active flag.
func (s *Store) SetDocumentActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return db.ErrKeyNotFound
	}
	rec.Active = active
	s.docs[id] = rec
	if active {
		delete(s.inactive, id)
	} else {
		s.inactive[id] = true
	}
	return s.saveSidecarLocked()
}

// Get retrieves a cached value. The embedded KV cache is process-local.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

// Set stores a cached value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

// --- sidecar persistence ---

type sidecar struct {
	Seq      int64                        `json:"seq"`
	Docs     map[string]db.DocumentRecord `json:"docs"`
	Inactive map[string]bool              `json:"inactive"`
}

func (s *Store) sidecarPath() string {
	return filepath.Join(s.path, "registry.json")
}

func (s *Store) loadSidecar() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.sidecarPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse registry sidecar: %w", err)
	}
	s.seq = sc.Seq
	if sc.Docs != nil {
		s.docs = sc.Docs
	}
	if sc.Inactive != nil {
		s.inactive = sc.Inactive
	}
	return nil
}

func (s *Store) saveSidecarLocked() error {
	if s.path == "" {
		return nil
	}
	sc := sidecar{Seq: s.seq, Docs: s.docs, Inactive: s.inactive}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry sidecar: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(), data, 0o600); err != nil {
		return fmt.Errorf("write registry sidecar: %w", err)
	}
	return nil
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

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/citedex/internal/db"
)

// SaveDocument stores a document registry entry.
func (s *Store) SaveDocument(ctx context.Context, rec db.DocumentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("document id is required")
	}

	args := []string{
		s.docKey(rec.ID),
		"id", rec.ID,
		"name", rec.Name,
		"version", rec.Version,
		"chunk_count", strconv.Itoa(rec.ChunkCount),
		"uploaded_at", rec.UploadedAt.UTC().Format(time.RFC3339Nano),
		"active", activeTag(rec.Active),
	}

	cmd := s.b().Arbitrary("HSET").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("HSET doc: %w", err)
	}

	cmd = s.b().Sadd().Key(s.docSetKey()).Member(rec.ID).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("SADD docs: %w", err)
	}
	return nil
}

// GetDocument fetches one document registry entry.
func (s *Store) GetDocument(ctx context.Context, id string) (db.DocumentRecord, error) {
	cmd := s.b().Hgetall().Key(s.docKey(id)).Build()
	fields, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return db.DocumentRecord{}, fmt.Errorf("HGETALL doc: %w", err)
	}
	if len(fields) == 0 {
		return db.DocumentRecord{}, db.ErrKeyNotFound
	}
	return docFromFields(fields), nil
}

// ListDocuments returns all registry entries.
func (s *Store) ListDocuments(ctx context.Context) ([]db.DocumentRecord, error) {
	cmd := s.b().Smembers().Key(s.docSetKey()).Build()
	ids, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("SMEMBERS docs: %w", err)
	}

	docs := make([]db.DocumentRecord, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			if err == db.ErrKeyNotFound {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SetDocumentActive flips the registry active flag.
func (s *Store) SetDocumentActive(ctx context.Context, id string, active bool) error {
	exists, err := s.exists(ctx, s.docKey(id))
	if err != nil {
		return err
	}
	if !exists {
		return db.ErrKeyNotFound
	}

	cmd := s.b().Arbitrary("HSET").Args(s.docKey(id), "active", activeTag(active)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("HSET doc active: %w", err)
	}
	return nil
}

// Get retrieves a value by key (embedding cache).
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, fmt.Errorf("GET: %w", err)
	}
	return data, nil
}

// Set stores a value at the given key (embedding cache).
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.b().Set().Key(key).Value(string(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("SET: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	cmd := s.b().Exists().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("EXISTS: %w", err)
	}
	return n > 0, nil
}

func docFromFields(fields map[string]string) db.DocumentRecord {
	rec := db.DocumentRecord{
		ID:      fields["id"],
		Name:    fields["name"],
		Version: fields["version"],
		Active:  fields["active"] == "1",
	}
	if v, err := strconv.Atoi(fields["chunk_count"]); err == nil {
		rec.ChunkCount = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["uploaded_at"]); err == nil {
		rec.UploadedAt = t
	}
	return rec
}

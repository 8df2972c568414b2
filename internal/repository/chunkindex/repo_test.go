package chunkindex

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/citedex/internal/db"
	"github.com/kailas-cloud/citedex/internal/domain"
)

type fakeStore struct {
	seq       int64
	upserted  []db.ChunkRecord
	hits      []db.ChunkHit
	gotFilter db.ChunkFilter
	queryErr  error
	seqErr    error
}

func (f *fakeStore) EnsureReady(_ context.Context, _ int) error { return nil }

func (f *fakeStore) NextSeq(_ context.Context) (int64, error) {
	if f.seqErr != nil {
		return 0, f.seqErr
	}
	f.seq++
	return f.seq, nil
}

func (f *fakeStore) UpsertChunk(_ context.Context, rec db.ChunkRecord) error {
	f.upserted = append(f.upserted, rec)
	return nil
}

func (f *fakeStore) QueryKNN(_ context.Context, _ []float32, _ int, filter db.ChunkFilter) ([]db.ChunkHit, error) {
	f.gotFilter = filter
	return f.hits, f.queryErr
}

func (f *fakeStore) SetChunksActive(_ context.Context, _ string, _ bool) (int, error) {
	return len(f.upserted), nil
}

func hit(id string, seq int64, score float64) db.ChunkHit {
	return db.ChunkHit{
		ChunkRecord: db.ChunkRecord{ID: id, Seq: seq, Active: true, Text: "t"},
		Score:       score,
	}
}

func TestUpsertAssignsSequence(t *testing.T) {
	store := &fakeStore{}
	repo := New(store)

	for i := 0; i < 3; i++ {
		err := repo.Upsert(context.Background(), domain.Chunk{ID: "c", Vector: []float32{1}})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	for i, rec := range store.upserted {
		if rec.Seq != int64(i+1) {
			t.Errorf("chunk %d has seq %d", i, rec.Seq)
		}
		if !rec.Active {
			t.Errorf("chunk %d not active on insert", i)
		}
	}
}

func TestQuerySortsByScoreThenSeq(t *testing.T) {
	store := &fakeStore{hits: []db.ChunkHit{
		hit("mid", 3, 0.5),
		hit("top", 9, 0.9),
		hit("tie-late", 7, 0.5),
		hit("tie-early", 1, 0.5),
	}}
	repo := New(store)

	got, err := repo.Query(context.Background(), []float32{1}, 10, "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	wantOrder := []string{"top", "tie-early", "mid", "tie-late"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d passages", len(got))
	}
	for i, want := range wantOrder {
		if got[i].ChunkID != want {
			t.Errorf("position %d = %q, want %q (score desc, seq asc)", i, got[i].ChunkID, want)
		}
	}
}

func TestQueryAppliesActiveAndVersionFilter(t *testing.T) {
	store := &fakeStore{}
	repo := New(store)

	if _, err := repo.Query(context.Background(), []float32{1}, 5, "v3"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !store.gotFilter.ActiveOnly {
		t.Error("query must always exclude soft-deleted chunks")
	}
	if store.gotFilter.Version != "v3" {
		t.Errorf("version filter = %q", store.gotFilter.Version)
	}
}

func TestQueryWrapsStoreErrors(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("socket closed")}
	repo := New(store)

	_, err := repo.Query(context.Background(), []float32{1}, 5, "")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
}

func TestUpsertWrapsSeqErrors(t *testing.T) {
	store := &fakeStore{seqErr: errors.New("down")}
	repo := New(store)

	err := repo.Upsert(context.Background(), domain.Chunk{ID: "c", Vector: []float32{1}})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
	if len(store.upserted) != 0 {
		t.Error("chunk written despite seq failure")
	}
}

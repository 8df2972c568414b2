package retrieve

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/domain"
)

type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

type mockIndex struct {
	hits        []domain.Passage
	err         error
	gotTopK     int
	gotVersion  string
	queryCalled int
}

func (m *mockIndex) Query(_ context.Context, _ []float32, topK int, version string) ([]domain.Passage, error) {
	m.queryCalled++
	m.gotTopK = topK
	m.gotVersion = version
	return m.hits, m.err
}

func testConfig() config.RetrievalConfig {
	cfg := config.Config{HTTP: config.HTTPConfig{Port: 1}}
	cfg.ApplyDefaults()
	return cfg.Retrieval
}

func passage(id, doc, section, text string, seq int64, score float64) domain.Passage {
	return domain.Passage{
		ChunkID:      id,
		DocumentID:   doc,
		DocumentName: doc + ".pdf",
		Section:      section,
		Seq:          seq,
		Score:        score,
		Text:         text,
	}
}

func TestRetrieveGatesBelowThreshold(t *testing.T) {
	idx := &mockIndex{hits: []domain.Passage{
		passage("c1", "d1", "A", "relevant passage about throughput limits", 1, 0.85),
		passage("c2", "d1", "B", "barely related text", 2, 0.19),
		passage("c3", "d2", "A", "noise", 3, 0.05),
	}}
	svc := New(&mockEmbedder{}, idx, testConfig(), zap.NewNop())

	got, err := svc.Retrieve(context.Background(), domain.Query{Question: "throughput limits"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d passages, want 1 (threshold gate)", len(got))
	}
	if got[0].ChunkID != "c1" {
		t.Errorf("kept %q, want c1", got[0].ChunkID)
	}
}

func TestRetrieveNoEvidence(t *testing.T) {
	idx := &mockIndex{hits: []domain.Passage{
		passage("c1", "d1", "A", "off-topic", 1, 0.1),
	}}
	svc := New(&mockEmbedder{}, idx, testConfig(), zap.NewNop())

	got, err := svc.Retrieve(context.Background(), domain.Query{Question: "unrelated"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != nil {
		t.Errorf("got %d passages, want nil (no evidence)", len(got))
	}
}

func TestRetrieveEmbedsQuestionOnce(t *testing.T) {
	emb := &mockEmbedder{}
	idx := &mockIndex{}
	svc := New(emb, idx, testConfig(), zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), domain.Query{Question: "q"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("question embedded %d times, want 1", emb.calls)
	}
}

func TestRetrievePassesVersionAndCandidateK(t *testing.T) {
	cfg := testConfig()
	idx := &mockIndex{}
	svc := New(&mockEmbedder{}, idx, cfg, zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), domain.Query{Question: "q", Version: "v7.2"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if idx.gotVersion != "v7.2" {
		t.Errorf("version filter = %q, want v7.2", idx.gotVersion)
	}
	if idx.gotTopK != cfg.CandidateK {
		t.Errorf("index queried with topK=%d, want CandidateK=%d", idx.gotTopK, cfg.CandidateK)
	}
}

func TestRetrieveDeduplicates(t *testing.T) {
	// Overlapping windows: same document, same section, same opening text.
	text := "Firewall throughput is 10 Gbps in the standard configuration and can be raised with acceleration"
	idx := &mockIndex{hits: []domain.Passage{
		passage("c1", "d1", "Perf", text, 1, 0.9),
		passage("c2", "d1", "Perf", text+" further with clustering", 2, 0.88),
		passage("c3", "d2", "Perf", text, 3, 0.7),
	}}
	svc := New(&mockEmbedder{}, idx, testConfig(), zap.NewNop())

	got, err := svc.Retrieve(context.Background(), domain.Query{Question: "firewall throughput"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d passages, want 2 (c2 deduped against c1, c3 kept: other document)", len(got))
	}
	for _, p := range got {
		if p.ChunkID == "c2" {
			t.Error("c2 should have been deduplicated")
		}
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	cfg := testConfig()
	cfg.TopK = 2
	idx := &mockIndex{}
	for i := 0; i < 10; i++ {
		idx.hits = append(idx.hits, passage(
			string(rune('a'+i)), "d1", "S", "distinct passage number "+string(rune('a'+i)),
			int64(i), 0.9-float64(i)*0.01,
		))
	}
	svc := New(&mockEmbedder{}, idx, cfg, zap.NewNop())

	got, err := svc.Retrieve(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d passages, want TopK=2", len(got))
	}
}

func TestRetrieveDeterministicTieBreak(t *testing.T) {
	// Identical raw scores and identical text: fused scores tie, earlier
	// ingestion sequence must win.
	idx := &mockIndex{hits: []domain.Passage{
		passage("late", "d2", "S", "same evidence text", 20, 0.8),
		passage("early", "d1", "S", "same evidence text", 5, 0.8),
	}}
	svc := New(&mockEmbedder{}, idx, testConfig(), zap.NewNop())

	got, err := svc.Retrieve(context.Background(), domain.Query{Question: "evidence"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d passages, want 2", len(got))
	}
	if got[0].ChunkID != "early" {
		t.Errorf("first passage = %q, want the earlier-ingested chunk", got[0].ChunkID)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	emb := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	idx := &mockIndex{}
	svc := New(emb, idx, testConfig(), zap.NewNop())

	_, err := svc.Retrieve(context.Background(), domain.Query{Question: "q"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("error = %v, want ErrEmbeddingUnavailable", err)
	}
	if idx.queryCalled != 0 {
		t.Error("index must not be queried when embedding fails")
	}
}

func TestRerankerPrefersLexicalMatches(t *testing.T) {
	r := NewReranker(config.RerankerConfig{
		SemanticWeight: 0.6, LexicalWeight: 0.3, NumericWeight: 0.1, PhraseBonus: 0.05,
	})

	question := "maximum VPN tunnels on model 4600"
	withTerms := r.Score(question, "The 4600 appliance supports up to 3000 VPN tunnels.", 0.7)
	withoutTerms := r.Score(question, "Management console configuration and backup procedures.", 0.7)

	if withTerms <= withoutTerms {
		t.Errorf("lexical match scored %v, miss scored %v; match must rank higher", withTerms, withoutTerms)
	}
}

func TestRerankerNumericOverlap(t *testing.T) {
	r := NewReranker(config.RerankerConfig{NumericWeight: 1})

	hit := r.Score("throughput of 10 Gbps", "rated at 10 Gbps sustained", 0)
	miss := r.Score("throughput of 10 Gbps", "rated at 40 Gbps sustained", 0)
	if hit <= miss {
		t.Errorf("numeric hit %v must beat miss %v", hit, miss)
	}
}

func TestRerankerClampsToUnitInterval(t *testing.T) {
	r := NewReranker(config.RerankerConfig{
		SemanticWeight: 1, LexicalWeight: 1, NumericWeight: 1, PhraseBonus: 1,
	})
	got := r.Score("exact text", "exact text", 1.0)
	if got > 1 {
		t.Errorf("score %v exceeds 1", got)
	}
	if got != 1 {
		t.Errorf("fully matching passage should clamp to 1, got %v", got)
	}
}

func TestTokenizeKeepsVersionTokens(t *testing.T) {
	got := tokenize("Upgrade R81.20 to R82?")
	want := map[string]bool{"upgrade": true, "r81.20": true, "to": true, "r82": true}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %d tokens", got, len(want))
	}
	for _, tok := range got {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

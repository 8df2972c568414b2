package answer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/domain"
)

type mockRetriever struct {
	passages []domain.Passage
	err      error
	calls    int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ domain.Query) ([]domain.Passage, error) {
	m.calls++
	return m.passages, m.err
}

type mockGenerator struct {
	text  string
	err   error
	calls int
	req   domain.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	m.calls++
	m.req = req
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	return domain.GenerationResult{Text: m.text}, nil
}

type mockEnricher struct {
	block string
	ok    bool
}

func (m *mockEnricher) Block(_ context.Context, _ string) (string, bool) {
	return m.block, m.ok
}

func retrievalConfig() config.RetrievalConfig {
	cfg := config.Config{HTTP: config.HTTPConfig{Port: 1}}
	cfg.ApplyDefaults()
	return cfg.Retrieval
}

func manualPassage(score float64) domain.Passage {
	return domain.Passage{
		ChunkID:      "c1",
		DocumentID:   "d1",
		DocumentName: "Manual v1",
		Seq:          1,
		Score:        score,
		Text:         "The appliance supports up to 3000 concurrent VPN tunnels in cluster mode.",
	}
}

func TestAskValidatedAnswer(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.92)}}
	gen := &mockGenerator{text: "Up to 3000 concurrent VPN tunnels are supported [S1]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "How many VPN tunnels?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refusal {
		t.Fatal("expected an answer, got a refusal")
	}
	if !reflect.DeepEqual(ans.UsedDocuments, []string{"Manual v1"}) {
		t.Errorf("UsedDocuments = %v, want [Manual v1]", ans.UsedDocuments)
	}
	if ans.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92 (min cited score, all markers valid)", ans.Confidence)
	}
	if !strings.Contains(ans.Text, "[S1]") {
		t.Errorf("citation marker missing from %q", ans.Text)
	}
}

func TestAskNoEvidenceRefusal(t *testing.T) {
	ret := &mockRetriever{passages: nil}
	gen := &mockGenerator{text: "should never be called"}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "unknown topic"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refusal {
		t.Fatal("expected refusal")
	}
	if ans.Text != domain.RefusalText {
		t.Errorf("Text = %q, want the canonical refusal literal", ans.Text)
	}
	if ans.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", ans.Confidence)
	}
	if len(ans.UsedDocuments) != 0 {
		t.Errorf("UsedDocuments = %v, want empty", ans.UsedDocuments)
	}
	if gen.calls != 0 {
		t.Error("generator must not run without evidence")
	}
}

func TestAskConfabulatedCitationsBecomeRefusal(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.92)}}
	gen := &mockGenerator{text: "The answer is 42 [S7]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refusal {
		t.Fatal("answer citing only out-of-range sources must become a refusal")
	}
	if ans.Text != domain.RefusalText {
		t.Errorf("Text = %q, want the canonical refusal literal", ans.Text)
	}
}

func TestAskPartialConfabulationStripsAndDiscounts(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.9)}}
	gen := &mockGenerator{text: "Tunnels: 3000 [S1]. Also supports quantum mode [S9]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refusal {
		t.Fatal("one valid citation should still yield an answer")
	}
	if strings.Contains(ans.Text, "[S9]") {
		t.Errorf("invalid marker survived: %q", ans.Text)
	}
	if !strings.Contains(ans.Text, "[S1]") {
		t.Errorf("valid marker lost: %q", ans.Text)
	}
	if ans.Confidence != 0.45 {
		t.Errorf("Confidence = %v, want 0.9 × 1/2 = 0.45", ans.Confidence)
	}
}

func TestAskDeterministic(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.8)}}
	gen := &mockGenerator{text: "Answer text [S1]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	first, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	second, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs produced different answers:\n%+v\n%+v", first, second)
	}
}

func TestAskGenerationFailureSurfaces(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.9)}}
	gen := &mockGenerator{err: domain.ErrGenerationUnavailable}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	_, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("error = %v, want ErrGenerationUnavailable (outages are not refusals)", err)
	}
}

func TestAskModelRefusalWithStrongEvidenceFallsBackExtractive(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.9)}}
	gen := &mockGenerator{text: domain.RefusalText}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refusal {
		t.Fatal("strong evidence should produce an extractive answer, not a refusal")
	}
	if !strings.Contains(ans.Text, "[S1]") {
		t.Errorf("extractive answer must cite its passage: %q", ans.Text)
	}
	if !reflect.DeepEqual(ans.UsedDocuments, []string{"Manual v1"}) {
		t.Errorf("UsedDocuments = %v, want [Manual v1]", ans.UsedDocuments)
	}
}

func TestAskModelRefusalWithWeakEvidenceStaysRefusal(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.1)}}
	gen := &mockGenerator{text: domain.RefusalText}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refusal {
		t.Fatal("weak evidence must not be upgraded to an extractive answer")
	}
	if ans.Text != domain.RefusalText {
		t.Errorf("Text = %q, want the canonical refusal literal", ans.Text)
	}
}

func TestAskInvalidVersionFilter(t *testing.T) {
	svc := New(&mockRetriever{}, &mockGenerator{}, nil, retrievalConfig(), zap.NewNop())

	_, err := svc.Ask(context.Background(), domain.Query{Question: "q", Version: "v 2!"})
	if !errors.Is(err, domain.ErrInvalidVersionFilter) {
		t.Fatalf("error = %v, want ErrInvalidVersionFilter", err)
	}
}

func TestAskBriefModeTruncates(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.9)}}
	gen := &mockGenerator{text: "First point [S1]. Second point [S1]. Third point [S1]. Fourth point [S1]. Fifth point [S1]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q", Mode: domain.ModeBrief})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if strings.Contains(ans.Text, "Fourth") {
		t.Errorf("brief mode kept more than three sentences: %q", ans.Text)
	}
	if !strings.Contains(ans.Text, "First") {
		t.Errorf("brief mode lost the opening sentence: %q", ans.Text)
	}
}

func TestAskDeepModeAppendsContext(t *testing.T) {
	passages := []domain.Passage{
		manualPassage(0.9),
		{ChunkID: "c2", DocumentID: "d2", DocumentName: "Sizing Guide", Seq: 2, Score: 0.8,
			Text: "Cluster mode requires matching license tiers on every member."},
	}
	ret := &mockRetriever{passages: passages}
	gen := &mockGenerator{text: "Short answer [S1]."}
	svc := New(ret, gen, nil, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "q", Mode: domain.ModeDeep})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(ans.Text, "[S2]") {
		t.Errorf("deep mode should cite supporting context: %q", ans.Text)
	}
	if !reflect.DeepEqual(ans.UsedDocuments, []string{"Manual v1", "Sizing Guide"}) {
		t.Errorf("UsedDocuments = %v", ans.UsedDocuments)
	}
}

func TestAskMarketBlockAppendedAfterValidation(t *testing.T) {
	ret := &mockRetriever{passages: []domain.Passage{manualPassage(0.9)}}
	gen := &mockGenerator{text: "Answer [S1]."}
	enr := &mockEnricher{block: "```mermaid\nxychart-beta\n```", ok: true}
	svc := New(ret, gen, enr, retrievalConfig(), zap.NewNop())

	ans, err := svc.Ask(context.Background(), domain.Query{Question: "compare vendors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.HasSuffix(ans.Text, "```") {
		t.Errorf("market block not appended: %q", ans.Text)
	}
	// The block is presentation only: it never adds documents or confidence.
	if !reflect.DeepEqual(ans.UsedDocuments, []string{"Manual v1"}) {
		t.Errorf("market block leaked into UsedDocuments: %v", ans.UsedDocuments)
	}
	if ans.Confidence != 0.9 {
		t.Errorf("market block changed confidence: %v", ans.Confidence)
	}
}

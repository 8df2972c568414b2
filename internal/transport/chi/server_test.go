package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/usecase/health"
	"github.com/kailas-cloud/citedex/internal/usecase/ingest"
)

type mockAsker struct {
	answer domain.Answer
	err    error
	gotQ   domain.Query
}

func (m *mockAsker) Ask(_ context.Context, q domain.Query) (domain.Answer, error) {
	m.gotQ = q
	return m.answer, m.err
}

type mockCorpus struct {
	doc       domain.Document
	docs      []domain.Document
	ingestErr error
	deleteErr error
	deletedID string
}

func (m *mockCorpus) Ingest(_ context.Context, _ ingest.Request) (domain.Document, error) {
	return m.doc, m.ingestErr
}

func (m *mockCorpus) SoftDelete(_ context.Context, id string) error {
	m.deletedID = id
	return m.deleteErr
}

func (m *mockCorpus) Documents(_ context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

type mockHealth struct {
	status health.Status
}

func (m *mockHealth) Check(_ context.Context) health.Status {
	return m.status
}

func newTestRouter(ask asker, corpus ingester, h healthChecker) http.Handler {
	srv := NewServer(ask, corpus, h, zap.NewNop())
	r := chirouter.NewRouter()
	srv.Routes(r)
	return r
}

func TestAskEndpoint(t *testing.T) {
	asker := &mockAsker{answer: domain.Answer{
		Text:          "3000 tunnels [S1].",
		Confidence:    0.9,
		UsedDocuments: []string{"Manual v1"},
	}}
	router := newTestRouter(asker, &mockCorpus{}, &mockHealth{})

	body := `{"question":"How many tunnels?","type":"technical","version":"v7","mode":"brief"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Refusal {
		t.Error("unexpected refusal")
	}
	if resp.Confidence != 0.9 {
		t.Errorf("confidence = %v", resp.Confidence)
	}
	if asker.gotQ.Type != domain.QueryTechnical || asker.gotQ.Mode != domain.ModeBrief || asker.gotQ.Version != "v7" {
		t.Errorf("query fields not forwarded: %+v", asker.gotQ)
	}
}

func TestAskRefusalIsHTTP200(t *testing.T) {
	asker := &mockAsker{answer: domain.Refuse()}
	router := newTestRouter(asker, &mockCorpus{}, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("refusal must be a successful response, got %d", rec.Code)
	}
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Refusal {
		t.Error("refusal flag lost")
	}
	if resp.Answer != domain.RefusalText {
		t.Errorf("answer = %q, want the canonical refusal literal", resp.Answer)
	}
}

func TestAskMissingQuestion(t *testing.T) {
	router := newTestRouter(&mockAsker{}, &mockCorpus{}, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAskUpstreamFailureIs502(t *testing.T) {
	asker := &mockAsker{err: domain.ErrGenerationUnavailable}
	router := newTestRouter(asker, &mockCorpus{}, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 (outages are not refusals)", rec.Code)
	}
}

func TestAskInvalidVersionIs400(t *testing.T) {
	asker := &mockAsker{err: domain.ErrInvalidVersionFilter}
	router := newTestRouter(asker, &mockCorpus{}, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q","version":"!"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	corpus := &mockCorpus{doc: domain.Document{ID: "d1", Name: "guide.pdf", ChunkCount: 4, Active: true}}
	router := newTestRouter(&mockAsker{}, corpus, &mockHealth{})

	body := `{"name":"guide.pdf","version":"v7","text":"document text"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp documentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ChunkCount != 4 {
		t.Errorf("chunk_count = %d, want 4", resp.ChunkCount)
	}
}

func TestIngestEmptyDocumentIs400(t *testing.T) {
	corpus := &mockCorpus{ingestErr: domain.ErrEmptyDocument}
	router := newTestRouter(&mockAsker{}, corpus, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"name":"a"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSoftDeleteEndpoint(t *testing.T) {
	corpus := &mockCorpus{}
	router := newTestRouter(&mockAsker{}, corpus, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/documents/d42", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if corpus.deletedID != "d42" {
		t.Errorf("deleted id = %q", corpus.deletedID)
	}
}

func TestSoftDeleteUnknownIs404(t *testing.T) {
	corpus := &mockCorpus{deleteErr: domain.ErrDocumentNotFound}
	router := newTestRouter(&mockAsker{}, corpus, &mockHealth{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/documents/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := &mockHealth{status: health.Status{Healthy: false, Checks: map[string]string{"store": "down"}}}
	router := newTestRouter(&mockAsker{}, &mockCorpus{}, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	router := chirouter.NewRouter()
	router.Use(BearerAuthMiddleware([]string{"secret"}))
	router.Get("/documents", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", "/documents", "Bearer secret", http.StatusOK},
		{"wrong token", "/documents", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "/documents", "", http.StatusUnauthorized},
		{"wrong scheme", "/documents", "Basic secret", http.StatusUnauthorized},
		{"health exempt", "/health", "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

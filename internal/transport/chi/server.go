// Package chi is the HTTP boundary: JSON encoding, status mapping and auth.
// The core deals in structured values; everything wire-level lives here.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/domain"
	"github.com/kailas-cloud/citedex/internal/usecase/health"
	"github.com/kailas-cloud/citedex/internal/usecase/ingest"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeUpstream     = "upstream_unavailable"
	codeInternal     = "internal_error"
)

// asker is the consumer interface for the ask pipeline (ISP).
type asker interface {
	Ask(ctx context.Context, q domain.Query) (domain.Answer, error)
}

// ingester is the consumer interface for corpus management (ISP).
type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (domain.Document, error)
	SoftDelete(ctx context.Context, documentID string) error
	Documents(ctx context.Context) ([]domain.Document, error)
}

// healthChecker is the consumer interface for health reporting (ISP).
type healthChecker interface {
	Check(ctx context.Context) health.Status
}

// Server handles the HTTP API.
type Server struct {
	ask    asker
	corpus ingester
	health healthChecker
	logger *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(ask asker, corpus ingester, h healthChecker, logger *zap.Logger) *Server {
	return &Server{ask: ask, corpus: corpus, health: h, logger: logger}
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chirouter.Router) {
	r.Post("/ask", s.handleAsk)
	r.Post("/documents", s.handleIngest)
	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{id}", s.handleSoftDelete)
	r.Get("/health", s.handleHealth)
}

type askRequest struct {
	Question string `json:"question"`
	Type     string `json:"type,omitempty"`
	Version  string `json:"version,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

type askResponse struct {
	Answer        string   `json:"answer"`
	Confidence    float64  `json:"confidence"`
	UsedDocuments []string `json:"used_documents"`
	Refusal       bool     `json:"refusal"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question is required")
		return
	}

	ans, err := s.ask.Ask(r.Context(), domain.Query{
		Question: req.Question,
		Type:     domain.QueryType(req.Type),
		Version:  req.Version,
		Mode:     domain.AnswerMode(req.Mode),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:        ans.Text,
		Confidence:    ans.Confidence,
		UsedDocuments: ans.UsedDocuments,
		Refusal:       ans.Refusal,
	})
}

type ingestRequest struct {
	Name     string           `json:"name"`
	Version  string           `json:"version,omitempty"`
	Text     string           `json:"text,omitempty"`
	Sections []sectionRequest `json:"sections,omitempty"`
}

type sectionRequest struct {
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Atomic bool   `json:"atomic,omitempty"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Version    string    `json:"version,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
	Active     bool      `json:"active"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}

	ingestReq := ingest.Request{Name: req.Name, Version: req.Version, Text: req.Text}
	for _, sec := range req.Sections {
		ingestReq.Sections = append(ingestReq.Sections, ingest.Section{
			Title:  sec.Title,
			Text:   sec.Text,
			Atomic: sec.Atomic,
		})
	}

	doc, err := s.corpus.Ingest(r.Context(), ingestReq)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.corpus.Documents(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	id := chirouter.URLParam(r, "id")
	if err := s.corpus.SoftDelete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.health.Check(r.Context())
	status := http.StatusOK
	if !st.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

func toDocumentResponse(d domain.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Name:       d.Name,
		Version:    d.Version,
		ChunkCount: d.ChunkCount,
		UploadedAt: d.UploadedAt,
		Active:     d.Active,
	}
}

// writeDomainError maps domain errors to HTTP statuses. Infrastructure
// outages map to 502: they are never masked as refusals.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidVersionFilter):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, domain.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, codeBadRequest, "document text is empty")
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrGenerationUnavailable),
		errors.Is(err, domain.ErrIndexUnavailable):
		s.logger.Error("Upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, codeUpstream, "service unavailable, try again")
	default:
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

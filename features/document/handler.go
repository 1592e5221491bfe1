package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	wstore "askmydoc/internal/adapter/weaviate"
	"askmydoc/internal/apperr"
	"askmydoc/internal/document"
	"askmydoc/internal/middleware"
	"askmydoc/internal/retrieval"
)

const maxListLimit = 500

type Catalog interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	ListRecent(ctx context.Context, limit int) ([]document.Document, error)
}

type EmbeddingReader interface {
	GetByID(ctx context.Context, id string) (*wstore.Record, error)
}

type Querier interface {
	Answer(ctx context.Context, id, question string) (*retrieval.Answer, error)
	Similar(ctx context.Context, id, query string) ([]retrieval.SimilarResult, error)
}

type Handler struct {
	catalog    Catalog
	embeddings EmbeddingReader
	queries    Querier
}

func NewHandler(catalog Catalog, embeddings EmbeddingReader, queries Querier) *Handler {
	return &Handler{catalog: catalog, embeddings: embeddings, queries: queries}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := document.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			h.writeError(ctx, w, fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrInvalidInput, maxListLimit))
			return
		}
		limit = n
	}

	docs, err := h.catalog.ListRecent(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list documents", "error", err)
		h.writeError(ctx, w, err)
		return
	}

	if docs == nil {
		docs = []document.Document{}
	}

	h.writeJSON(ctx, w, map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	doc, err := h.catalog.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, map[string]interface{}{"data": doc})
}

func (h *Handler) Embedding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	rec, err := h.embeddings.GetByID(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, map[string]interface{}{
		"data": map[string]interface{}{
			"id":         rec.ID,
			"documentId": rec.DocumentID,
			"embedding":  rec.Vector,
		},
	})
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := middleware.WithDocumentID(r.Context(), id)

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: malformed body: %w", apperr.ErrInvalidInput, err))
		return
	}

	ans, err := h.queries.Answer(ctx, id, strings.TrimSpace(req.Question))
	if err != nil {
		slog.ErrorContext(ctx, "answer failed", "error", err)
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, map[string]interface{}{"data": ans})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := middleware.WithDocumentID(r.Context(), id)

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: malformed body: %w", apperr.ErrInvalidInput, err))
		return
	}
	results, err := h.queries.Similar(ctx, id, strings.TrimSpace(req.Query))
	if err != nil {
		slog.ErrorContext(ctx, "similarity search failed", "error", err)
		h.writeError(ctx, w, err)
		return
	}

	if results == nil {
		results = []retrieval.SimilarResult{}
	}
	h.writeJSON(ctx, w, map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message := apperr.Classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

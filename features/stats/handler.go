package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"askmydoc/internal/middleware"
)

// Counter is anything that can report how many records it holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	documents  Counter
	embeddings Counter
	failedJobs Counter
}

func NewHandler(documents, embeddings, failedJobs Counter) *Handler {
	return &Handler{documents: documents, embeddings: embeddings, failedJobs: failedJobs}
}

type StatsResponse struct {
	Documents  int `json:"documents"`
	Embeddings int `json:"embeddings"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	var resp StatsResponse
	counts := []struct {
		name string
		src  Counter
		dst  *int
	}{
		{"documents", h.documents, &resp.Documents},
		{"embeddings", h.embeddings, &resp.Embeddings},
		{"failed jobs", h.failedJobs, &resp.FailedJobs},
	}
	for _, c := range counts {
		n, err := c.src.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.name, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.name, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
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

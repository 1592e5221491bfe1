package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"askmydoc/internal/apperr"
	"askmydoc/internal/artifact"
	"askmydoc/internal/extract"
	"askmydoc/internal/middleware"
	"askmydoc/internal/pipeline"
	"askmydoc/internal/source"
)

type Ingester interface {
	Ingest(ctx context.Context, req *pipeline.Request) (*pipeline.Result, error)
}

type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Handler struct {
	service        Ingester
	objects        ObjectPutter
	maxUploadBytes int64
}

func NewHandler(service Ingester, objects ObjectPutter, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{service: service, objects: objects, maxUploadBytes: maxUploadMB << 20}
}

// Ingest accepts a JSON ingestion descriptor.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: read body: %w", apperr.ErrInvalidInput, err))
		return
	}

	req, err := pipeline.DecodeRequest(body)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.run(ctx, w, req)
}

// Upload stores a multipart file and ingests it as a stored input. Processing flags come
// from the query string: embeddings, rag_format, summary and keyPrefix.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: parse form: %w", apperr.ErrInvalidInput, err))
		return
	}

	directive, out, err := parseFlags(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: file field is required", apperr.ErrInvalidInput))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: unable to read file", apperr.ErrInvalidInput))
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "." || filename == string(filepath.Separator) {
		h.writeError(ctx, w, fmt.Errorf("%w: file name is required", apperr.ErrInvalidInput))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = extract.ContentTypeFor(filename)
	}

	key := path.Join("uploads", uuid.NewString(), filename)
	if err := h.objects.Put(ctx, key, data, contentType); err != nil {
		slog.ErrorContext(ctx, "failed to store upload", "error", err, "key", key)
		h.writeError(ctx, w, apperr.Wrap(apperr.ErrPersist, "store upload", err))
		return
	}
	slog.InfoContext(ctx, "upload stored", "key", key, "bytes", len(data))

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = filename
	}

	req := &pipeline.Request{
		Input:   source.StoredInput{Key: key},
		Name:    name,
		Process: directive,
		Output:  out,
	}
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.run(ctx, w, req)
}

func (h *Handler) run(ctx context.Context, w http.ResponseWriter, req *pipeline.Request) {
	res, err := h.service.Ingest(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "ingest failed", "error", err)
		h.writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func parseFlags(r *http.Request) (artifact.Directive, pipeline.Output, error) {
	q := r.URL.Query()
	var d artifact.Directive

	boolParam := func(name string) (bool, error) {
		v := q.Get(name)
		if v == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s must be a boolean", apperr.ErrInvalidInput, name)
		}
		return b, nil
	}

	var err error
	if d.Embeddings, err = boolParam("embeddings"); err != nil {
		return d, pipeline.Output{}, err
	}
	if d.Summary, err = boolParam("summary"); err != nil {
		return d, pipeline.Output{}, err
	}
	d.RAGFormat = artifact.RAGFormat(q.Get("rag_format"))

	return d, pipeline.Output{KeyPrefix: q.Get("keyPrefix")}, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message := apperr.Classify(err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status, code, message = http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large"
	}

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

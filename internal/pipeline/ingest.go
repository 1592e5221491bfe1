// Package pipeline composes source resolution, extraction, artifact generation and
// persistence into a single synchronous ingestion call.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"askmydoc/internal/apperr"
	"askmydoc/internal/artifact"
	"askmydoc/internal/document"
	"askmydoc/internal/extract"
	"askmydoc/internal/middleware"
	"askmydoc/internal/source"

	"github.com/google/uuid"
)

// Result is the ingestion response. Artifact fields are omitted when not requested or when
// their branch failed.
type Result struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	ExtractedText string          `json:"extracted_text"`
	Embedding     []float32       `json:"embedding,omitempty"`
	RAG           json.RawMessage `json:"rag,omitempty"`
	Summary       string          `json:"summary,omitempty"`
}

type Resolver interface {
	Resolve(ctx context.Context, in source.Input) (*source.Resolved, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, data []byte, hint extract.Hint) (*extract.Result, error)
}

type ArtifactGenerator interface {
	Generate(ctx context.Context, name, text string, d artifact.Directive) *artifact.Artifacts
}

type DocumentWriter interface {
	Insert(ctx context.Context, doc *document.Document) error
}

type EmbeddingIndex interface {
	Upsert(ctx context.Context, id string, vec []float32, documentID, name string) error
}

// Deps are the collaborators of a Service. Publisher and Failures may be nil.
type Deps struct {
	Resolver  Resolver
	Extractor TextExtractor
	Artifacts ArtifactGenerator
	Objects   ObjectPutter
	Documents DocumentWriter
	Index     EmbeddingIndex
	Publisher Publisher
	Failures  FailureRecorder
}

type Service struct {
	deps     Deps
	executor *StepExecutor
	newID    func() string
}

func NewService(d Deps) *Service {
	return &Service{
		deps:     d,
		executor: NewStepExecutor(d.Objects, d.Publisher),
		newID:    uuid.NewString,
	}
}

// Executor returns the step runner used for post-processing, for replaying failed steps.
func (s *Service) Executor() *StepExecutor {
	return s.executor
}

func (s *Service) Ingest(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", apperr.ErrInvalidInput)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	ctx = middleware.WithDocumentID(ctx, id)
	start := time.Now()
	slog.InfoContext(ctx, "ingest started", "input", req.Input.Type())

	resolved, err := s.deps.Resolver.Resolve(ctx, req.Input)
	if err != nil {
		return nil, err
	}

	extracted, err := s.deps.Extractor.Extract(ctx, resolved.Data, resolved.Hint)
	if err != nil {
		return nil, err
	}
	text := extracted.Text

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = resolved.Filename
	}

	arts := s.deps.Artifacts.Generate(ctx, name, text, req.Process)

	objectKey := resolved.ObjectKey
	if objectKey == "" {
		objectKey = path.Join("documents", id, resolved.Filename)
		ct := resolved.Hint.ContentType
		if ct == "" {
			ct = extract.ContentTypeFor(resolved.Filename)
		}
		if err := s.deps.Objects.Put(ctx, objectKey, resolved.Data, ct); err != nil {
			return nil, apperr.Wrap(apperr.ErrPersist, "store original", err)
		}
	}

	doc := &document.Document{ID: id, Name: name, ObjectKey: objectKey, ExtractedText: text}
	if err := s.deps.Documents.Insert(ctx, doc); err != nil {
		return nil, err
	}

	if len(arts.Embedding) > 0 {
		if err := s.deps.Index.Upsert(ctx, id, arts.Embedding, id, name); err != nil {
			return nil, fmt.Errorf("index embedding: %w", err)
		}
	}

	event := IngestedEvent{
		ID:           id,
		Name:         name,
		ObjectKey:    objectKey,
		HasEmbedding: len(arts.Embedding) > 0,
		CreatedAt:    doc.CreatedAt,
	}
	steps, err := PlanSteps(event, text, arts, req.Output, s.deps.Publisher != nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to plan post-processing", "error", err)
	} else {
		RunSteps(ctx, s.executor, s.deps.Failures, steps)
	}

	slog.InfoContext(ctx, "ingest finished",
		"format", extracted.Format,
		"chars", len(text),
		"failed_artifacts", len(arts.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		ID:            id,
		Name:          name,
		ExtractedText: text,
		Embedding:     arts.Embedding,
		RAG:           arts.RAG,
		Summary:       arts.Summary,
	}, nil
}

package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"askmydoc/internal/apperr"
	"askmydoc/internal/llm"

	"golang.org/x/sync/errgroup"
)

type RAGFormat string

const (
	RAGPlain    RAGFormat = "plain"
	RAGJSON     RAGFormat = "json"
	RAGMarkdown RAGFormat = "markdown"
)

type Kind string

const (
	KindEmbedding Kind = "embedding"
	KindRAG       Kind = "rag"
	KindSummary   Kind = "summary"
)

const SummaryInstruction = "You summarize documents. Write a concise summary of the document the user provides, " +
	"covering its purpose and key points. Reply with the summary text only."

// Directive selects which artifacts to derive. Zero value derives nothing.
type Directive struct {
	Embeddings bool      `json:"embeddings,omitempty"`
	RAGFormat  RAGFormat `json:"rag_format,omitempty"`
	Summary    bool      `json:"summary,omitempty"`
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Artifacts holds whatever branches succeeded. A failed branch leaves its field empty
// and records the cause in Failures.
type Artifacts struct {
	Embedding []float32
	RAG       json.RawMessage
	Summary   string
	Failures  map[Kind]error
}

func (a *Artifacts) fail(k Kind, err error) {
	if a.Failures == nil {
		a.Failures = make(map[Kind]error)
	}
	a.Failures[k] = err
}

type Service struct {
	embedder        Embedder
	generator       Generator
	dimensions      int
	summaryMaxChars int
	modelTimeout    time.Duration
}

func NewService(e Embedder, g Generator, dimensions, summaryMaxChars int, modelTimeout time.Duration) *Service {
	return &Service{
		embedder:        e,
		generator:       g,
		dimensions:      dimensions,
		summaryMaxChars: summaryMaxChars,
		modelTimeout:    modelTimeout,
	}
}

// Generate runs the requested branches concurrently and waits for all of them.
// A branch failure never cancels its siblings.
func (s *Service) Generate(ctx context.Context, name, text string, d Directive) *Artifacts {
	out := &Artifacts{}
	var mu sync.Mutex
	var g errgroup.Group

	record := func(k Kind, err error) {
		slog.WarnContext(ctx, "artifact branch failed", "artifact", k, "error", err)
		mu.Lock()
		out.fail(k, err)
		mu.Unlock()
	}

	if d.Embeddings {
		g.Go(func() error {
			vec, err := s.Embed(ctx, text)
			if err != nil {
				record(KindEmbedding, err)
				return nil
			}
			mu.Lock()
			out.Embedding = vec
			mu.Unlock()
			return nil
		})
	}

	if payload, err := FormatRAG(d.RAGFormat, name, text); err != nil {
		record(KindRAG, err)
	} else if payload != nil {
		out.RAG = payload
	}

	if d.Summary {
		g.Go(func() error {
			summary, err := s.Summarize(ctx, text)
			if err != nil {
				record(KindSummary, err)
				return nil
			}
			mu.Lock()
			out.Summary = summary
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// Embed sends the text as a batch of one and returns the first vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed", fmt.Errorf("no embedding backend configured"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vectors, err := s.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed", fmt.Errorf("backend returned no vector"))
	}
	if s.dimensions > 0 && len(vectors[0]) != s.dimensions {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed", fmt.Errorf("got %d dimensions, want %d", len(vectors[0]), s.dimensions))
	}
	return vectors[0], nil
}

// Summarize truncates text to the configured rune budget before calling the model.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	if s.generator == nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "summarize", fmt.Errorf("no generative backend configured"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	summary, err := s.generator.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: SummaryInstruction},
		{Role: llm.RoleUser, Content: Truncate(text, s.summaryMaxChars)},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "summarize", err)
	}
	return summary, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.modelTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.modelTimeout)
}

// Truncate keeps at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"askmydoc/internal/apperr"
	"askmydoc/internal/llm"
	"askmydoc/internal/middleware"

	"golang.org/x/sync/errgroup"
)

const (
	KindAnswer  = "answer"
	KindSimilar = "similar"

	// SimilarTopK is the number of neighbours requested from the index.
	SimilarTopK = 5

	// TextNotFound stands in for a match whose document text cannot be loaded.
	TextNotFound = "not found"
)

const answerInstructions = "You answer questions about a single document. Use only the document text " +
	"below as context. If the answer is not in the document, say that you could not find it."

// Match is one similarity hit from the vector index. Lower distance is closer.
type Match struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Distance   float32 `json:"distance"`
}

type SimilarResult struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Distance   float32 `json:"distance"`
	Text       string  `json:"text"`
}

type Answer struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

type TextStore interface {
	GetText(ctx context.Context, id string) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, documentID string) ([]Match, error)
}

type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

type Service struct {
	texts        TextStore
	embedder     Embedder
	index        VectorIndex
	generator    Generator
	logger       *QueryLogger
	modelTimeout time.Duration
}

func NewService(texts TextStore, e Embedder, idx VectorIndex, g Generator, l *QueryLogger, modelTimeout time.Duration) *Service {
	return &Service{texts: texts, embedder: e, index: idx, generator: g, logger: l, modelTimeout: modelTimeout}
}

func (s *Service) modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.modelTimeout > 0 {
		return context.WithTimeout(ctx, s.modelTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) record(ctx context.Context, kind, id, query string, n int, start time.Time) {
	if s.logger == nil {
		return
	}
	s.logger.Log(QueryLogEntry{
		Kind:          kind,
		DocumentID:    id,
		Query:         query,
		NumResults:    n,
		Duration:      time.Since(start),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
}

// Answer asks the generative model a question with the document's full text as context.
func (s *Service) Answer(ctx context.Context, id, question string) (*Answer, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", apperr.ErrInvalidInput)
	}
	start := time.Now()

	text, err := s.texts.GetText(ctx, id)
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: answerInstructions + "\n\nDocument:\n" + text},
		{Role: llm.RoleUser, Content: question},
	}

	mctx, cancel := s.modelContext(ctx)
	defer cancel()
	reply, err := s.generator.Chat(mctx, messages)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "answer", err)
	}

	s.record(ctx, KindAnswer, id, question, 1, start)
	return &Answer{DocumentID: id, Question: question, Answer: reply}, nil
}

// Similar embeds query and returns the nearest embeddings within document id, with their text.
func (s *Service) Similar(ctx context.Context, id, query string) ([]SimilarResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrInvalidInput)
	}
	start := time.Now()

	exists, err := s.texts.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.Wrap(apperr.ErrNotFound, "document "+id, nil)
	}

	mctx, cancel := s.modelContext(ctx)
	vec, err := s.embedder.Embed(mctx, query)
	cancel()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed query", err)
	}
	if len(vec) == 0 {
		return nil, apperr.Wrap(apperr.ErrEmbedding, "embed query", errors.New("no vector returned"))
	}

	matches, err := s.index.Query(ctx, vec, SimilarTopK, id)
	if err != nil {
		return nil, fmt.Errorf("similar: %w", err)
	}

	scoped := matches[:0:0]
	for _, m := range matches {
		if m.DocumentID != id {
			slog.WarnContext(ctx, "dropping match outside requested document", "match_id", m.ID, "match_document_id", m.DocumentID)
			continue
		}
		scoped = append(scoped, m)
	}

	results := make([]SimilarResult, len(scoped))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range scoped {
		g.Go(func() error {
			text, err := s.texts.GetText(gctx, m.ID)
			if errors.Is(err, apperr.ErrNotFound) {
				text = TextNotFound
			} else if err != nil {
				return err
			}
			results[i] = SimilarResult{ID: m.ID, DocumentID: m.DocumentID, Distance: m.Distance, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve matches: %w", err)
	}

	s.record(ctx, KindSimilar, id, query, len(results), start)
	return results, nil
}

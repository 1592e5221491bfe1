package app

import (
	"context"

	wstore "askmydoc/internal/adapter/weaviate"
	"askmydoc/internal/llm"
	"askmydoc/internal/render"
	"askmydoc/internal/retrieval"
)

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// VectorStore is the embedding index: one vector per document, queried within a document.
type VectorStore interface {
	SchemaEnsurer
	Upsert(ctx context.Context, id string, vec []float32, documentID, name string) error
	GetByID(ctx context.Context, id string) (*wstore.Record, error)
	Query(ctx context.Context, vec []float32, topK int, documentID string) ([]retrieval.Match, error)
	Count(ctx context.Context) (int, error)
}

type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

type Launcher = render.Launcher

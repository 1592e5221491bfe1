package document

import (
	"context"
	"time"
)

// Document is immutable once inserted.
type Document struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ObjectKey     string    `json:"object_key,omitempty"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Repository interface {
	Insert(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	GetText(ctx context.Context, id string) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ListRecent returns documents newest first, without their extracted text.
	ListRecent(ctx context.Context, limit int) ([]Document, error)
	Count(ctx context.Context) (int, error)
}

const DefaultListLimit = 50

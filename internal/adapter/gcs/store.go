// Package gcs keeps document binaries and artifacts in a Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"askmydoc/internal/apperr"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket cannot be empty")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", apperr.Wrap(apperr.ErrNotFound, "object "+key, nil)
		}
		return nil, "", fmt.Errorf("open gs://%s/%s: %w", s.name, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read gs://%s/%s: %w", s.name, key, err)
	}
	return data, r.Attrs.ContentType, nil
}

// Put writes the object only if it does not exist yet. An existing object is left
// untouched and reported as success, so retried writes are idempotent.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if preconditionFailed(err) {
			slog.InfoContext(ctx, "object already exists", "bucket", s.name, "key", key)
			return nil
		}
		return fmt.Errorf("write gs://%s/%s: %w", s.name, key, err)
	}

	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			slog.InfoContext(ctx, "object already exists", "bucket", s.name, "key", key)
			return nil
		}
		return fmt.Errorf("finalize gs://%s/%s: %w", s.name, key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

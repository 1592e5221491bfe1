package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"askmydoc/internal/apperr"
	"askmydoc/internal/retrieval"
	"askmydoc/internal/vector"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Record is the stored embedding for one document.
type Record struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Vector     []float32 `json:"vector"`
}

type Store struct {
	client     *weaviate.Client
	class      string
	dimensions int
}

func NewStore(client *weaviate.Client, class string, dimensions int) *Store {
	if class == "" {
		class = vector.DefaultClass
	}
	return &Store{client: client, class: class, dimensions: dimensions}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client), s.class)
}

// checkDimensions rejects vectors the index cannot hold. Vectors come from the embedding
// model, so a bad one is an upstream failure rather than bad client input.
func (s *Store) checkDimensions(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", apperr.ErrEmbedding)
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", apperr.ErrEmbedding, len(vec), s.dimensions)
	}
	return nil
}

// Upsert writes the embedding under id. The batch endpoint replaces an existing object with the same id.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, documentID, name string) error {
	if err := s.checkDimensions(vec); err != nil {
		return err
	}

	obj := &models.Object{
		Class: s.class,
		ID:    strfmt.UUID(id),
		Properties: map[string]interface{}{
			"documentId": documentID,
			"name":       name,
		},
		Vector: models.C11yVector(vec),
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return apperr.Wrap(apperr.ErrPersist, "upsert vector", err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			msgs := make([]string, 0, len(r.Result.Errors.Error))
			for _, e := range r.Result.Errors.Error {
				msgs = append(msgs, e.Message)
			}
			return apperr.Wrap(apperr.ErrPersist, "upsert vector", errors.New(strings.Join(msgs, "; ")))
		}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	objs, err := s.client.Data().ObjectsGetter().
		WithClassName(s.class).
		WithID(id).
		WithVector().
		Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
			return nil, apperr.Wrap(apperr.ErrNotFound, "get vector "+id, nil)
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "get vector "+id, err)
	}
	if len(objs) == 0 || objs[0] == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "get vector "+id, nil)
	}

	obj := objs[0]
	rec := &Record{ID: obj.ID.String(), Vector: []float32(obj.Vector)}
	if props, ok := obj.Properties.(map[string]interface{}); ok {
		if docID, ok := props["documentId"].(string); ok {
			rec.DocumentID = docID
		}
	}
	return rec, nil
}

// Query returns at most topK matches whose documentId equals documentID, nearest first.
func (s *Store) Query(ctx context.Context, vec []float32, topK int, documentID string) ([]retrieval.Match, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id filter is required", apperr.ErrInvalidInput)
	}
	if err := s.checkDimensions(vec); err != nil {
		return nil, err
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	where := filters.Where().
		WithOperator(filters.Equal).
		WithPath([]string{"documentId"}).
		WithValueString(documentID)

	fields := []graphql.Field{
		{Name: "documentId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "query vectors", err)
	}
	if len(res.Errors) > 0 {
		return nil, apperr.Wrap(apperr.ErrUpstream, "query vectors", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
	}

	var matches []retrieval.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if items, ok := data[s.class].([]interface{}); ok {
			for _, item := range items {
				props, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				m := retrieval.Match{}
				if docID, ok := props["documentId"].(string); ok {
					m.DocumentID = docID
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if id, ok := additional["id"].(string); ok {
						m.ID = id
					}
					if d, ok := additional["distance"].(float64); ok {
						m.Distance = float32(d)
					}
				}
				matches = append(matches, m)
			}
		}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if groups, ok := data[s.class].([]interface{}); ok && len(groups) > 0 {
			if group, ok := groups[0].(map[string]interface{}); ok {
				if meta, ok := group["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

package weaviate_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	adapter "askmydoc/internal/adapter/weaviate"
	"askmydoc/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

const docID = "6f1c9a52-8d4e-4b0a-9c55-1b2f3e4d5a6b"

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		handler(w, r)
	}))
	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return client, ts
}

func TestStore_Upsert(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body struct {
			Objects []map[string]interface{} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Objects, 1)
		obj := body.Objects[0]
		assert.Equal(t, "Document", obj["class"])
		assert.Equal(t, docID, obj["id"])
		props := obj["properties"].(map[string]interface{})
		assert.Equal(t, docID, props["documentId"])
		assert.Equal(t, "report.pdf", props["name"])
		assert.Len(t, obj["vector"], 3)

		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": docID, "class": "Document"}})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "", 3)
	err := store.Upsert(context.Background(), docID, []float32{0.1, 0.2, 0.3}, docID, "report.pdf")
	assert.NoError(t, err)
}

func TestStore_Upsert_ObjectError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{{
			"id": docID,
			"result": map[string]interface{}{
				"errors": map[string]interface{}{"error": []map[string]string{{"message": "vector lengths don't match"}}},
			},
		}})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 3)
	err := store.Upsert(context.Background(), docID, []float32{0.1, 0.2, 0.3}, docID, "a")
	assert.ErrorIs(t, err, apperr.ErrPersist)
	assert.Contains(t, err.Error(), "vector lengths")
}

func TestStore_Upsert_DimensionMismatch(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 4)
	err := store.Upsert(context.Background(), docID, []float32{0.1, 0.2}, docID, "a")
	assert.ErrorIs(t, err, apperr.ErrEmbedding)

	err = store.Upsert(context.Background(), docID, nil, docID, "a")
	assert.ErrorIs(t, err, apperr.ErrEmbedding)
}

func TestStore_Query_DimensionMismatchIsUpstream(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 4)
	_, err := store.Query(context.Background(), []float32{0.1, 0.2, 0.3}, 5, docID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrInvalidInput)

	status, code, _ := apperr.Classify(fmt.Errorf("similar: %w", err))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "UPSTREAM_ERROR", code)
}

func TestStore_GetByID(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/objects/Document/"+docID, r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "vector")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":      "Document",
			"id":         docID,
			"properties": map[string]interface{}{"documentId": docID, "name": "a"},
			"vector":     []float32{0.5, 0.25},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	rec, err := store.GetByID(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, docID, rec.ID)
	assert.Equal(t, docID, rec.DocumentID)
	assert.Equal(t, []float32{0.5, 0.25}, rec.Vector)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	_, err := store.GetByID(context.Background(), docID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_GetByID_ServerError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	_, err := store.GetByID(context.Background(), docID)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestStore_Query(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "nearVector")
		assert.Contains(t, body.Query, "documentId")
		assert.Contains(t, body.Query, docID)
		assert.Contains(t, body.Query, "limit")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"Document": []interface{}{
						map[string]interface{}{
							"documentId":  docID,
							"_additional": map[string]interface{}{"id": docID, "distance": 0.125},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	matches, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5, docID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, docID, matches[0].ID)
	assert.Equal(t, docID, matches[0].DocumentID)
	assert.InDelta(t, 0.125, matches[0].Distance, 1e-6)
}

func TestStore_Query_RequiresDocumentFilter(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	_, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestStore_Query_GraphQLError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	_, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5, docID)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestStore_Count(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		assert.True(t, strings.Contains(body.Query, "Aggregate"))
		assert.True(t, strings.Contains(body.Query, "Document"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"Document": []interface{}{
						map[string]interface{}{"meta": map[string]interface{}{"count": 7}},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client, "Document", 2)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

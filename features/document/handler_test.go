package document_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	docfeature "askmydoc/features/document"
	wstore "askmydoc/internal/adapter/weaviate"
	"askmydoc/internal/apperr"
	"askmydoc/internal/document"
	"askmydoc/internal/retrieval"
)

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) Get(ctx context.Context, id string) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockCatalog) ListRecent(ctx context.Context, limit int) ([]document.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

type MockEmbeddings struct{ mock.Mock }

func (m *MockEmbeddings) GetByID(ctx context.Context, id string) (*wstore.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wstore.Record), args.Error(1)
}

type MockQuerier struct{ mock.Mock }

func (m *MockQuerier) Answer(ctx context.Context, id, question string) (*retrieval.Answer, error) {
	args := m.Called(ctx, id, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Answer), args.Error(1)
}

func (m *MockQuerier) Similar(ctx context.Context, id, query string) ([]retrieval.SimilarResult, error) {
	args := m.Called(ctx, id, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SimilarResult), args.Error(1)
}

type fixture struct {
	catalog    *MockCatalog
	embeddings *MockEmbeddings
	queries    *MockQuerier
	mux        *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{catalog: new(MockCatalog), embeddings: new(MockEmbeddings), queries: new(MockQuerier)}
	h := docfeature.NewHandler(f.catalog, f.embeddings, f.queries)
	f.mux = http.NewServeMux()
	f.mux.HandleFunc("GET /documents", h.List)
	f.mux.HandleFunc("GET /documents/{id}", h.Get)
	f.mux.HandleFunc("GET /documents/{id}/embedding", h.Embedding)
	f.mux.HandleFunc("POST /documents/{id}/ask", h.Ask)
	f.mux.HandleFunc("POST /documents/{id}/search", h.Search)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func TestList(t *testing.T) {
	f := newFixture()
	now := time.Now().UTC()
	f.catalog.On("ListRecent", mock.Anything, 2).Return([]document.Document{
		{ID: "b", Name: "newer", CreatedAt: now},
		{ID: "a", Name: "older", CreatedAt: now.Add(-time.Hour)},
	}, nil)

	w := f.do("GET", "/documents?limit=2", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []document.Document `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Meta.Count)
	assert.Equal(t, "b", resp.Data[0].ID)
}

func TestList_DefaultLimitAndEmpty(t *testing.T) {
	f := newFixture()
	f.catalog.On("ListRecent", mock.Anything, document.DefaultListLimit).Return(nil, nil)

	w := f.do("GET", "/documents", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestList_InvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "-1", "abc", "100000"} {
		t.Run(limit, func(t *testing.T) {
			f := newFixture()
			w := f.do("GET", "/documents?limit="+limit, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			f.catalog.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything)
		})
	}
}

func TestGet(t *testing.T) {
	f := newFixture()
	f.catalog.On("Get", mock.Anything, "d1").Return(&document.Document{ID: "d1", Name: "n", ExtractedText: "hello world"}, nil)
	f.catalog.On("Get", mock.Anything, "missing").Return(nil, apperr.Wrap(apperr.ErrNotFound, "get document", nil))

	w := f.do("GET", "/documents/d1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello world")

	w = f.do("GET", "/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestEmbedding(t *testing.T) {
	f := newFixture()
	f.embeddings.On("GetByID", mock.Anything, "d1").Return(&wstore.Record{ID: "d1", DocumentID: "d1", Vector: []float32{0.5, 0.25}}, nil)
	f.embeddings.On("GetByID", mock.Anything, "none").Return(nil, apperr.ErrNotFound)

	w := f.do("GET", "/documents/d1/embedding", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []float32{0.5, 0.25}, resp.Data.Embedding)

	w = f.do("GET", "/documents/none/embedding", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAsk(t *testing.T) {
	f := newFixture()
	f.queries.On("Answer", mock.Anything, "d1", "what is it?").
		Return(&retrieval.Answer{DocumentID: "d1", Question: "what is it?", Answer: "a test"}, nil)

	w := f.do("POST", "/documents/d1/ask", `{"question":"  what is it? "}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"answer":"a test"`)
	f.queries.AssertExpectations(t)
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"missing document", `{"question":"q"}`, apperr.ErrNotFound, http.StatusNotFound},
		{"model down", `{"question":"q"}`, apperr.Wrap(apperr.ErrUpstream, "answer", errors.New("quota")), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.err != nil {
				f.queries.On("Answer", mock.Anything, "d1", "q").Return(nil, tt.err)
			}
			w := f.do("POST", "/documents/d1/ask", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "quota")
		})
	}
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.queries.On("Similar", mock.Anything, "d1", "greeting").Return([]retrieval.SimilarResult{
		{ID: "d1", DocumentID: "d1", Distance: 0.1, Text: "hello world"},
	}, nil)

	w := f.do("POST", "/documents/d1/search", `{"query":"greeting"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []retrieval.SimilarResult `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Meta.Count)
	assert.Equal(t, "hello world", resp.Data[0].Text)
}

func TestSearch_Errors(t *testing.T) {
	f := newFixture()
	f.queries.On("Similar", mock.Anything, "gone", "q").Return(nil, apperr.ErrNotFound)
	f.queries.On("Similar", mock.Anything, "d1", "").Return(nil, apperr.ErrInvalidInput)
	f.queries.On("Similar", mock.Anything, "d1", "q").Return(nil, apperr.ErrEmbedding)

	assert.Equal(t, http.StatusNotFound, f.do("POST", "/documents/gone/search", `{"query":"q"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/documents/d1/search", `{"query":"  "}`).Code)
	assert.Equal(t, http.StatusBadGateway, f.do("POST", "/documents/d1/search", `{"query":"q"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/documents/d1/search", `nope`).Code)
}

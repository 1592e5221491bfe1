package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(docs, embs, jobs *MockCounter)
		wantStatus int
		want       StatsResponse
	}{
		{
			name: "Success",
			setupMocks: func(docs, embs, jobs *MockCounter) {
				docs.On("Count", mock.Anything).Return(12, nil)
				embs.On("Count", mock.Anything).Return(9, nil)
				jobs.On("Count", mock.Anything).Return(2, nil)
			},
			wantStatus: http.StatusOK,
			want:       StatsResponse{Documents: 12, Embeddings: 9, FailedJobs: 2},
		},
		{
			name: "Document Count Error",
			setupMocks: func(docs, embs, jobs *MockCounter) {
				docs.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Embedding Count Error",
			setupMocks: func(docs, embs, jobs *MockCounter) {
				docs.On("Count", mock.Anything).Return(1, nil)
				embs.On("Count", mock.Anything).Return(0, errors.New("weaviate error"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Failed Job Count Error",
			setupMocks: func(docs, embs, jobs *MockCounter) {
				docs.On("Count", mock.Anything).Return(1, nil)
				embs.On("Count", mock.Anything).Return(1, nil)
				jobs.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, embs, jobs := new(MockCounter), new(MockCounter), new(MockCounter)
			tt.setupMocks(docs, embs, jobs)

			h := NewHandler(docs, embs, jobs)
			w := httptest.NewRecorder()
			h.GetStats(w, httptest.NewRequest("GET", "/stats", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				var resp map[string]interface{}
				json.Unmarshal(w.Body.Bytes(), &resp)
				assert.Equal(t, "INTERNAL_ERROR", resp["error"].(map[string]interface{})["code"])
				return
			}

			var resp struct {
				Data StatsResponse `json:"data"`
			}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Data)
		})
	}
}

package artifact_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"askmydoc/internal/apperr"
	"askmydoc/internal/artifact"
	"askmydoc/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func TestGenerate_NothingRequested(t *testing.T) {
	e := new(MockEmbedder)
	g := new(MockGenerator)
	svc := artifact.NewService(e, g, 3, 100, time.Second)

	out := svc.Generate(context.Background(), "a.txt", "The sky is blue.", artifact.Directive{})
	assert.Nil(t, out.Embedding)
	assert.Nil(t, out.RAG)
	assert.Empty(t, out.Summary)
	assert.Empty(t, out.Failures)
	e.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
	g.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestGenerate_EmbeddingAndJSON(t *testing.T) {
	e := new(MockEmbedder)
	e.On("EmbedBatch", mock.Anything, []string{"The sky is blue."}).Return([][]float32{{0.1, 0.2, 0.3}}, nil).Once()
	svc := artifact.NewService(e, nil, 3, 100, time.Second)

	out := svc.Generate(context.Background(), "a.txt", "The sky is blue.", artifact.Directive{Embeddings: true, RAGFormat: artifact.RAGJSON})
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, out.Embedding)
	assert.JSONEq(t, `{"text":"The sky is blue."}`, string(out.RAG))
	assert.Empty(t, out.Failures)
	e.AssertExpectations(t)
}

func TestGenerate_BranchIsolation(t *testing.T) {
	e := new(MockEmbedder)
	g := new(MockGenerator)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1, 2, 3}}, nil)
	g.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return("", context.DeadlineExceeded)
	svc := artifact.NewService(e, g, 3, 100, 20*time.Millisecond)

	out := svc.Generate(context.Background(), "n", "text", artifact.Directive{Embeddings: true, Summary: true, RAGFormat: artifact.RAGMarkdown})
	assert.Equal(t, []float32{1, 2, 3}, out.Embedding)
	assert.JSONEq(t, `"# n\n\ntext"`, string(out.RAG))
	assert.Empty(t, out.Summary)
	require.Contains(t, out.Failures, artifact.KindSummary)
	assert.ErrorIs(t, out.Failures[artifact.KindSummary], apperr.ErrUpstream)
	assert.NotContains(t, out.Failures, artifact.KindEmbedding)
}

func TestGenerate_EmbeddingFailureKeepsSummary(t *testing.T) {
	e := new(MockEmbedder)
	g := new(MockGenerator)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	g.On("Chat", mock.Anything, mock.Anything).Return("A short summary.", nil)
	svc := artifact.NewService(e, g, 3, 100, time.Second)

	out := svc.Generate(context.Background(), "n", "text", artifact.Directive{Embeddings: true, Summary: true})
	assert.Nil(t, out.Embedding)
	assert.Equal(t, "A short summary.", out.Summary)
	assert.ErrorIs(t, out.Failures[artifact.KindEmbedding], apperr.ErrEmbedding)
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("No Vector", func(t *testing.T) {
		e := new(MockEmbedder)
		e.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{}, nil)
		_, err := artifact.NewService(e, nil, 3, 100, 0).Embed(ctx, "x")
		assert.ErrorIs(t, err, apperr.ErrEmbedding)
	})

	t.Run("Dimension Mismatch", func(t *testing.T) {
		e := new(MockEmbedder)
		e.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1, 2}}, nil)
		_, err := artifact.NewService(e, nil, 3, 100, 0).Embed(ctx, "x")
		assert.ErrorIs(t, err, apperr.ErrEmbedding)
	})

	t.Run("First Of Batch", func(t *testing.T) {
		e := new(MockEmbedder)
		e.On("EmbedBatch", mock.Anything, []string{"x"}).Return([][]float32{{1, 2, 3}, {4, 5, 6}}, nil)
		vec, err := artifact.NewService(e, nil, 3, 100, 0).Embed(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, vec)
	})
}

func TestSummarize_Truncates(t *testing.T) {
	g := new(MockGenerator)
	long := strings.Repeat("é", 50)
	g.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == llm.RoleSystem &&
			msgs[1].Role == llm.RoleUser &&
			msgs[1].Content == strings.Repeat("é", 10)
	})).Return("summary", nil).Once()

	out, err := artifact.NewService(nil, g, 3, 10, time.Second).Summarize(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	g.AssertExpectations(t)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", artifact.Truncate("abcdef", 3))
	assert.Equal(t, "ab", artifact.Truncate("ab", 3))
	assert.Equal(t, "日本", artifact.Truncate("日本語", 2))
	assert.Equal(t, "xyz", artifact.Truncate("xyz", 0))
}

func TestFormatRAG(t *testing.T) {
	tests := []struct {
		format artifact.RAGFormat
		want   string
	}{
		{artifact.RAGJSON, `{"text":"body"}`},
		{"JSON", `{"text":"body"}`},
		{artifact.RAGMarkdown, `"# Title\n\nbody"`},
		{artifact.RAGPlain, ``},
		{"", ``},
		{"yaml", ``},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			got, err := artifact.FormatRAG(tt.format, "Title", "body")
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestMarkdown_DefaultHeading(t *testing.T) {
	assert.Equal(t, "# Document\n\nbody", artifact.Markdown("  ", "body"))
}

package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"askmydoc/internal/apperr"
	"askmydoc/internal/artifact"
	"askmydoc/internal/pipeline"
	"askmydoc/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPlanSteps_NoPrefixOnlyEvent(t *testing.T) {
	steps, err := pipeline.PlanSteps(pipeline.IngestedEvent{ID: "d1"}, "text", &artifact.Artifacts{Summary: "s"}, pipeline.Output{}, true)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, pipeline.HandlerEventPublish, steps[0].Handler)
	assert.Equal(t, "d1", steps[0].DocumentID)
}

func TestPlanSteps_NothingToDo(t *testing.T) {
	steps, err := pipeline.PlanSteps(pipeline.IngestedEvent{ID: "d1"}, "text", &artifact.Artifacts{}, pipeline.Output{}, false)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestPlanSteps_MarkdownWrittenAsMarkdown(t *testing.T) {
	rag, _ := artifact.FormatRAG(artifact.RAGMarkdown, "Notes", "body")
	steps, err := pipeline.PlanSteps(pipeline.IngestedEvent{ID: "d1"}, "body", &artifact.Artifacts{RAG: rag}, pipeline.Output{KeyPrefix: "exports/"}, false)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	var p pipeline.WritePayload
	require.NoError(t, json.Unmarshal(steps[1].Payload, &p))
	assert.Equal(t, "exports/d1/rag.md", p.Key)
	assert.Equal(t, "# Notes\n\nbody", string(p.Data))
}

func TestStepExecutor_Write(t *testing.T) {
	objects := newMemObjects()
	exec := pipeline.NewStepExecutor(objects, nil)

	payload, _ := json.Marshal(pipeline.WritePayload{Key: "out/d1/text.txt", ContentType: "text/plain", Data: []byte("hi")})
	err := exec.Execute(context.Background(), pipeline.Step{DocumentID: "d1", Handler: pipeline.HandlerArtifactWrite, Payload: payload})
	require.NoError(t, err)

	data, _, err := objects.Get(context.Background(), "out/d1/text.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestStepExecutor_Publish(t *testing.T) {
	pub := new(MockPublisher)
	exec := pipeline.NewStepExecutor(nil, pub)
	pub.On("Publish", "document.ingested", []byte(`{"id":"d1"}`)).Return(nil)

	payload, _ := json.Marshal(pipeline.PublishPayload{Topic: "document.ingested", Body: json.RawMessage(`{"id":"d1"}`)})
	err := exec.Execute(context.Background(), pipeline.Step{Handler: pipeline.HandlerEventPublish, Payload: payload})
	assert.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestStepExecutor_Errors(t *testing.T) {
	exec := pipeline.NewStepExecutor(nil, nil)
	ctx := context.Background()

	assert.Error(t, exec.Execute(ctx, pipeline.Step{Handler: "unknown"}))
	assert.Error(t, exec.Execute(ctx, pipeline.Step{Handler: pipeline.HandlerArtifactWrite, Payload: json.RawMessage(`{}`)}))
	assert.Error(t, exec.Execute(ctx, pipeline.Step{Handler: pipeline.HandlerEventPublish, Payload: json.RawMessage(`not json`)}))
}

func TestRunSteps_ContinuesAfterFailure(t *testing.T) {
	pub := new(MockPublisher)
	rec := new(MockRecorder)
	exec := pipeline.NewStepExecutor(nil, pub)

	pub.On("Publish", "a", mock.Anything).Return(errors.New("down")).Once()
	pub.On("Publish", "b", mock.Anything).Return(nil).Once()
	rec.On("RecordFailure", mock.Anything, "d1", pipeline.HandlerEventPublish, mock.Anything, mock.Anything).Return(errors.New("db down"))

	a, _ := json.Marshal(pipeline.PublishPayload{Topic: "a", Body: json.RawMessage(`{}`)})
	b, _ := json.Marshal(pipeline.PublishPayload{Topic: "b", Body: json.RawMessage(`{}`)})
	failed := pipeline.RunSteps(context.Background(), exec, rec, []pipeline.Step{
		{DocumentID: "d1", Handler: pipeline.HandlerEventPublish, Payload: a},
		{DocumentID: "d1", Handler: pipeline.HandlerEventPublish, Payload: b},
	})
	assert.Equal(t, 1, failed)
	pub.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"inline", `{"input":{"type":"inline","filename":"a.txt","content":"aGk="}}`, false},
		{"url with render", `{"input":{"type":"url","url":"https://example.com","render":true}}`, false},
		{"stored", `{"input":{"type":"stored","key":"a/b.pdf"}}`, false},
		{"unknown type", `{"input":{"type":"ftp","url":"ftp://x"}}`, true},
		{"missing input", `{"process":{"summary":true}}`, true},
		{"inline missing filename", `{"input":{"type":"inline","content":"aGk="}}`, true},
		{"relative url", `{"input":{"type":"url","url":"/local"}}`, true},
		{"escaping prefix", `{"input":{"type":"stored","key":"a"},"output":{"keyPrefix":"../up"}}`, true},
		{"not json", `{`, true},
		{"unknown rag format accepted", `{"input":{"type":"stored","key":"a"},"process":{"rag_format":"xml"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.DecodeRequest([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_MarshalRoundTrip(t *testing.T) {
	req := &pipeline.Request{
		Input:   source.URLInput{URL: "https://example.com/a.pdf"},
		Process: artifact.Directive{Embeddings: true},
		Output:  pipeline.Output{KeyPrefix: "p"},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	got, err := pipeline.DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.Input, got.Input)
	assert.True(t, got.Process.Embeddings)
	assert.Equal(t, "p", got.Output.KeyPrefix)
}

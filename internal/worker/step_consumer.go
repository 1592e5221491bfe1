package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"askmydoc/internal/middleware"
	"askmydoc/internal/pipeline"

	"github.com/nsqio/go-nsq"
)

// DefaultMaxAttempts bounds redeliveries before a step is parked as a failed job again.
const DefaultMaxAttempts = 5

// StepMessage is the body of a pipeline.step.retry message.
type StepMessage struct {
	DocumentID    string          `json:"document_id"`
	Handler       string          `json:"handler"`
	Payload       json.RawMessage `json:"payload"`
	Retries       int             `json:"retries"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

type StepRunner interface {
	Execute(ctx context.Context, step pipeline.Step) error
}

type FailureRecorder interface {
	Record(ctx context.Context, documentID, handler string, payload json.RawMessage, cause error, retries int) error
}

// StepConsumer replays post-processing steps re-queued from the failed jobs list.
type StepConsumer struct {
	runner      StepRunner
	recorder    FailureRecorder
	maxAttempts uint16
	timeout     time.Duration
}

func NewStepConsumer(r StepRunner, rec FailureRecorder, maxAttempts uint16, timeout time.Duration) *StepConsumer {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &StepConsumer{runner: r, recorder: rec, maxAttempts: maxAttempts, timeout: timeout}
}

func (c *StepConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg StepMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if msg.Handler == "" {
		slog.Error("poison pill: step without handler", "document_id", msg.DocumentID)
		return nil
	}

	ctx := context.Background()
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}
	if msg.DocumentID != "" {
		ctx = middleware.WithDocumentID(ctx, msg.DocumentID)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	step := pipeline.Step{DocumentID: msg.DocumentID, Handler: msg.Handler, Payload: msg.Payload}
	err := c.runner.Execute(runCtx, step)
	if err == nil {
		slog.InfoContext(ctx, "retried step succeeded", "handler", msg.Handler, "retries", msg.Retries)
		return nil
	}

	if m.Attempts < c.maxAttempts {
		slog.WarnContext(ctx, "retried step failed, requeueing", "handler", msg.Handler, "attempt", m.Attempts, "error", err)
		return err
	}

	slog.ErrorContext(ctx, "retried step exhausted attempts", "handler", msg.Handler, "attempts", m.Attempts, "error", err)
	if c.recorder != nil {
		if rerr := c.recorder.Record(ctx, msg.DocumentID, msg.Handler, msg.Payload, err, msg.Retries); rerr != nil {
			slog.ErrorContext(ctx, "failed to park step as failed job", "error", rerr)
			return rerr
		}
	}
	return nil
}

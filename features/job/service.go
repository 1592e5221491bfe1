package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"askmydoc/internal/config"
	"askmydoc/internal/middleware"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// RecordFailure saves a failed post-processing step.
func (s *Service) RecordFailure(ctx context.Context, documentID, handler string, payload json.RawMessage, cause error) error {
	return s.Record(ctx, documentID, handler, payload, cause, 0)
}

// Record saves a failed step carrying its retry count forward.
func (s *Service) Record(ctx context.Context, documentID, handler string, payload json.RawMessage, cause error, retries int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	j := &Job{DocumentID: documentID, Handler: handler, Payload: payload, Error: msg, Retries: retries}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	slog.InfoContext(ctx, "recorded failed job", "job_id", j.ID, "handler", handler, "document_id", documentID)
	return nil
}

// Retry re-queues the job's step for the worker and removes it from the list.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.pub == nil {
		return fmt.Errorf("retry unavailable: no message broker configured")
	}

	body, err := json.Marshal(Retry{
		DocumentID:    j.DocumentID,
		Handler:       j.Handler,
		Payload:       j.Payload,
		Retries:       j.Retries + 1,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicStepRetry, body); err != nil {
		return fmt.Errorf("publish retry: %w", err)
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

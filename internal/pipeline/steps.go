package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"askmydoc/internal/artifact"
	"askmydoc/internal/config"
)

const (
	HandlerArtifactWrite = "artifact.write"
	HandlerEventPublish  = "event.publish"
)

// Step is one post-processing action. Its payload is self-contained so a failed step
// can be stored and replayed later without the original request.
type Step struct {
	DocumentID string          `json:"document_id"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
}

type WritePayload struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type PublishPayload struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// IngestedEvent is the body of a document.ingested message.
type IngestedEvent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ObjectKey    string    `json:"object_key"`
	HasEmbedding bool      `json:"has_embedding"`
	Artifacts    []string  `json:"artifacts,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// StepExecutor runs a single step. It is shared by ingestion and the retry worker.
type StepExecutor struct {
	objects   ObjectPutter
	publisher Publisher
}

func NewStepExecutor(objects ObjectPutter, publisher Publisher) *StepExecutor {
	return &StepExecutor{objects: objects, publisher: publisher}
}

func (e *StepExecutor) Execute(ctx context.Context, step Step) error {
	switch step.Handler {
	case HandlerArtifactWrite:
		var p WritePayload
		if err := json.Unmarshal(step.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", step.Handler, err)
		}
		if e.objects == nil {
			return fmt.Errorf("no object store configured")
		}
		return e.objects.Put(ctx, p.Key, p.Data, p.ContentType)

	case HandlerEventPublish:
		var p PublishPayload
		if err := json.Unmarshal(step.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", step.Handler, err)
		}
		if e.publisher == nil {
			return fmt.Errorf("no publisher configured")
		}
		return e.publisher.Publish(p.Topic, p.Body)

	default:
		return fmt.Errorf("unknown step handler %q", step.Handler)
	}
}

func newStep(documentID, handler string, payload interface{}) (Step, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Step{}, err
	}
	return Step{DocumentID: documentID, Handler: handler, Payload: raw}, nil
}

// PlanSteps lists the post-processing for one ingested document: artifact writes
// under <keyPrefix>/<id>/ when a prefix is set, then the ingested event.
func PlanSteps(doc IngestedEvent, text string, arts *artifact.Artifacts, out Output, publish bool) ([]Step, error) {
	var steps []Step

	if out.KeyPrefix != "" {
		base := path.Join(out.KeyPrefix, doc.ID)
		writes := []WritePayload{{Key: path.Join(base, "text.txt"), ContentType: "text/plain; charset=utf-8", Data: []byte(text)}}

		if arts != nil && len(arts.Embedding) > 0 {
			data, err := json.Marshal(arts.Embedding)
			if err != nil {
				return nil, err
			}
			writes = append(writes, WritePayload{Key: path.Join(base, "embedding.json"), ContentType: "application/json", Data: data})
		}
		if arts != nil && arts.RAG != nil {
			var md string
			if json.Unmarshal(arts.RAG, &md) == nil {
				writes = append(writes, WritePayload{Key: path.Join(base, "rag.md"), ContentType: "text/markdown; charset=utf-8", Data: []byte(md)})
			} else {
				writes = append(writes, WritePayload{Key: path.Join(base, "rag.json"), ContentType: "application/json", Data: arts.RAG})
			}
		}
		if arts != nil && arts.Summary != "" {
			writes = append(writes, WritePayload{Key: path.Join(base, "summary.txt"), ContentType: "text/plain; charset=utf-8", Data: []byte(arts.Summary)})
		}

		for _, w := range writes {
			s, err := newStep(doc.ID, HandlerArtifactWrite, w)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
			doc.Artifacts = append(doc.Artifacts, w.Key)
		}
	}

	if publish {
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		s, err := newStep(doc.ID, HandlerEventPublish, PublishPayload{Topic: config.TopicDocumentIngested, Body: body})
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// FailureRecorder stores a step that failed so it can be retried later.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, documentID, handler string, payload json.RawMessage, cause error) error
}

// RunSteps executes steps in order. A failed step is logged and recorded; it never stops
// later steps and never fails the caller.
func RunSteps(ctx context.Context, exec *StepExecutor, rec FailureRecorder, steps []Step) (failed int) {
	for _, step := range steps {
		if err := exec.Execute(ctx, step); err != nil {
			failed++
			slog.WarnContext(ctx, "post-processing step failed", "handler", step.Handler, "document_id", step.DocumentID, "error", err)
			if rec == nil {
				continue
			}
			if rerr := rec.RecordFailure(ctx, step.DocumentID, step.Handler, step.Payload, err); rerr != nil {
				slog.ErrorContext(ctx, "failed to record step failure", "handler", step.Handler, "error", rerr)
			}
		}
	}
	return failed
}

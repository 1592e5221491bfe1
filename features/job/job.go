package job

import (
	"encoding/json"
	"time"
)

// Job is a post-processing step that failed and is kept for inspection and retry.
type Job struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Retry is the message published when a job is re-queued. It mirrors pipeline.Step.
type Retry struct {
	DocumentID    string          `json:"document_id"`
	Handler       string          `json:"handler"`
	Payload       json.RawMessage `json:"payload"`
	Retries       int             `json:"retries"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

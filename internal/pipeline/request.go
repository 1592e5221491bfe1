package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"askmydoc/internal/apperr"
	"askmydoc/internal/artifact"
	"askmydoc/internal/source"
)

// Output controls where derived artifacts are written. An empty KeyPrefix disables writes.
type Output struct {
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// Request is one ingestion descriptor.
type Request struct {
	Input   source.Input
	Name    string
	Process artifact.Directive
	Output  Output
}

type wireRequest struct {
	Input   json.RawMessage    `json:"input"`
	Name    string             `json:"name,omitempty"`
	Process artifact.Directive `json:"process,omitempty"`
	Output  Output             `json:"output,omitempty"`
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: malformed request: %w", apperr.ErrInvalidInput, err)
	}
	in, err := source.DecodeInput(w.Input)
	if err != nil {
		return err
	}
	*r = Request{Input: in, Name: w.Name, Process: w.Process, Output: w.Output}
	return nil
}

func (r Request) MarshalJSON() ([]byte, error) {
	raw, err := source.EncodeInput(r.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRequest{Input: raw, Name: r.Name, Process: r.Process, Output: r.Output})
}

// Validate checks fields that JSON decoding cannot, for requests built in code.
func (r *Request) Validate() error {
	if err := source.Validate(r.Input); err != nil {
		return err
	}
	if strings.Contains(r.Output.KeyPrefix, "..") {
		return fmt.Errorf("%w: keyPrefix must not contain '..'", apperr.ErrInvalidInput)
	}
	return nil
}

// DecodeRequest parses and validates a JSON ingestion descriptor.
func DecodeRequest(data []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: malformed request: %w", apperr.ErrInvalidInput, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

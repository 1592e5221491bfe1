package source

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"askmydoc/internal/apperr"
)

type InputType string

const (
	TypeStored InputType = "stored"
	TypeInline InputType = "inline"
	TypeURL    InputType = "url"
)

// Input is one of StoredInput, InlineInput or URLInput.
type Input interface {
	Type() InputType
	validate() error
}

// StoredInput references an object already present in the object store.
type StoredInput struct {
	Key string `json:"key"`
}

// InlineInput carries the file bytes base64-encoded in the request.
type InlineInput struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// URLInput is fetched over HTTP, or loaded in a headless browser when Render is set.
type URLInput struct {
	URL    string `json:"url"`
	Render bool   `json:"render,omitempty"`
}

func (StoredInput) Type() InputType { return TypeStored }
func (InlineInput) Type() InputType { return TypeInline }
func (URLInput) Type() InputType    { return TypeURL }

func (in StoredInput) validate() error {
	if strings.TrimSpace(in.Key) == "" {
		return fmt.Errorf("%w: stored input requires key", apperr.ErrInvalidInput)
	}
	if strings.Contains(in.Key, "..") {
		return fmt.Errorf("%w: stored key must not contain '..'", apperr.ErrInvalidInput)
	}
	return nil
}

func (in InlineInput) validate() error {
	if strings.TrimSpace(in.Filename) == "" {
		return fmt.Errorf("%w: inline input requires filename", apperr.ErrInvalidInput)
	}
	return nil
}

func (in URLInput) validate() error {
	u, err := url.Parse(in.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url input requires an absolute http(s) url", apperr.ErrInvalidInput)
	}
	return nil
}

// DecodeInput reads the "type" tag and decodes the matching variant.
func DecodeInput(raw json.RawMessage) (Input, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: input is required", apperr.ErrInvalidInput)
	}

	var tag struct {
		Type InputType `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("%w: malformed input: %w", apperr.ErrInvalidInput, err)
	}

	var in Input
	var err error
	switch tag.Type {
	case TypeStored:
		var v StoredInput
		err = json.Unmarshal(raw, &v)
		in = v
	case TypeInline:
		var v InlineInput
		err = json.Unmarshal(raw, &v)
		in = v
	case TypeURL:
		var v URLInput
		err = json.Unmarshal(raw, &v)
		in = v
	default:
		return nil, fmt.Errorf("%w: unknown input type %q", apperr.ErrInvalidInput, tag.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed %s input: %w", apperr.ErrInvalidInput, tag.Type, err)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate checks an Input built in code with the same rules DecodeInput applies.
func Validate(in Input) error {
	if in == nil {
		return fmt.Errorf("%w: input is required", apperr.ErrInvalidInput)
	}
	return in.validate()
}

// EncodeInput is the inverse of DecodeInput, used when a request is re-serialized.
func EncodeInput(in Input) ([]byte, error) {
	switch v := in.(type) {
	case StoredInput:
		return json.Marshal(struct {
			Type InputType `json:"type"`
			StoredInput
		}{TypeStored, v})
	case InlineInput:
		return json.Marshal(struct {
			Type InputType `json:"type"`
			InlineInput
		}{TypeInline, v})
	case URLInput:
		return json.Marshal(struct {
			Type InputType `json:"type"`
			URLInput
		}{TypeURL, v})
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", apperr.ErrInvalidInput, in)
	}
}

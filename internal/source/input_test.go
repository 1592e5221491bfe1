package source_test

import (
	"encoding/json"
	"testing"

	"askmydoc/internal/apperr"
	"askmydoc/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    source.Input
		wantErr error
	}{
		{
			name: "Stored",
			raw:  `{"type":"stored","key":"uploads/a.pdf"}`,
			want: source.StoredInput{Key: "uploads/a.pdf"},
		},
		{
			name: "Inline",
			raw:  `{"type":"inline","filename":"a.txt","content":"aGk="}`,
			want: source.InlineInput{Filename: "a.txt", Content: "aGk="},
		},
		{
			name: "URL Rendered",
			raw:  `{"type":"url","url":"https://example.com/x","render":true}`,
			want: source.URLInput{URL: "https://example.com/x", Render: true},
		},
		{name: "Missing", raw: ``, wantErr: apperr.ErrInvalidInput},
		{name: "Unknown Type", raw: `{"type":"ftp","url":"ftp://x"}`, wantErr: apperr.ErrInvalidInput},
		{name: "No Type", raw: `{"key":"a"}`, wantErr: apperr.ErrInvalidInput},
		{name: "Stored Without Key", raw: `{"type":"stored"}`, wantErr: apperr.ErrInvalidInput},
		{name: "Stored Traversal", raw: `{"type":"stored","key":"../etc/passwd"}`, wantErr: apperr.ErrInvalidInput},
		{name: "Inline Without Filename", raw: `{"type":"inline","content":"aGk="}`, wantErr: apperr.ErrInvalidInput},
		{name: "Relative URL", raw: `{"type":"url","url":"/local/path"}`, wantErr: apperr.ErrInvalidInput},
		{name: "Wrong Field Type", raw: `{"type":"url","url":42}`, wantErr: apperr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := source.DecodeInput(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeInput_RoundTrip(t *testing.T) {
	in := source.URLInput{URL: "https://example.com", Render: true}
	raw, err := source.EncodeInput(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"url","url":"https://example.com","render":true}`, string(raw))

	back, err := source.DecodeInput(raw)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

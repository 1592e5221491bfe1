package extract

import (
	"context"
	"log/slog"
	"strings"
)

type Result struct {
	Text      string `json:"text"`
	Format    Format `json:"format"`
	PageCount int    `json:"page_count,omitempty"`
}

// Extractor turns raw bytes into normalized plain text. It holds no state.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the detected format. Empty input yields empty text.
func (e *Extractor) Extract(ctx context.Context, data []byte, hint Hint) (*Result, error) {
	format := Detect(hint)
	if len(data) == 0 {
		return &Result{Format: format}, nil
	}

	res := &Result{Format: format}
	switch format {
	case FormatPDF:
		text, pages, err := extractPDF(data)
		if err != nil {
			slog.WarnContext(ctx, "pdf extraction failed", "filename", hint.Filename, "error", err)
			return nil, err
		}
		res.Text, res.PageCount = text, pages
	case FormatHTML:
		res.Text = StripMarkup(decodeText(data))
	default:
		res.Text = decodeText(data)
	}

	slog.DebugContext(ctx, "text extracted", "format", format, "length", len(res.Text))
	return res, nil
}

// decodeText is a lossy UTF-8 decode: invalid sequences become U+FFFD. NUL bytes are
// dropped since Postgres text columns reject them.
func decodeText(data []byte) string {
	return strings.ReplaceAll(strings.ToValidUTF8(string(data), "�"), "\x00", "")
}

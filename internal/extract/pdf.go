package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"askmydoc/internal/apperr"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF validates the structure with pdfcpu before handing the bytes to the text reader.
// Encrypted, truncated or otherwise malformed files fail validation. Parser panics are
// converted to extraction errors.
func extractPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = apperr.Wrap(apperr.ErrExtraction, "extract pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	pages, err = api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExtraction, "validate pdf", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExtraction, "open pdf", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExtraction, "read pdf text", err)
	}

	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExtraction, "read pdf text", err)
	}
	return decodeText([]byte(buf.String())), pages, nil
}

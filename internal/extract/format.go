package extract

import (
	"mime"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Hint is the format evidence available for a payload: a MIME type, a filename, or both.
type Hint struct {
	ContentType string
	Filename    string
}

// Detect picks the extraction format. The content type wins over the filename suffix;
// anything unrecognised is treated as text.
func Detect(h Hint) Format {
	if mt := mediaType(h.ContentType); mt != "" {
		switch mt {
		case "application/pdf", "application/x-pdf":
			return FormatPDF
		case "text/html", "application/xhtml+xml":
			return FormatHTML
		}
	}

	switch strings.ToLower(filepath.Ext(h.Filename)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	}
	return FormatText
}

// ContentTypeFor guesses a MIME type from a filename, defaulting to octet-stream.
func ContentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

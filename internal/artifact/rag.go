package artifact

import (
	"encoding/json"
	"strings"
)

// FormatRAG serializes text for downstream RAG consumers. The json format is an object
// with a single text field; markdown is a JSON string with a heading prefix. Any other
// format, including plain and empty, yields nil.
func FormatRAG(format RAGFormat, name, text string) (json.RawMessage, error) {
	switch RAGFormat(strings.ToLower(string(format))) {
	case RAGJSON:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{Text: text})
	case RAGMarkdown:
		return json.Marshal(Markdown(name, text))
	default:
		return nil, nil
	}
}

func Markdown(name, text string) string {
	title := strings.TrimSpace(name)
	if title == "" {
		title = "Document"
	}
	return "# " + title + "\n\n" + text
}

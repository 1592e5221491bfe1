// Package mcp exposes document lookup and retrieval as Model Context Protocol tools over
// JSON-RPC, either as plain POST or through an SSE session.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"askmydoc/internal/apperr"
	"askmydoc/internal/document"
	"askmydoc/internal/retrieval"
)

const protocolVersion = "2024-11-05"

type Catalog interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	ListRecent(ctx context.Context, limit int) ([]document.Document, error)
}

type Querier interface {
	Answer(ctx context.Context, id, question string) (*retrieval.Answer, error)
	Similar(ctx context.Context, id, query string) ([]retrieval.SimilarResult, error)
}

type Handler struct {
	catalog      Catalog
	queries      Querier
	sessions     map[string]chan string // sessionId -> serialized JSON-RPC responses
	sessionsLock sync.RWMutex
}

func NewHandler(c Catalog, q Querier) *Handler {
	return &Handler{
		catalog:  c,
		queries:  q,
		sessions: make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// errInvalidParams marks argument problems that become JSON-RPC -32602 errors rather than
// tool results.
var errInvalidParams = errors.New("invalid params")

type documentArgs struct {
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
	Question   string `json:"question"`
	Limit      int    `json:"limit"`
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var documentIDProp = map[string]string{"type": "string", "description": "The document id returned at ingestion"}

var tools = []Tool{
	{
		Name:        "list_documents",
		Description: "Lists the most recently ingested documents with their ids and names. Use this first to find the document a question is about.",
		InputSchema: objectSchema(nil, map[string]interface{}{
			"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 200, "description": "Max documents to return (default 50)"},
		}),
	},
	{
		Name:        "read_document",
		Description: "Returns the full extracted text of one document.",
		InputSchema: objectSchema([]string{"document_id"}, map[string]interface{}{"document_id": documentIDProp}),
	},
	{
		Name:        "search_document",
		Description: "Semantic search scoped to one document. Returns the nearest embeddings with their text.",
		InputSchema: objectSchema([]string{"document_id", "query"}, map[string]interface{}{
			"document_id": documentIDProp,
			"query":       map[string]string{"type": "string", "description": "What to look for"},
		}),
	},
	{
		Name:        "ask_document",
		Description: "Answers a natural-language question using the document's full text as context.",
		InputSchema: objectSchema([]string{"document_id", "question"}, map[string]interface{}{
			"document_id": documentIDProp,
			"question":    map[string]string{"type": "string", "description": "The question to answer"},
		}),
	},
}

// processRequest returns nil for notifications, which get no response.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": protocolVersion,
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo":      map[string]interface{}{"name": "askmydoc-mcp", "version": "1.0.0"},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"tools": tools}}
	case "tools/call":
		return h.callTool(ctx, req)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return errorResponse(req.ID, ErrMethodNotFound, "Method not found")
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, ErrInvalidParams, "Invalid params")
	}

	var args documentArgs
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, ErrInvalidParams, "Invalid arguments")
		}
	}

	var text string
	var err error
	switch params.Name {
	case "list_documents":
		text, err = h.listDocuments(ctx, args)
	case "read_document":
		text, err = h.readDocument(ctx, args)
	case "search_document":
		text, err = h.searchDocument(ctx, args)
	case "ask_document":
		text, err = h.askDocument(ctx, args)
	default:
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		return errorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
	}

	if errors.Is(err, errInvalidParams) {
		return errorResponse(req.ID, ErrInvalidParams, err.Error())
	}
	if err != nil {
		slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		_, code, message := apperr.Classify(err)
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: fmt.Sprintf("Error (%s): %s", code, message)}},
				IsError: true,
			},
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func requireArg(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", errInvalidParams, name)
	}
	return nil
}

func (h *Handler) listDocuments(ctx context.Context, args documentArgs) (string, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = document.DefaultListLimit
	}
	if limit > 200 {
		return "", fmt.Errorf("%w: limit must be at most 200", errInvalidParams)
	}

	docs, err := h.catalog.ListRecent(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No documents found.", nil
	}

	type simpleDoc struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]simpleDoc, len(docs))
	for i, d := range docs {
		out[i] = simpleDoc{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *Handler) readDocument(ctx context.Context, args documentArgs) (string, error) {
	if err := requireArg("document_id", args.DocumentID); err != nil {
		return "", err
	}
	doc, err := h.catalog.Get(ctx, args.DocumentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Document: %s\nID: %s\n\n%s", doc.Name, doc.ID, doc.ExtractedText), nil
}

func (h *Handler) searchDocument(ctx context.Context, args documentArgs) (string, error) {
	if err := requireArg("document_id", args.DocumentID); err != nil {
		return "", err
	}
	if err := requireArg("query", args.Query); err != nil {
		return "", err
	}

	results, err := h.queries.Similar(ctx, args.DocumentID, args.Query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Result %d (Distance: %.4f):\nID: %s\nContent:\n%s\n\n---\n", i+1, r.Distance, r.ID, r.Text)
	}
	b.WriteString("\nUse read_document(document_id=\"...\") to read the full text.\n")
	return b.String(), nil
}

func (h *Handler) askDocument(ctx context.Context, args documentArgs) (string, error) {
	if err := requireArg("document_id", args.DocumentID); err != nil {
		return "", err
	}
	if err := requireArg("question", args.Question); err != nil {
		return "", err
	}

	ans, err := h.queries.Answer(ctx, args.DocumentID, strings.TrimSpace(args.Question))
	if err != nil {
		return "", err
	}
	return ans.Answer, nil
}

func errorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

// ServeHTTP answers a single JSON-RPC request synchronously.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, errorResponse(nil, ErrParse, "Parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, errorResponse(req.ID, ErrInvalidRequest, "Invalid Request"))
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeRPC(w, resp)
}

// JSON-RPC errors travel in a 200 response body.
func writeRPC(w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode jsonrpc response", "error", err)
	}
}

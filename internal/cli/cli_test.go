package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		queryJSON = false
		uploadName = ""
		uploadJSON = false
		uploadSummary = false
		uploadRAGFormat = ""
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "upload", "ask", "search"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestAskCmd_RequiresTwoArgs(t *testing.T) {
	_, err := execute(t, "ask", "only-id")
	assert.Error(t, err)
}

func TestAskCmd_PrintsAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1/ask", r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "what is this about", body["question"])
		w.Write([]byte(`{"data":{"document_id":"doc-1","question":"what is this about","answer":"Invoices."}}`))
	}))
	defer ts.Close()

	out, err := execute(t, "--server", ts.URL, "ask", "doc-1", "what", "is", "this", "about")
	require.NoError(t, err)
	assert.Contains(t, out, "Invoices.")
}

func TestAskCmd_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"resource not found"},"correlationId":"c-1"}`))
	}))
	defer ts.Close()

	_, err := execute(t, "--server", ts.URL, "ask", "missing", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "c-1")
}

func TestSearchCmd_PrintsResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1/search", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"doc-1","document_id":"doc-1","distance":0.12,"text":"hello   world"}],"meta":{"count":1}}`))
	}))
	defer ts.Close()

	out, err := execute(t, "--server", ts.URL, "search", "doc-1", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] doc-1")
	assert.Contains(t, out, "hello world")
}

func TestSearchCmd_NoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"meta":{"count":0}}`))
	}))
	defer ts.Close()

	out, err := execute(t, "--server", ts.URL, "search", "doc-1", "q")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestUploadCmd_SendsMultipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("summary"))
		assert.Equal(t, "markdown", r.URL.Query().Get("rag_format"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Notes", r.FormValue("name"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", header.Filename)
		assert.Equal(t, "hello world", string(data))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"doc-9","name":"Notes","extracted_text":"hello world","summary":"A greeting."}}`))
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	out, err := execute(t, "--server", ts.URL, "upload", path, "--name", "Notes", "--summary", "--rag-format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-9")
	assert.Contains(t, out, "A greeting.")
}

func TestUploadCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "upload", filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet("a\n\n b", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

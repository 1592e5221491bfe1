package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// apiClient talks to a running server. Responses use the {"data":...} / {"error":...} envelope.
type apiClient struct {
	base string
	http *http.Client
}

type apiError struct {
	Status        int
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if e.CorrelationID != "" {
		msg += " [correlation " + e.CorrelationID + "]"
	}
	return msg
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// upload sends a file as multipart form data to /upload.
func (c *apiClient) upload(ctx context.Context, filename string, data []byte, name string, query url.Values, out interface{}) error {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if name != "" {
		if err := w.WriteField("name", name); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	target := c.base + "/upload"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error         apiError `json:"error"`
			CorrelationID string   `json:"correlationId"`
		}
		if jerr := json.Unmarshal(raw, &env); jerr != nil || env.Error.Code == "" {
			return &apiError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: strings.TrimSpace(string(raw))}
		}
		env.Error.Status = resp.StatusCode
		env.Error.CorrelationID = env.CorrelationID
		return &env.Error
	}

	if out == nil {
		return nil
	}
	env := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

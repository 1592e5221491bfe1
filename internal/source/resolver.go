package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"askmydoc/internal/apperr"
	"askmydoc/internal/extract"
)

// ObjectGetter reads a stored object. Missing objects are reported as apperr.ErrNotFound.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

type PageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Resolved is the raw payload of an input plus what is known about its format.
type Resolved struct {
	Data      []byte
	Hint      extract.Hint
	Filename  string
	ObjectKey string // set only for stored inputs
}

type Resolver struct {
	objects  ObjectGetter
	client   *http.Client
	renderer PageRenderer
	maxBytes int64
}

func NewResolver(objects ObjectGetter, client *http.Client, renderer PageRenderer, maxBytes int64) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Resolver{objects: objects, client: client, renderer: renderer, maxBytes: maxBytes}
}

func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolved, error) {
	switch v := in.(type) {
	case StoredInput:
		return r.resolveStored(ctx, v)
	case InlineInput:
		return r.resolveInline(v)
	case URLInput:
		if v.Render {
			return r.resolveRendered(ctx, v)
		}
		return r.resolveFetched(ctx, v)
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", apperr.ErrInvalidInput, in)
	}
}

func (r *Resolver) resolveStored(ctx context.Context, in StoredInput) (*Resolved, error) {
	data, contentType, err := r.objects.Get(ctx, in.Key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "get object "+in.Key, err)
	}
	filename := path.Base(in.Key)
	return &Resolved{
		Data:      data,
		Hint:      extract.Hint{ContentType: contentType, Filename: filename},
		Filename:  filename,
		ObjectKey: in.Key,
	}, nil
}

func (r *Resolver) resolveInline(in InlineInput) (*Resolved, error) {
	data, err := DecodeBase64(in.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidEncoding, "decode inline content", err)
	}
	filename := path.Base(in.Filename)
	return &Resolved{
		Data:     data,
		Hint:     extract.Hint{ContentType: in.ContentType, Filename: filename},
		Filename: filename,
	}, nil
}

func (r *Resolver) resolveFetched(ctx context.Context, in URLInput) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", "askmydoc/1.0")

	resp, err := r.client.Do(req) // #nosec G107 -- fetching caller-supplied URLs is the purpose of this input type
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrFetch, "get "+in.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Wrap(apperr.ErrFetch, "get "+in.URL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrFetch, "read "+in.URL, err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: remote document exceeds %d bytes", apperr.ErrInvalidInput, r.maxBytes)
	}

	filename := filenameFromURL(in.URL)
	slog.InfoContext(ctx, "fetched url", "url", in.URL, "status", resp.StatusCode, "bytes", len(data))
	return &Resolved{
		Data:     data,
		Hint:     extract.Hint{ContentType: resp.Header.Get("Content-Type"), Filename: filename},
		Filename: filename,
	}, nil
}

func (r *Resolver) resolveRendered(ctx context.Context, in URLInput) (*Resolved, error) {
	if r.renderer == nil {
		return nil, fmt.Errorf("%w: page rendering is not enabled", apperr.ErrInvalidInput)
	}
	html, err := r.renderer.Render(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return &Resolved{
		Data:     []byte(html),
		Hint:     extract.Hint{ContentType: "text/html", Filename: "page.html"},
		Filename: "page.html",
	}, nil
}

// DecodeBase64 accepts padded or unpadded, standard or URL-safe alphabets and ignores whitespace.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "page"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "page"
	}
	return base
}

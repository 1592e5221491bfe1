package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrExtraction   = errors.New("extraction failed")
	ErrUpstream     = errors.New("upstream failure")
	ErrPersist      = errors.New("persist failed")
)

// Refinements of the base kinds. errors.Is matches both the refinement and its parent.
var (
	ErrInvalidEncoding = fmt.Errorf("%w: invalid encoding", ErrInvalidInput)
	ErrFetch           = fmt.Errorf("%w: fetch failed", ErrUpstream)
	ErrRenderTimeout   = fmt.Errorf("%w: render timed out", ErrUpstream)
	ErrEmbedding       = fmt.Errorf("%w: embedding failed", ErrUpstream)
)

// Wrap tags cause with kind while keeping both reachable through errors.Is / errors.As.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// Classify maps an error to the HTTP status, error code and client-facing message.
// Messages for 5xx responses are generic; the cause is only logged.
func Classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidEncoding):
		return http.StatusBadRequest, "INVALID_ENCODING", err.Error()
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, ErrExtraction):
		return http.StatusUnprocessableEntity, "EXTRACTION_ERROR", "could not extract text from input"
	case errors.Is(err, ErrRenderTimeout):
		return http.StatusGatewayTimeout, "RENDER_TIMEOUT", "page rendering timed out"
	case errors.Is(err, ErrFetch):
		return http.StatusBadGateway, "FETCH_ERROR", "could not fetch remote source"
	case errors.Is(err, ErrPersist), errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "upstream service failure"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

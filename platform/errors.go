package platform

import (
	"errors"
	"fmt"
	"net/http"

	nxhttp "nexlayer.io/mcp/http"
)

// Error categories, shared by name with the tool error categories of the MCP layer
const (
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryConflict   = "conflict"
	CategoryTransient  = "transient"
	CategoryInternal   = "internal"
)

// APIError is a non-2xx answer from the platform API
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform %s: HTTP %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("platform %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Category classifies the failure for callers deciding whether to retry
func (e *APIError) Category() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return CategoryForbidden
	case e.StatusCode == http.StatusNotFound:
		return CategoryNotFound
	case e.StatusCode == http.StatusConflict:
		return CategoryConflict
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return CategoryTransient
	case e.StatusCode >= 400:
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// Retryable reports whether the same call may succeed later
func (e *APIError) Retryable() bool {
	return e.Category() == CategoryTransient
}

// Category returns the category of any error produced by the client.
// Transport failures (no response at all) are transient.
func Category(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category()
	}
	var statusErr *nxhttp.StatusError
	if errors.As(err, &statusErr) {
		return (&APIError{StatusCode: statusErr.StatusCode}).Category()
	}
	if errors.Is(err, ErrNoToken) {
		return CategoryForbidden
	}
	return CategoryTransient
}

package http

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Content types used by the platform API
const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "text/x-yaml"
)

// Request represents an HTTP operation with all configuration options
type Request struct {
	// HTTP basics
	Method string // GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS
	URL    string // Target URL

	// Headers and authentication
	Headers     map[string]string // HTTP headers
	BearerToken string            // Sent as "Authorization: Bearer <token>" when set

	// Request body options
	JSONBody    string // JSON body for application/json requests
	RawBody     []byte // Raw body bytes (for custom content types)
	ContentType string // Content type for RawBody (default: application/octet-stream)

	// Network configuration
	Timeout time.Duration // Per-attempt timeout (0 = default 30s)

	// Retry configuration
	RetryCount    int           // Number of retries on failure (default: 0)
	RetryBackoff  string        // "exponential" or "linear" (default: "exponential")
	RetryInterval time.Duration // Initial retry interval (default: 1s)

	// Advanced
	UserAgent string // Custom User-Agent header
}

// NewRequest creates a new Request with sensible defaults
func NewRequest(method, url string) *Request {
	return &Request{
		Method:        method,
		URL:           url,
		Headers:       make(map[string]string),
		Timeout:       30 * time.Second,
		RetryCount:    0,
		RetryBackoff:  "exponential",
		RetryInterval: 1 * time.Second,
		UserAgent:     "nexlayer-mcp/1.0",
	}
}

// SetJSON marshals v as the request body
func (r *Request) SetJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	r.JSONBody = string(data)
	return nil
}

// SetBody sets a raw body with an explicit content type
func (r *Request) SetBody(body []byte, contentType string) {
	r.RawBody = body
	r.ContentType = contentType
}

// Response represents an HTTP response with metadata
type Response struct {
	StatusCode int               // HTTP status code
	Status     string            // HTTP status message
	Headers    map[string]string // Response headers
	Body       []byte            // Response body
	BodyString string            // Response body as string
	Attempts   int               // Number of attempts made
	Duration   time.Duration     // Request duration
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect returns true if status code is 3xx
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError returns true if status code is 4xx
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if status code is 5xx
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// IsJSON reports whether the response declares a JSON content type
func (r *Response) IsJSON() bool {
	return strings.HasPrefix(r.Headers["Content-Type"], ContentTypeJSON)
}

// JSON decodes the response body into v
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

// Retryable reports whether a later attempt could succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of an error response is kept in StatusError
const maxErrorBody = 2048

// Execute performs an HTTP request and returns the response.
// Transport failures, 429 and 5xx responses are retried up to RetryCount times;
// other 4xx responses are returned immediately. A non-2xx response is returned
// together with a *StatusError.
func Execute(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	if req.Method == "" {
		return nil, fmt.Errorf("HTTP method is required")
	}
	if req.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}

	var lastErr error
	var lastResp *Response
	attempts := req.RetryCount + 1 // Initial attempt + retries

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := executeOnce(ctx, req)
		if resp != nil {
			resp.Attempts = attempt + 1
			resp.Duration = time.Since(startTime)
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if !retryable(ctx, err) {
			return resp, err
		}

		if attempt < attempts-1 {
			backoff := calculateBackoff(attempt, req.RetryBackoff, req.RetryInterval)
			if err := sleep(ctx, backoff); err != nil {
				return lastResp, err
			}
		}
	}

	if attempts == 1 {
		return lastResp, lastErr
	}
	return lastResp, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// executeOnce performs a single HTTP request attempt
func executeOnce(ctx context.Context, req *Request) (*Response, error) {
	var httpReq *http.Request
	var err error

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete:
		httpReq, err = buildSimpleRequest(ctx, req)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		httpReq, err = buildBodyRequest(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", req.Method)
	}
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    make(map[string]string),
		Body:       body,
		BodyString: string(body),
	}

	for key, values := range httpResp.Header {
		if len(values) > 0 {
			resp.Headers[key] = values[0]
		}
	}

	if !resp.IsSuccess() {
		return resp, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       truncate(strings.TrimSpace(resp.BodyString), maxErrorBody),
		}
	}

	return resp, nil
}

// buildSimpleRequest builds a request without a body (GET, HEAD, DELETE, OPTIONS)
func buildSimpleRequest(ctx context.Context, req *Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	applyHeaders(httpReq, req)
	return httpReq, nil
}

// buildBodyRequest builds a request with a body (POST, PUT, PATCH)
func buildBodyRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	var contentType string

	if req.JSONBody != "" {
		body = strings.NewReader(req.JSONBody)
		contentType = ContentTypeJSON
	} else if req.RawBody != nil {
		body = bytes.NewReader(req.RawBody)
		contentType = req.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	} else {
		return nil, fmt.Errorf("%s request requires a body (JSON or raw bytes)", req.Method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", contentType)
	// custom headers can override Content-Type
	applyHeaders(httpReq, req)
	return httpReq, nil
}

func applyHeaders(httpReq *http.Request, req *Request) {
	httpReq.Header.Set("Accept", ContentTypeJSON)
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
}

// calculateBackoff calculates retry backoff duration
func calculateBackoff(attempt int, strategy string, initial time.Duration) time.Duration {
	if strategy == "linear" {
		return initial * time.Duration(attempt+1)
	}

	// Exponential backoff (default)
	multiplier := 1 << uint(attempt) // 2^attempt
	return initial * time.Duration(multiplier)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package mcp

import (
	"context"
	"errors"
	"fmt"

	"nexlayer.io/mcp/tracestore"
)

// ErrorCategory classifies tool errors so clients can decide between
// retrying, fixing input and escalating without parsing message text.
type ErrorCategory string

const (
	// CategoryValidation: bad or missing arguments. Fix the input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: a referenced resource (session, deployment, path) does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden: missing or rejected credentials.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryConflict: the operation conflicts with existing state.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: network failure, timeout or rate limit. Back off and retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: an unexpected failure. Report rather than retry.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized error returned by tool handlers.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

// Error returns the underlying message; the category travels in errorInfo.
func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// WithCategory wraps err under the named category. Unknown names become internal.
func WithCategory(category string, err error) *ToolError {
	switch c := ErrorCategory(category); c {
	case CategoryValidation, CategoryNotFound, CategoryForbidden, CategoryConflict, CategoryTransient:
		return &ToolError{Category: c, Err: err}
	}
	return &ToolError{Category: CategoryInternal, Err: err}
}

// classifyError extracts errorInfo from a handler error.
func classifyError(err error) *ErrorInfo {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return &ErrorInfo{
			Category:  string(toolErr.Category),
			Retryable: toolErr.Category == CategoryTransient,
		}
	}
	if errors.Is(err, tracestore.ErrNotFound) {
		return &ErrorInfo{Category: string(CategoryNotFound)}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ErrorInfo{Category: string(CategoryTransient), Retryable: true}
	}
	return &ErrorInfo{Category: string(CategoryInternal)}
}

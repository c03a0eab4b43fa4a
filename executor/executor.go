// Package executor runs external processes: the generic CommandExecutor and
// the BuildRunner that drives the container build runner binary.
package executor

import (
	"context"
	"time"
)

// Runner runs a program to completion
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Result contains the execution output and metadata
type Result struct {
	// Stdout and Stderr are captured separately
	Stdout string
	Stderr string

	// ExitCode is -1 when the process did not start or was killed
	ExitCode int

	// Status indicates the execution status
	Status ExecutionStatus

	// Metadata contains additional execution information
	Metadata map[string]interface{}

	// Error contains detailed error information if execution failed
	Error *ExecutionError

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// ExecutionStatus represents the state of execution
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusTimedOut  ExecutionStatus = "timed_out"
)

// Error codes
const (
	CodeInvalidCommand = "INVALID_COMMAND"
	CodeNotFound       = "COMMAND_NOT_FOUND"
	CodeCommandError   = "COMMAND_ERROR"
	CodeCancelled      = "CANCELLED"
	CodeTimeout        = "TIMEOUT"
	CodeBadOutput      = "BAD_OUTPUT"
)

// ExecutionError provides detailed error information
type ExecutionError struct {
	Message string
	Code    string
	Details map[string]interface{}
}

// Error implements the error interface for ExecutionError
func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "execution error"
}

func (r *Result) finish(status ExecutionStatus) {
	r.Status = status
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

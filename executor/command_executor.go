package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// CommandExecutor executes programs directly, without a shell
type CommandExecutor struct {
	// Dir is the working directory (empty = current)
	Dir string
	// Env is appended to the process environment
	Env []string
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Name returns the executor's identifier
func (e *CommandExecutor) Name() string {
	return "command"
}

// Run executes name with args and waits for it. A non-zero exit, a missing
// binary and context cancellation all return the partial Result with an
// *ExecutionError.
func (e *CommandExecutor) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	result := &Result{
		StartTime: time.Now(),
		Status:    StatusRunning,
		ExitCode:  -1,
		Metadata: map[string]interface{}{
			"command": name,
			"args":    args,
		},
	}

	if name == "" {
		result.Error = &ExecutionError{Message: "empty command", Code: CodeInvalidCommand}
		result.finish(StatusFailed)
		return result, result.Error
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Metadata["output_length"] = stdout.Len()

	if err == nil {
		result.ExitCode = 0
		result.finish(StatusCompleted)
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Error = &ExecutionError{Message: fmt.Sprintf("%s timed out", name), Code: CodeTimeout}
		result.finish(StatusTimedOut)
	case errors.Is(ctx.Err(), context.Canceled):
		result.Error = &ExecutionError{Message: fmt.Sprintf("%s was cancelled", name), Code: CodeCancelled}
		result.finish(StatusCancelled)
	case errors.Is(err, exec.ErrNotFound):
		result.Error = &ExecutionError{Message: fmt.Sprintf("%s not found in PATH", name), Code: CodeNotFound}
		result.finish(StatusFailed)
	default:
		result.Error = &ExecutionError{
			Message: fmt.Sprintf("command execution failed: %v", err),
			Code:    CodeCommandError,
			Details: map[string]interface{}{
				"command":   name,
				"exit_code": result.ExitCode,
			},
		}
		result.finish(StatusFailed)
	}
	return result, result.Error
}

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexlayer.io/mcp/common"
)

// BuildIDEnv passes the build identifier to the runner so image tags and logs correlate
const BuildIDEnv = "NEXLAYER_BUILD_ID"

// BuildResult is the JSON document the build runner prints on stdout
type BuildResult struct {
	Client      string         `json:"client,omitempty"`
	Server      string         `json:"server,omitempty"`
	Ports       map[string]int `json:"ports"`
	Error       string         `json:"error,omitempty"`
	DAGSummary  string         `json:"dagSummary,omitempty"`
	LLMInsights string         `json:"llmInsights,omitempty"`
}

// Images returns the published image per service name
func (r *BuildResult) Images() map[string]string {
	images := make(map[string]string)
	if r.Client != "" {
		images["client"] = r.Client
	}
	if r.Server != "" {
		images["server"] = r.Server
	}
	return images
}

// BuildOptions configures one build
type BuildOptions struct {
	LLMOptimize bool
	LLMProvider string
}

// BuildRunnerConfig configures a BuildRunner
type BuildRunnerConfig struct {
	Binary  string
	Timeout time.Duration
}

// BuildRunner invokes the build runner binary and decodes its result
type BuildRunner struct {
	config  BuildRunnerConfig
	newExec func(env []string) Runner
	logger  *common.ContextLogger
}

// NewBuildRunner creates a runner backed by CommandExecutor
func NewBuildRunner(config BuildRunnerConfig, logger *common.ContextLogger) *BuildRunner {
	if config.Binary == "" {
		config.Binary = "nexlayer-dagger-runner"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Minute
	}
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	return &BuildRunner{
		config: config,
		newExec: func(env []string) Runner {
			return &CommandExecutor{Env: env}
		},
		logger: logger.WithField("component", "build_runner"),
	}
}

// Binary returns the runner binary name
func (b *BuildRunner) Binary() string {
	return b.config.Binary
}

// Build runs the build runner against repoPath. When the runner reports an
// error in its JSON output, the decoded result is returned together with an
// *ExecutionError carrying that message.
func (b *BuildRunner) Build(ctx context.Context, repoPath string, opts BuildOptions) (*BuildResult, error) {
	buildID := strings.ToLower(uuid.New().String()[:8])

	args := []string{repoPath}
	if opts.LLMOptimize {
		args = append(args, "--llm-optimize")
		if opts.LLMProvider != "" {
			args = append(args, "--llm-provider="+opts.LLMProvider)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	logger := b.logger.WithFields(map[string]interface{}{
		"build_id":  buildID,
		"repo_path": repoPath,
		"binary":    b.config.Binary,
	})
	logger.Info("Starting container build")

	runner := b.newExec([]string{BuildIDEnv + "=" + buildID})
	res, runErr := runner.Run(ctx, b.config.Binary, args...)
	if res == nil {
		return nil, runErr
	}

	result, parseErr := ParseBuildResult(res.Stdout)
	if parseErr != nil {
		var execErr *ExecutionError
		if errors.As(runErr, &execErr) && execErr.Code != CodeCommandError {
			// timeout, cancellation or missing binary explain the missing output
			logger.WithError(runErr).Error("Build runner did not complete")
			return nil, runErr
		}
		logger.WithField("stderr_tail", tail(res.Stderr, 20)).WithError(parseErr).Error("Build runner produced no result")
		return nil, &ExecutionError{
			Message: fmt.Sprintf("build runner produced no result (exit code %d): %s", res.ExitCode, tail(res.Stderr, 5)),
			Code:    CodeBadOutput,
			Details: map[string]interface{}{"build_id": buildID},
		}
	}

	if result.Error != "" {
		logger.WithField("exit_code", res.ExitCode).Warn("Build failed: " + result.Error)
		return result, &ExecutionError{
			Message: result.Error,
			Code:    CodeCommandError,
			Details: map[string]interface{}{"build_id": buildID, "exit_code": res.ExitCode},
		}
	}
	if runErr != nil {
		return result, runErr
	}

	logger.WithFields(map[string]interface{}{
		"duration_ms": res.Duration.Milliseconds(),
		"images":      len(result.Images()),
	}).Info("Container build completed")
	return result, nil
}

// ParseBuildResult decodes the last JSON object in the runner output. Runner
// tools may print progress lines before the result.
func ParseBuildResult(stdout string) (*BuildResult, error) {
	data := []byte(stdout)
	lastErr := errors.New("no JSON object in build output")

	for end := len(data); end > 0; {
		start := bytes.LastIndexByte(data[:end], '{')
		if start < 0 {
			break
		}
		if start == 0 || data[start-1] == '\n' {
			var result BuildResult
			err := json.NewDecoder(bytes.NewReader(data[start:])).Decode(&result)
			if err == nil {
				if result.Ports == nil {
					result.Ports = make(map[string]int)
				}
				return &result, nil
			}
			lastErr = err
		}
		end = start
	}

	return nil, fmt.Errorf("failed to decode build result: %w", lastErr)
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

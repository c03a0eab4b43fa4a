// Command nexlayer-dagger-runner builds the client/server services of a
// repository with Dagger and publishes the images to ttl.sh.
//
// Usage:
//
//	nexlayer-dagger-runner <repo-path> [--llm-optimize] [--llm-provider=openai]
//
// The build result is printed to stdout as JSON (see executor.BuildResult);
// everything else goes to stderr. The exit code is 1 when the result carries
// an error. A repository without buildable services is not an error.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dagger.io/dagger"
	"github.com/google/uuid"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/executor"
)

const usage = "usage: nexlayer-dagger-runner <repo-path> [--llm-optimize] [--llm-provider=openai]"

func main() {
	common.SetStdioMode(true)
	logger := common.NewContextLogger(nil, map[string]interface{}{"component": "dagger_runner"})

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts.BuildID = os.Getenv(executor.BuildIDEnv)
	if opts.BuildID == "" {
		opts.BuildID = strings.ToLower(uuid.New().String()[:8])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := execute(ctx, opts, logger)
	if err := writeResult(os.Stdout, result); err != nil {
		logger.WithError(err).Error("Failed to write build result")
		os.Exit(1)
	}
	os.Exit(exitCode(result))
}

// exitCode is 1 for a failed build; an empty repository still exits 0
func exitCode(result *executor.BuildResult) int {
	if result.Error == "" || result.Error == errNoServices {
		return 0
	}
	return 1
}

// execute connects to the Dagger engine only when there is something to build
func execute(ctx context.Context, opts options, logger *common.ContextLogger) *executor.BuildResult {
	services, err := discover(opts.RepoPath)
	if err != nil {
		return &executor.BuildResult{Error: err.Error(), Ports: map[string]int{}}
	}
	if len(services) == 0 {
		return &executor.BuildResult{Error: errNoServices, Ports: map[string]int{}}
	}

	client, err := dagger.Connect(ctx, dagger.WithLogOutput(os.Stderr))
	if err != nil {
		return &executor.BuildResult{Error: fmt.Sprintf("failed to connect to dagger engine: %v", err), Ports: map[string]int{}}
	}
	defer client.Close()

	return build(ctx, &daggerPublisher{client: client}, opts, services, logger)
}

func writeResult(w io.Writer, result *executor.BuildResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// daggerPublisher builds a Dockerfile context for linux/amd64 and pushes it
type daggerPublisher struct {
	client *dagger.Client
}

func (p *daggerPublisher) Publish(ctx context.Context, dir, ref string) (string, error) {
	src := p.client.Host().Directory(dir)
	return p.client.Container(dagger.ContainerOpts{Platform: "linux/amd64"}).
		Build(src).
		Publish(ctx, ref)
}

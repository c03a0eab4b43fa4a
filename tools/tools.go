// Package tools implements the Nexlayer deployment tools served over MCP:
// repository clone and analysis, Dockerfile and nexlayer.yaml generation,
// container builds, platform deployment management and trace queries.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/executor"
	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/platform"
	"nexlayer.io/mcp/tracestore"
	"nexlayer.io/mcp/workspace"
)

// Platform is the Nexlayer REST API
type Platform interface {
	StartUserDeployment(ctx context.Context, yamlBody []byte, appName string) (platform.Result, error)
	GetDeploymentInfo(ctx context.Context, namespace, appName string) (platform.Result, error)
	GetReservations(ctx context.Context) (platform.Result, error)
	AddReservation(ctx context.Context, appName string) (platform.Result, error)
	RemoveReservation(ctx context.Context, appName string) (platform.Result, error)
	ExtendDeployment(ctx context.Context, appName, sessionToken string) (platform.Result, error)
	ClaimDeployment(ctx context.Context, appName, sessionToken string) (platform.Result, error)
	SaveCustomDomain(ctx context.Context, appName, domain string) (platform.Result, error)
	SendFeedback(ctx context.Context, text string) (platform.Result, error)
}

// Workspace checks out repositories
type Workspace interface {
	Clone(ctx context.Context, opts workspace.CloneOptions) (*workspace.CloneResult, error)
}

// Builder builds and publishes container images
type Builder interface {
	Build(ctx context.Context, repoPath string, opts executor.BuildOptions) (*executor.BuildResult, error)
}

// TraceReader is the query side of the trace store
type TraceReader interface {
	GetTrace(sessionID string) *tracestore.Trace
	GetTraceSummary(sessionID string) *tracestore.Summary
	GetRecentTraces(limit int) []*tracestore.Trace
	GetTraceSummaries(limit int) []*tracestore.Summary
}

// Deps are the collaborators of the tool handlers
type Deps struct {
	Platform  Platform
	Workspace Workspace
	Builder   Builder
	Traces    TraceReader
	Logger    *common.ContextLogger

	// LLMOptimize is the default for nexlayer_build_images
	LLMOptimize bool
	// Now is the clock used for trace rendering
	Now func() time.Time
}

type handlers struct {
	Deps
	logger *common.ContextLogger
}

// Register adds every tool to the registry
func Register(reg *mcp.Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	h := &handlers{Deps: deps, logger: logger.WithField("component", "tools")}

	for _, tool := range h.catalog() {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) catalog() []mcp.Tool {
	var tools []mcp.Tool
	tools = append(tools, h.repositoryTools()...)
	tools = append(tools, h.buildTools()...)
	tools = append(tools, h.deployTools()...)
	tools = append(tools, h.traceTools()...)
	return tools
}

// sessionProperty is accepted by every traced tool
var sessionProperty = mcp.String("Deployment session ID returned by an earlier call; ties this call into the same trace")

// withSession adds the sessionId property to a schema's property set
func withSession(props map[string]mcp.Property) map[string]mcp.Property {
	if props == nil {
		props = map[string]mcp.Property{}
	}
	props["sessionId"] = sessionProperty
	return props
}

// platformError converts a platform client error into a tool error
func platformError(action string, err error) error {
	return mcp.WithCategory(platform.Category(err), fmt.Errorf("%s: %w", action, err))
}

// requireField returns a validation error when value is blank
func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return mcp.Validation("%s is required", name)
	}
	return nil
}

// platformResult renders a platform response as text plus structured data
func platformResult(headline string, result platform.Result) *mcp.Result {
	var b strings.Builder
	b.WriteString(headline)
	if msg := result.String("message"); msg != "" {
		b.WriteString("\n")
		b.WriteString(msg)
	}
	if len(result) > 0 {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			b.WriteString("\n\n")
			b.Write(raw)
		}
	}
	return &mcp.Result{Text: b.String(), Data: map[string]interface{}(result), Message: headline}
}

// buildError classifies build runner failures
func buildError(err error) error {
	var execErr *executor.ExecutionError
	if !errors.As(err, &execErr) {
		return mcp.Internal("build failed: %w", err)
	}
	switch execErr.Code {
	case executor.CodeTimeout, executor.CodeCancelled:
		return mcp.Transient("build did not finish: %w", err)
	case executor.CodeNotFound:
		return mcp.Internal("build runner is not installed (configure build.runner): %w", err)
	case executor.CodeCommandError:
		msg := strings.ToLower(execErr.Message)
		if strings.Contains(msg, "dockerfile") || strings.Contains(msg, "no buildable services") {
			return mcp.Validation("build failed: %w", err)
		}
		return mcp.Internal("build failed: %w", err)
	default:
		return mcp.Internal("build failed: %w", err)
	}
}

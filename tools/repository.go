package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"nexlayer.io/mcp/analyzer"
	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/workspace"
)

type cloneArgs struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch"`
	Depth   int    `json:"depth"`
	Token   string `json:"token"`
	Force   bool   `json:"force"`
}

type analyzeArgs struct {
	RepoPath string `json:"repoPath"`
	RepoURL  string `json:"repoUrl"`
	Branch   string `json:"branch"`
}

func (h *handlers) repositoryTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:  "nexlayer_clone_repository",
			Title: "Clone repository",
			Description: "Clone a git repository into the local workspace so it can be analyzed and built. " +
				"Starts a deployment trace and returns its sessionId; pass it to the following tools.",
			InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
				"repoUrl": mcp.String("Repository URL (https://, ssh:// or git@)"),
				"branch":  mcp.String("Branch to check out (default: the remote HEAD)"),
				"depth":   mcp.Integer("Clone depth (default 1)"),
				"token":   mcp.String("Access token for private repositories"),
				"force":   mcp.Boolean("Discard an existing checkout and clone again"),
			}), "repoUrl"),
			Annotations: mcp.Mutating(true),
			Trace:       mcp.TraceStart,
			Handler:     h.cloneRepository,
		},
		{
			Name:  "nexlayer_analyze_repository",
			Title: "Analyze repository",
			Description: "Detect the deployable services of a repository (client/, server/ or the root), " +
				"their framework, package manager, port and whether a Dockerfile exists. " +
				"Give repoPath for a local checkout or repoUrl to clone first.",
			InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
				"repoPath": mcp.String("Local path of the repository"),
				"repoUrl":  mcp.String("Repository URL, cloned into the workspace when repoPath is not given"),
				"branch":   mcp.String("Branch to clone when repoUrl is used"),
			})),
			Annotations: mcp.ReadOnly(),
			Trace:       mcp.TraceStart,
			Handler:     h.analyzeRepository,
		},
	}
}

func (h *handlers) cloneRepository(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args cloneArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("repoUrl", args.RepoURL); err != nil {
		return nil, err
	}

	result, err := h.Workspace.Clone(ctx, workspace.CloneOptions{
		URL:    args.RepoURL,
		Branch: args.Branch,
		Depth:  args.Depth,
		Token:  args.Token,
		Force:  args.Force,
	})
	if err != nil {
		return nil, cloneError(err)
	}

	verb := "Cloned"
	if result.Reused {
		verb = "Reusing existing checkout of"
	}
	text := fmt.Sprintf("%s %s into %s", verb, result.URL, result.Path)
	if result.Branch != "" {
		text += fmt.Sprintf("\nBranch: %s", result.Branch)
	}
	if len(result.Commit) >= 7 {
		text += fmt.Sprintf("\nCommit: %s", result.Commit[:7])
	}
	if req.SessionID != "" {
		text += fmt.Sprintf("\nSession: %s", req.SessionID)
	}
	text += "\n\nNext: nexlayer_analyze_repository with repoPath " + result.Path

	return &mcp.Result{
		Text:     text,
		Data:     result,
		StepData: map[string]interface{}{"path": result.Path, "commit": result.Commit},
	}, nil
}

func cloneError(err error) error {
	switch {
	case errors.Is(err, workspace.ErrInvalidURL):
		return mcp.Validation("%w", err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return mcp.NotFound("%w", err)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return mcp.Forbidden("%w (pass a token for private repositories)", err)
	default:
		return mcp.Transient("%w", err)
	}
}

func (h *handlers) analyzeRepository(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args analyzeArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}

	repoPath := args.RepoPath
	if repoPath == "" {
		if args.RepoURL == "" {
			return nil, mcp.Validation("repoPath or repoUrl is required")
		}
		cloned, err := h.Workspace.Clone(ctx, workspace.CloneOptions{URL: args.RepoURL, Branch: args.Branch})
		if err != nil {
			return nil, cloneError(err)
		}
		repoPath = cloned.Path
	}

	analysis, err := analyzeAt(repoPath)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", analysis.RepoPath)
	if req.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", req.SessionID)
	}
	if len(analysis.Services) == 0 {
		b.WriteString("\nNo deployable services found. Expected client/ and/or server/ directories, or a project file at the root.")
	} else {
		fmt.Fprintf(&b, "\nServices (%d):\n", len(analysis.Services))
		for _, svc := range analysis.Services {
			dockerfile := "Dockerfile present"
			if !svc.DockerfileExists {
				dockerfile = "no Dockerfile"
			}
			fmt.Fprintf(&b, "- %s: %s (%s), port %d from %s, %s\n",
				svc.Name, svc.Framework, svc.Language, svc.Port, svc.PortSource, dockerfile)
		}
		b.WriteString("\n")
		b.WriteString(analyzer.DAGSummary(analysis.Services))
	}
	for _, note := range analysis.Notes {
		fmt.Fprintf(&b, "\nNote: %s", note)
	}

	b.WriteString("\n\nNext: ")
	if missing := analysis.MissingDockerfiles(); len(missing) > 0 {
		fmt.Fprintf(&b, "nexlayer_generate_dockerfile for %s, then nexlayer_build_images", strings.Join(missing, ", "))
	} else if len(analysis.Services) > 0 {
		b.WriteString("nexlayer_build_images")
	} else {
		b.WriteString("add a client/ or server/ directory")
	}

	return &mcp.Result{
		Text:    b.String(),
		Data:    analysis,
		Message: fmt.Sprintf("Found %d service(s)", len(analysis.Services)),
		StepData: map[string]interface{}{
			"repoPath":           analysis.RepoPath,
			"services":           len(analysis.Services),
			"missingDockerfiles": analysis.MissingDockerfiles(),
		},
	}, nil
}

// analyzeAt runs the analyzer with tool error classification
func analyzeAt(repoPath string) (*analyzer.Analysis, error) {
	if err := requireField("repoPath", repoPath); err != nil {
		return nil, err
	}
	info, err := os.Stat(repoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mcp.NotFound("repository path %s does not exist", repoPath)
		}
		return nil, mcp.Internal("failed to read %s: %w", repoPath, err)
	}
	if !info.IsDir() {
		return nil, mcp.Validation("repository path %s is not a directory", repoPath)
	}

	analysis, err := analyzer.Analyze(repoPath)
	if err != nil {
		return nil, mcp.Internal("analysis failed: %w", err)
	}
	return analysis, nil
}

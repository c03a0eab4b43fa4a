package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nexlayer.io/mcp/analyzer"
	"nexlayer.io/mcp/executor"
	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/templates"
)

type dockerfileArgs struct {
	RepoPath     string `json:"repoPath"`
	Service      string `json:"service"`
	Framework    string `json:"framework"`
	Port         int    `json:"port"`
	StartCommand string `json:"startCommand"`
	BuildDir     string `json:"buildDir"`
	Write        bool   `json:"write"`
	Overwrite    bool   `json:"overwrite"`
}

// GeneratedDockerfile is one rendered Dockerfile
type GeneratedDockerfile struct {
	Service   string             `json:"service"`
	Path      string             `json:"path"`
	Framework analyzer.Framework `json:"framework"`
	Port      int                `json:"port"`
	Content   string             `json:"content"`
	Written   bool               `json:"written"`
}

type buildArgs struct {
	RepoPath    string `json:"repoPath"`
	LLMOptimize *bool  `json:"llmOptimize"`
	LLMProvider string `json:"llmProvider"`
}

func (h *handlers) buildTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:  "nexlayer_generate_dockerfile",
			Title: "Generate Dockerfile",
			Description: "Render a Dockerfile for a service from its detected framework. " +
				"Without service, every service lacking a Dockerfile is handled. Set write to save the files.",
			InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
				"repoPath":     mcp.String("Local path of the repository"),
				"service":      {Type: "string", Description: "Service to generate for", Enum: []string{analyzer.ServiceClient, analyzer.ServiceServer, analyzer.ServiceApp}},
				"framework":    mcp.String("Override the detected framework (nextjs, react, vite, vue, angular, express, nestjs, node, django, fastapi, flask, python, go)"),
				"port":         mcp.Integer("Override the port"),
				"startCommand": mcp.String("Override the start command"),
				"buildDir":     mcp.String("Static build output directory for single-page apps"),
				"write":        mcp.Boolean("Write the Dockerfile next to the service"),
				"overwrite":    mcp.Boolean("Replace an existing Dockerfile when writing"),
			}), "repoPath"),
			Annotations: mcp.Mutating(true),
			Trace:       mcp.TraceStep,
			Handler:     h.generateDockerfile,
		},
		{
			Name:  "nexlayer_build_images",
			Title: "Build images",
			Description: "Build container images for the client/server services of a repository and publish them " +
				"to ttl.sh (1 hour lifetime). Every service needs a Dockerfile. Returns image URLs and ports for nexlayer_generate_yaml.",
			InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
				"repoPath":    mcp.String("Local path of the repository"),
				"llmOptimize": mcp.Boolean("Ask the build runner for optimization insights"),
				"llmProvider": mcp.String("Insight provider (default openai)"),
			}), "repoPath"),
			Annotations: mcp.Mutating(false),
			Trace:       mcp.TraceStep,
			Handler:     h.buildImages,
		},
		h.generateYAMLTool(),
	}
}

func (h *handlers) generateDockerfile(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args dockerfileArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	analysis, err := analyzeAt(args.RepoPath)
	if err != nil {
		return nil, err
	}

	var targets []analyzer.Service
	if args.Service != "" {
		svc, ok := analysis.Service(args.Service)
		if !ok {
			return nil, mcp.NotFound("service %s not found in %s", args.Service, args.RepoPath)
		}
		targets = append(targets, svc)
	} else {
		for _, svc := range analysis.Services {
			if !svc.DockerfileExists {
				targets = append(targets, svc)
			}
		}
	}

	if len(targets) == 0 {
		if len(analysis.Services) == 0 {
			return nil, mcp.Validation("no deployable services found in %s", args.RepoPath)
		}
		return &mcp.Result{
			Text: "All services already have a Dockerfile. Next: nexlayer_build_images",
			Data: map[string]interface{}{"dockerfiles": []GeneratedDockerfile{}},
		}, nil
	}

	generated := make([]GeneratedDockerfile, 0, len(targets))
	for _, svc := range targets {
		framework := svc.Framework
		if args.Framework != "" {
			framework = analyzer.Framework(args.Framework)
		}
		port := svc.Port
		if args.Port != 0 {
			port = args.Port
		}

		content, err := templates.RenderDockerfile(templates.DockerfileParams{
			Framework:      framework,
			PackageManager: svc.PackageManager,
			Port:           port,
			StartCommand:   args.StartCommand,
			BuildDir:       args.BuildDir,
		})
		if err != nil {
			return nil, mcp.Validation("cannot render Dockerfile for %s: %w", svc.Name, err)
		}

		out := GeneratedDockerfile{
			Service:   svc.Name,
			Path:      filepath.Join(svc.Path, "Dockerfile"),
			Framework: framework,
			Port:      port,
			Content:   content,
		}
		if args.Write && svc.DockerfileExists && !args.Overwrite {
			return nil, mcp.Conflict("%s already exists (set overwrite to replace it)", out.Path)
		}
		generated = append(generated, out)
	}

	if args.Write {
		if err := h.writeDockerfiles(generated); err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	for _, out := range generated {
		status := "generated"
		if out.Written {
			status = "written to " + out.Path
		}
		fmt.Fprintf(&b, "# %s (%s, port %d): %s\n%s\n", out.Service, out.Framework, out.Port, status, out.Content)
	}

	if args.Write {
		b.WriteString("Next: nexlayer_build_images")
	} else {
		b.WriteString("Save these files (or call again with write=true), then nexlayer_build_images")
	}

	names := make([]string, len(generated))
	for i, g := range generated {
		names[i] = g.Service
	}
	return &mcp.Result{
		Text:     b.String(),
		Data:     map[string]interface{}{"dockerfiles": generated},
		Message:  "Dockerfile generated for " + strings.Join(names, ", "),
		StepData: map[string]interface{}{"services": names, "written": args.Write},
	}, nil
}

// writeDockerfiles writes every file or none: on failure the files already
// written are restored to their previous content.
func (h *handlers) writeDockerfiles(files []GeneratedDockerfile) error {
	previous := make([][]byte, 0, len(files))
	for i := range files {
		out := &files[i]
		old, readErr := os.ReadFile(out.Path)
		if readErr != nil {
			old = nil
		}
		if err := os.WriteFile(out.Path, []byte(out.Content), 0o644); err != nil {
			for j := i - 1; j >= 0; j-- {
				restoreFile(files[j].Path, previous[j])
				files[j].Written = false
			}
			return mcp.Internal("failed to write %s, no Dockerfile was changed: %w", out.Path, err)
		}
		previous = append(previous, old)
		out.Written = true
	}
	for _, out := range files {
		h.logger.WithFields(map[string]interface{}{"service": out.Service, "path": out.Path}).Info("Dockerfile written")
	}
	return nil
}

// restoreFile puts back content, or removes path when there was none
func restoreFile(path string, content []byte) {
	if content == nil {
		_ = os.Remove(path)
		return
	}
	_ = os.WriteFile(path, content, 0o644)
}

func (h *handlers) buildImages(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args buildArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	analysis, err := analyzeAt(args.RepoPath)
	if err != nil {
		return nil, err
	}
	if len(analysis.Services) == 0 {
		return nil, mcp.Validation("no buildable services found in %s (client/ or server/ directories)", args.RepoPath)
	}
	if missing := analysis.MissingDockerfiles(); len(missing) > 0 {
		return nil, mcp.Validation("no Dockerfile for %s; run nexlayer_generate_dockerfile first", strings.Join(missing, ", "))
	}

	opts := executor.BuildOptions{LLMOptimize: h.LLMOptimize, LLMProvider: args.LLMProvider}
	if args.LLMOptimize != nil {
		opts.LLMOptimize = *args.LLMOptimize
	}

	result, err := h.Builder.Build(ctx, args.RepoPath, opts)
	if err != nil {
		return nil, buildError(err)
	}

	images := result.Images()
	var b strings.Builder
	fmt.Fprintf(&b, "Built %d image(s):\n", len(images))
	services := make([]string, 0, len(images))
	for name := range images {
		services = append(services, name)
	}
	sort.Strings(services)
	for _, name := range services {
		fmt.Fprintf(&b, "- %s: %s (port %d)\n", name, images[name], result.Ports[name])
	}
	b.WriteString("Images expire after 1 hour.\n")
	if result.DAGSummary != "" {
		b.WriteString("\n")
		b.WriteString(result.DAGSummary)
	}
	if result.LLMInsights != "" {
		b.WriteString("\n")
		b.WriteString(result.LLMInsights)
	}
	b.WriteString("\nNext: nexlayer_generate_yaml with these images")

	return &mcp.Result{
		Text:     b.String(),
		Data:     result,
		Message:  fmt.Sprintf("Built %d image(s)", len(images)),
		StepData: map[string]interface{}{"images": images},
	}, nil
}

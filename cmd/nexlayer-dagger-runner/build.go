package main

import (
	"context"
	"fmt"
	"strings"

	"nexlayer.io/mcp/analyzer"
	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/executor"
)

const errNoServices = "No buildable services found (client/ or server/ directories)"

// Registry is where images are pushed; tags expire after an hour
const Registry = "ttl.sh"

type options struct {
	RepoPath    string
	LLMOptimize bool
	LLMProvider string
	BuildID     string
}

// Publisher builds the Dockerfile in dir and pushes the image as ref
type Publisher interface {
	Publish(ctx context.Context, dir, ref string) (string, error)
}

func parseArgs(args []string) (options, error) {
	if len(args) < 1 || len(args) > 3 {
		return options{}, fmt.Errorf("%s", usage)
	}
	opts := options{RepoPath: args[0], LLMProvider: "openai"}
	for _, arg := range args[1:] {
		switch {
		case arg == "--llm-optimize":
			opts.LLMOptimize = true
		case strings.HasPrefix(arg, "--llm-provider="):
			opts.LLMProvider = strings.TrimPrefix(arg, "--llm-provider=")
		default:
			return options{}, fmt.Errorf("unknown argument %q\n%s", arg, usage)
		}
	}
	if opts.RepoPath == "" {
		return options{}, fmt.Errorf("%s", usage)
	}
	return opts, nil
}

func discover(repoPath string) ([]analyzer.Service, error) {
	analysis, err := analyzer.Analyze(repoPath)
	if err != nil {
		return nil, err
	}
	return analysis.Services, nil
}

// imageRef is the ttl.sh reference for a service of this build
func imageRef(service, buildID string) string {
	return fmt.Sprintf("%s/%s-%s:1h", Registry, service, buildID)
}

func build(ctx context.Context, pub Publisher, opts options, services []analyzer.Service, logger *common.ContextLogger) *executor.BuildResult {
	result := &executor.BuildResult{Ports: map[string]int{}, DAGSummary: analyzer.DAGSummary(services)}

	for _, svc := range services {
		if !svc.DockerfileExists {
			result.Error = fmt.Sprintf("No Dockerfile found for %s. Please use nexlayer_generate_dockerfile first to create one.", svc.Name)
			return result
		}
	}

	for _, svc := range services {
		log := logger.WithFields(map[string]interface{}{"service": svc.Name, "build_id": opts.BuildID})
		log.Info("Building image")

		ref, err := pub.Publish(ctx, svc.Path, imageRef(svc.Name, opts.BuildID))
		if err != nil {
			log.WithError(err).Error("Image build failed")
			result.Error = fmt.Sprintf("build of %s failed: %v", svc.Name, err)
			return result
		}
		log.WithField("image", ref).Info("Image published")

		switch svc.Name {
		case analyzer.ServiceServer:
			result.Server = ref
		case analyzer.ServiceClient:
			result.Client = ref
		default:
			if result.Client == "" {
				result.Client = ref
			}
		}
		port := svc.Port
		if svc.Name == analyzer.ServiceApp {
			result.Ports[analyzer.ServiceClient] = port
		}
		result.Ports[svc.Name] = port
	}

	if opts.LLMOptimize {
		result.LLMInsights = insights(opts.LLMProvider, services)
	}
	return result
}

// insights returns static optimization hints labelled with the provider
func insights(provider string, services []analyzer.Service) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimization insights (%s):\n", provider)
	for _, svc := range services {
		fmt.Fprintf(&b, "- %s: ", svc.Name)
		switch {
		case svc.Framework.Static():
			b.WriteString("serve the static build from nginx and keep node out of the runtime image\n")
		case svc.Language == "javascript":
			b.WriteString("use a multi-stage build and install production dependencies only\n")
		case svc.Language == "python":
			b.WriteString("use a slim base image and pip install --no-cache-dir\n")
		default:
			b.WriteString("order Dockerfile layers so dependency installs are cached\n")
		}
	}
	return b.String()
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"nexlayer.io/mcp/analyzer"
	"nexlayer.io/mcp/mcp"
)

// YAMLFileName is the deployment manifest written into a repository
const YAMLFileName = "nexlayer.yaml"

// NexlayerYAML is the deployment manifest accepted by the platform
type NexlayerYAML struct {
	Application Application `yaml:"application" json:"application"`
}

// Application is the deployed unit
type Application struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
	Pods []Pod  `yaml:"pods" json:"pods"`
}

// Pod is one container of an application
type Pod struct {
	Name         string            `yaml:"name" json:"name"`
	Image        string            `yaml:"image" json:"image"`
	Path         string            `yaml:"path,omitempty" json:"path,omitempty"`
	ServicePorts []int             `yaml:"servicePorts" json:"servicePorts"`
	Vars         map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
}

var appNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Validate checks the manifest before it is sent to the platform
func (y *NexlayerYAML) Validate() error {
	app := y.Application
	if !appNamePattern.MatchString(app.Name) {
		return fmt.Errorf("application name %q must be lowercase letters, digits and hyphens", app.Name)
	}
	if len(app.Pods) == 0 {
		return fmt.Errorf("application %s has no pods", app.Name)
	}
	seen := make(map[string]bool, len(app.Pods))
	for i, pod := range app.Pods {
		if pod.Name == "" {
			return fmt.Errorf("pod %d has no name", i)
		}
		if seen[pod.Name] {
			return fmt.Errorf("duplicate pod name %s", pod.Name)
		}
		seen[pod.Name] = true
		if pod.Image == "" {
			return fmt.Errorf("pod %s has no image", pod.Name)
		}
		if len(pod.ServicePorts) == 0 {
			return fmt.Errorf("pod %s has no servicePorts", pod.Name)
		}
		for _, port := range pod.ServicePorts {
			if port < 1 || port > 65535 {
				return fmt.Errorf("pod %s has invalid port %d", pod.Name, port)
			}
		}
	}
	return nil
}

// Marshal renders the manifest as YAML
func (y *NexlayerYAML) Marshal() ([]byte, error) {
	return yaml.Marshal(y)
}

// ParseYAML decodes and validates a manifest
func ParseYAML(data []byte) (*NexlayerYAML, error) {
	var manifest NexlayerYAML
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// PodsFromBuild lays out client and server pods from built images. With both
// present the server is mounted under /api and the client learns its address.
func PodsFromBuild(images map[string]string, ports map[string]int) []Pod {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	_, hasServer := images[analyzer.ServiceServer]
	_, hasClient := images[analyzer.ServiceClient]

	pods := make([]Pod, 0, len(names))
	for _, name := range names {
		port := ports[name]
		if port == 0 {
			port = defaultPort(name)
		}
		pod := Pod{Name: name, Image: images[name], Path: "/", ServicePorts: []int{port}}
		if name == analyzer.ServiceServer && hasClient {
			pod.Path = "/api"
		}
		if name == analyzer.ServiceClient && hasServer {
			serverPort := ports[analyzer.ServiceServer]
			if serverPort == 0 {
				serverPort = analyzer.DefaultServerPort
			}
			pod.Vars = map[string]string{"API_URL": fmt.Sprintf("http://%s.pod:%d", analyzer.ServiceServer, serverPort)}
		}
		pods = append(pods, pod)
	}
	return pods
}

func defaultPort(service string) int {
	if service == analyzer.ServiceServer {
		return analyzer.DefaultServerPort
	}
	return analyzer.DefaultClientPort
}

type yamlArgs struct {
	ApplicationName string         `json:"applicationName"`
	URL             string         `json:"url"`
	Pods            []Pod          `json:"pods"`
	Client          string         `json:"client"`
	Server          string         `json:"server"`
	Ports           map[string]int `json:"ports"`
	RepoPath        string         `json:"repoPath"`
	Write           bool           `json:"write"`
}

func (h *handlers) generateYAMLTool() mcp.Tool {
	return mcp.Tool{
		Name:  "nexlayer_generate_yaml",
		Title: "Generate nexlayer.yaml",
		Description: "Produce the nexlayer.yaml deployment manifest. Give pods explicitly, or the client/server " +
			"image URLs and ports returned by nexlayer_build_images. Set write with repoPath to save it.",
		InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
			"applicationName": mcp.String("Application name (lowercase letters, digits, hyphens)"),
			"url":             mcp.String("Custom domain for the application"),
			"pods": {Type: "array", Description: "Explicit pods", Items: mcp.ObjectSchema(map[string]mcp.Property{
				"name":         mcp.String("Pod name"),
				"image":        mcp.String("Container image"),
				"path":         mcp.String("Route prefix"),
				"servicePorts": {Type: "array", Items: map[string]any{"type": "integer"}},
				"vars":         {Type: "object", Description: "Environment variables"},
			}, "name", "image", "servicePorts")},
			"client":   mcp.String("Client image URL from nexlayer_build_images"),
			"server":   mcp.String("Server image URL from nexlayer_build_images"),
			"ports":    {Type: "object", Description: "Ports by service name from nexlayer_build_images"},
			"repoPath": mcp.String("Repository to write nexlayer.yaml into"),
			"write":    mcp.Boolean("Write nexlayer.yaml into repoPath"),
		}), "applicationName"),
		Annotations: mcp.Mutating(true),
		Trace:       mcp.TraceStep,
		Handler:     h.generateYAML,
	}
}

func (h *handlers) generateYAML(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args yamlArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}

	pods := args.Pods
	if len(pods) == 0 {
		images := map[string]string{}
		if args.Client != "" {
			images[analyzer.ServiceClient] = args.Client
		}
		if args.Server != "" {
			images[analyzer.ServiceServer] = args.Server
		}
		if len(images) == 0 {
			return nil, mcp.Validation("give pods or the client/server images from nexlayer_build_images")
		}
		pods = PodsFromBuild(images, args.Ports)
	}

	manifest := &NexlayerYAML{Application: Application{
		Name: strings.ToLower(strings.TrimSpace(args.ApplicationName)),
		URL:  args.URL,
		Pods: pods,
	}}
	if err := manifest.Validate(); err != nil {
		return nil, mcp.Validation("%w", err)
	}
	content, err := manifest.Marshal()
	if err != nil {
		return nil, mcp.Internal("failed to render YAML: %w", err)
	}

	text := string(content)
	written := ""
	if args.Write {
		if args.RepoPath == "" {
			return nil, mcp.Validation("repoPath is required when write is set")
		}
		written = filepath.Join(args.RepoPath, YAMLFileName)
		if err := os.WriteFile(written, content, 0o644); err != nil {
			return nil, mcp.Internal("failed to write %s: %w", written, err)
		}
		text += "\nWritten to " + written
	}
	text += "\nNext: nexlayer_deploy with this YAML"

	return &mcp.Result{
		Text: text,
		Data: map[string]interface{}{
			"yaml":     string(content),
			"manifest": manifest,
			"path":     written,
		},
		Message:  fmt.Sprintf("Generated %s with %d pod(s)", YAMLFileName, len(pods)),
		StepData: map[string]interface{}{"applicationName": manifest.Application.Name, "pods": len(pods)},
	}, nil
}

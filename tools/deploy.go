package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nexlayer.io/mcp/mcp"
)

type deployArgs struct {
	YAML            string `json:"yaml"`
	YAMLPath        string `json:"yamlPath"`
	RepoPath        string `json:"repoPath"`
	ApplicationName string `json:"applicationName"`
}

type appArgs struct {
	ApplicationName string `json:"applicationName"`
	Namespace       string `json:"namespace"`
	SessionToken    string `json:"sessionToken"`
	Domain          string `json:"domain"`
}

type feedbackArgs struct {
	Text string `json:"text"`
}

var (
	appNameProperty      = mcp.String("Application name")
	sessionTokenProperty = mcp.String("Session token returned by nexlayer_deploy")
)

func (h *handlers) deployTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:  "nexlayer_deploy",
			Title: "Deploy",
			Description: "Deploy a nexlayer.yaml to the Nexlayer platform. Give the YAML inline, a yamlPath, or a repoPath " +
				"containing nexlayer.yaml. Completes the deployment trace and returns the live URL.",
			InputSchema: mcp.ObjectSchema(withSession(map[string]mcp.Property{
				"yaml":            mcp.String("nexlayer.yaml content"),
				"yamlPath":        mcp.String("Path of a nexlayer.yaml file"),
				"repoPath":        mcp.String("Repository containing nexlayer.yaml"),
				"applicationName": mcp.String("Reserved application to deploy into (optional)"),
			})),
			Annotations: mcp.Mutating(false),
			Trace:       mcp.TraceComplete,
			Handler:     h.deploy,
		},
		{
			Name:        "nexlayer_get_deployment_status",
			Title:       "Deployment status",
			Description: "Get the status of a deployed application.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"namespace":       mcp.String("Namespace returned by nexlayer_deploy"),
				"applicationName": appNameProperty,
			}, "namespace", "applicationName"),
			Annotations: mcp.ReadOnly(),
			Handler:     h.deploymentStatus,
		},
		{
			Name:        "nexlayer_get_reservations",
			Title:       "List reservations",
			Description: "List the applications reserved on your account. Requires a platform token.",
			Annotations: mcp.ReadOnly(),
			Handler:     h.getReservations,
		},
		{
			Name:        "nexlayer_add_reservation",
			Title:       "Reserve application",
			Description: "Reserve an application name so its deployment does not expire. Requires a platform token.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"applicationName": appNameProperty}, "applicationName"),
			Annotations: mcp.Mutating(true),
			Handler:     h.addReservation,
		},
		{
			Name:        "nexlayer_remove_reservation",
			Title:       "Remove reservation",
			Description: "Release a reserved application. Requires a platform token.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"applicationName": appNameProperty}, "applicationName"),
			Annotations: mcp.Mutating(true),
			Handler:     h.removeReservation,
		},
		{
			Name:        "nexlayer_extend_deployment",
			Title:       "Extend deployment",
			Description: "Extend the lifetime of a temporary deployment.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"applicationName": appNameProperty,
				"sessionToken":    sessionTokenProperty,
			}, "applicationName", "sessionToken"),
			Annotations: mcp.Mutating(false),
			Handler:     h.extendDeployment,
		},
		{
			Name:        "nexlayer_claim_deployment",
			Title:       "Claim deployment",
			Description: "Attach a temporary deployment to your Nexlayer account.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"applicationName": appNameProperty,
				"sessionToken":    sessionTokenProperty,
			}, "applicationName", "sessionToken"),
			Annotations: mcp.Mutating(true),
			Handler:     h.claimDeployment,
		},
		{
			Name:        "nexlayer_save_custom_domain",
			Title:       "Save custom domain",
			Description: "Point a custom domain at an application. Requires a platform token.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"applicationName": appNameProperty,
				"domain":          mcp.String("Domain name, e.g. shop.example.com"),
			}, "applicationName", "domain"),
			Annotations: mcp.Mutating(true),
			Handler:     h.saveCustomDomain,
		},
		{
			Name:        "nexlayer_send_feedback",
			Title:       "Send feedback",
			Description: "Send feedback about Nexlayer to the team.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"text": mcp.String("Feedback text")}, "text"),
			Annotations: mcp.Mutating(false),
			Handler:     h.sendFeedback,
		},
	}
}

func (h *handlers) deploy(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args deployArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}

	content := []byte(args.YAML)
	if strings.TrimSpace(args.YAML) == "" {
		path := args.YAMLPath
		if path == "" && args.RepoPath != "" {
			path = filepath.Join(args.RepoPath, YAMLFileName)
		}
		if path == "" {
			return nil, mcp.Validation("yaml, yamlPath or repoPath is required")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, mcp.NotFound("%s does not exist; run nexlayer_generate_yaml first", path)
			}
			return nil, mcp.Internal("failed to read %s: %w", path, err)
		}
		content = data
	}

	manifest, err := ParseYAML(content)
	if err != nil {
		return nil, mcp.Validation("%w", err)
	}

	result, err := h.Platform.StartUserDeployment(ctx, content, args.ApplicationName)
	if err != nil {
		return nil, platformError("deployment failed", err)
	}

	appName := manifest.Application.Name
	var b strings.Builder
	fmt.Fprintf(&b, "Deployment started for %s", appName)
	if url := result.String("url"); url != "" {
		fmt.Fprintf(&b, "\nURL: %s", url)
	}
	if ns := result.String("namespace"); ns != "" {
		fmt.Fprintf(&b, "\nNamespace: %s", ns)
	}
	if token := result.String("sessionToken"); token != "" {
		b.WriteString("\nSession token returned (use it with nexlayer_extend_deployment or nexlayer_claim_deployment)")
	}
	if msg := result.String("message"); msg != "" {
		fmt.Fprintf(&b, "\n%s", msg)
	}
	if ns := result.String("namespace"); ns != "" {
		fmt.Fprintf(&b, "\n\nNext: nexlayer_get_deployment_status with namespace %s and applicationName %s", ns, appName)
	}

	return &mcp.Result{
		Text:            b.String(),
		Data:            map[string]interface{}(result),
		Message:         "Deployed " + appName,
		StepData:        map[string]interface{}{"url": result.String("url"), "namespace": result.String("namespace")},
		ApplicationName: appName,
	}, nil
}

func (h *handlers) deploymentStatus(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("namespace", args.Namespace); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	result, err := h.Platform.GetDeploymentInfo(ctx, args.Namespace, args.ApplicationName)
	if err != nil {
		return nil, platformError("failed to get deployment status", err)
	}
	return platformResult(fmt.Sprintf("Deployment %s/%s", args.Namespace, args.ApplicationName), result), nil
}

func (h *handlers) getReservations(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	result, err := h.Platform.GetReservations(ctx)
	if err != nil {
		return nil, platformError("failed to list reservations", err)
	}
	return platformResult("Reservations", result), nil
}

func (h *handlers) addReservation(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	result, err := h.Platform.AddReservation(ctx, args.ApplicationName)
	if err != nil {
		return nil, platformError("failed to reserve "+args.ApplicationName, err)
	}
	return platformResult("Reserved "+args.ApplicationName, result), nil
}

func (h *handlers) removeReservation(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	result, err := h.Platform.RemoveReservation(ctx, args.ApplicationName)
	if err != nil {
		return nil, platformError("failed to remove reservation for "+args.ApplicationName, err)
	}
	return platformResult("Removed reservation for "+args.ApplicationName, result), nil
}

func (h *handlers) extendDeployment(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	if err := requireField("sessionToken", args.SessionToken); err != nil {
		return nil, err
	}
	result, err := h.Platform.ExtendDeployment(ctx, args.ApplicationName, args.SessionToken)
	if err != nil {
		return nil, platformError("failed to extend "+args.ApplicationName, err)
	}
	return platformResult("Extended "+args.ApplicationName, result), nil
}

func (h *handlers) claimDeployment(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	if err := requireField("sessionToken", args.SessionToken); err != nil {
		return nil, err
	}
	result, err := h.Platform.ClaimDeployment(ctx, args.ApplicationName, args.SessionToken)
	if err != nil {
		return nil, platformError("failed to claim "+args.ApplicationName, err)
	}
	return platformResult("Claimed "+args.ApplicationName, result), nil
}

func (h *handlers) saveCustomDomain(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args appArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("applicationName", args.ApplicationName); err != nil {
		return nil, err
	}
	if err := requireField("domain", args.Domain); err != nil {
		return nil, err
	}
	result, err := h.Platform.SaveCustomDomain(ctx, args.ApplicationName, args.Domain)
	if err != nil {
		return nil, platformError("failed to save domain "+args.Domain, err)
	}
	return platformResult(fmt.Sprintf("Saved domain %s for %s", args.Domain, args.ApplicationName), result), nil
}

func (h *handlers) sendFeedback(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	var args feedbackArgs
	if err := req.Bind(&args); err != nil {
		return nil, err
	}
	if err := requireField("text", args.Text); err != nil {
		return nil, err
	}
	result, err := h.Platform.SendFeedback(ctx, args.Text)
	if err != nil {
		return nil, platformError("failed to send feedback", err)
	}
	return platformResult("Feedback sent, thank you", result), nil
}

package tools

import (
	"context"

	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/templates"
	"nexlayer.io/mcp/tracestore"
)

// DefaultRecentTraces is the limit of nexlayer_get_recent_traces
const DefaultRecentTraces = 10

type traceArgs struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit"`
}

func (h *handlers) traceTools() []mcp.Tool {
	lookup := mcp.String("Session ID of the deployment trace")
	limit := mcp.Property{Type: "integer", Description: "Maximum number of traces", Default: DefaultRecentTraces}

	return []mcp.Tool{
		{
			Name:        "nexlayer_get_deployment_trace",
			Title:       "Deployment trace",
			Description: "Show every step of a deployment session with timings and errors.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"sessionId": lookup}, "sessionId"),
			Annotations: mcp.ReadOnly(),
			Handler:     h.getDeploymentTrace,
		},
		{
			Name:        "nexlayer_get_recent_traces",
			Title:       "Recent traces",
			Description: "List recent deployment sessions, newest first.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"limit": limit}),
			Annotations: mcp.ReadOnly(),
			Handler:     h.getRecentTraces,
		},
		{
			Name:  "nexlayer_get_trace_summary",
			Title: "Trace summary",
			Description: "Summarize a deployment session (step counts, first failure). Without sessionId, " +
				"summarize recent sessions.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{"sessionId": lookup, "limit": limit}),
			Annotations: mcp.ReadOnly(),
			Handler:     h.getTraceSummary,
		},
	}
}

func (h *handlers) bindTraceArgs(req *mcp.Request) (traceArgs, error) {
	var args traceArgs
	if err := req.Bind(&args); err != nil {
		return args, err
	}
	if h.Traces == nil {
		return args, mcp.Internal("trace store is not configured")
	}
	if args.Limit <= 0 {
		args.Limit = DefaultRecentTraces
	}
	return args, nil
}

func (h *handlers) getDeploymentTrace(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	args, err := h.bindTraceArgs(req)
	if err != nil {
		return nil, err
	}
	if err := requireField("sessionId", args.SessionID); err != nil {
		return nil, err
	}

	trace := h.Traces.GetTrace(args.SessionID)
	if trace == nil {
		return nil, mcp.NotFound("no trace for session %s; it may have expired", args.SessionID)
	}
	text, err := templates.RenderTrace(trace, h.Now())
	if err != nil {
		return nil, mcp.Internal("failed to render trace: %w", err)
	}
	return &mcp.Result{Text: text, Data: trace}, nil
}

func (h *handlers) getRecentTraces(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	args, err := h.bindTraceArgs(req)
	if err != nil {
		return nil, err
	}

	traces := h.Traces.GetRecentTraces(args.Limit)
	summaries := h.Traces.GetTraceSummaries(args.Limit)
	text, err := templates.RenderSummaries(derefSummaries(summaries), h.Now())
	if err != nil {
		return nil, mcp.Internal("failed to render traces: %w", err)
	}
	return &mcp.Result{
		Text: text,
		Data: map[string]interface{}{"traces": traces, "count": len(traces)},
	}, nil
}

func (h *handlers) getTraceSummary(ctx context.Context, req *mcp.Request) (*mcp.Result, error) {
	args, err := h.bindTraceArgs(req)
	if err != nil {
		return nil, err
	}

	if args.SessionID == "" {
		summaries := h.Traces.GetTraceSummaries(args.Limit)
		text, err := templates.RenderSummaries(derefSummaries(summaries), h.Now())
		if err != nil {
			return nil, mcp.Internal("failed to render summaries: %w", err)
		}
		return &mcp.Result{
			Text: text,
			Data: map[string]interface{}{"summaries": summaries, "count": len(summaries)},
		}, nil
	}

	summary := h.Traces.GetTraceSummary(args.SessionID)
	if summary == nil {
		return nil, mcp.NotFound("no trace for session %s; it may have expired", args.SessionID)
	}
	text, err := templates.RenderSummary(summary, h.Now())
	if err != nil {
		return nil, mcp.Internal("failed to render summary: %w", err)
	}
	return &mcp.Result{Text: text, Data: summary}, nil
}

func derefSummaries(in []*tracestore.Summary) []tracestore.Summary {
	out := make([]tracestore.Summary, 0, len(in))
	for _, s := range in {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/tracestore"
)

// TraceRecorder is the part of the trace store the dispatcher drives
type TraceRecorder interface {
	StartTrace(sessionID, repoURL string, metadata map[string]string) *tracestore.Trace
	AddStep(sessionID, tool string, status tracestore.Status, extra *tracestore.StepExtra) (*tracestore.Step, error)
	UpdateStep(sessionID, tool string, update tracestore.StepUpdate)
	CompleteTrace(sessionID string, status tracestore.Status, applicationName string) (*tracestore.Trace, error)
	GetTrace(sessionID string) *tracestore.Trace
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Registry *Registry
	// Traces may be nil, in which case every call runs untraced
	Traces       TraceRecorder
	Logger       *common.ContextLogger
	LogRateLimit common.RateLimitConfig
	// Timeout bounds one handler invocation (0 = none)
	Timeout time.Duration
}

// Dispatcher wraps every tool handler with logging, tracing, a timeout and
// panic recovery
type Dispatcher struct {
	registry *Registry
	traces   TraceRecorder
	logger   *common.ContextLogger
	log      *common.RateLimitedLogger
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	logger = logger.WithField("component", "dispatch")
	return &Dispatcher{
		registry: config.Registry,
		traces:   config.Traces,
		logger:   logger,
		log:      common.NewRateLimitedLogger(logger, config.LogRateLimit),
		timeout:  config.Timeout,
	}
}

// ErrUnknownTool is returned for tool names not in the registry
var ErrUnknownTool = errors.New("unknown tool")

// call runs one tool. Handler failures come back as an error CallResult;
// the returned error is reserved for unknown tools.
func (d *Dispatcher) call(ctx context.Context, sess *session, name string, arguments json.RawMessage) (*CallResult, error) {
	tool, ok := d.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if sess == nil {
		sess = &session{initialized: true}
	}

	args, err := decodeArguments(arguments)
	if err != nil {
		return buildResult(nil, Validation("invalid arguments for %s: %w", name, err), "", ""), nil
	}

	req := &Request{Tool: name, Arguments: arguments, Client: sess.client}
	notice := d.beginTrace(tool, req, args, sess)
	traced := req.SessionID != ""

	d.log.Info(map[string]interface{}{
		"tool":       name,
		"session_id": req.SessionID,
		"trace":      tool.Trace.String(),
		"arguments":  common.SanitizeMap(args),
	}, "Tool call started")

	start := time.Now()
	result, err := d.invoke(ctx, tool, req)
	duration := time.Since(start)

	if traced {
		d.endTrace(tool, req.SessionID, result, err)
	}

	fields := common.ToolFields(name, req.SessionID, duration)
	if err != nil {
		fields["error"] = err.Error()
		fields["category"] = classifyError(err).Category
		d.log.Warn(fields, "Tool call failed")
	} else {
		d.log.Info(fields, "Tool call completed")
	}

	return buildResult(result, err, req.SessionID, notice), nil
}

// beginTrace resolves the session and records the in-progress step. It sets
// req.SessionID only when the call is traced and returns a notice for the
// caller when a supplied session has no trace.
func (d *Dispatcher) beginTrace(tool *Tool, req *Request, args map[string]interface{}, sess *session) string {
	if d.traces == nil || tool.Trace == TraceNone {
		return ""
	}

	sessionID, _ := args["sessionId"].(string)
	sessionID = strings.TrimSpace(sessionID)

	if tool.Trace == TraceStart {
		if sessionID == "" {
			sessionID = tracestore.NewSessionID(tracestore.DefaultSessionPrefix)
		}
		if d.traces.GetTrace(sessionID) != nil {
			d.logger.WithFields(map[string]interface{}{
				"tool":       tool.Name,
				"session_id": sessionID,
			}).Warn("Trace already exists for session; appending step instead of restarting")
		} else {
			repoURL, _ := args["repoUrl"].(string)
			d.traces.StartTrace(sessionID, repoURL, sess.metadata(args))
		}
	}

	if sessionID == "" {
		return ""
	}

	if _, err := d.traces.AddStep(sessionID, tool.Name, tracestore.StatusInProgress, nil); err != nil {
		d.log.Warn(map[string]interface{}{
			"tool":       tool.Name,
			"session_id": sessionID,
		}, "Trace not found; running untraced")
		return d.staleSessionNotice(sessionID)
	}

	req.SessionID = sessionID
	return ""
}

func (d *Dispatcher) staleSessionNotice(sessionID string) string {
	starters := d.registry.StartTools()
	hint := "start a new workflow"
	if len(starters) > 0 {
		hint = "start a new workflow with " + strings.Join(starters, " or ")
	}
	return fmt.Sprintf("Note: no deployment trace exists for session %q (it may have expired or never been started), so this call was not traced. To trace a deployment, %s and pass the sessionId it returns to later calls.", sessionID, hint)
}

func (d *Dispatcher) invoke(ctx context.Context, tool *Tool, req *Request) (result *Result, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer common.RecoverPanic(d.logger.WithField("tool", tool.Name), &err)

	result, err = tool.Handler(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var toolErr *ToolError
			if !errors.As(err, &toolErr) {
				err = Transient("%s timed out after %s: %w", tool.Name, d.timeout, err)
			}
		}
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

func (d *Dispatcher) endTrace(tool *Tool, sessionID string, result *Result, err error) {
	status := tracestore.StatusSuccess
	update := tracestore.StepUpdate{}
	if err != nil {
		status = tracestore.StatusFailed
		msg := err.Error()
		update.Error = &msg
	} else {
		msg := result.Message
		if msg == "" {
			msg = firstLine(result.Text)
		}
		if msg != "" {
			update.Message = &msg
		}
		update.Data = result.StepData
	}
	update.Status = &status
	d.traces.UpdateStep(sessionID, tool.Name, update)

	if tool.Trace != TraceComplete {
		return
	}
	applicationName := ""
	if result != nil {
		applicationName = result.ApplicationName
	}
	if _, cerr := d.traces.CompleteTrace(sessionID, status, applicationName); cerr != nil {
		d.logger.WithError(cerr).WithField("session_id", sessionID).Warn("Failed to complete trace")
	}
}

// buildResult assembles the tools/call result. Traced calls echo the session
// ID in the structured payload.
func buildResult(result *Result, err error, sessionID, notice string) *CallResult {
	out := &CallResult{}
	if err != nil {
		out.IsError = true
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: err.Error()})
		out.ErrorInfo = classifyError(err)
		if sessionID != "" {
			out.StructuredContent = map[string]interface{}{"sessionId": sessionID}
		}
	} else {
		if result.Text != "" {
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: result.Text})
		}
		out.StructuredContent = structured(result.Data, sessionID)
	}
	if notice != "" {
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: notice})
	}
	// at least one content block is required
	if len(out.Content) == 0 {
		out.Content = []ContentBlock{{Type: "text", Text: ""}}
	}
	return out
}

func structured(data interface{}, sessionID string) interface{} {
	if sessionID == "" {
		return data
	}
	payload := map[string]interface{}{}
	switch v := data.(type) {
	case nil:
	case map[string]interface{}:
		for k, val := range v {
			payload[k] = val
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil || json.Unmarshal(raw, &payload) != nil {
			payload = map[string]interface{}{"result": v}
		}
		if payload == nil {
			payload = map[string]interface{}{}
		}
	}
	payload["sessionId"] = sessionID
	return payload
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/tracestore"
)

// maxMessageSize bounds one newline-delimited JSON-RPC frame
const maxMessageSize = 1024 * 1024

// Config configures a Server
type Config struct {
	Name         string
	Version      string
	Instructions string

	Registry     *Registry
	Traces       TraceRecorder
	Logger       *common.ContextLogger
	LogRateLimit common.RateLimitConfig
	ToolTimeout  time.Duration
}

// Server answers MCP requests for the tools in its registry
type Server struct {
	name         string
	version      string
	instructions string
	registry     *Registry
	dispatcher   *Dispatcher
	logger       *common.ContextLogger
}

// session is the per-connection protocol state
type session struct {
	initialized     bool
	client          ClientInfo
	clientType      string
	protocolVersion string
}

// metadata is recorded on traces started within this session
func (s *session) metadata(args map[string]interface{}) map[string]string {
	meta := map[string]string{}
	if s.clientType != "" {
		meta[tracestore.MetaClientType] = s.clientType
	}
	if s.protocolVersion != "" {
		meta[tracestore.MetaProtocolVersion] = s.protocolVersion
	}
	if userID, ok := args["userId"].(string); ok && userID != "" {
		meta[tracestore.MetaUserID] = userID
	}
	return meta
}

// NewServer creates a server
func NewServer(config Config) *Server {
	if config.Registry == nil {
		config.Registry = NewRegistry()
	}
	if config.Name == "" {
		config.Name = "nexlayer-mcp"
	}
	logger := config.Logger
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	return &Server{
		name:         config.Name,
		version:      config.Version,
		instructions: config.Instructions,
		registry:     config.Registry,
		logger:       logger.WithField("component", "mcp"),
		dispatcher: NewDispatcher(DispatcherConfig{
			Registry:     config.Registry,
			Traces:       config.Traces,
			Logger:       logger,
			LogRateLimit: config.LogRateLimit,
			Timeout:      config.ToolTimeout,
		}),
	}
}

// Registry returns the tool registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// frame is one input line. Oversized frames carry no payload.
type frame struct {
	line      []byte
	oversized bool
}

// Run serves newline-delimited JSON-RPC from input to output until input
// reaches EOF or ctx is cancelled. Requests are handled one at a time.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	frames := make(chan frame)
	var readErr error
	go func() {
		defer close(frames)
		reader := bufio.NewReaderSize(input, 64*1024)
		for {
			f, err := readFrame(reader)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	encoder := json.NewEncoder(output)
	sess := &session{}
	s.logger.Info("MCP server listening on stdio")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("MCP server stopping")
			return nil
		case f, ok := <-frames:
			if !ok {
				if readErr != nil {
					return fmt.Errorf("reading stdin: %w", readErr)
				}
				s.logger.Info("Input closed, MCP server stopping")
				return nil
			}
			var resp *response
			if f.oversized {
				s.logger.WithField("limit_bytes", maxMessageSize).Warn("Dropped oversized message")
				resp = errorResponse(nil, codeParseError, fmt.Sprintf("parse error: message exceeds %d bytes", maxMessageSize))
			} else {
				if len(strings.TrimSpace(string(f.line))) == 0 {
					continue
				}
				resp = s.handleMessage(ctx, sess, f.line)
			}
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

// readFrame reads up to the next newline. A line longer than maxMessageSize
// is drained so the stream resynchronises on the following line.
func readFrame(r *bufio.Reader) (frame, error) {
	var f frame
	for {
		chunk, err := r.ReadSlice('\n')
		if !f.oversized {
			if len(f.line)+len(bytes.TrimRight(chunk, "\r\n")) > maxMessageSize {
				f.oversized = true
				f.line = nil
			} else {
				f.line = append(f.line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF) && (len(f.line) > 0 || f.oversized):
			// last line without a trailing newline
		default:
			return frame{}, err
		}
		f.line = bytes.TrimRight(f.line, "\r\n")
		return f, nil
	}
}

// handleMessage processes one JSON-RPC message. Notifications return nil.
func (s *Server) handleMessage(ctx context.Context, sess *session, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, codeParseError, "parse error: "+err.Error())
	}

	if req.JSONRPC != "2.0" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
	}

	if req.isNotification() {
		s.logger.WithField("method", req.Method).Debug("Notification received")
		return nil
	}

	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "method is required")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(sess, &req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		if !sess.initialized {
			return errorResponse(req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return resultResponse(req.ID, toolsListResult{Tools: s.registry.descriptions()})
	case "tools/call":
		if !sess.initialized {
			return errorResponse(req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsCall(ctx, sess, &req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(sess *session, req *request) *response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for initialize")
	}

	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	sess.initialized = true
	sess.client = params.ClientInfo
	sess.protocolVersion = params.ProtocolVersion
	if sess.clientType == "" {
		sess.clientType = DetectClient(params.ClientInfo)
	}

	s.logger.WithFields(map[string]interface{}{
		"client_name":      params.ClientInfo.Name,
		"client_version":   params.ClientInfo.Version,
		"client_type":      sess.clientType,
		"protocol_version": params.ProtocolVersion,
	}).Info("Client initialized")

	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    s.name,
			Version: s.version,
		},
		Instructions: s.instructions,
	})
}

func (s *Server) handleToolsCall(ctx context.Context, sess *session, req *request) *response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for tools/call")
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tool name is required")
	}

	callCtx := context.WithValue(ctx, common.RequestContextKey, string(req.ID))
	result, err := s.dispatcher.call(callCtx, sess, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return errorResponse(req.ID, codeInvalidParams, err.Error())
		}
		return errorResponse(req.ID, codeInternalError, err.Error())
	}
	return resultResponse(req.ID, result)
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/tracestore"
)

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func quietLogger() *common.ContextLogger {
	logger := common.NewLogger(common.LoggerConfig{Level: common.LogLevelError})
	logger.SetOutput(io.Discard)
	return common.NewContextLogger(logger, nil)
}

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.MustRegister(
		Tool{
			Name:        "test_echo",
			Description: "Echo a message",
			InputSchema: ObjectSchema(map[string]Property{"message": String("message to echo")}, "message"),
			Annotations: ReadOnly(),
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				var args struct {
					Message string `json:"message"`
				}
				if err := req.Bind(&args); err != nil {
					return nil, err
				}
				if args.Message == "" {
					return nil, Validation("message is required")
				}
				return &Result{Text: args.Message, Data: map[string]interface{}{"echo": args.Message}}, nil
			},
		},
		Tool{
			Name:  "test_start",
			Trace: TraceStart,
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				return &Result{Text: "started\nmore detail", StepData: map[string]interface{}{"path": "/tmp/x"}}, nil
			},
		},
		Tool{
			Name:  "test_step",
			Trace: TraceStep,
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				return &Result{Text: "step done", Message: "built 2 images"}, nil
			},
		},
		Tool{
			Name:  "test_fail",
			Trace: TraceStep,
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				return nil, Transient("platform unavailable")
			},
		},
		Tool{
			Name:  "test_deploy",
			Trace: TraceComplete,
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				return &Result{Text: "deployed", ApplicationName: "shop", Data: struct {
					URL string `json:"url"`
				}{URL: "https://shop.nexlayer.ai"}}, nil
			},
		},
		Tool{
			Name: "test_panic",
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				panic("boom")
			},
		},
		Tool{
			Name: "test_slow",
			Handler: func(ctx context.Context, req *Request) (*Result, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	)
	return reg
}

func newTestServer(store *tracestore.Store) *Server {
	cfg := Config{
		Name:        "nexlayer-mcp",
		Version:     "1.2.3",
		Registry:    testRegistry(),
		Logger:      quietLogger(),
		ToolTimeout: 100 * time.Millisecond,
	}
	if store != nil {
		cfg.Traces = store
	}
	return NewServer(cfg)
}

func initMessages() []map[string]any {
	return []map[string]any{
		{
			"jsonrpc": "2.0",
			"id":      0,
			"method":  "initialize",
			"params": map[string]any{
				"protocolVersion": ProtocolVersion,
				"capabilities":    map[string]any{},
				"clientInfo":      map[string]any{"name": "claude-code", "version": "1.0"},
			},
		},
		{"jsonrpc": "2.0", "method": "notifications/initialized"},
	}
}

func callMessage(id int, tool string, args map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	}
}

// mcpSession sends messages to a fresh stdio session and returns the responses
func mcpSession(t *testing.T, server *Server, messages []map[string]any) []testResponse {
	t.Helper()
	var input bytes.Buffer
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		require.NoError(t, err)
		input.Write(line)
		input.WriteByte('\n')
	}
	return runRaw(t, server, input.String())
}

func runRaw(t *testing.T, server *Server, input string) []testResponse {
	t.Helper()
	var output bytes.Buffer
	require.NoError(t, server.Run(context.Background(), strings.NewReader(input), &output))

	var responses []testResponse
	scanner := bufio.NewScanner(&output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		var resp testResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func decodeCall(t *testing.T, resp testResponse) CallResult {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected protocol error")
	var result CallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return result
}

func TestInitialize(t *testing.T) {
	responses := mcpSession(t, newTestServer(nil), initMessages())
	require.Len(t, responses, 1)

	var result initializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "nexlayer-mcp", result.ServerInfo.Name)
	assert.Equal(t, "1.2.3", result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestToolsBeforeInitialize(t *testing.T) {
	responses := mcpSession(t, newTestServer(nil), []map[string]any{
		{"jsonrpc": "2.0", "id": 1, "method": "tools/list"},
		callMessage(2, "test_echo", map[string]any{"message": "hi"}),
	})
	require.Len(t, responses, 2)
	for _, resp := range responses {
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidRequest, resp.Error.Code)
	}
}

func TestProtocolErrors(t *testing.T) {
	input := strings.Join([]string{
		`not json`,
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"1.0","method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
	}, "\n") + "\n"

	responses := runRaw(t, newTestServer(nil), input)
	require.Len(t, responses, 5)

	assert.Equal(t, codeParseError, responses[0].Error.Code)
	assert.Equal(t, "null", string(responses[0].ID))
	assert.Equal(t, codeInvalidRequest, responses[1].Error.Code)
	assert.Equal(t, codeMethodNotFound, responses[2].Error.Code)
	assert.Equal(t, codeInvalidParams, responses[3].Error.Code)
	assert.Nil(t, responses[4].Error)
	assert.JSONEq(t, `{}`, string(responses[4].Result))
}

func TestToolsList(t *testing.T) {
	messages := append(initMessages(), map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	responses := mcpSession(t, newTestServer(nil), messages)
	require.Len(t, responses, 2)

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
			Annotations *Annotations    `json:"annotations"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(responses[1].Result, &result))
	require.Len(t, result.Tools, 7)
	assert.Equal(t, "test_echo", result.Tools[0].Name)
	assert.JSONEq(t, `{"type":"object","properties":{"message":{"type":"string","description":"message to echo"}},"required":["message"]}`, string(result.Tools[0].InputSchema))
	require.NotNil(t, result.Tools[0].Annotations)
	assert.True(t, *result.Tools[0].Annotations.ReadOnlyHint)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(result.Tools[1].InputSchema))
}

func TestToolsCall_Untraced(t *testing.T) {
	messages := append(initMessages(),
		callMessage(1, "test_echo", map[string]any{"message": "hello"}),
		callMessage(2, "test_echo", map[string]any{}),
		callMessage(3, "no_such_tool", nil),
	)
	responses := mcpSession(t, newTestServer(nil), messages)
	require.Len(t, responses, 4)

	ok := decodeCall(t, responses[1])
	assert.False(t, ok.IsError)
	assert.Equal(t, "hello", ok.Text())
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, ok.StructuredContent)

	invalid := decodeCall(t, responses[2])
	assert.True(t, invalid.IsError)
	require.NotNil(t, invalid.ErrorInfo)
	assert.Equal(t, "validation", invalid.ErrorInfo.Category)
	assert.False(t, invalid.ErrorInfo.Retryable)

	require.NotNil(t, responses[3].Error)
	assert.Equal(t, codeInvalidParams, responses[3].Error.Code)
}

func TestToolsCall_TracedWorkflow(t *testing.T) {
	store := tracestore.New(tracestore.Config{})
	server := newTestServer(store)

	messages := append(initMessages(),
		callMessage(1, "test_start", map[string]any{"repoUrl": "https://github.com/acme/shop"}),
	)
	responses := mcpSession(t, server, messages)
	started := decodeCall(t, responses[1])
	payload, ok := started.StructuredContent.(map[string]interface{})
	require.True(t, ok)
	sessionID, _ := payload["sessionId"].(string)
	require.True(t, strings.HasPrefix(sessionID, "nx_"), sessionID)

	responses = mcpSession(t, server, append(initMessages(),
		callMessage(2, "test_step", map[string]any{"sessionId": sessionID}),
		callMessage(3, "test_deploy", map[string]any{"sessionId": sessionID}),
	))
	deployed := decodeCall(t, responses[2])
	assert.Equal(t, map[string]interface{}{"url": "https://shop.nexlayer.ai", "sessionId": sessionID}, deployed.StructuredContent)

	trace := store.GetTrace(sessionID)
	require.NotNil(t, trace)
	assert.Equal(t, "https://github.com/acme/shop", trace.RepoURL)
	assert.Equal(t, tracestore.StatusSuccess, trace.Status)
	assert.Equal(t, "shop", trace.ApplicationName)
	assert.Equal(t, ClientClaudeCode, trace.Metadata[tracestore.MetaClientType])
	assert.Equal(t, ProtocolVersion, trace.Metadata[tracestore.MetaProtocolVersion])

	require.Len(t, trace.Steps, 3)
	assert.Equal(t, "test_start", trace.Steps[0].Tool)
	assert.Equal(t, "started", trace.Steps[0].Message)
	assert.Equal(t, "/tmp/x", trace.Steps[0].Data["path"])
	assert.Equal(t, "built 2 images", trace.Steps[1].Message)
	for _, step := range trace.Steps {
		assert.Equal(t, tracestore.StatusSuccess, step.Status)
		assert.NotNil(t, step.Duration)
	}
}

func TestToolsCall_FailedStepMarksTrace(t *testing.T) {
	store := tracestore.New(tracestore.Config{})
	store.StartTrace("nx_fail", "", nil)

	responses := mcpSession(t, newTestServer(store), append(initMessages(),
		callMessage(1, "test_fail", map[string]any{"sessionId": "nx_fail"}),
	))
	result := decodeCall(t, responses[1])
	assert.True(t, result.IsError)
	assert.Equal(t, "platform unavailable", result.Content[0].Text)
	assert.Equal(t, &ErrorInfo{Category: "transient", Retryable: true}, result.ErrorInfo)
	assert.Equal(t, map[string]interface{}{"sessionId": "nx_fail"}, result.StructuredContent)

	trace := store.GetTrace("nx_fail")
	require.Len(t, trace.Steps, 1)
	assert.Equal(t, tracestore.StatusFailed, trace.Status)
	assert.Equal(t, "platform unavailable", trace.Steps[0].Error)
}

func TestToolsCall_StaleSession(t *testing.T) {
	store := tracestore.New(tracestore.Config{})
	responses := mcpSession(t, newTestServer(store), append(initMessages(),
		callMessage(1, "test_step", map[string]any{"sessionId": "nx_gone"}),
	))
	result := decodeCall(t, responses[1])
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 2)
	assert.Equal(t, "step done", result.Content[0].Text)
	assert.Contains(t, result.Content[1].Text, `"nx_gone"`)
	assert.Contains(t, result.Content[1].Text, "test_start")
	assert.Nil(t, result.StructuredContent)
	assert.Equal(t, 0, store.Len())
}

func TestToolsCall_StartKeepsExistingTrace(t *testing.T) {
	store := tracestore.New(tracestore.Config{})
	store.StartTrace("nx_keep", "https://github.com/acme/shop", nil)
	_, err := store.AddStep("nx_keep", "earlier", tracestore.StatusSuccess, nil)
	require.NoError(t, err)

	mcpSession(t, newTestServer(store), append(initMessages(),
		callMessage(1, "test_start", map[string]any{"sessionId": "nx_keep"}),
	))

	trace := store.GetTrace("nx_keep")
	require.Len(t, trace.Steps, 2)
	assert.Equal(t, "earlier", trace.Steps[0].Tool)
	assert.Equal(t, "test_start", trace.Steps[1].Tool)
}

func TestToolsCall_PanicAndTimeout(t *testing.T) {
	responses := mcpSession(t, newTestServer(nil), append(initMessages(),
		callMessage(1, "test_panic", nil),
		callMessage(2, "test_slow", nil),
	))

	panicked := decodeCall(t, responses[1])
	assert.True(t, panicked.IsError)
	assert.Contains(t, panicked.Text(), "internal error: boom")
	assert.Equal(t, "internal", panicked.ErrorInfo.Category)

	slow := decodeCall(t, responses[2])
	assert.True(t, slow.IsError)
	assert.Contains(t, slow.Text(), "test_slow timed out")
	assert.Equal(t, &ErrorInfo{Category: "transient", Retryable: true}, slow.ErrorInfo)
}

func TestRun_ContextCancel(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newTestServer(nil).Run(ctx, reader, io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_OversizedFrame(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", maxMessageSize) + `"}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"

	responses := runRaw(t, newTestServer(nil), input)
	require.Len(t, responses, 2)

	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeParseError, responses[0].Error.Code)
	assert.Contains(t, responses[0].Error.Message, "exceeds")
	assert.Equal(t, "null", string(responses[0].ID))

	assert.Nil(t, responses[1].Error)
	assert.Equal(t, "2", string(responses[1].ID))
}

func TestReadFrame(t *testing.T) {
	reader := bufio.NewReaderSize(strings.NewReader("a\r\n"+strings.Repeat("y", maxMessageSize+10)+"\nlast"), 16)

	f, err := readFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, "a", string(f.line))

	f, err = readFrame(reader)
	require.NoError(t, err)
	assert.True(t, f.oversized)
	assert.Empty(t, f.line)

	f, err = readFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, "last", string(f.line))
	assert.False(t, f.oversized)

	_, err = readFrame(reader)
	assert.ErrorIs(t, err, io.EOF)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "not_found", classifyError(&tracestore.NotFoundError{SessionID: "x"}).Category)
	assert.Equal(t, "transient", classifyError(context.DeadlineExceeded).Category)
	assert.Equal(t, "internal", classifyError(errors.New("x")).Category)
	assert.Equal(t, CategoryForbidden, WithCategory("forbidden", errors.New("x")).Category)
	assert.Equal(t, CategoryInternal, WithCategory("bogus", errors.New("x")).Category)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, *Request) (*Result, error) { return nil, nil }

	require.NoError(t, reg.Register(Tool{Name: "a", Handler: noop}))
	assert.Error(t, reg.Register(Tool{Name: "a", Handler: noop}))
	assert.Error(t, reg.Register(Tool{Name: "", Handler: noop}))
	assert.Error(t, reg.Register(Tool{Name: "b"}))
	require.NoError(t, reg.Register(Tool{Name: "c", Trace: TraceStart, Handler: noop}))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"c"}, reg.StartTools())
	assert.Equal(t, "start", TraceStart.String())
	assert.Equal(t, "none", TraceNone.String())
}

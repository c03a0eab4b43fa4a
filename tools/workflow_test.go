package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexlayer.io/mcp/executor"
	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/platform"
	"nexlayer.io/mcp/tracestore"
)

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func runStdio(t *testing.T, f *fixture, calls ...map[string]any) map[int]mcp.CallResult {
	t.Helper()
	server := mcp.NewServer(mcp.Config{
		Name:     "nexlayer-mcp",
		Version:  "test",
		Registry: f.reg,
		Traces:   f.store,
		Logger:   quietLogger(),
	})

	messages := []map[string]any{
		{
			"jsonrpc": "2.0", "id": 0, "method": "initialize",
			"params": map[string]any{
				"protocolVersion": mcp.ProtocolVersion,
				"clientInfo":      map[string]any{"name": "Cursor", "version": "1.0"},
			},
		},
		{"jsonrpc": "2.0", "method": "notifications/initialized"},
	}
	for i, call := range calls {
		messages = append(messages, map[string]any{
			"jsonrpc": "2.0", "id": i + 1, "method": "tools/call",
			"params": call,
		})
	}

	var input bytes.Buffer
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		require.NoError(t, err)
		input.Write(line)
		input.WriteByte('\n')
	}

	var output bytes.Buffer
	require.NoError(t, server.Run(context.Background(), strings.NewReader(input.String()), &output))

	results := map[int]mcp.CallResult{}
	scanner := bufio.NewScanner(&output)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		if resp.ID == 0 {
			continue
		}
		require.Nil(t, resp.Error, "call %d", resp.ID)
		var result mcp.CallResult
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		results[resp.ID] = result
	}
	return results
}

func toolCall(name string, args map[string]any) map[string]any {
	return map[string]any{"name": name, "arguments": args}
}

func TestWorkflow_TracedDeployment(t *testing.T) {
	f := newFixture(t)
	repo := clientServerRepo(t)
	writeFile(t, filepath.Join(repo, "client", "Dockerfile"), "FROM nginx:alpine\nEXPOSE 80\n")
	f.workspace.path = repo
	f.builder.result = &executor.BuildResult{
		Client: "ttl.sh/client-abc:1h",
		Server: "ttl.sh/server-abc:1h",
		Ports:  map[string]int{"client": 80, "server": 4000},
	}
	f.platform.result = platform.Result{"url": "https://shop.alpha.nexlayer.ai", "namespace": "fancy-ns"}

	const session = "nx-flow"
	results := runStdio(t, f,
		toolCall("nexlayer_clone_repository", map[string]any{"repoUrl": "https://github.com/acme/shop.git", "sessionId": session, "userId": "u-42"}),
		toolCall("nexlayer_analyze_repository", map[string]any{"repoPath": repo, "sessionId": session}),
		toolCall("nexlayer_build_images", map[string]any{"repoPath": repo, "sessionId": session}),
		toolCall("nexlayer_generate_yaml", map[string]any{
			"applicationName": "shop",
			"client":          "ttl.sh/client-abc:1h",
			"server":          "ttl.sh/server-abc:1h",
			"ports":           map[string]int{"client": 80, "server": 4000},
			"repoPath":        repo,
			"write":           true,
			"sessionId":       session,
		}),
		toolCall("nexlayer_deploy", map[string]any{"repoPath": repo, "sessionId": session}),
		toolCall("nexlayer_get_deployment_trace", map[string]any{"sessionId": session}),
	)
	require.Len(t, results, 6)

	for id := 1; id <= 5; id++ {
		result := results[id]
		assert.False(t, result.IsError, "call %d: %s", id, result.Text())
		structured, ok := result.StructuredContent.(map[string]interface{})
		require.True(t, ok, "call %d", id)
		assert.Equal(t, session, structured["sessionId"], "call %d", id)
	}

	trace := f.store.GetTrace(session)
	require.NotNil(t, trace)
	assert.Equal(t, tracestore.StatusSuccess, trace.Status)
	assert.Equal(t, "shop", trace.ApplicationName)
	assert.Equal(t, "https://github.com/acme/shop.git", trace.RepoURL)
	assert.Equal(t, "cursor", trace.Metadata[tracestore.MetaClientType])
	assert.Equal(t, "u-42", trace.Metadata[tracestore.MetaUserID])
	require.NotNil(t, trace.EndTime)

	tools := make([]string, len(trace.Steps))
	for i, step := range trace.Steps {
		tools[i] = step.Tool
		assert.Equal(t, tracestore.StatusSuccess, step.Status, step.Tool)
	}
	assert.Equal(t, []string{
		"nexlayer_clone_repository",
		"nexlayer_analyze_repository",
		"nexlayer_build_images",
		"nexlayer_generate_yaml",
		"nexlayer_deploy",
	}, tools)

	report := results[6].Text()
	assert.Contains(t, report, "Deployment trace nx-flow")
	assert.Contains(t, report, "Application: shop")
	assert.Contains(t, report, "Client: cursor")
}

func TestWorkflow_FailedBuildMarksTrace(t *testing.T) {
	f := newFixture(t)
	repo := clientServerRepo(t)
	f.workspace.path = repo

	results := runStdio(t, f,
		toolCall("nexlayer_clone_repository", map[string]any{"repoUrl": "https://github.com/acme/shop.git", "sessionId": "nx-fail"}),
		toolCall("nexlayer_build_images", map[string]any{"repoPath": repo, "sessionId": "nx-fail"}),
	)

	build := results[2]
	assert.True(t, build.IsError)
	require.NotNil(t, build.ErrorInfo)
	assert.Equal(t, "validation", build.ErrorInfo.Category)
	assert.Contains(t, build.Text(), "no Dockerfile for client")

	summary := f.store.GetTraceSummary("nx-fail")
	require.NotNil(t, summary)
	assert.Equal(t, tracestore.StatusFailed, summary.Status)
	assert.Equal(t, "nexlayer_build_images", summary.FailedStep)
}

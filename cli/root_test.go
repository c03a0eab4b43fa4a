package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/config"
	nxhttp "nexlayer.io/mcp/http"
	"nexlayer.io/mcp/mcp"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	chdir(t, t.TempDir())
	cfg, err := config.LoadConfig(config.EnvPrefix, "")
	require.NoError(t, err)
	cfg.Workspace.Dir = t.TempDir()
	cfg.Logging.Level = "error"
	t.Cleanup(func() { common.SetStdioMode(false) })
	return cfg
}

func TestNewApp_Stdio(t *testing.T) {
	cfg := testConfig(t)

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Queue)
	assert.Equal(t, 17, app.Registry.Len())
	assert.Equal(t, "nexlayer-mcp", app.serviceName)

	initMsg := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test"}}}`
	list := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	var out bytes.Buffer
	require.NoError(t, app.Serve(context.Background(), strings.NewReader(initMsg+"\n"+list+"\n"), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"name":"nexlayer-mcp"`)
	assert.Contains(t, lines[0], "nexlayer_clone_repository")
	assert.Contains(t, lines[1], "nexlayer_deploy")
}

func TestNewApp_RedisEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Events.RedisURL = "redis://" + mr.Addr()

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Queue)

	app.Store.StartTrace("nx-events", "https://github.com/acme/shop.git", nil)
	app.Close()

	items, err := mr.List(cfg.Events.Key)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], "nx-events")
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.RedisURL = "redis://127.0.0.1:1"

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace event queue")
}

func TestApp_HTTPRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Transport = config.TransportHTTP

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	e := newTestEcho(app)
	app.Store.StartTrace("nx-http", "", nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nexlayer_get_recent_traces","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nx-http")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/traces/nx-http", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var trace map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	assert.Equal(t, "nx-http", trace["sessionId"])

	details := app.healthDetails()
	assert.Equal(t, 1, details["traces"])
}

func TestApp_ServeHTTPStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Transport = config.TransportHTTP
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, nil, io.Discard) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestToolsCommand(t *testing.T) {
	var out bytes.Buffer
	toolsCmd.SetOut(&out)
	toolsCmd.SetArgs(nil)
	require.NoError(t, toolsCmd.RunE(toolsCmd, nil))

	text := out.String()
	assert.Contains(t, text, "NAME")
	assert.Contains(t, text, "nexlayer_clone_repository")
	assert.Contains(t, text, "start")
	assert.Contains(t, text, "nexlayer_deploy")
	assert.Contains(t, text, "complete")
}

func TestListing(t *testing.T) {
	reg := mcp.NewRegistry()
	reg.MustRegister(mcp.Tool{
		Name:    "sample_step",
		Trace:   mcp.TraceStep,
		Handler: func(ctx context.Context, req *mcp.Request) (*mcp.Result, error) { return nil, nil },
	})

	raw, err := json.Marshal(listing(reg))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"sample_step","description":"","trace":"step","inputSchema":{"type":"object","properties":{}}}]`, string(raw))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	assert.True(t, strings.HasPrefix(out.String(), "nexlayer-mcp "))
}

func TestVersionCommand_Module(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	require.NoError(t, versionCmd.RunE(versionCmd, []string{"example.com/not/linked"}))
	assert.Equal(t, "example.com/not/linked not linked\n", out.String())
}

func newTestEcho(app *App) *echo.Echo {
	cfg := app.httpConfig()
	e := nxhttp.NewEchoServer(cfg.Server, app.logger)
	app.Server.RegisterRoutes(e)
	app.Store.RegisterRoutes(e.Group(""))
	return e
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

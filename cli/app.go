package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/config"
	"nexlayer.io/mcp/executor"
	nxhttp "nexlayer.io/mcp/http"
	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/platform"
	redisqueue "nexlayer.io/mcp/queue/redis"
	"nexlayer.io/mcp/tools"
	"nexlayer.io/mcp/tracestore"
	"nexlayer.io/mcp/version"
	"nexlayer.io/mcp/workspace"
)

const instructions = `Deploy applications to Nexlayer.

Typical workflow:
1. nexlayer_clone_repository (or nexlayer_analyze_repository with a repoUrl) starts a deployment trace and returns a sessionId.
2. nexlayer_analyze_repository detects client/server services.
3. nexlayer_generate_dockerfile for services without a Dockerfile.
4. nexlayer_build_images publishes images to ttl.sh.
5. nexlayer_generate_yaml builds nexlayer.yaml from the images.
6. nexlayer_deploy deploys and completes the trace.

Pass the sessionId to every step. Use nexlayer_get_deployment_trace to see what happened.`

// App is a fully wired server
type App struct {
	Config   *config.Config
	Store    *tracestore.Store
	Registry *mcp.Registry
	Server   *mcp.Server
	Queue    *redisqueue.Queue

	logger      *common.ContextLogger
	stopQueue   context.CancelFunc
	serviceName string
	version     string
}

// NewApp builds every component from cfg. The Redis event queue is connected
// only when events.redis_url is set.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	configureLogging(cfg)

	app := &App{
		Config:      cfg,
		serviceName: cfg.Service.Name,
		version:     cfg.Service.Version,
	}
	if app.version == "" {
		app.version = version.GetVersion()
	}
	app.logger = common.ServiceLogger(app.serviceName, app.version)

	storeConfig := tracestore.Config{MaxTraces: cfg.Trace.MaxTraces, TTL: cfg.Trace.TTL}
	if cfg.Events.RedisURL != "" {
		queue, err := redisqueue.NewQueue(ctx, redisqueue.Config{
			RedisURL: cfg.Events.RedisURL,
			Key:      cfg.Events.Key,
			MaxLen:   cfg.Events.MaxLen,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect trace event queue: %w", err)
		}
		queueCtx, cancel := context.WithCancel(context.Background())
		go queue.Run(queueCtx)
		app.Queue = queue
		app.stopQueue = cancel
		storeConfig.Observer = queue.Observer()
		app.logger.WithField("key", queue.Key()).Info("Publishing trace events to Redis")
	}
	app.Store = tracestore.New(storeConfig)

	ws, err := workspace.NewManager(cfg.Workspace.Dir, app.logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	client := platform.NewClient(platform.Config{
		BaseURL:       cfg.Platform.BaseURL,
		Token:         cfg.Platform.Token,
		Timeout:       cfg.Platform.Timeout,
		RetryCount:    cfg.Platform.RetryCount,
		RetryInterval: cfg.Platform.RetryInterval,
		UserAgent:     app.serviceName + "/" + app.version,
	}, app.logger)
	if !client.HasToken() {
		app.logger.Warn("No platform token configured; reservation and custom domain tools will fail (set NEXLAYER_PLATFORM_TOKEN)")
	}

	builder := executor.NewBuildRunner(executor.BuildRunnerConfig{
		Binary:  cfg.Build.Runner,
		Timeout: cfg.Build.Timeout,
	}, app.logger)

	app.Registry = mcp.NewRegistry()
	if err := tools.Register(app.Registry, tools.Deps{
		Platform:    client,
		Workspace:   ws,
		Builder:     builder,
		Traces:      app.Store,
		Logger:      app.logger,
		LLMOptimize: cfg.Build.LLMOptimize,
	}); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	app.Server = mcp.NewServer(mcp.Config{
		Name:         app.serviceName,
		Version:      app.version,
		Instructions: instructions,
		Registry:     app.Registry,
		Traces:       app.Store,
		Logger:       app.logger,
		LogRateLimit: common.RateLimitConfig{PerSecond: cfg.Logging.RateLimit, Burst: cfg.Logging.Burst},
		ToolTimeout:  cfg.Tools.Timeout,
	})

	app.logger.WithFields(map[string]interface{}{
		"transport":  cfg.Server.Transport,
		"tools":      app.Registry.Len(),
		"max_traces": cfg.Trace.MaxTraces,
		"trace_ttl":  cfg.Trace.TTL.String(),
		"platform":   client.BaseURL(),
		"workspace":  ws.Dir(),
	}).Info("Nexlayer MCP server configured")

	return app, nil
}

// Serve runs the configured transport until ctx is cancelled or, for stdio, input ends
func (a *App) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if a.Config.Server.Transport == config.TransportHTTP {
		return a.Server.ListenHTTP(ctx, a.httpConfig(), func(e *echo.Echo) {
			a.Store.RegisterRoutes(e.Group(""))
		})
	}
	return a.Server.Run(ctx, in, out)
}

func (a *App) httpConfig() nxhttp.RunServerConfig {
	server := nxhttp.DefaultServerConfig()
	s := a.Config.Server
	server.Host = s.Host
	server.Port = s.Port
	server.AllowedOrigins = s.AllowedOrigins
	server.RateLimit = s.RateLimit
	if s.ReadTimeout > 0 {
		server.ReadTimeout = s.ReadTimeout
	}
	if s.WriteTimeout > 0 {
		server.WriteTimeout = s.WriteTimeout
	}
	if s.ShutdownTimeout > 0 {
		server.ShutdownTimeout = s.ShutdownTimeout
	}
	server.Debug = a.Config.Logging.Level == string(common.LogLevelDebug)

	return nxhttp.RunServerConfig{
		ServiceName:   a.serviceName,
		Version:       a.version,
		Server:        server,
		HealthDetails: a.healthDetails,
		Logger:        a.logger,
	}
}

func (a *App) healthDetails() map[string]interface{} {
	details := map[string]interface{}{
		"traces": a.Store.Len(),
		"tools":  a.Registry.Len(),
	}
	if a.Queue != nil {
		details["events_dropped"] = a.Queue.Dropped()
	}
	return details
}

// Close flushes pending trace events and releases connections
func (a *App) Close() {
	if a.Queue == nil {
		return
	}
	a.stopQueue()
	a.Queue.Wait()
	if err := a.Queue.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close trace event queue")
	}
	a.Queue = nil
}

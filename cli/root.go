// Package cli provides the command-line interface of the Nexlayer MCP server.
// It loads configuration, wires the trace store, platform client, workspace and
// build runner into the tool registry, and serves MCP over stdio or HTTP until
// the process is signalled.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (NEXLAYER_ prefix)
//  3. Configuration file values
//  4. Default values
//
// Example Usage:
//
//	# stdio transport for an MCP client (Claude Code, Cursor, ...)
//	nexlayer-mcp
//
//	# HTTP transport on port 9000 with debug logging
//	nexlayer-mcp --transport http --port 9000 --log-level debug
//
//	# publish trace events to Redis
//	NEXLAYER_EVENTS_REDIS_URL=redis://localhost:6379/0 nexlayer-mcp
package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/config"
)

// cfgFile holds the path given with --config. When empty the loader searches
// ./config.yaml, ./configs, ~/.nexlayer and /etc/nexlayer.
var cfgFile string

// v receives the flag bindings and is handed to the config loader
var v = viper.New()

// RootCmd starts the MCP server.
var RootCmd = &cobra.Command{
	Use:   "nexlayer-mcp",
	Short: "MCP server for deploying applications to Nexlayer",
	Long: `Nexlayer MCP Server

Exposes the Nexlayer deployment workflow as Model Context Protocol tools:
clone and analyze a repository, generate Dockerfiles and nexlayer.yaml,
build and publish images, deploy, and manage reservations and domains.

Every multi-step deployment is recorded in an in-memory trace store that
can be queried with the trace tools (and over HTTP at /traces).`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ~/.nexlayer/config.yaml)")
	flags.String("transport", config.TransportStdio, "MCP transport: stdio or http")
	flags.Int("port", 8080, "HTTP listen port (http transport)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Int("max-traces", 100, "Maximum traces kept in memory")
	flags.Duration("trace-ttl", 24*time.Hour, "Trace retention")
	flags.String("redis-url", "", "Publish trace events to this Redis URL")

	bindFlag("server.transport", "transport")
	bindFlag("server.port", "port")
	bindFlag("logging.level", "log-level")
	bindFlag("logging.format", "log-format")
	bindFlag("trace.max_traces", "max-traces")
	bindFlag("trace.ttl", "trace-ttl")
	bindFlag("events.redis_url", "redis-url")
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, RootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads configuration with flag overrides
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(v, config.EnvPrefix)
	return loader.LoadConfig(cfgFile)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx, os.Stdin, os.Stdout)
}

// configureLogging applies the logging section to the global logger
func configureLogging(cfg *config.Config) {
	common.SetStdioMode(cfg.Server.Transport == config.TransportStdio)
	common.ConfigureLogger(common.LoggerConfig{
		Level:  common.LogLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
}

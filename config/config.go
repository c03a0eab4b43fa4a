// Package config provides configuration management for the Nexlayer MCP server.
//
// This package handles loading configuration from multiple sources with proper precedence:
//   - YAML configuration files
//   - Environment variables (NEXLAYER_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (set via SetConfigDefaults)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.nexlayer/config.yaml, /etc/nexlayer/config.yaml)
//  3. .env files
//  4. Environment variables (NEXLAYER_ prefix)
//
// # Usage Example
//
//	cfg, err := config.LoadConfig(config.EnvPrefix, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Transport: %s\n", cfg.Server.Transport)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use prefix and underscores for nested keys:
//   - NEXLAYER_PLATFORM_TOKEN=...
//   - NEXLAYER_SERVER_TRANSPORT=http
//   - NEXLAYER_TRACE_MAX_TRACES=500
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for every key
const EnvPrefix = "NEXLAYER"

// Transports accepted by server.transport
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServiceConfig contains service metadata.
type ServiceConfig struct {
	// Name is the service name reported in serverInfo
	Name string `mapstructure:"name"`

	// Version overrides the build version when set
	Version string `mapstructure:"version"`
}

// ServerConfig contains MCP transport configuration.
type ServerConfig struct {
	// Transport is stdio or http
	Transport string `mapstructure:"transport"`

	// Host is the http bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the http listen port (default: 8080)
	Port int `mapstructure:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// RateLimit is the maximum requests per second across the http transport (0 disables)
	RateLimit float64 `mapstructure:"rate_limit"`
}

// PlatformConfig contains Nexlayer platform API settings.
type PlatformConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// TraceConfig bounds the in-memory trace store.
type TraceConfig struct {
	MaxTraces int           `mapstructure:"max_traces"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`

	// RateLimit is the sustained entries per second per message (0 disables)
	RateLimit float64 `mapstructure:"rate_limit"`

	// Burst is the number of identical entries allowed before limiting
	Burst int `mapstructure:"burst"`
}

// BuildConfig configures the container build runner subprocess.
type BuildConfig struct {
	Runner      string        `mapstructure:"runner"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LLMOptimize bool          `mapstructure:"llm_optimize"`
}

// WorkspaceConfig configures where repositories are cloned.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// Timeout bounds a single tool handler invocation
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig configures the optional Redis trace event queue.
type EventsConfig struct {
	// RedisURL enables the queue when set (redis://host:6379/0)
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// Config is the complete server configuration.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Trace     TraceConfig     `mapstructure:"trace"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Build     BuildConfig     `mapstructure:"build"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Events    EventsConfig    `mapstructure:"events"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment prefix.
// The prefix is used for environment variables (e.g., "NEXLAYER" -> "NEXLAYER_SERVER_PORT").
func NewLoader(envPrefix string) *Loader {
	return NewLoaderWithViper(viper.New(), envPrefix)
}

// NewLoaderWithViper wraps an existing viper instance, typically one that
// command-line flags were bound to.
func NewLoaderWithViper(v *viper.Viper, envPrefix string) *Loader {
	return &Loader{
		v:      v,
		prefix: envPrefix,
	}
}

// Viper exposes the underlying viper instance
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// SetDefaults sets default configuration values.
// This should be called before Load().
func (l *Loader) SetDefaults(defaults map[string]interface{}) {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// SetConfigDefaults sets the standard server defaults.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("service.name", "nexlayer-mcp")
	l.v.SetDefault("service.version", "")

	l.v.SetDefault("server.transport", TransportStdio)
	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.read_timeout", "30s")
	l.v.SetDefault("server.write_timeout", "10m")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.allowed_origins", []string{"*"})
	l.v.SetDefault("server.rate_limit", 0)

	l.v.SetDefault("platform.base_url", "https://app.nexlayer.io")
	l.v.SetDefault("platform.token", "")
	l.v.SetDefault("platform.timeout", "60s")
	l.v.SetDefault("platform.retry_count", 2)
	l.v.SetDefault("platform.retry_interval", "1s")

	l.v.SetDefault("trace.max_traces", 100)
	l.v.SetDefault("trace.ttl", "24h")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
	l.v.SetDefault("logging.rate_limit", 10)
	l.v.SetDefault("logging.burst", 20)

	l.v.SetDefault("build.runner", "nexlayer-dagger-runner")
	l.v.SetDefault("build.timeout", "15m")
	l.v.SetDefault("build.llm_optimize", false)

	l.v.SetDefault("workspace.dir", "~/.nexlayer/workspaces")

	l.v.SetDefault("tools.timeout", "10m")

	l.v.SetDefault("events.redis_url", "")
	l.v.SetDefault("events.key", "nexlayer:trace-events")
	l.v.SetDefault("events.max_len", 1000)
}

// Load reads configuration from file, .env, and environment variables.
// If cfgFile is empty, searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Bound command-line flags
//  2. Environment variables (with prefix)
//  3. .env file
//  4. Configuration file
//  5. Default values
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("$HOME/.nexlayer")
		l.v.AddConfigPath("/etc/nexlayer")
	}

	if err := l.v.ReadInConfig(); err != nil {
		// An explicit file must exist and parse
		if cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// For auto-discovery, only fail on non-NotFound errors
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isFileNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Merge .env file if present
	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig() // Ignore if .env doesn't exist

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// LoadConfig is a convenience function that loads configuration with standard defaults.
func LoadConfig(envPrefix, cfgFile string) (*Config, error) {
	loader := NewLoader(envPrefix)
	return loader.LoadConfig(cfgFile)
}

// LoadConfig applies the standard defaults, loads and validates.
func (l *Loader) LoadConfig(cfgFile string) (*Config, error) {
	l.SetConfigDefaults()

	cfg := &Config{}
	if err := l.Load(cfgFile, cfg); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ValidateConfig validates the loaded configuration.
func ValidateConfig(cfg *Config) error {
	switch cfg.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid server transport: %q (want %s or %s)", cfg.Server.Transport, TransportStdio, TransportHTTP)
	}

	if cfg.Server.Transport == TransportHTTP && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Trace.MaxTraces < 1 {
		return fmt.Errorf("trace.max_traces must be at least 1, got %d", cfg.Trace.MaxTraces)
	}
	if cfg.Trace.TTL <= 0 {
		return fmt.Errorf("trace.ttl must be positive, got %s", cfg.Trace.TTL)
	}

	if cfg.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}

	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}

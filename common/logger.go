// Package common provides enhanced logging utilities for structured logging across the server.
// This file extends the base logging functionality with context-aware logging,
// structured field helpers, and tool-call logging patterns.
package common

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"nexlayer.io/mcp/version"
)

// LogLevel represents standard logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LoggerConfig contains configuration for creating a logger
type LoggerConfig struct {
	Level      LogLevel // Minimum log level
	Format     string   // "json" or "text"
	AddCaller  bool     // Add caller information
	TimeFormat string   // Time format for logs
}

// DefaultLoggerConfig returns a logger config with sensible defaults
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		AddCaller:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new configured logger instance
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()
	applyLoggerConfig(logger, config)
	logger.SetOutput(&OutputSplitter{})
	logger.AddHook(NewSanitizeHook())
	return logger
}

// ConfigureLogger applies level and format to the global Logger
func ConfigureLogger(config LoggerConfig) {
	applyLoggerConfig(Logger, config)
}

func applyLoggerConfig(logger *logrus.Logger, config LoggerConfig) {
	logger.SetLevel(parseLevel(config.Level))

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timeFormat,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timeFormat,
			FullTimestamp:   true,
			DisableColors:   true,
		})
	}

	logger.SetReportCaller(config.AddCaller)
}

func parseLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn, "warning":
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// ContextLogger provides context-aware logging utilities
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger creates a new context-aware logger with base fields
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}

	baseFields := make(logrus.Fields)
	for k, v := range fields {
		baseFields[k] = v
	}

	return &ContextLogger{
		logger: logger,
		fields: baseFields,
	}
}

// WithField adds a single field to the logger context
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the logger context
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &ContextLogger{
		logger: cl.logger,
		fields: newFields,
	}
}

// WithError adds an error to the logger context
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	if err == nil {
		return cl
	}
	return cl.WithField("error", err.Error())
}

type contextKey string

// SessionContextKey carries the deployment session ID through a tool call
const SessionContextKey contextKey = "session_id"

// RequestContextKey carries the JSON-RPC request ID through a tool call
const RequestContextKey contextKey = "request_id"

// WithContext extracts session/request IDs from context
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := make(map[string]interface{})
	if sessionID, ok := ctx.Value(SessionContextKey).(string); ok && sessionID != "" {
		fields["session_id"] = sessionID
	}
	if requestID, ok := ctx.Value(RequestContextKey).(string); ok && requestID != "" {
		fields["request_id"] = requestID
	}
	return cl.WithFields(fields)
}

// Fields returns a copy of the logger's fields
func (cl *ContextLogger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(cl.fields))
	for k, v := range cl.fields {
		out[k] = v
	}
	return out
}

// Log logs a message at the given level
func (cl *ContextLogger) Log(level logrus.Level, msg string) {
	cl.logger.WithFields(cl.fields).Log(level, msg)
}

// Debug logs a debug message
func (cl *ContextLogger) Debug(msg string) {
	cl.logger.WithFields(cl.fields).Debug(msg)
}

// Debugf logs a formatted debug message
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}

// Info logs an info message
func (cl *ContextLogger) Info(msg string) {
	cl.logger.WithFields(cl.fields).Info(msg)
}

// Infof logs a formatted info message
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}

// Warn logs a warning message
func (cl *ContextLogger) Warn(msg string) {
	cl.logger.WithFields(cl.fields).Warn(msg)
}

// Warnf logs a formatted warning message
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}

// Error logs an error message
func (cl *ContextLogger) Error(msg string) {
	cl.logger.WithFields(cl.fields).Error(msg)
}

// Errorf logs a formatted error message
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// ServiceLogger creates a logger pre-configured with service metadata
func ServiceLogger(serviceName, serviceVersion string) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{
		"service":    serviceName,
		"version":    serviceVersion,
		"go_version": version.GetBuildInfo().GoVersion,
	})
}

// RecoverPanic turns a panic into an error and logs it with a stack trace.
// Use as: defer common.RecoverPanic(logger, &err)
func RecoverPanic(logger *ContextLogger, errp *error) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)

		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("Panic recovered")

		if errp != nil {
			*errp = fmt.Errorf("internal error: %v", r)
		}
	}
}

// HTTPFields returns standard fields for HTTP logging
func HTTPFields(method, path string, statusCode int, duration time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"http_method":      method,
		"http_path":        path,
		"http_status_code": statusCode,
		"duration":         duration.String(),
		"duration_ms":      duration.Milliseconds(),
	}
}

// ToolFields returns standard fields for tool call logging
func ToolFields(tool, sessionID string, duration time.Duration) map[string]interface{} {
	fields := map[string]interface{}{
		"tool":        tool,
		"duration":    duration.String(),
		"duration_ms": duration.Milliseconds(),
	}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}
	return fields
}

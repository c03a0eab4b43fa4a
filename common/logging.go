// Package common provides centralized logging infrastructure for the Nexlayer MCP server.
// This package implements output routing that keeps the process's stdout free for
// protocol traffic when the server talks JSON-RPC over stdio, and otherwise directs
// error messages to stderr while sending other log levels to stdout.
//
// The logging system is built on logrus for structured logging. Every entry passes
// through SanitizeHook before it is formatted, so credentials that reach a log call
// by accident (API tokens in URLs, Authorization headers, tool arguments) are masked.
//
// Output Routing Strategy:
//
//	stdio transport: every entry goes to stderr. Stdout carries newline-delimited
//	JSON-RPC frames and a stray log line would corrupt the stream.
//	http transport: entries containing "level=error" go to stderr, all others to stdout.
package common

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// stdioMode is set while the server owns stdout for protocol frames
var stdioMode atomic.Bool

// SetStdioMode switches OutputSplitter to route every entry to stderr.
func SetStdioMode(enabled bool) {
	stdioMode.Store(enabled)
}

// OutputSplitter routes formatted log entries to stdout or stderr.
//
// Routing Logic:
//   - stdio mode → stderr for everything
//   - entries containing "level=error" or "level":"error" → stderr
//   - all other entries → stdout
//
// Stdout and Stderr default to the process streams and may be replaced in tests.
type OutputSplitter struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Write implements the io.Writer interface for the OutputSplitter.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if stdioMode.Load() || isErrorEntry(p) {
		return splitter.stderr().Write(p)
	}
	return splitter.stdout().Write(p)
}

func (splitter *OutputSplitter) stdout() io.Writer {
	if splitter.Stdout != nil {
		return splitter.Stdout
	}
	return os.Stdout
}

func (splitter *OutputSplitter) stderr() io.Writer {
	if splitter.Stderr != nil {
		return splitter.Stderr
	}
	return os.Stderr
}

func isErrorEntry(p []byte) bool {
	return bytes.Contains(p, []byte("level=error")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) ||
		bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"fatal"`))
}

// Logger provides the global logger instance for the server.
// It is pre-configured with the OutputSplitter and the SanitizeHook;
// ConfigureLogger applies level and format from configuration.
//
// Usage Patterns:
//
//	Logger.Info("Server started")
//
//	Logger.WithFields(logrus.Fields{
//	    "tool":    "nexlayer_deploy",
//	    "session": sessionID,
//	}).Info("Tool call completed")
//
//	Logger.WithError(err).Error("Failed to reach platform API")
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.AddHook(NewSanitizeHook())
}

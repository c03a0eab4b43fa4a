// Package mcp implements a Model Context Protocol server: JSON-RPC 2.0
// over newline-delimited stdio, or one message per POST on the HTTP
// transport.
//
// Tools are registered in a Registry. Every tools/call goes through the
// dispatch wrapper, which logs the call, records it as a step in the
// session's deployment trace and converts handler errors into MCP error
// results carrying errorInfo. Protocol-level errors are reserved for
// malformed requests.
package mcp

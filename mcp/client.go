package mcp

import (
	"os"
	"strings"
)

// Client types recorded in trace metadata
const (
	ClientClaudeCode    = "claude-code"
	ClientClaudeDesktop = "claude-desktop"
	ClientCursor        = "cursor"
	ClientVSCode        = "vscode"
	ClientWindsurf      = "windsurf"
	ClientZed           = "zed"
	ClientUnknown       = "unknown"
)

// clientNames maps substrings of the initialize clientInfo name to a client
// type. Order matters: "claude-code" must win over "claude".
var clientNames = []struct {
	substr string
	client string
}{
	{"claude-code", ClientClaudeCode},
	{"claude code", ClientClaudeCode},
	{"claude", ClientClaudeDesktop},
	{"cursor", ClientCursor},
	{"windsurf", ClientWindsurf},
	{"zed", ClientZed},
	{"visual studio code", ClientVSCode},
	{"vscode", ClientVSCode},
	{"copilot", ClientVSCode},
}

// DetectClient identifies the agent from its clientInfo and, failing that,
// from the environment the server was launched in.
func DetectClient(info ClientInfo) string {
	return detectClient(info, os.Environ())
}

func detectClient(info ClientInfo, environ []string) string {
	name := strings.ToLower(info.Name)
	for _, hint := range clientNames {
		if name != "" && strings.Contains(name, hint.substr) {
			return hint.client
		}
	}

	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	hasPrefix := func(prefix string) bool {
		for k := range env {
			if strings.HasPrefix(k, prefix) {
				return true
			}
		}
		return false
	}

	// Cursor and Windsurf are VS Code forks and also set VSCODE_ variables
	switch {
	case env["CLAUDECODE"] != "" || hasPrefix("CLAUDE_CODE_"):
		return ClientClaudeCode
	case hasPrefix("CURSOR_"):
		return ClientCursor
	case hasPrefix("WINDSURF_"):
		return ClientWindsurf
	case hasPrefix("ZED_"):
		return ClientZed
	case hasPrefix("VSCODE_") || env["TERM_PROGRAM"] == "vscode":
		return ClientVSCode
	}
	return ClientUnknown
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// TraceMode says how a tool call takes part in the session's deployment trace.
type TraceMode int

const (
	// TraceNone tools never touch the trace store.
	TraceNone TraceMode = iota
	// TraceStep tools append a step when the call names an existing session.
	TraceStep
	// TraceStart tools begin a workflow, generating a session ID when none is given.
	TraceStart
	// TraceComplete tools append a step and then settle the trace.
	TraceComplete
)

func (m TraceMode) String() string {
	switch m {
	case TraceStep:
		return "step"
	case TraceStart:
		return "start"
	case TraceComplete:
		return "complete"
	default:
		return "none"
	}
}

// HandlerFunc executes one tool call
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

// Tool is a registered MCP tool
type Tool struct {
	Name        string
	Title       string
	Description string
	// InputSchema is the JSON Schema of the arguments object
	InputSchema map[string]any
	Annotations *Annotations
	Trace       TraceMode
	Handler     HandlerFunc
}

// Request is what a handler sees of a tools/call
type Request struct {
	Tool string
	// SessionID is set for traced calls, including generated IDs
	SessionID string
	Arguments json.RawMessage
	Client    ClientInfo
}

// Bind decodes the arguments into v. Decoding failures are validation errors.
func (r *Request) Bind(v any) error {
	if len(r.Arguments) == 0 || string(r.Arguments) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Arguments, v); err != nil {
		return Validation("invalid arguments for %s: %w", r.Tool, err)
	}
	return nil
}

// Result is a successful handler outcome
type Result struct {
	// Text is the human-readable rendering
	Text string
	// Data is the machine-readable payload, returned as structuredContent
	Data any
	// Message is recorded on the trace step; Text's first line is used when empty
	Message string
	// StepData is attached to the trace step
	StepData map[string]any
	// ApplicationName completes the trace for TraceComplete tools
	ApplicationName string
}

// TextResult is a Result with text only
func TextResult(format string, args ...any) *Result {
	return &Result{Text: fmt.Sprintf(format, args...)}
}

// Registry holds tools in registration order
type Registry struct {
	mu     sync.RWMutex
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Tool)}
}

// Register adds a tool. Names must be unique and handlers set.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	if tool.InputSchema == nil {
		tool.InputSchema = ObjectSchema(nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	t := tool
	r.tools = append(r.tools, &t)
	r.byName[t.Name] = &t
	return nil
}

// MustRegister is Register that panics, for static tool tables
func (r *Registry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Get returns the named tool
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// List returns all tools in registration order
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// StartTools names the tools that begin a traced workflow, sorted
func (r *Registry) StartTools() []string {
	var names []string
	for _, t := range r.List() {
		if t.Trace == TraceStart {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) descriptions() []toolDescription {
	tools := r.List()
	out := make([]toolDescription, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolDescription{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Annotations: t.Annotations,
		})
	}
	return out
}

// --- schema helpers ---

// Property describes one argument in an input schema
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       map[string]any
	Default     any
}

func (p Property) schema() map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Items != nil {
		s["items"] = p.Items
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	return s
}

// ObjectSchema builds an object JSON Schema. Names listed in required must be properties.
func ObjectSchema(props map[string]Property, required ...string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, p := range props {
		properties[name] = p.schema()
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// String is a string property
func String(description string) Property {
	return Property{Type: "string", Description: description}
}

// Integer is an integer property
func Integer(description string) Property {
	return Property{Type: "integer", Description: description}
}

// Boolean is a boolean property
func Boolean(description string) Property {
	return Property{Type: "boolean", Description: description}
}

// ReadOnly annotates a tool that does not modify anything
func ReadOnly() *Annotations {
	t, f := true, false
	return &Annotations{ReadOnlyHint: &t, DestructiveHint: &f, IdempotentHint: &t}
}

// Mutating annotates a non-destructive tool with side effects
func Mutating(idempotent bool) *Annotations {
	f := false
	return &Annotations{ReadOnlyHint: &f, DestructiveHint: &f, IdempotentHint: &idempotent}
}

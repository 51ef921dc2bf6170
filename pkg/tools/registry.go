// Package tools implements the ToolRegistry: name-keyed tool dispatch,
// JSON-schema argument validation, and a uniform string-only execution
// contract where every failure is encoded as "Error: ..." text rather
// than thrown.
//
// Internally, tools return a richer ToolResult{ForLLM, IsError, Err,
// Silent} struct (used by pkg/tools/message.go, pkg/tools/memory_search.go,
// and others) — the registry's public Execute collapses that struct to a
// plain string, while ExecuteWithResult exposes the richer value (including
// the Silent flag) to callers that want it. AgentLoop uses Execute.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/featherbot/featherbot/internal/logging"
)

var nameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ToolResult is the rich internal outcome of a tool execution.
type ToolResult struct {
	ForLLM  string // text fed back to the model
	IsError bool
	Err     error
	Silent  bool // true if the result should not additionally echo to the user
}

// ErrorResult builds a ToolResult for a validation or execution failure.
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{ForLLM: "Error: " + msg, IsError: true}
}

// SilentResult builds a successful ToolResult that is not separately
// surfaced to the user (e.g. because a side-effecting tool like "message"
// already delivered the content directly).
func SilentResult(text string) *ToolResult {
	return &ToolResult{ForLLM: text, Silent: true}
}

// Tool is the contract every registered tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// Definition is the provider-agnostic schema view of a registered tool,
// the shape exposed to LLM providers for function-calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Registry dispatches tool calls by name and enforces the uniform
// string-result contract.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	evictThreshold int
	scratchWriter  func(name, content string) (path string, err error)
}

// Option configures optional registry behavior.
type Option func(*Registry)

// WithEviction installs the eviction wrapper: tool results longer than
// thresholdBytes are written to scratch via writeScratch and replaced with
// a head+tail preview plus a file reference.
func WithEviction(thresholdBytes int, writeScratch func(name, content string) (path string, err error)) Option {
	return func(r *Registry) {
		r.evictThreshold = thresholdBytes
		r.scratchWriter = writeScratch
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tool under its own Name(). Fails if the name is already
// registered or malformed.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if !nameRe.MatchString(name) {
		return fmt.Errorf("tools: invalid tool name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	logging.Component("tools").Info("tool registered", "operation", "register", "name", name)
	return nil
}

// Unregister removes tool by name; no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// ListDefinitions returns the schema view of every registered tool, in
// registration order.
func (r *Registry) ListDefinitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return defs
}

// Names returns the registered tool names sorted lexically, used by
// SubagentManager to build deterministic allow-lists.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs tool name with rawArgs (typically decoded JSON) and
// collapses the outcome to a plain string: every failure is a string
// beginning with "Error" or "Error:", never a thrown error.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs map[string]interface{}) string {
	result := r.ExecuteWithResult(ctx, name, rawArgs)
	return result.ForLLM
}

// ExecuteWithResult is Execute's richer counterpart, returning the full
// ToolResult so a caller can distinguish Silent results from ones that
// should additionally be echoed to the user.
func (r *Registry) ExecuteWithResult(ctx context.Context, name string, rawArgs map[string]interface{}) *ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return &ToolResult{ForLLM: fmt.Sprintf("Error: Tool '%s' not found", name), IsError: true}
	}

	if reason := validateArgs(t.Parameters(), rawArgs); reason != "" {
		return &ToolResult{
			ForLLM:  fmt.Sprintf("Error: Invalid parameters for '%s': %s", name, reason),
			IsError: true,
		}
	}

	result := r.safeExecute(ctx, t, rawArgs)
	if result.IsError && result.Err != nil {
		logging.Component("tools").Error("tool execution failed",
			"operation", "execute", "name", name, "error", result.Err)
	}
	return r.applyEviction(name, result)
}

// safeExecute recovers from panics in tool handlers, turning them into an
// "Error executing '<name>': <panic value>" result — the registry never
// propagates a panic. Errors a tool reports itself keep the tool's own
// "Error: ..." text.
func (r *Registry) safeExecute(ctx context.Context, t Tool, args map[string]interface{}) (result *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &ToolResult{
				ForLLM:  fmt.Sprintf("Error executing '%s': %v", t.Name(), rec),
				IsError: true,
			}
		}
	}()
	return t.Execute(ctx, args)
}

func (r *Registry) applyEviction(name string, result *ToolResult) *ToolResult {
	if r.evictThreshold <= 0 || r.scratchWriter == nil {
		return result
	}
	if len(result.ForLLM) <= r.evictThreshold {
		return result
	}

	path, err := r.scratchWriter(name, result.ForLLM)
	if err != nil {
		logging.Component("tools").Error("eviction scratch write failed",
			"operation", "evict", "name", name, "error", err)
		return result
	}

	head := result.ForLLM[:r.evictThreshold/2]
	tail := result.ForLLM[len(result.ForLLM)-r.evictThreshold/2:]
	preview := fmt.Sprintf("%s\n...[truncated, %d bytes total, full output at %s]...\n%s", head, len(result.ForLLM), path, tail)
	return &ToolResult{ForLLM: preview, IsError: result.IsError, Silent: result.Silent}
}

// validateArgs performs a lightweight JSON-schema-equivalent check: every
// name listed in schema["required"] must be present in args, and declared
// property types are checked where they're trivially distinguishable.
// This intentionally does not implement the full JSON Schema spec — none
// of the built-in tools need nested schema composition.
func validateArgs(schema map[string]interface{}, args map[string]interface{}) string {
	if schema == nil {
		return ""
	}
	required, _ := schema["required"].([]string)
	if required == nil {
		if reqAny, ok := schema["required"].([]interface{}); ok {
			for _, r := range reqAny {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Sprintf("missing required field %q", name)
		}
	}

	props, _ := schema["properties"].(map[string]interface{})
	for fieldName, value := range args {
		propSchema, ok := props[fieldName].(map[string]interface{})
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !typeMatches(wantType, value) {
			return fmt.Sprintf("field %q must be of type %s", fieldName, wantType)
		}
	}
	return ""
}

func typeMatches(want string, value interface{}) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}

// DecodeArgs decodes a raw JSON tool-call argument blob into the
// map[string]interface{} shape Tool.Execute expects.
func DecodeArgs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("tools: decode args: %w", err)
	}
	return args, nil
}

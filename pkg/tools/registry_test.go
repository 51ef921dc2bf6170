package tools

import (
	"context"
	"strings"
	"testing"
)

type echoTool struct{ name string }

func (e echoTool) Name() string        { return e.name }
func (e echoTool) Description() string { return "echo" }
func (e echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
		"required":   []string{"text"},
	}
}
func (e echoTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	text, _ := args["text"].(string)
	return &ToolResult{ForLLM: text}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	got := r.Execute(context.Background(), "missing", nil)
	if got != "Error: Tool 'missing' not found" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestRegistryDuplicateRegisterFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool{name: "echo"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool{name: "echo"}); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestRegistryValidationFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "echo"})
	got := r.Execute(context.Background(), "echo", map[string]interface{}{})
	if !strings.HasPrefix(got, "Error: Invalid parameters for 'echo':") {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "echo"})
	got := r.Execute(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if got != "hi" {
		t.Fatalf("unexpected result: %q", got)
	}
}

type panicTool struct{}

func (panicTool) Name() string                            { return "panics" }
func (panicTool) Description() string                      { return "" }
func (panicTool) Parameters() map[string]interface{}       { return nil }
func (panicTool) Execute(context.Context, map[string]interface{}) *ToolResult {
	panic("kaboom")
}

func TestRegistryExecuteRecoversFromPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(panicTool{})
	got := r.Execute(context.Background(), "panics", map[string]interface{}{})
	if !strings.HasPrefix(got, "Error executing 'panics':") {
		t.Fatalf("expected recovered panic error string, got %q", got)
	}
}

func TestRegistryEvictionWrapsLongResults(t *testing.T) {
	var written string
	r := NewRegistry(WithEviction(10, func(name, content string) (string, error) {
		written = content
		return "/scratch/" + name + ".txt", nil
	}))
	r.Register(echoTool{name: "echo"})
	got := r.Execute(context.Background(), "echo", map[string]interface{}{"text": "0123456789abcdefghij"})
	if written != "0123456789abcdefghij" {
		t.Fatalf("expected full content written to scratch, got %q", written)
	}
	if !strings.Contains(got, "/scratch/echo.txt") {
		t.Fatalf("expected preview to reference scratch path, got %q", got)
	}
}

func TestRegistryUnregisterAndHas(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "echo"})
	if !r.Has("echo") {
		t.Fatal("expected echo to be registered")
	}
	r.Unregister("echo")
	if r.Has("echo") {
		t.Fatal("expected echo to be unregistered")
	}
}

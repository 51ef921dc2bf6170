package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/featherbot/featherbot/pkg/tools"
)

// Identity holds the configurable persona FeatherBot presents in its
// system prompt, set per deployment by whatever constructs the Gateway.
type Identity struct {
	Name        string
	Tagline     string
	Workspace   string
	MemoryNote  string
}

// DefaultIdentity returns a minimal, deployment-agnostic identity.
func DefaultIdentity(workspace string) Identity {
	return Identity{
		Name:       "FeatherBot",
		Tagline:    "a persistent, multi-channel conversational agent",
		Workspace:  workspace,
		MemoryNote: "Memory is recorded under <workspace>/memory/ and searchable via the search_memory tool when semantic memory is enabled.",
	}
}

// ContextBuilder assembles the system prompt for a turn, joining an
// identity block (which carries the tool list), bootstrap files, and
// memory context into sections separated by "---".
type ContextBuilder struct {
	identity Identity
	registry *tools.Registry
	memoryFn func() string
}

func NewContextBuilder(identity Identity) *ContextBuilder {
	return &ContextBuilder{identity: identity}
}

// SetToolsRegistry wires the registry used to render the tools section.
func (cb *ContextBuilder) SetToolsRegistry(registry *tools.Registry) {
	cb.registry = registry
}

// SetMemoryContextFunc wires a callback returning current memory context
// text (e.g. the contents of MEMORY.md), rendered lazily at prompt-build
// time so it always reflects the latest write.
func (cb *ContextBuilder) SetMemoryContextFunc(fn func() string) {
	cb.memoryFn = fn
}

func (cb *ContextBuilder) identityBlock() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	workspacePath, _ := filepath.Abs(cb.identity.Workspace)
	rt := fmt.Sprintf("%s %s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# %s

You are %s, %s.

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
%s

%s`, cb.identity.Name, cb.identity.Name, cb.identity.Tagline, now, rt, workspacePath, cb.identity.MemoryNote, cb.toolsSection())
}

func (cb *ContextBuilder) toolsSection() string {
	if cb.registry == nil {
		return ""
	}
	defs := cb.registry.ListDefinitions()
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Available Tools\n\nYou MUST call a tool to perform an action — never claim to have done something you didn't call a tool for.\n\n")
	for _, d := range defs {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", d.Name, d.Description))
	}
	return sb.String()
}

// BuildSystemPrompt assembles the full system prompt: identity, bootstrap
// files, and memory context, joined with a "---" separator.
func (cb *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{cb.identityBlock()}

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if cb.memoryFn != nil {
		if mem := cb.memoryFn(); mem != "" {
			parts = append(parts, "# Memory\n\n"+mem)
		}
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (cb *ContextBuilder) loadBootstrapFiles() string {
	bootstrapFiles := []string{"AGENTS.md", "IDENTITY.md", "USER.md"}
	var result string
	for _, filename := range bootstrapFiles {
		path := filepath.Join(cb.identity.Workspace, filename)
		if data, err := os.ReadFile(path); err == nil {
			result += fmt.Sprintf("## %s\n\n%s\n\n", filename, string(data))
		}
	}
	return result
}

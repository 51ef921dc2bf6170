// Package subagent implements SubagentManager: spawning isolated child
// agent turns with restricted tool sets, timeouts, cancellation, and
// retention.
package subagent

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Spec describes a sub-agent preset: its system prompt, which tools it
// may use, and its model/iteration overrides.
type Spec struct {
	Name          string
	SystemPrompt  string
	ToolPreset    []string
	Model         string
	MaxIterations int
}

// CoreTools is the default preset's permitted tool set.
var CoreTools = []string{"exec", "read_file", "write_file", "edit_file", "list_dir", "web_search", "web_fetch"}

func builtinSpecs() map[string]Spec {
	general := Spec{
		Name:         "general",
		SystemPrompt: "You are a focused sub-agent. Complete the delegated task using only the tools available to you, then report the result plainly.",
		ToolPreset:   append([]string{}, CoreTools...),
	}
	researcher := Spec{
		Name:         "researcher",
		SystemPrompt: "You are a research sub-agent. Investigate the delegated question using your tools, including searching prior memory, and report findings with sources where possible. Do not write files outside the workspace unless asked.",
		ToolPreset:   append(append([]string{}, CoreTools...), "search_memory"),
	}
	return map[string]Spec{general.Name: general, researcher.Name: researcher}
}

// Loader discovers sub-agent presets from <workspace>/subagents/<name>/
// (frontmatter + body) and falls back to the two built-in presets.
type Loader struct {
	dir      string
	builtins map[string]Spec
}

func NewLoader(workspace string) *Loader {
	return &Loader{
		dir:      filepath.Join(workspace, "subagents"),
		builtins: builtinSpecs(),
	}
}

// Load resolves a preset by name. Unknown names fall back to "general".
func (l *Loader) Load(name string) Spec {
	if name == "" {
		name = "general"
	}
	if spec, ok := l.loadFromDisk(name); ok {
		return spec
	}
	if spec, ok := l.builtins[name]; ok {
		return spec
	}
	return l.builtins["general"]
}

func (l *Loader) loadFromDisk(name string) (Spec, bool) {
	path := filepath.Join(l.dir, name, "SUBAGENT.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, false
	}
	content := string(data)
	fm := extractFrontmatter(content)
	meta := parseSimpleYAML(fm)

	spec := Spec{
		Name:         name,
		SystemPrompt: stripFrontmatter(content),
		ToolPreset:   append([]string{}, CoreTools...),
		Model:        meta["model"],
	}
	if presetStr, ok := meta["tool_preset"]; ok && presetStr != "" {
		var preset []string
		for _, t := range strings.Split(presetStr, ",") {
			if t = strings.TrimSpace(t); t != "" {
				preset = append(preset, t)
			}
		}
		if len(preset) > 0 {
			spec.ToolPreset = preset
		}
	}
	if maxIterStr, ok := meta["max_iterations"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(maxIterStr)); err == nil {
			spec.MaxIterations = n
		}
	}
	return spec, true
}

var (
	frontmatterRe      = regexp.MustCompile(`(?s)^---\n(.*)\n---`)
	frontmatterStripRe = regexp.MustCompile(`(?s)^---\n.*?\n---\n`)
)

func extractFrontmatter(content string) string {
	match := frontmatterRe.FindStringSubmatch(content)
	if len(match) > 1 {
		return match[1]
	}
	return ""
}

func stripFrontmatter(content string) string {
	return strings.TrimSpace(frontmatterStripRe.ReplaceAllString(content, ""))
}

func parseSimpleYAML(content string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
			result[key] = value
		}
	}
	return result
}

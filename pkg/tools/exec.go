package tools

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/featherbot/featherbot/internal/logging"
)

const (
	defaultExecTimeout = 30 * time.Second
	maxExecOutputSize  = 1 << 20 // 1 MB
)

// execCommandFn is replaceable for testing.
var execCommandFn = func(ctx context.Context, command string) ([]byte, error) {
	return exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
}

// sanitize redacts every secret from output, longest-first so a secret
// that is a substring of another isn't partially redacted.
func sanitize(output string, secrets []string) string {
	sorted := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, s := range sorted {
		output = strings.ReplaceAll(output, s, "[REDACTED]")
	}
	return output
}

// ExecTool runs a shell command and returns its combined output, with any
// configured secrets redacted.
type ExecTool struct {
	secrets []string
}

// NewExecTool builds the exec tool. secrets lists values (API keys,
// tokens) to scrub from command output before it reaches the model.
func NewExecTool(secrets []string) *ExecTool {
	return &ExecTool{secrets: secrets}
}

func (t *ExecTool) Name() string { return "exec" }
func (t *ExecTool) Description() string {
	return "Execute a shell command on the host. Returns combined stdout/stderr with secrets redacted."
}
func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "Command to execute (passed to sh -c)"},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	logging.Component("tools").Info("executing command", "operation", "exec")

	childCtx, cancel := context.WithTimeout(ctx, defaultExecTimeout)
	defer cancel()

	output, err := execCommandFn(childCtx, command)
	out := string(output)
	if len(out) > maxExecOutputSize {
		out = out[:maxExecOutputSize] + "\n[output truncated at 1MB]"
	}
	out = sanitize(out, t.secrets)

	if err != nil {
		if childCtx.Err() == context.DeadlineExceeded {
			return ErrorResult("command timed out after 30s")
		}
		return &ToolResult{ForLLM: "Error executing command: " + sanitize(err.Error(), t.secrets) + "\n" + out, IsError: true}
	}
	return &ToolResult{ForLLM: out}
}

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/featherbot/featherbot/pkg/agent"
	"github.com/featherbot/featherbot/pkg/subagent"
	"github.com/featherbot/featherbot/pkg/tools"
)

// spawnSubagentTool exposes SubagentManager.Spawn as a registry tool. It
// lives in pkg/gateway rather than pkg/tools because it depends on
// pkg/subagent, which itself depends on pkg/tools — putting the binding
// here avoids the import cycle that would result from the reverse.
type spawnSubagentTool struct {
	manager       *subagent.Manager
	parentLoop    *agent.Loop
	originChannel func() string
	originChatID  func() string
}

func newSpawnSubagentTool(manager *subagent.Manager, parentLoop *agent.Loop, originChannel, originChatID func() string) *spawnSubagentTool {
	return &spawnSubagentTool{manager: manager, parentLoop: parentLoop, originChannel: originChannel, originChatID: originChatID}
}

func (t *spawnSubagentTool) Name() string { return "spawn_subagent" }

func (t *spawnSubagentTool) Description() string {
	return "Spawn a sub-agent to work on a task independently and asynchronously. Returns a task id you can later check with the task's status, not its full output — the sub-agent keeps working after this call returns."
}

func (t *spawnSubagentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task for the sub-agent to complete",
			},
			"preset": map[string]interface{}{
				"type":        "string",
				"description": "Tool preset to run the sub-agent with, e.g. general or researcher",
			},
		},
		"required": []string{"task"},
	}
}

func (t *spawnSubagentTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	task, ok := args["task"].(string)
	if !ok || task == "" {
		return tools.ErrorResult("task is required")
	}
	preset, _ := args["preset"].(string)

	opts := subagent.SpawnOptions{
		Task:     task,
		SpecName: preset,
	}
	if t.originChannel != nil {
		opts.OriginChannel = t.originChannel()
	}
	if t.originChatID != nil {
		opts.OriginChatID = t.originChatID()
	}
	if t.parentLoop != nil && opts.OriginChannel != "" && opts.OriginChatID != "" {
		opts.ParentHistory = t.parentLoop.History(opts.OriginChannel + ":" + opts.OriginChatID)
	}

	id := t.manager.Spawn(ctx, opts)
	return &tools.ToolResult{ForLLM: fmt.Sprintf("Spawned sub-agent %s", id)}
}

// cancelSubagentTool exposes SubagentManager.Cancel as a registry tool.
type cancelSubagentTool struct {
	manager *subagent.Manager
}

func newCancelSubagentTool(manager *subagent.Manager) *cancelSubagentTool {
	return &cancelSubagentTool{manager: manager}
}

func (t *cancelSubagentTool) Name() string        { return "cancel_subagent" }
func (t *cancelSubagentTool) Description() string { return "Cancel a running sub-agent task by id." }
func (t *cancelSubagentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "string", "description": "Sub-agent task id"},
		},
		"required": []string{"id"},
	}
}

func (t *cancelSubagentTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return tools.ErrorResult("id is required")
	}
	if !t.manager.Cancel(id) {
		return tools.ErrorResult(fmt.Sprintf("sub-agent %s is not running", id))
	}
	return &tools.ToolResult{ForLLM: fmt.Sprintf("Cancelled sub-agent %s", id)}
}

// listSubagentsTool surfaces ListActive/ListAll for the model to poll on.
type listSubagentsTool struct {
	manager *subagent.Manager
}

func newListSubagentsTool(manager *subagent.Manager) *listSubagentsTool {
	return &listSubagentsTool{manager: manager}
}

func (t *listSubagentsTool) Name() string { return "list_subagents" }
func (t *listSubagentsTool) Description() string {
	return "List sub-agent tasks and their status. Pass active=true to see only still-running tasks."
}
func (t *listSubagentsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"active": map[string]interface{}{"type": "boolean", "description": "Only list running tasks"},
		},
	}
}

func (t *listSubagentsTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	activeOnly, _ := args["active"].(bool)
	states := t.manager.ListAll()
	if activeOnly {
		states = t.manager.ListActive()
	}
	if len(states) == 0 {
		return &tools.ToolResult{ForLLM: "No sub-agent tasks."}
	}

	var sb strings.Builder
	for _, s := range states {
		fmt.Fprintf(&sb, "- [%s] %s (%s): %s\n", s.ID, s.Status, s.Spec, s.Task)
		if s.Status == subagent.StatusCompleted && s.Result != "" {
			fmt.Fprintf(&sb, "  result: %s\n", s.Result)
		}
		if s.Status == subagent.StatusFailed && s.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", s.Error)
		}
	}
	return &tools.ToolResult{ForLLM: sb.String()}
}

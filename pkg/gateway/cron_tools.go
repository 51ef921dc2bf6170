package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/featherbot/featherbot/pkg/cron"
	"github.com/featherbot/featherbot/pkg/tools"
)

// scheduleJobTool exposes CronService.AddJob as a registry tool, restricted
// to the "message" payload action — a scheduled job reminds the channel
// that created it, the only action this registry currently supports firing.
type scheduleJobTool struct {
	service       *cron.Service
	originChannel func() string
	originChatID  func() string
}

func newScheduleJobTool(service *cron.Service, originChannel, originChatID func() string) *scheduleJobTool {
	return &scheduleJobTool{service: service, originChannel: originChannel, originChatID: originChatID}
}

func (t *scheduleJobTool) Name() string { return "schedule_job" }
func (t *scheduleJobTool) Description() string {
	return "Schedule a reminder message to be sent on this channel later. kind is one of 'every' (everySeconds), 'at' (RFC3339 timestamp), or 'cron' (cronExpr, optional timezone)."
}
func (t *scheduleJobTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":           map[string]interface{}{"type": "string", "description": "Short label for the job"},
			"message":        map[string]interface{}{"type": "string", "description": "Reminder text to send when the job fires"},
			"kind":           map[string]interface{}{"type": "string", "enum": []string{"every", "at", "cron"}},
			"every_seconds":  map[string]interface{}{"type": "integer", "description": "Required when kind=every"},
			"at":             map[string]interface{}{"type": "string", "description": "RFC3339 timestamp, required when kind=at"},
			"cron_expr":      map[string]interface{}{"type": "string", "description": "Five-field cron expression, required when kind=cron"},
			"timezone":       map[string]interface{}{"type": "string", "description": "IANA timezone for kind=cron, defaults to UTC"},
			"delete_after_run": map[string]interface{}{"type": "boolean", "description": "Delete the job after it fires once"},
		},
		"required": []string{"name", "message", "kind"},
	}
}

func (t *scheduleJobTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	name, _ := args["name"].(string)
	message, _ := args["message"].(string)
	kind, _ := args["kind"].(string)
	if name == "" || message == "" || kind == "" {
		return tools.ErrorResult("name, message, and kind are required")
	}

	schedule := cron.Schedule{Kind: kind}
	switch kind {
	case "every":
		secs, ok := args["every_seconds"].(float64)
		if !ok || secs <= 0 {
			return tools.ErrorResult("every_seconds is required and must be positive for kind=every")
		}
		schedule.EverySeconds = int(secs)
	case "at":
		at, ok := args["at"].(string)
		if !ok || at == "" {
			return tools.ErrorResult("at is required for kind=at")
		}
		schedule.At = at
	case "cron":
		expr, ok := args["cron_expr"].(string)
		if !ok || expr == "" {
			return tools.ErrorResult("cron_expr is required for kind=cron")
		}
		schedule.CronExpr = expr
		if tz, ok := args["timezone"].(string); ok {
			schedule.Timezone = tz
		}
	default:
		return tools.ErrorResult(fmt.Sprintf("unknown kind %q", kind))
	}

	deleteAfterRun, _ := args["delete_after_run"].(bool)

	channel, chatID := "", ""
	if t.originChannel != nil {
		channel = t.originChannel()
	}
	if t.originChatID != nil {
		chatID = t.originChatID()
	}

	job, err := t.service.AddJob(ctx, name, schedule, cron.Payload{
		Action:  "message",
		Message: message,
		Channel: channel,
		ChatID:  chatID,
	}, deleteAfterRun)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("failed to schedule job: %v", err))
	}
	return &tools.ToolResult{ForLLM: fmt.Sprintf("Scheduled job %s (%s)", job.ID, job.Name)}
}

// listJobsTool surfaces JobStore.ListJobs for the model to review.
type listJobsTool struct {
	service *cron.Service
	store   *cron.Store
}

func newListJobsTool(service *cron.Service, store *cron.Store) *listJobsTool {
	return &listJobsTool{service: service, store: store}
}

func (t *listJobsTool) Name() string        { return "list_jobs" }
func (t *listJobsTool) Description() string { return "List scheduled jobs." }
func (t *listJobsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *listJobsTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	jobs := t.store.ListJobs()
	if len(jobs) == 0 {
		return &tools.ToolResult{ForLLM: "No scheduled jobs."}
	}
	var sb strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&sb, "- [%s] %s (%s, enabled=%v): %s\n", j.ID, j.Name, j.Schedule.Kind, j.Enabled, j.Payload.Message)
	}
	return &tools.ToolResult{ForLLM: sb.String()}
}

// cancelJobTool exposes CronService.RemoveJob as a registry tool.
type cancelJobTool struct {
	service *cron.Service
}

func newCancelJobTool(service *cron.Service) *cancelJobTool {
	return &cancelJobTool{service: service}
}

func (t *cancelJobTool) Name() string        { return "cancel_job" }
func (t *cancelJobTool) Description() string { return "Cancel a scheduled job by id." }
func (t *cancelJobTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "string", "description": "Job id"},
		},
		"required": []string{"id"},
	}
}

func (t *cancelJobTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return tools.ErrorResult("id is required")
	}
	if err := t.service.RemoveJob(id); err != nil {
		return tools.ErrorResult(fmt.Sprintf("failed to cancel job: %v", err))
	}
	return &tools.ToolResult{ForLLM: fmt.Sprintf("Cancelled job %s", id)}
}

// setJobEnabledTool exposes CronService.EnableJob as a registry tool, so a
// job can be paused and resumed without deleting and recreating it.
type setJobEnabledTool struct {
	service *cron.Service
}

func newSetJobEnabledTool(service *cron.Service) *setJobEnabledTool {
	return &setJobEnabledTool{service: service}
}

func (t *setJobEnabledTool) Name() string { return "set_job_enabled" }
func (t *setJobEnabledTool) Description() string {
	return "Enable or disable a scheduled job by id without deleting it."
}
func (t *setJobEnabledTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":      map[string]interface{}{"type": "string", "description": "Job id"},
			"enabled": map[string]interface{}{"type": "boolean", "description": "Whether the job should run"},
		},
		"required": []string{"id", "enabled"},
	}
}

func (t *setJobEnabledTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return tools.ErrorResult("id is required")
	}
	enabled, ok := args["enabled"].(bool)
	if !ok {
		return tools.ErrorResult("enabled is required")
	}
	if err := t.service.EnableJob(id, enabled); err != nil {
		return tools.ErrorResult(fmt.Sprintf("failed to update job: %v", err))
	}
	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	return &tools.ToolResult{ForLLM: fmt.Sprintf("%s job %s", verb, id)}
}

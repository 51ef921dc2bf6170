package gateway

import (
	"context"
	"testing"

	"github.com/featherbot/featherbot/internal/config"
	"github.com/featherbot/featherbot/pkg/bus"
	"github.com/featherbot/featherbot/pkg/cron"
)

func baseConfig(t *testing.T) *config.Core {
	t.Helper()
	return &config.Core{
		HistoryMaxMessages:   10,
		MaxToolIterations:    4,
		SubagentTimeout:      0,
		SubagentRetentionCap: 0,
		ToolResultEvictBytes: 1024,
		ToolScratchDir:       t.TempDir(),
		Workspace:            t.TempDir(),
		CronStorePath:        t.TempDir() + "/cron.json",
		IdentityName:         "TestBot",
		IdentityTagline:      "a test harness",
		ClaudeAPIKey:         "test-claude-key",
		ClaudeModel:          "claude-test",
		TerminalChatID:       "t1",
		RestrictToWorkspace:  true,
	}
}

func TestNewBuildsRegistryWithCoreAndCompositeTools(t *testing.T) {
	gw, err := New(baseConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{
		"think", "message", "read_file", "write_file", "edit_file", "list_dir",
		"exec", "web_fetch", "spawn_subagent", "cancel_subagent", "list_subagents",
		"schedule_job", "list_jobs", "cancel_job", "set_job_enabled",
	}
	for _, name := range want {
		if !gw.registry.Has(name) {
			t.Errorf("expected registry to contain tool %q", name)
		}
	}

	if gw.registry.Has("search_memory") || gw.registry.Has("feed_memory") {
		t.Error("memory tools should not be registered when MemoryEnabled is false")
	}
}

func TestNewFailsWithoutAnyProvider(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ClaudeAPIKey = ""
	cfg.OpenAIAPIKey = ""

	if _, err := New(cfg); err == nil {
		t.Fatal("expected New to fail with no provider configured")
	}
}

func TestOnJobFirePublishesOutboundForMessageAction(t *testing.T) {
	gw, err := New(baseConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	received := make(chan bus.OutboundMessage, 1)
	gw.bus.Subscribe(bus.EventOutbound, func(event bus.BusEvent) error {
		if event.Outbound != nil {
			received <- *event.Outbound
		}
		return nil
	})

	job := cron.Job{
		ID: "job-1",
		Payload: cron.Payload{
			Action:  "message",
			Message: "reminder text",
			Channel: "terminal",
			ChatID:  "t1",
		},
	}
	if err := gw.onJobFire(context.Background(), job); err != nil {
		t.Fatalf("onJobFire: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Content != "reminder text" || msg.Channel != "terminal" || msg.ChatID != "t1" {
			t.Errorf("unexpected outbound message: %+v", msg)
		}
	default:
		t.Fatal("expected an outbound message to be published")
	}
}

func TestOnJobFireRejectsUnknownAction(t *testing.T) {
	gw, err := New(baseConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = gw.onJobFire(context.Background(), cron.Job{ID: "job-2", Payload: cron.Payload{Action: "unknown"}})
	if err == nil {
		t.Fatal("expected an error for an unknown job action")
	}
}

package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/featherbot/featherbot/internal/logging"
	"github.com/featherbot/featherbot/pkg/agent"
	"github.com/featherbot/featherbot/pkg/history"
	"github.com/featherbot/featherbot/pkg/providers"
	"github.com/featherbot/featherbot/pkg/tools"
)

// Status is a SubagentState's lifecycle stage.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const (
	defaultTimeout   = 300 * time.Second
	defaultRetention = 50
	maxContextPairs  = 10
	maxContextChars  = 2000
)

// globallyBlockedTools may never be granted to a sub-agent regardless of
// its preset.
var globallyBlockedTools = map[string]bool{
	"spawn_subagent":  true,
	"cron":            true,
	"schedule_job":    true,
	"list_jobs":       true,
	"cancel_job":      true,
	"set_job_enabled": true,
	"message":         true,
}

// State is a sub-agent task's lifecycle record.
type State struct {
	ID            string
	Task          string
	Status        Status
	Result        string
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
	OriginChannel string
	OriginChatID  string
	Spec          string

	cancel context.CancelFunc
}

// SpawnOptions configures a spawn call.
type SpawnOptions struct {
	Task          string
	SpecName      string
	OriginChannel string
	OriginChatID  string
	Timeout       time.Duration
	ParentHistory *history.History
}

// Manager implements spawn/cancel/getState/listActive/listAll. It
// exclusively owns its id→state mapping.
type Manager struct {
	mu             sync.Mutex
	states         map[string]*State
	order          []string // insertion order, for deterministic listAll
	provider       providers.LLMProvider
	parentRegistry *tools.Registry
	loader         *Loader
	defaultTimeout time.Duration
	retentionCap   int
	onComplete     func(State)
}

func NewManager(provider providers.LLMProvider, parentRegistry *tools.Registry, loader *Loader) *Manager {
	return &Manager{
		states:         make(map[string]*State),
		provider:       provider,
		parentRegistry: parentRegistry,
		loader:         loader,
		defaultTimeout: defaultTimeout,
		retentionCap:   defaultRetention,
	}
}

// SetDefaultTimeout overrides the default spawn timeout (config-driven).
func (m *Manager) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		m.defaultTimeout = d
	}
}

// SetRetentionCap overrides the terminal-state retention cap.
func (m *Manager) SetRetentionCap(n int) {
	if n > 0 {
		m.retentionCap = n
	}
}

// OnComplete registers a hook invoked asynchronously once a spawned task
// reaches a terminal state.
func (m *Manager) OnComplete(fn func(State)) {
	m.onComplete = fn
}

// Spawn starts a child agent turn asynchronously and returns its id
// immediately; the caller polls GetState/ListActive for progress.
func (m *Manager) Spawn(parentCtx context.Context, opts SpawnOptions) string {
	id := uuid.NewString()
	spec := m.loader.Load(opts.SpecName)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	cancelCtx, cancel := context.WithCancel(parentCtx)
	state := &State{
		ID:            id,
		Task:          opts.Task,
		Status:        StatusRunning,
		StartedAt:     time.Now(),
		OriginChannel: opts.OriginChannel,
		OriginChatID:  opts.OriginChatID,
		Spec:          spec.Name,
		cancel:        cancel,
	}

	m.mu.Lock()
	m.evictIfNeeded()
	m.states[id] = state
	m.order = append(m.order, id)
	m.mu.Unlock()

	registry := m.restrictedRegistry(spec)
	systemPrompt := spec.SystemPrompt
	if opts.ParentHistory != nil {
		if ctxBlock := buildParentContext(opts.ParentHistory, maxContextPairs); ctxBlock != "" {
			systemPrompt += "\n\n## Prior Conversation Context\n\n" + ctxBlock
		}
	}

	loopOpts := []agent.Option{agent.WithDefaultSystemPrompt(systemPrompt)}
	if spec.MaxIterations > 0 {
		loopOpts = append(loopOpts, agent.WithMaxToolIterations(spec.MaxIterations))
	}
	if spec.Model != "" {
		loopOpts = append(loopOpts, agent.WithModel(spec.Model))
	}
	childLoop := agent.NewLoop(m.provider, registry, loopOpts...)

	go m.run(cancelCtx, cancel, id, opts.Task, timeout, childLoop)

	return id
}

func (m *Manager) restrictedRegistry(spec Spec) *tools.Registry {
	restricted := tools.NewRegistry()
	allowed := make(map[string]bool, len(spec.ToolPreset))
	for _, name := range spec.ToolPreset {
		if globallyBlockedTools[name] {
			continue
		}
		allowed[name] = true
	}
	if m.parentRegistry == nil {
		return restricted
	}
	for _, name := range m.parentRegistry.Names() {
		if !allowed[name] {
			continue
		}
		if tool, ok := m.parentRegistry.Get(name); ok {
			_ = restricted.Register(tool)
		}
	}
	return restricted
}

// run races the task promise against a timeout fuse and the cancellation
// handle; cancellation wins over timeout, which wins over the task's own
// outcome.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, id, task string, timeout time.Duration, loop *agent.Loop) {
	defer cancel()

	type outcome struct {
		text   string
		failed bool
		errMsg string
	}
	done := make(chan outcome, 1)

	go func() {
		result := loop.ProcessDirect(ctx, task, agent.DirectOptions{SkipHistory: true})
		if result.FinishReason == "error" {
			done <- outcome{failed: true, errMsg: strings.TrimPrefix(result.Text, "[LLM Error] ")}
			return
		}
		done <- outcome{text: result.Text}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var final State
	select {
	case o := <-done:
		if ctx.Err() != nil {
			final = m.terminalFrom(id, StatusCancelled, "", "Cancelled by user")
		} else if o.failed {
			final = m.terminalFrom(id, StatusFailed, "", o.errMsg)
		} else {
			final = m.terminalFrom(id, StatusCompleted, o.text, "")
		}
	case <-timer.C:
		if ctx.Err() != nil {
			final = m.terminalFrom(id, StatusCancelled, "", "Cancelled by user")
		} else {
			final = m.terminalFrom(id, StatusFailed, "", "Sub-agent timed out")
		}
	case <-ctx.Done():
		final = m.terminalFrom(id, StatusCancelled, "", "Cancelled by user")
	}

	if m.onComplete != nil {
		go m.onComplete(final)
	}
}

func (m *Manager) terminalFrom(id string, status Status, result, errMsg string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		return State{ID: id, Status: status, Result: result, Error: errMsg}
	}
	if state.Status != StatusRunning {
		return *state
	}
	now := time.Now()
	state.Status = status
	state.Result = result
	state.Error = errMsg
	state.CompletedAt = &now
	logging.Component("subagent").Info("task finished", "operation", "run", "id", id, "status", status)
	return *state
}

// Cancel flips the cancellation handle for a running task. Returns false
// if the task is not found or already terminal.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	state, ok := m.states[id]
	m.mu.Unlock()
	if !ok || state.Status != StatusRunning {
		return false
	}
	state.cancel()
	return true
}

// GetState returns a snapshot of a task's current state.
func (m *Manager) GetState(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// ListActive returns all states currently running.
func (m *Manager) ListActive() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []State
	for _, id := range m.order {
		if s := m.states[id]; s.Status == StatusRunning {
			out = append(out, *s)
		}
	}
	return out
}

// ListAll returns every retained state, in insertion order.
func (m *Manager) ListAll() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.states[id])
	}
	return out
}

// evictIfNeeded drops the oldest terminal state by completedAt once the
// retention cap would otherwise be exceeded. Must be called with m.mu held.
func (m *Manager) evictIfNeeded() {
	terminalCount := 0
	for _, id := range m.order {
		if m.states[id].Status != StatusRunning {
			terminalCount++
		}
	}
	if terminalCount < m.retentionCap {
		return
	}

	oldestIdx := -1
	var oldestAt time.Time
	for i, id := range m.order {
		s := m.states[id]
		if s.Status == StatusRunning || s.CompletedAt == nil {
			continue
		}
		if oldestIdx == -1 || s.CompletedAt.Before(oldestAt) {
			oldestIdx = i
			oldestAt = *s.CompletedAt
		}
	}
	if oldestIdx == -1 {
		return
	}
	evictedID := m.order[oldestIdx]
	delete(m.states, evictedID)
	m.order = append(m.order[:oldestIdx], m.order[oldestIdx+1:]...)
}

// buildParentContext renders the last n user/assistant pairs as
// "User: …\nAssistant: …\n…", excluding system/tool messages and
// truncating any single message beyond maxContextChars.
func buildParentContext(h *history.History, n int) string {
	msgs := h.Messages()
	var relevant []history.Message
	for _, m := range msgs {
		if m.Role == history.RoleUser || m.Role == history.RoleAssistant {
			relevant = append(relevant, m)
		}
	}
	if len(relevant) > n*2 {
		relevant = relevant[len(relevant)-n*2:]
	}

	var sb strings.Builder
	for _, m := range relevant {
		label := "User"
		if m.Role == history.RoleAssistant {
			label = "Assistant"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", label, truncate(m.Content, maxContextChars)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

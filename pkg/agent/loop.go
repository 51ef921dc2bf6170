// PicoClaw - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package agent implements the AgentLoop: the turn algorithm that builds
// a prompt from stored history, invokes the LLM provider with the tool
// schema, dispatches any tool calls through the registry, and updates
// history.
package agent

import (
	"context"
	"fmt"

	"github.com/featherbot/featherbot/internal/logging"
	"github.com/featherbot/featherbot/pkg/bus"
	"github.com/featherbot/featherbot/pkg/history"
	"github.com/featherbot/featherbot/pkg/providers"
	"github.com/featherbot/featherbot/pkg/tools"
)

const (
	defaultMaxToolIterations = 12
	defaultTemperature       = 0.7
	defaultMaxTokens         = 4096
	directDefaultSessionKey  = "direct:default"
)

// TurnResult is what a turn resolves to.
type TurnResult struct {
	Text         string
	Usage        *providers.UsageInfo
	StepCount    int
	FinishReason string
	ToolCalls    []providers.ToolCall
	ToolResults  []string
}

// StepEvent is passed to the onStepFinish hook after a turn completes.
type StepEvent struct {
	SessionKey string
	Inbound    string
	Result     TurnResult
}

// DirectOptions configures a processDirect call.
type DirectOptions struct {
	SystemPrompt string
	SessionKey   string
	SkipHistory  bool
}

// Option configures an AgentLoop at construction.
type Option func(*Loop)

func WithMaxToolIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxToolIterations = n
		}
	}
}

func WithHistoryMaxMessages(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.historyMaxMessages = n
		}
	}
}

func WithDefaultSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.defaultSystemPrompt = prompt }
}

func WithOnStepFinish(fn func(StepEvent)) Option {
	return func(l *Loop) { l.onStepFinish = fn }
}

func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// Loop owns one ConversationHistory per session key and drives turns
// against a single provider/registry pair. A Gateway constructs one Loop
// for the primary conversation; SubagentManager constructs an additional
// private Loop per spawned child with a restricted registry.
type Loop struct {
	provider providers.LLMProvider
	registry *tools.Registry

	histories map[string]*history.History

	maxToolIterations   int
	historyMaxMessages  int
	defaultSystemPrompt string
	model               string
	onStepFinish        func(StepEvent)
}

// NewLoop constructs an AgentLoop bound to provider and registry.
func NewLoop(provider providers.LLMProvider, registry *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		provider:          provider,
		registry:          registry,
		histories:         make(map[string]*history.History),
		maxToolIterations: defaultMaxToolIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.model == "" && provider != nil {
		l.model = provider.GetDefaultModel()
	}
	return l
}

// History returns the ConversationHistory for sessionKey, creating it if
// absent. Exposed so SubagentManager can capture a snapshot of the
// parent's conversation without owning its own copy of that history.
func (l *Loop) History(sessionKey string) *history.History {
	return l.historyFor(sessionKey)
}

func (l *Loop) historyFor(sessionKey string) *history.History {
	if h, ok := l.histories[sessionKey]; ok {
		return h
	}
	h := history.New(l.historyMaxMessages)
	l.histories[sessionKey] = h
	return h
}

// ProcessMessage runs a turn for an inbound bus message, using the default
// system prompt and the message's own session key.
func (l *Loop) ProcessMessage(ctx context.Context, inbound bus.InboundMessage) TurnResult {
	return l.run(ctx, inbound.Content, DirectOptions{
		SystemPrompt: l.defaultSystemPrompt,
		SessionKey:   inbound.SessionKey(),
	})
}

// ProcessDirect runs a turn outside the bus path — used by SubagentManager
// and MemoryExtractor. skipHistory bypasses persisting the user/assistant
// pair (used for memory extraction turns that must not pollute the
// conversation they're summarizing).
func (l *Loop) ProcessDirect(ctx context.Context, text string, opts DirectOptions) TurnResult {
	if opts.SessionKey == "" {
		opts.SessionKey = directDefaultSessionKey
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = l.defaultSystemPrompt
	}
	return l.run(ctx, text, opts)
}

// ProcessDirectSkipHistory satisfies memory.TurnRunner: it runs a
// skip-history turn under the given session key and reports whether the
// turn itself failed, so the idle extractor can log without inspecting
// TurnResult internals.
func (l *Loop) ProcessDirectSkipHistory(ctx context.Context, text, sessionKey string) error {
	result := l.ProcessDirect(ctx, text, DirectOptions{SessionKey: sessionKey, SkipHistory: true})
	if result.FinishReason == "error" {
		return fmt.Errorf("%s", result.Text)
	}
	return nil
}

func (l *Loop) run(ctx context.Context, text string, opts DirectOptions) TurnResult {
	// Cancellation observed at the loop's first suspension point: if the
	// context is already done, the turn ends immediately without touching
	// history.
	select {
	case <-ctx.Done():
		result := TurnResult{Text: "[LLM Error] " + ctx.Err().Error(), FinishReason: "error"}
		l.finish(opts.SessionKey, text, result)
		return result
	default:
	}

	h := l.historyFor(opts.SessionKey)
	messages := l.buildMessages(opts.SystemPrompt, h, text)
	toolDefs := l.buildToolDefs()

	result := l.runToolLoop(ctx, messages, toolDefs)

	if !opts.SkipHistory && result.FinishReason != "error" {
		h.Add(history.Message{Role: history.RoleUser, Content: text})
		if result.Text != "" {
			h.Add(history.Message{Role: history.RoleAssistant, Content: result.Text})
		}
	}

	l.finish(opts.SessionKey, text, result)
	return result
}

func (l *Loop) finish(sessionKey, inbound string, result TurnResult) {
	if l.onStepFinish == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Component("agent").Error("onStepFinish callback panicked, discarding",
				"operation", "finish", "session_key", sessionKey, "panic", r)
		}
	}()
	l.onStepFinish(StepEvent{SessionKey: sessionKey, Inbound: inbound, Result: result})
}

func (l *Loop) buildMessages(systemPrompt string, h *history.History, userText string) []providers.Message {
	var out []providers.Message
	if systemPrompt != "" {
		out = append(out, providers.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range h.Messages() {
		out = append(out, providers.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID})
	}
	out = append(out, providers.Message{Role: "user", Content: userText})
	return out
}

func (l *Loop) buildToolDefs() []providers.ToolDefinition {
	if l.registry == nil {
		return nil
	}
	defs := l.registry.ListDefinitions()
	if len(defs) == 0 {
		return nil
	}
	out := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// runToolLoop invokes the provider, dispatching any requested tool calls
// through the registry, up to maxToolIterations rounds. Provider errors
// are mapped to a "[LLM Error] " text reply rather than propagated.
func (l *Loop) runToolLoop(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) TurnResult {
	var allToolCalls []providers.ToolCall
	var allToolResults []string
	var usage providers.UsageInfo

	for step := 0; step < l.maxToolIterations; step++ {
		select {
		case <-ctx.Done():
			return TurnResult{
				Text:         "[LLM Error] " + ctx.Err().Error(),
				FinishReason: "error",
				StepCount:    step,
				ToolCalls:    allToolCalls,
				ToolResults:  allToolResults,
			}
		default:
		}

		resp, err := l.provider.Chat(ctx, messages, toolDefs, l.model, map[string]interface{}{
			"temperature": defaultTemperature,
			"max_tokens":  defaultMaxTokens,
		})
		if err != nil {
			logging.Component("agent").Error("provider call failed", "operation", "run_tool_loop", "error", err)
			return TurnResult{
				Text:         "[LLM Error] " + err.Error(),
				FinishReason: "error",
				StepCount:    step,
				ToolCalls:    allToolCalls,
				ToolResults:  allToolResults,
			}
		}
		if resp.Usage != nil {
			usage.PromptTokens += resp.Usage.PromptTokens
			usage.CompletionTokens += resp.Usage.CompletionTokens
			usage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			return TurnResult{
				Text:         resp.Content,
				Usage:        &usage,
				StepCount:    step + 1,
				FinishReason: resp.FinishReason,
				ToolCalls:    allToolCalls,
				ToolResults:  allToolResults,
			}
		}

		messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		allToolCalls = append(allToolCalls, resp.ToolCalls...)

		for _, tc := range resp.ToolCalls {
			result := "Error: Tool registry not configured"
			if l.registry != nil {
				result = l.registry.Execute(ctx, tc.Name, tc.Arguments)
			}
			allToolResults = append(allToolResults, result)
			messages = append(messages, providers.Message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}

	return TurnResult{
		Text:         fmt.Sprintf("[LLM Error] exceeded max tool iterations (%d)", l.maxToolIterations),
		FinishReason: "error",
		StepCount:    l.maxToolIterations,
		ToolCalls:    allToolCalls,
		ToolResults:  allToolResults,
	}
}

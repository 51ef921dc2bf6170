// Package gateway implements the composition root: it constructs the bus,
// tool registry, agent loop, subagent manager, cron service, memory
// extractor, and channel adapters, and owns their startup/shutdown order.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/featherbot/featherbot/internal/config"
	"github.com/featherbot/featherbot/internal/logging"
	"github.com/featherbot/featherbot/pkg/agent"
	"github.com/featherbot/featherbot/pkg/bus"
	"github.com/featherbot/featherbot/pkg/channel"
	"github.com/featherbot/featherbot/pkg/cron"
	"github.com/featherbot/featherbot/pkg/memory"
	"github.com/featherbot/featherbot/pkg/metrics"
	"github.com/featherbot/featherbot/pkg/providers"
	"github.com/featherbot/featherbot/pkg/subagent"
	"github.com/featherbot/featherbot/pkg/tools"
)

// channelAdapter is the narrow lifecycle surface Gateway needs from a
// channel adapter; channel.Terminal satisfies it today.
type channelAdapter interface {
	Start(ctx context.Context) error
	Stop()
}

// Gateway owns every core subsystem and their startup/shutdown order.
type Gateway struct {
	cfg *config.Core

	bus            *bus.MessageBus
	registry       *tools.Registry
	provider       providers.LLMProvider
	loop           *agent.Loop
	contextBuilder *agent.ContextBuilder
	subagents      *subagent.Manager
	cronStore      *cron.Store
	cronService    *cron.Service
	knowledge      *memory.KnowledgeStore
	extractor      *memory.Extractor
	idleExtractor  *memory.IdleExtractor
	messageTool    *tools.MessageTool
	tokenTracker   *metrics.Tracker

	adapters []channelAdapter

	mu         sync.Mutex
	curInbound bus.InboundMessage
}

// New constructs every subsystem but starts nothing.
func New(cfg *config.Core) (*Gateway, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:      cfg,
		bus:      bus.NewMessageBus(),
		provider: provider,
	}

	if err := g.buildMemory(); err != nil {
		return nil, err
	}
	g.buildRegistry()

	identity := agent.DefaultIdentity(cfg.Workspace)
	identity.Name = cfg.IdentityName
	identity.Tagline = cfg.IdentityTagline
	g.contextBuilder = agent.NewContextBuilder(identity)
	g.contextBuilder.SetToolsRegistry(g.registry)
	if g.knowledge != nil {
		g.contextBuilder.SetMemoryContextFunc(func() string {
			return "Semantic memory is enabled; call search_memory before relying on assumptions about the user."
		})
	}

	g.tokenTracker = metrics.NewTracker(cfg.Workspace)

	g.loop = agent.NewLoop(provider, g.registry,
		agent.WithMaxToolIterations(cfg.MaxToolIterations),
		agent.WithHistoryMaxMessages(cfg.HistoryMaxMessages),
		agent.WithDefaultSystemPrompt(g.contextBuilder.BuildSystemPrompt()),
		agent.WithOnStepFinish(g.onStepFinish),
	)

	loader := subagent.NewLoader(cfg.Workspace)
	g.subagents = subagent.NewManager(provider, g.registry, loader)
	g.subagents.SetDefaultTimeout(cfg.SubagentTimeout)
	g.subagents.SetRetentionCap(cfg.SubagentRetentionCap)
	g.subagents.OnComplete(g.onSubagentComplete)

	g.cronStore = cron.NewStore(cfg.CronStorePath)
	g.cronService = cron.NewService(g.cronStore, g.onJobFire)

	g.idleExtractor = memory.NewIdleExtractor(g.loop, cfg.MemoryIdleDuration > 0)
	if cfg.MemoryIdleDuration > 0 {
		g.idleExtractor.SetIdleDuration(cfg.MemoryIdleDuration)
	}

	// spawn_subagent/cancel_subagent/list_subagents and
	// schedule_job/list_jobs/cancel_job depend on the subagent manager and
	// cron service that only exist after the registry is built above, so
	// they're registered here rather than in buildRegistry.
	g.registerSecondPassTools()

	terminal, err := channel.NewTerminal(g.bus, cfg.TerminalChatID)
	if err != nil {
		return nil, fmt.Errorf("gateway: init terminal adapter: %w", err)
	}
	g.adapters = append(g.adapters, terminal)

	g.bus.Subscribe(bus.EventInbound, g.handleInbound)

	return g, nil
}

func buildProvider(cfg *config.Core) (providers.LLMProvider, error) {
	var claude, openai providers.LLMProvider
	if cfg.ClaudeAPIKey != "" {
		claude = providers.NewClaudeProvider(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	}
	if cfg.OpenAIAPIKey != "" {
		openai = providers.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	switch {
	case claude != nil && openai != nil:
		return providers.NewFallbackProvider(claude, openai, cfg.ClaudeModel, cfg.OpenAIModel), nil
	case claude != nil:
		return claude, nil
	case openai != nil:
		return openai, nil
	default:
		return nil, fmt.Errorf("gateway: no provider configured (set FEATHERBOT_CLAUDE_API_KEY or FEATHERBOT_OPENAI_API_KEY)")
	}
}

func (g *Gateway) buildMemory() error {
	if !g.cfg.MemoryEnabled {
		return nil
	}
	var embeddingFn chromem.EmbeddingFunc
	switch {
	case g.cfg.OpenAIAPIKey != "":
		embeddingFn = chromem.NewEmbeddingFuncOpenAI(g.cfg.OpenAIAPIKey, chromem.EmbeddingModelOpenAI(g.cfg.MemoryEmbeddingModel))
	default:
		logging.Component("gateway").Warn("memory enabled but no embedding key available, disabling",
			"operation", "build_memory")
		return nil
	}

	store, err := memory.NewKnowledgeStore(g.cfg.Workspace, embeddingFn)
	if err != nil {
		return fmt.Errorf("gateway: init knowledge store: %w", err)
	}
	g.knowledge = store
	g.extractor = memory.NewExtractor(g.provider, g.provider.GetDefaultModel(), store)
	return nil
}

func (g *Gateway) buildRegistry() {
	scratchDir := g.cfg.ToolScratchDir
	registry := tools.NewRegistry(tools.WithEviction(g.cfg.ToolResultEvictBytes, func(name, content string) (string, error) {
		return tools.WriteScratch(scratchDir, name, content)
	}))

	policy := tools.WorkspacePolicy{Root: g.cfg.Workspace, RestrictToWorkspace: g.cfg.RestrictToWorkspace}

	g.messageTool = tools.NewMessageTool()
	g.messageTool.SetSendFunc(func(destChannel, chatID, content string, metadata map[string]string) error {
		g.bus.Publish(bus.BusEvent{
			Type: bus.EventOutbound,
			Outbound: &bus.OutboundMessage{
				Channel: destChannel,
				ChatID:  chatID,
				Content: content,
			},
		})
		return nil
	})

	register := func(t tools.Tool) {
		if err := registry.Register(t); err != nil {
			logging.Component("gateway").Error("tool registration failed", "operation", "build_registry", "name", t.Name(), "error", err)
		}
	}

	register(tools.NewThinkTool())
	register(g.messageTool)
	register(tools.NewReadFileTool(policy))
	register(tools.NewWriteFileTool(policy))
	register(tools.NewEditFileTool(policy))
	register(tools.NewListDirTool(policy))
	register(tools.NewExecTool([]string{g.cfg.ClaudeAPIKey, g.cfg.OpenAIAPIKey}))
	register(tools.NewWebFetchTool())

	if g.knowledge != nil {
		register(tools.NewMemorySearchTool(g.knowledge))
		register(tools.NewFeedMemoryTool(g.knowledge))
	}

	g.registry = registry
}

// registerSecondPassTools binds the subagent/cron tools, which need the
// manager/service constructed from g.registry itself — a chicken-and-egg
// sequencing resolved by registering them after those subsystems exist.
func (g *Gateway) registerSecondPassTools() {
	originChannel := func() string {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.curInbound.Channel
	}
	originChatID := func() string {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.curInbound.ChatID
	}

	register := func(t tools.Tool) {
		if err := g.registry.Register(t); err != nil {
			logging.Component("gateway").Error("tool registration failed", "operation", "register_second_pass", "name", t.Name(), "error", err)
		}
	}

	register(newSpawnSubagentTool(g.subagents, g.loop, originChannel, originChatID))
	register(newCancelSubagentTool(g.subagents))
	register(newListSubagentsTool(g.subagents))
	register(newScheduleJobTool(g.cronService, originChannel, originChatID))
	register(newListJobsTool(g.cronService, g.cronStore))
	register(newCancelJobTool(g.cronService))
	register(newSetJobEnabledTool(g.cronService))
}

// handleInbound drives one agent turn per inbound bus message. It is the
// Gateway's only bus.EventInbound subscriber.
func (g *Gateway) handleInbound(event bus.BusEvent) error {
	if event.Inbound == nil {
		return nil
	}
	inbound := *event.Inbound

	g.mu.Lock()
	g.curInbound = inbound
	g.mu.Unlock()

	g.messageTool.SetContext(inbound.Channel, inbound.ChatID, inbound.Metadata)

	result := g.loop.ProcessMessage(context.Background(), inbound)

	if !g.messageTool.HasSentInRound() && result.Text != "" {
		g.bus.Publish(bus.BusEvent{
			Type: bus.EventOutbound,
			Outbound: &bus.OutboundMessage{
				Channel:            inbound.Channel,
				ChatID:             inbound.ChatID,
				Content:            result.Text,
				InReplyToMessageID: inbound.MessageID,
			},
		})
	}

	if g.extractor != nil && result.FinishReason != "error" {
		go g.extractor.ExtractAndConsolidate(context.Background(), inbound.Content, result.Text, inbound.SessionKey())
	}
	if g.knowledge != nil {
		go g.knowledge.IndexConversation(context.Background(), inbound.SessionKey(), inbound.Channel, inbound.Content, result.Text)
	}

	g.idleExtractor.ScheduleExtraction(inbound.SessionKey())
	return nil
}

func (g *Gateway) onStepFinish(event agent.StepEvent) {
	logging.Component("gateway").Info("turn finished", "operation", "on_step_finish",
		"session_key", event.SessionKey, "steps", event.Result.StepCount, "finish_reason", event.Result.FinishReason)

	if event.Result.Usage == nil {
		return
	}
	g.tokenTracker.Record(metrics.TokenEvent{
		SessionKey:   event.SessionKey,
		Model:        g.provider.GetDefaultModel(),
		InputTokens:  event.Result.Usage.PromptTokens,
		OutputTokens: event.Result.Usage.CompletionTokens,
		Iteration:    event.Result.StepCount,
	})
}

func (g *Gateway) onSubagentComplete(state subagent.State) {
	if state.OriginChannel == "" || state.OriginChatID == "" {
		return
	}
	content := state.Result
	if state.Status == subagent.StatusFailed {
		content = fmt.Sprintf("Sub-agent task failed: %s", state.Error)
	} else if state.Status == subagent.StatusCancelled {
		content = "Sub-agent task was cancelled."
	}
	if content == "" {
		return
	}
	g.bus.Publish(bus.BusEvent{
		Type: bus.EventOutbound,
		Outbound: &bus.OutboundMessage{
			Channel: state.OriginChannel,
			ChatID:  state.OriginChatID,
			Content: fmt.Sprintf("[sub-agent %s] %s", state.ID, content),
		},
	})
}

// onJobFire implements cron.OnJobFire for the "message" payload action —
// the only action this registry's schedule_job tool currently produces.
func (g *Gateway) onJobFire(ctx context.Context, job cron.Job) error {
	switch job.Payload.Action {
	case "message":
		if job.Payload.Channel == "" || job.Payload.ChatID == "" {
			return fmt.Errorf("job %s has no destination channel/chat", job.ID)
		}
		g.bus.Publish(bus.BusEvent{
			Type: bus.EventOutbound,
			Outbound: &bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.ChatID,
				Content: job.Payload.Message,
			},
		})
		return nil
	default:
		return fmt.Errorf("unknown job action %q", job.Payload.Action)
	}
}

// Start brings up the bus consumer (already subscribed at construction),
// each channel adapter, and the cron service, in that order; the memory
// extractor needs no explicit start, it arms itself per session as
// handleInbound processes turns. Start blocks until every adapter's Start
// call returns (e.g. ctx cancellation or stdin closing).
func (g *Gateway) Start(ctx context.Context) error {
	logging.Component("gateway").Info("starting", "operation", "start")

	var wg sync.WaitGroup
	errCh := make(chan error, len(g.adapters))
	for _, a := range g.adapters {
		wg.Add(1)
		go func(a channelAdapter) {
			defer wg.Done()
			if err := a.Start(ctx); err != nil {
				errCh <- err
			}
		}(a)
	}

	g.cronService.Start(ctx)

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop tears down in reverse order: memory extractor, cron service,
// adapters, then the bus.
func (g *Gateway) Stop() {
	logging.Component("gateway").Info("stopping", "operation", "stop")
	g.idleExtractor.Dispose()
	g.cronService.Stop()
	for _, a := range g.adapters {
		a.Stop()
	}
	g.bus.Close()
}

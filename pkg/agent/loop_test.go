package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/featherbot/featherbot/pkg/bus"
	"github.com/featherbot/featherbot/pkg/providers"
	"github.com/featherbot/featherbot/pkg/tools"
)

type scriptedProvider struct {
	responses []*providers.LLMResponse
	errs      []error
	calls     int
	model     string
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &providers.LLMResponse{Content: "done"}, nil
}

func (p *scriptedProvider) GetDefaultModel() string { return p.model }

type echoTool struct{ calls int }

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echoes input" }
func (e *echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	e.calls++
	return &tools.ToolResult{ForLLM: "echoed"}
}

func TestProcessMessageNoTools(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.LLMResponse{{Content: "hello there", FinishReason: "stop"}},
		model:     "test-model",
	}
	registry := tools.NewRegistry()
	loop := NewLoop(provider, registry)

	result := loop.ProcessMessage(context.Background(), bus.InboundMessage{
		Channel: "terminal", ChatID: "c1", Content: "hi",
	})

	if result.Text != "hello there" {
		t.Fatalf("expected %q, got %q", "hello there", result.Text)
	}
	if result.FinishReason != "stop" {
		t.Fatalf("expected finish reason stop, got %q", result.FinishReason)
	}

	h := loop.historyFor("terminal:c1")
	if h.Len() != 2 {
		t.Fatalf("expected 2 history entries, got %d", h.Len())
	}
}

func TestProcessMessageDispatchesToolCalls(t *testing.T) {
	tool := &echoTool{}
	registry := tools.NewRegistry()
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{
		responses: []*providers.LLMResponse{
			{ToolCalls: []providers.ToolCall{{ID: "1", Name: "echo", Arguments: map[string]interface{}{}}}, FinishReason: "tool_calls"},
			{Content: "final answer", FinishReason: "stop"},
		},
	}
	loop := NewLoop(provider, registry)

	result := loop.ProcessDirect(context.Background(), "do it", DirectOptions{})

	if tool.calls != 1 {
		t.Fatalf("expected tool to be called once, got %d", tool.calls)
	}
	if result.Text != "final answer" {
		t.Fatalf("expected final answer, got %q", result.Text)
	}
	if len(result.ToolResults) != 1 || result.ToolResults[0] != "echoed" {
		t.Fatalf("expected tool result 'echoed', got %v", result.ToolResults)
	}
}

func TestProviderErrorMapsToLLMErrorPrefix(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("rate limited")}}
	registry := tools.NewRegistry()
	loop := NewLoop(provider, registry)

	result := loop.ProcessDirect(context.Background(), "hi", DirectOptions{})

	if result.FinishReason != "error" {
		t.Fatalf("expected error finish reason, got %q", result.FinishReason)
	}
	want := "[LLM Error] rate limited"
	if result.Text != want {
		t.Fatalf("expected %q, got %q", want, result.Text)
	}
}

func TestCancelledContextEndsTurnImmediately(t *testing.T) {
	provider := &scriptedProvider{}
	registry := tools.NewRegistry()
	loop := NewLoop(provider, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := loop.ProcessDirect(ctx, "hi", DirectOptions{SessionKey: "s1"})

	if result.FinishReason != "error" {
		t.Fatalf("expected error finish reason, got %q", result.FinishReason)
	}
	if provider.calls != 0 {
		t.Fatalf("expected provider not to be called, got %d calls", provider.calls)
	}
	if loop.historyFor("s1").Len() != 0 {
		t.Fatal("expected history untouched on immediate cancellation")
	}
}

func TestOnStepFinishCallbackInvokedAndPanicRecovered(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "ok", FinishReason: "stop"}}}
	registry := tools.NewRegistry()
	invoked := false
	loop := NewLoop(provider, registry, WithOnStepFinish(func(ev StepEvent) {
		invoked = true
		panic("boom")
	}))

	result := loop.ProcessDirect(context.Background(), "hi", DirectOptions{})
	if !invoked {
		t.Fatal("expected onStepFinish to be invoked")
	}
	if result.Text != "ok" {
		t.Fatalf("expected result unaffected by panicking callback, got %q", result.Text)
	}
}

func TestSkipHistoryDoesNotPersist(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "ok", FinishReason: "stop"}}}
	registry := tools.NewRegistry()
	loop := NewLoop(provider, registry)

	loop.ProcessDirect(context.Background(), "hi", DirectOptions{SessionKey: "s2", SkipHistory: true})

	if loop.historyFor("s2").Len() != 0 {
		t.Fatal("expected history to remain empty when SkipHistory is set")
	}
}

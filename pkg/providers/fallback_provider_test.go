package providers

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	resp *LLMResponse
	err  error
	model string
}

func (f *fakeProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}
func (f *fakeProvider) GetDefaultModel() string { return f.model }

func TestFallbackProviderUsesPrimaryOnSuccess(t *testing.T) {
	primary := &fakeProvider{resp: &LLMResponse{Content: "primary"}}
	fallback := &fakeProvider{resp: &LLMResponse{Content: "fallback"}}
	fp := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	resp, err := fp.Chat(context.Background(), nil, nil, "primary-model", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "primary" {
		t.Fatalf("expected primary response, got %q", resp.Content)
	}
}

func TestFallbackProviderFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeProvider{err: errors.New("primary down")}
	fallback := &fakeProvider{resp: &LLMResponse{Content: "fallback"}}
	fp := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	resp, err := fp.Chat(context.Background(), nil, nil, "primary-model", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "fallback" {
		t.Fatalf("expected fallback response, got %q", resp.Content)
	}
}

func TestFallbackProviderErrorsWhenBothFail(t *testing.T) {
	primary := &fakeProvider{err: errors.New("primary down")}
	fallback := &fakeProvider{err: errors.New("fallback down")}
	fp := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	_, err := fp.Chat(context.Background(), nil, nil, "primary-model", nil)
	if err == nil {
		t.Fatal("expected error when both primary and fallback fail")
	}
}

package tools

import (
	"context"
	"errors"
	"testing"
)

func TestMessageTool_Execute_Success(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("test-channel", "test-chat-id", nil)

	var sentChannel, sentChatID, sentContent string
	tool.SetSendFunc(func(channel, chatID, content string, metadata map[string]string) error {
		sentChannel = channel
		sentChatID = chatID
		sentContent = content
		return nil
	})

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "Hello, world!"})

	if sentChannel != "test-channel" || sentChatID != "test-chat-id" || sentContent != "Hello, world!" {
		t.Fatalf("unexpected send: channel=%s chatID=%s content=%s", sentChannel, sentChatID, sentContent)
	}
	if !result.Silent {
		t.Error("expected Silent=true for successful send")
	}
	if result.IsError {
		t.Error("expected IsError=false for successful send")
	}
	if !tool.HasSentInRound() {
		t.Error("expected HasSentInRound to be true after a successful send")
	}
}

func TestMessageTool_Execute_MissingContent(t *testing.T) {
	tool := NewMessageTool()
	result := tool.Execute(context.Background(), map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected error when content is missing")
	}
}

func TestMessageTool_Execute_NoTarget(t *testing.T) {
	tool := NewMessageTool()
	tool.SetSendFunc(func(channel, chatID, content string, metadata map[string]string) error { return nil })
	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	if !result.IsError {
		t.Fatal("expected error when no channel/chat is configured")
	}
}

func TestMessageTool_Execute_SendError(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("c", "id", nil)
	tool.SetSendFunc(func(channel, chatID, content string, metadata map[string]string) error {
		return errors.New("network down")
	})
	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	if !result.IsError || result.Silent {
		t.Fatalf("expected a non-silent error result, got %+v", result)
	}
}

func TestMessageTool_RoundResetsOnNewContext(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("c", "id", nil)
	tool.SetSendFunc(func(channel, chatID, content string, metadata map[string]string) error { return nil })
	tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	if !tool.HasSentInRound() {
		t.Fatal("expected sent flag set")
	}
	tool.SetContext("c", "id", nil)
	if tool.HasSentInRound() {
		t.Fatal("expected sent flag reset after SetContext")
	}
}

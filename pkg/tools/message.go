package tools

import (
	"context"
	"fmt"
)

// SendFunc delivers content to a channel/chatID pair, e.g. by publishing an
// OutboundMessage onto the MessageBus. Kept as a narrow function type
// (rather than an import on pkg/bus) so this package has no dependency on
// the bus wiring used by the Gateway composition root.
type SendFunc func(channel, chatID, content string, metadata map[string]string) error

// MessageTool lets the model send a reply to the user mid-turn rather than
// only at the end of the turn.
type MessageTool struct {
	send            SendFunc
	defaultChannel  string
	defaultChatID   string
	sentInRound     bool
	inboundMetadata map[string]string
}

func NewMessageTool() *MessageTool {
	return &MessageTool{}
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to the user on a chat channel. Use this when you want to communicate something before finishing your turn."
}

func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The message content to send",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target channel, defaults to the channel of the current turn",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target chat/user ID, defaults to the chat of the current turn",
			},
		},
		"required": []string{"content"},
	}
}

// SetContext binds the default destination for this turn and resets
// round-local send tracking.
func (t *MessageTool) SetContext(channel, chatID string, metadata map[string]string) {
	t.defaultChannel = channel
	t.defaultChatID = chatID
	t.inboundMetadata = metadata
	t.sentInRound = false
}

// HasSentInRound reports whether this tool already sent a message during
// the current turn.
func (t *MessageTool) HasSentInRound() bool { return t.sentInRound }

func (t *MessageTool) SetSendFunc(send SendFunc) { t.send = send }

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return ErrorResult("content is required")
	}

	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)
	if channel == "" {
		channel = t.defaultChannel
	}
	if chatID == "" {
		chatID = t.defaultChatID
	}
	if channel == "" || chatID == "" {
		return ErrorResult("no target channel/chat specified")
	}
	if t.send == nil {
		return ErrorResult("message sending not configured")
	}

	if err := t.send(channel, chatID, content, t.inboundMetadata); err != nil {
		return &ToolResult{ForLLM: fmt.Sprintf("Error: sending message: %v", err), IsError: true, Err: err}
	}

	t.sentInRound = true
	// Silent: the user already received the message directly via the bus.
	return SilentResult(fmt.Sprintf("Message sent to %s:%s", channel, chatID))
}

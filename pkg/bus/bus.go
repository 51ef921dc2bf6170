// Package bus implements a typed publish/subscribe MessageBus: serial
// per-publish handler execution, at-most-once delivery, and a single level
// of bus:error synthesis when a handler itself fails.
package bus

import (
	"reflect"
	"sync"
	"time"

	"github.com/featherbot/featherbot/internal/logging"
)

// EventType tags the three variants a BusEvent can carry.
type EventType string

const (
	EventInbound  EventType = "message:inbound"
	EventOutbound EventType = "message:outbound"
	EventError    EventType = "bus:error"
)

// InboundMessage is an externally-originated message awaiting agent processing.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Media     []string
	Metadata  map[string]string
	MessageID string
}

// SessionKey returns the "channel:chatId" partition key for this message.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply destined for a channel adapter.
type OutboundMessage struct {
	Channel            string
	ChatID             string
	Content            string
	ReplyTo            string
	InReplyToMessageID string
	Media              []string
	Metadata           map[string]string
	MessageID          string
}

// ErrorEvent is the payload of a synthesized bus:error event.
type ErrorEvent struct {
	Err         error
	SourceEvent BusEvent
	Timestamp   time.Time
}

// BusEvent is the immutable tagged union published on the bus. Exactly one
// of Inbound, Outbound, or Error is populated, selected by Type.
type BusEvent struct {
	Type     EventType
	Inbound  *InboundMessage
	Outbound *OutboundMessage
	Error    *ErrorEvent
}

// Handler processes one published event. A returned error triggers
// bus:error synthesis (unless the event being handled is itself a
// bus:error, in which case the error is logged and swallowed).
type Handler func(event BusEvent) error

// MessageBus is a typed pub/sub fan-out with serial per-publish delivery.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	closed   bool
}

// NewMessageBus constructs an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers handler for eventType, appended to the ordered
// sequence for that type. The same handler may be subscribed more than
// once; each occurrence is invoked independently.
func (b *MessageBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Unsubscribe removes at most one occurrence of handler from eventType's
// sequence, matched by the underlying function pointer.
func (b *MessageBus) Unsubscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[eventType]
	target := reflect.ValueOf(handler).Pointer()
	for i := range list {
		if reflect.ValueOf(list[i]).Pointer() == target {
			b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every handler subscribed to event.Type, in
// subscription order, awaiting each before invoking the next. If a handler
// errors while processing a non-error event, a single bus:error event is
// synthesized and published recursively. If a bus:error handler errors, the
// failure is logged and swallowed — no second-level recursion.
func (b *MessageBus) Publish(event BusEvent) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	// Copy the slice under the lock; Subscribe/Unsubscribe may mutate the
	// map concurrently from other goroutines while this publish is in flight.
	list := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, h := range list {
		if err := h(event); err != nil {
			if event.Type == EventError {
				logging.Component("bus").Error("bus:error handler failed, swallowing",
					"operation", "publish", "error", err)
				continue
			}
			b.synthesizeError(event, err)
		}
	}
}

func (b *MessageBus) synthesizeError(source BusEvent, err error) {
	b.Publish(BusEvent{
		Type: EventError,
		Error: &ErrorEvent{
			Err:         err,
			SourceEvent: source,
			Timestamp:   time.Now(),
		},
	})
}

// Close removes every subscriber. Subsequent Publish calls are no-ops.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[EventType][]Handler)
}

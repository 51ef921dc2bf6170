package bus

import (
	"errors"
	"sync"
	"testing"
)

func TestPublishInvokesHandlersInSubscriptionOrder(t *testing.T) {
	b := NewMessageBus()
	var mu sync.Mutex
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(EventInbound, func(BusEvent) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	b.Publish(BusEvent{Type: EventInbound, Inbound: &InboundMessage{Channel: "term", ChatID: "1"}})

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("handlers not invoked in subscription order: %v", order)
	}
}

func TestHandlerErrorSynthesizesSingleBusError(t *testing.T) {
	b := NewMessageBus()
	source := BusEvent{Type: EventInbound, Inbound: &InboundMessage{Channel: "term", ChatID: "1"}}

	b.Subscribe(EventInbound, func(event BusEvent) error {
		return errors.New("boom")
	})

	var received []BusEvent
	b.Subscribe(EventError, func(event BusEvent) error {
		received = append(received, event)
		return nil
	})

	b.Publish(source)

	if len(received) != 1 {
		t.Fatalf("expected exactly one bus:error event, got %d", len(received))
	}
	if received[0].Error.Err.Error() != "boom" {
		t.Fatalf("unexpected error message: %v", received[0].Error.Err)
	}
	if received[0].Error.SourceEvent.Inbound != source.Inbound {
		t.Fatalf("bus:error did not reference the original source event")
	}
}

func TestBusErrorHandlerFailureDoesNotRecurse(t *testing.T) {
	b := NewMessageBus()
	calls := 0

	b.Subscribe(EventError, func(event BusEvent) error {
		calls++
		return errors.New("secondary failure")
	})

	b.Publish(BusEvent{
		Type: EventError,
		Error: &ErrorEvent{Err: errors.New("already an error")},
	})

	if calls != 1 {
		t.Fatalf("expected bus:error handler invoked exactly once, got %d", calls)
	}
}

func TestUnsubscribeRemovesExactlyOneOccurrence(t *testing.T) {
	b := NewMessageBus()
	calls := 0
	handler := func(BusEvent) error {
		calls++
		return nil
	}

	b.Subscribe(EventInbound, handler)
	b.Unsubscribe(EventInbound, handler)
	b.Publish(BusEvent{Type: EventInbound, Inbound: &InboundMessage{}})

	if calls != 0 {
		t.Fatalf("expected handler not to be called after unsubscribe, got %d calls", calls)
	}

	b.Subscribe(EventInbound, handler)
	b.Subscribe(EventInbound, handler)
	b.Unsubscribe(EventInbound, handler)
	b.Publish(BusEvent{Type: EventInbound, Inbound: &InboundMessage{}})

	if calls != 1 {
		t.Fatalf("expected the one remaining occurrence to be called once, got %d calls", calls)
	}
}

func TestCloseMakesPublishNoOp(t *testing.T) {
	b := NewMessageBus()
	calls := 0
	b.Subscribe(EventInbound, func(BusEvent) error {
		calls++
		return nil
	})

	b.Close()
	b.Publish(BusEvent{Type: EventInbound, Inbound: &InboundMessage{}})

	if calls != 0 {
		t.Fatalf("expected no handler calls after close, got %d", calls)
	}
}

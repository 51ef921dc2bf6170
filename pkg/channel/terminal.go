// Package channel holds external channel adapters — the boundary between
// the outside world and the MessageBus. FeatherBot ships one adapter for
// local use: a readline terminal that publishes each input line as an
// inbound message and prints outbound messages to stdout.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chzyer/readline"

	"github.com/featherbot/featherbot/pkg/bus"
)

const ChannelName = "terminal"

// Terminal adapts a local interactive shell onto the bus: each line of
// input becomes an inbound message on a fixed chat id, and outbound
// messages for that channel are printed to stdout.
type Terminal struct {
	bus      *bus.MessageBus
	chatID   string
	instance *readline.Instance

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewTerminal builds a terminal adapter bound to chatID (the session's
// chat partition — a fixed string is fine for a single local user).
func NewTerminal(b *bus.MessageBus, chatID string) (*Terminal, error) {
	rl, err := readline.New("you> ")
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	t := &Terminal{bus: b, chatID: chatID, instance: rl, done: make(chan struct{})}

	b.Subscribe(bus.EventOutbound, t.handleOutbound)
	return t, nil
}

// Start blocks, reading lines from stdin and publishing them as inbound
// messages, until ctx is cancelled or stdin is closed (Ctrl-D).
func (t *Terminal) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return errors.New("terminal already running")
	}
	t.running = true
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = t.instance.Close()
	}()

	defer close(t.done)
	for {
		line, err := t.instance.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return fmt.Errorf("readline: %w", err)
		}
		if line == "" {
			continue
		}

		t.bus.Publish(bus.BusEvent{
			Type: bus.EventInbound,
			Inbound: &bus.InboundMessage{
				Channel: ChannelName,
				ChatID:  t.chatID,
				Content: line,
			},
		})
	}
}

// Stop closes the readline instance, unblocking Start.
func (t *Terminal) Stop() {
	_ = t.instance.Close()
	<-t.done
}

func (t *Terminal) handleOutbound(event bus.BusEvent) error {
	if event.Outbound == nil || event.Outbound.Channel != ChannelName {
		return nil
	}
	if event.Outbound.ChatID != t.chatID {
		return nil
	}
	fmt.Fprintf(t.instance.Stdout(), "bot> %s\n", event.Outbound.Content)
	return nil
}

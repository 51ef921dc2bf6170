package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/featherbot/featherbot/internal/logging"
)

const defaultIdleDuration = 300 * time.Second

const extractionPromptTemplate = `It's been a while since the last message in this conversation. Review what was discussed and, if anything is worth remembering, use write_file/edit_file to:
- append a short note to <workspace>/memory/%s/%s.md (the daily note, YYYYMM/YYYYMMDD.md)
- update <workspace>/memory/MEMORY.md with any durable fact about the user

If nothing is worth recording, do nothing and reply briefly that there is nothing new.`

// TurnRunner is the subset of agent.Loop's interface MemoryExtractor needs,
// kept as an interface here to avoid a memory→agent import cycle (agent
// imports pkg/tools, which imports memory) and to keep the extractor
// unit-testable.
type TurnRunner interface {
	ProcessDirectSkipHistory(ctx context.Context, text, sessionKey string) error
}

// IdleExtractor implements MemoryExtractor: a per-session debounced fuse
// that fires an agent turn after a session goes idle.
type IdleExtractor struct {
	mu          sync.Mutex
	timers      map[string]*time.Timer
	inFlight    map[string]bool
	idleMs      time.Duration
	enabled     bool
	runner      TurnRunner
	disposed    bool
}

func NewIdleExtractor(runner TurnRunner, enabled bool) *IdleExtractor {
	return &IdleExtractor{
		timers:   make(map[string]*time.Timer),
		inFlight: make(map[string]bool),
		idleMs:   defaultIdleDuration,
		enabled:  enabled,
		runner:   runner,
	}
}

// SetIdleDuration overrides the default 300s debounce window.
func (x *IdleExtractor) SetIdleDuration(d time.Duration) {
	if d > 0 {
		x.idleMs = d
	}
}

// ScheduleExtraction (re)arms the idle timer for sessionKey. A no-op when
// disabled or after dispose.
func (x *IdleExtractor) ScheduleExtraction(sessionKey string) {
	if !x.enabled {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}

	if existing, ok := x.timers[sessionKey]; ok {
		existing.Stop()
	}
	x.timers[sessionKey] = time.AfterFunc(x.idleMs, func() { x.fire(sessionKey) })
}

func (x *IdleExtractor) fire(sessionKey string) {
	x.mu.Lock()
	if x.disposed {
		x.mu.Unlock()
		return
	}
	delete(x.timers, sessionKey)
	if x.inFlight[sessionKey] {
		x.mu.Unlock()
		return
	}
	x.inFlight[sessionKey] = true
	x.mu.Unlock()

	defer func() {
		x.mu.Lock()
		delete(x.inFlight, sessionKey)
		x.mu.Unlock()
	}()

	now := time.Now()
	prompt := fmt.Sprintf(extractionPromptTemplate, now.Format("200601"), now.Format("20060102"))

	if err := x.runner.ProcessDirectSkipHistory(context.Background(), prompt, sessionKey); err != nil {
		logging.Component("memory").Warn("idle extraction failed", "operation", "fire", "session_key", sessionKey, "error", err)
	}
}

// Dispose cancels all pending timers. Extractions already in flight are
// allowed to complete.
func (x *IdleExtractor) Dispose() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.disposed = true
	for _, t := range x.timers {
		t.Stop()
	}
	x.timers = make(map[string]*time.Timer)
}

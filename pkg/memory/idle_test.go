package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	calls int32
	delay time.Duration
	mu    sync.Mutex
	seen  []string
}

func (f *fakeRunner) ProcessDirectSkipHistory(ctx context.Context, text, sessionKey string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.seen = append(f.seen, sessionKey)
	f.mu.Unlock()
	return nil
}

func TestScheduleExtractionFiresAfterIdle(t *testing.T) {
	runner := &fakeRunner{}
	x := NewIdleExtractor(runner, true)
	x.SetIdleDuration(20 * time.Millisecond)

	x.ScheduleExtraction("terminal:c1")

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&runner.calls) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected extraction to fire once after idle window")
}

func TestRescheduleResetsTimer(t *testing.T) {
	runner := &fakeRunner{}
	x := NewIdleExtractor(runner, true)
	x.SetIdleDuration(50 * time.Millisecond)

	x.ScheduleExtraction("s1")
	time.Sleep(30 * time.Millisecond)
	x.ScheduleExtraction("s1") // resets the fuse before it would have fired

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&runner.calls) != 0 {
		t.Fatal("expected reschedule to delay firing past the original deadline")
	}

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&runner.calls) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected extraction to eventually fire once")
}

func TestDisabledExtractorIsNoOp(t *testing.T) {
	runner := &fakeRunner{}
	x := NewIdleExtractor(runner, false)
	x.SetIdleDuration(10 * time.Millisecond)

	x.ScheduleExtraction("s1")
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&runner.calls) != 0 {
		t.Fatal("expected disabled extractor never to fire")
	}
}

func TestDisposeCancelsPendingTimers(t *testing.T) {
	runner := &fakeRunner{}
	x := NewIdleExtractor(runner, true)
	x.SetIdleDuration(20 * time.Millisecond)

	x.ScheduleExtraction("s1")
	x.Dispose()
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&runner.calls) != 0 {
		t.Fatal("expected dispose to cancel the pending timer before it fired")
	}
}

func TestConcurrentFiringSkipsWhileInFlight(t *testing.T) {
	runner := &fakeRunner{delay: 60 * time.Millisecond}
	x := NewIdleExtractor(runner, true)
	x.SetIdleDuration(10 * time.Millisecond)

	x.ScheduleExtraction("s1")
	time.Sleep(20 * time.Millisecond) // first fire is now in flight
	x.ScheduleExtraction("s1")        // would fire again ~10ms later, while still in flight

	time.Sleep(150 * time.Millisecond)
	if calls := atomic.LoadInt32(&runner.calls); calls != 1 {
		t.Fatalf("expected exactly one call (second firing skipped while in flight), got %d", calls)
	}
}

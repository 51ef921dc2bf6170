package cron

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestComputeNextRunEvery(t *testing.T) {
	t1 := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	next := ComputeNextRun(Schedule{Kind: "every", EverySeconds: 1000}, t1)
	if next == nil || *next != t1.Add(1000*time.Second).UnixMilli() {
		t.Fatalf("expected t1+1000s, got %v", next)
	}

	t2 := t1.Add(time.Hour)
	next2 := ComputeNextRun(Schedule{Kind: "every", EverySeconds: 1000}, t2)
	if next2 == nil || *next2 != t2.Add(1000*time.Second).UnixMilli() {
		t.Fatalf("expected t2+1000s, got %v", next2)
	}
}

func TestComputeNextRunAt(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	next := ComputeNextRun(Schedule{Kind: "at", At: future.Format(time.RFC3339)}, now)
	if next == nil || *next != future.UnixMilli() {
		t.Fatalf("expected future time, got %v", next)
	}

	past := now.Add(-time.Hour)
	nilNext := ComputeNextRun(Schedule{Kind: "at", At: past.Format(time.RFC3339)}, now)
	if nilNext != nil {
		t.Fatal("expected nil next-run for an 'at' schedule in the past")
	}
}

func TestComputeNextRunInvalidCronReturnsNil(t *testing.T) {
	next := ComputeNextRun(Schedule{Kind: "cron", CronExpr: "not a cron expr"}, time.Now())
	if next != nil {
		t.Fatal("expected nil next-run for an invalid cron expression")
	}
}

func TestEveryJobFiresAndReschedules(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cron.json"))
	var mu sync.Mutex
	var fired []Job
	svc := NewService(store, func(ctx context.Context, job Job) error {
		mu.Lock()
		fired = append(fired, job)
		mu.Unlock()
		return nil
	})

	_, err := svc.AddJob(context.Background(), "every-10s", Schedule{Kind: "every", EverySeconds: 10}, Payload{Action: "agent_turn"}, false)
	if err != nil {
		t.Fatal(err)
	}

	// Force the job due immediately rather than waiting 10s of wall clock.
	jobs := store.ListJobs()
	past := time.Now().Add(-time.Second).UnixMilli()
	jobs[0].State.NextRunAt = &past
	if err := store.UpdateJob(jobs[0]); err != nil {
		t.Fatal(err)
	}
	svc.arm(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(fired)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 {
		t.Fatalf("expected job to fire exactly once, fired %d times", len(fired))
	}

	updated, ok := store.GetJob(jobs[0].ID)
	if !ok {
		t.Fatal("expected job to remain in store")
	}
	if updated.State.LastStatus == nil || *updated.State.LastStatus != "ok" {
		t.Fatalf("expected lastStatus=ok, got %v", updated.State.LastStatus)
	}
	if updated.State.NextRunAt == nil {
		t.Fatal("expected nextRunAt to be recomputed after firing")
	}
}

func TestEnableJobTogglesSchedulingEligibility(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cron.json"))
	var mu sync.Mutex
	var fired []Job
	svc := NewService(store, func(ctx context.Context, job Job) error {
		mu.Lock()
		fired = append(fired, job)
		mu.Unlock()
		return nil
	})

	job, err := svc.AddJob(context.Background(), "every-10s", Schedule{Kind: "every", EverySeconds: 10}, Payload{Action: "agent_turn"}, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.EnableJob(job.ID, false); err != nil {
		t.Fatal(err)
	}
	disabled, ok := store.GetJob(job.ID)
	if !ok {
		t.Fatal("expected job to remain in store after disabling")
	}
	if disabled.Enabled {
		t.Fatal("expected Enabled=false after EnableJob(id, false)")
	}
	if disabled.State.NextRunAt != nil {
		t.Fatal("expected nextRunAt to be cleared for a disabled job")
	}

	// Force the (disabled) job's would-be due time into the past and confirm
	// onTimer never selects it while disabled.
	past := time.Now().Add(-time.Second).UnixMilli()
	disabled.State.NextRunAt = &past
	if err := store.UpdateJob(disabled); err != nil {
		t.Fatal(err)
	}
	svc.arm(context.Background())
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	n := len(fired)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("expected disabled job never to fire, fired %d times", n)
	}

	if err := svc.EnableJob(job.ID, true); err != nil {
		t.Fatal(err)
	}
	reenabled, ok := store.GetJob(job.ID)
	if !ok {
		t.Fatal("expected job to remain in store after re-enabling")
	}
	if !reenabled.Enabled {
		t.Fatal("expected Enabled=true after EnableJob(id, true)")
	}
	if reenabled.State.NextRunAt == nil {
		t.Fatal("expected nextRunAt to be recomputed when re-enabling")
	}
	svc.Stop()
}

func TestEnableJobUnknownIDReturnsError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cron.json"))
	svc := NewService(store, func(ctx context.Context, job Job) error { return nil })

	if err := svc.EnableJob("does-not-exist", true); err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}

func TestAtJobDeletesAfterRun(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cron.json"))
	svc := NewService(store, func(ctx context.Context, job Job) error { return nil })

	future := time.Now().Add(50 * time.Millisecond)
	_, err := svc.AddJob(context.Background(), "one-shot", Schedule{Kind: "at", At: future.Format(time.RFC3339Nano)}, Payload{Action: "agent_turn"}, true)
	if err != nil {
		t.Fatal(err)
	}
	svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.ListJobs()) == 0 {
			svc.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()
	t.Fatal("expected job to be deleted after firing")
}

package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/featherbot/featherbot/internal/logging"
)

// OnJobFire is invoked for each due job; an error marks the job's
// lastStatus=error without unscheduling it.
type OnJobFire func(ctx context.Context, job Job) error

// Service arms a single timer to the earliest due job across the store,
// fires due jobs in deterministic order, and reschedules or deletes them.
// It exclusively owns the store handle — nothing else should mutate it.
type Service struct {
	store     *Store
	onJobFire OnJobFire

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopped bool
}

func NewService(store *Store, onJobFire OnJobFire) *Service {
	return &Service{store: store, onJobFire: onJobFire}
}

// Start recomputes nextRunAt for every enabled job from now, discarding any
// occurrences missed while the process was down, then arms the timer.
func (s *Service) Start(ctx context.Context) {
	now := time.Now()
	for _, job := range s.store.ListJobs() {
		if !job.Enabled {
			continue
		}
		job.State.NextRunAt = ComputeNextRun(job.Schedule, now)
		_ = s.store.UpdateJob(job)
	}
	s.arm(ctx)
}

// Stop cancels any pending timer. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// AddJob creates a job, computes its initial nextRunAt, persists it, and
// re-arms the timer if the new job is now the earliest due.
func (s *Service) AddJob(ctx context.Context, name string, schedule Schedule, payload Payload, deleteAfterRun bool) (Job, error) {
	now := time.Now()
	nowISO := now.UTC().Format(time.RFC3339)
	job := Job{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		State:          JobState{NextRunAt: ComputeNextRun(schedule, now)},
		CreatedAt:      nowISO,
		UpdatedAt:      nowISO,
		DeleteAfterRun: deleteAfterRun,
	}
	if err := s.store.AddJob(job); err != nil {
		return Job{}, fmt.Errorf("persist cron job: %w", err)
	}
	s.arm(ctx)
	return job, nil
}

// RemoveJob deletes a job by id.
func (s *Service) RemoveJob(id string) error {
	return s.store.DeleteJob(id)
}

// EnableJob toggles a job's Enabled flag. Enabling recomputes nextRunAt
// from now so a long-disabled job doesn't fire a backlog the moment it's
// turned back on; disabling clears nextRunAt so the disabled job is never
// selected by arm/onTimer. Either way the timer is re-armed afterward.
func (s *Service) EnableJob(id string, enabled bool) error {
	job, ok := s.store.GetJob(id)
	if !ok {
		return fmt.Errorf("cron job %s not found", id)
	}

	job.Enabled = enabled
	if enabled {
		job.State.NextRunAt = ComputeNextRun(job.Schedule, time.Now())
	} else {
		job.State.NextRunAt = nil
	}
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := s.store.UpdateJob(job); err != nil {
		return fmt.Errorf("persist cron job: %w", err)
	}
	s.arm(context.Background())
	return nil
}

// arm schedules a single wakeup to the nearest enabled job's nextRunAt.
// Must not be called while a tick is in flight.
func (s *Service) arm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	var earliest *int64
	for _, job := range s.store.ListJobs() {
		if !job.Enabled || job.State.NextRunAt == nil {
			continue
		}
		if earliest == nil || *job.State.NextRunAt < *earliest {
			earliest = job.State.NextRunAt
		}
	}
	if earliest == nil {
		return
	}

	delay := time.Until(time.UnixMilli(*earliest))
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() { s.onTimer(ctx) })
}

// onTimer fires all due jobs sequentially, never overlapping with itself,
// then re-arms.
func (s *Service) onTimer(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.arm(ctx)
	}()

	now := time.Now()
	nowMs := now.UnixMilli()

	var due []Job
	for _, job := range s.store.ListJobs() {
		if job.Enabled && job.State.NextRunAt != nil && *job.State.NextRunAt <= nowMs {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if *due[i].State.NextRunAt != *due[j].State.NextRunAt {
			return *due[i].State.NextRunAt < *due[j].State.NextRunAt
		}
		return due[i].ID < due[j].ID
	})

	for _, job := range due {
		s.fireOne(ctx, job)
	}
}

func (s *Service) fireOne(ctx context.Context, job Job) {
	var fireErr error
	if s.onJobFire != nil {
		fireErr = s.onJobFire(ctx, job)
	}

	fireNowMs := time.Now().UnixMilli()
	job.State.LastRunAt = &fireNowMs
	if fireErr != nil {
		errMsg := fireErr.Error()
		status := "error"
		job.State.LastStatus = &status
		job.State.LastError = &errMsg
		logging.Component("cron").Error("job fire failed", "operation", "fire_one", "job_id", job.ID, "error", fireErr)
	} else {
		status := "ok"
		job.State.LastStatus = &status
		job.State.LastError = nil
	}
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if job.DeleteAfterRun {
		_ = s.store.DeleteJob(job.ID)
		return
	}
	job.State.NextRunAt = ComputeNextRun(job.Schedule, time.Now())
	_ = s.store.UpdateJob(job)
}

// ComputeNextRun returns the next due time for schedule as an epoch-ms
// pointer, or nil when the schedule yields no next occurrence (disabled
// jobs are filtered by callers, not here).
func ComputeNextRun(schedule Schedule, now time.Time) *int64 {
	switch schedule.Kind {
	case "every":
		if schedule.EverySeconds <= 0 {
			return nil
		}
		next := now.Add(time.Duration(schedule.EverySeconds) * time.Second).UnixMilli()
		return &next

	case "at":
		t, err := time.Parse(time.RFC3339, schedule.At)
		if err != nil || !t.After(now) {
			return nil
		}
		ms := t.UnixMilli()
		return &ms

	case "cron":
		loc := time.UTC
		if schedule.Timezone != "" {
			if l, err := time.LoadLocation(schedule.Timezone); err == nil {
				loc = l
			}
		}
		ref := now.In(loc)
		next, err := gronx.NextTickAfter(schedule.CronExpr, ref, false)
		if err != nil {
			return nil
		}
		ms := next.UnixMilli()
		return &ms

	default:
		return nil
	}
}

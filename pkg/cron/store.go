// Package cron implements CronService and its JobStore: persisted,
// schedulable jobs armed against a single timer.
package cron

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/featherbot/featherbot/internal/atomicfile"
	"github.com/featherbot/featherbot/internal/logging"
)

const storeVersion = 1

// Schedule is exactly one of three kinds: a fixed interval ("every"), a
// one-shot timestamp ("at"), or a cron expression ("cron").
type Schedule struct {
	Kind         string `json:"kind"`
	CronExpr     string `json:"cronExpr,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	EverySeconds int    `json:"everySeconds,omitempty"`
	At           string `json:"at,omitempty"`
}

// Payload describes what firing the job does.
type Payload struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// JobState is the mutable run-state half of a CronJob.
type JobState struct {
	NextRunAt  *int64  `json:"nextRunAt"`
	LastRunAt  *int64  `json:"lastRunAt"`
	LastStatus *string `json:"lastStatus"`
	LastError  *string `json:"lastError"`
}

// Job is a persisted, schedulable task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// storeDoc is the on-disk aggregate shape.
type storeDoc struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Store persists jobs to a single JSON file, rewritten in full on every
// mutation via atomic temp-file-then-rename (internal/atomicfile).
type Store struct {
	mu   sync.Mutex
	path string
	doc  storeDoc
}

// NewStore loads path, degrading to an empty store on any read/parse
// failure.
func NewStore(path string) *Store {
	s := &Store{path: path, doc: storeDoc{Version: storeVersion}}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var doc storeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Component("cron").Warn("cron store unreadable, degrading to empty store",
			"operation", "load", "path", s.path, "error", err)
		return
	}
	s.doc = doc
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "\t")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.path, data, 0o644)
}

// ListJobs returns a copy of all jobs currently in the store.
func (s *Store) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.doc.Jobs))
	copy(out, s.doc.Jobs)
	return out
}

// GetJob returns a single job by id.
func (s *Store) GetJob(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.doc.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// AddJob appends a job and persists.
func (s *Store) AddJob(j Job) error {
	s.mu.Lock()
	s.doc.Jobs = append(s.doc.Jobs, j)
	err := s.persist()
	s.mu.Unlock()
	return err
}

// UpdateJob replaces the job matching j.ID and persists.
func (s *Store) UpdateJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Jobs {
		if existing.ID == j.ID {
			s.doc.Jobs[i] = j
			return s.persist()
		}
	}
	s.doc.Jobs = append(s.doc.Jobs, j)
	return s.persist()
}

// DeleteJob removes a job by id and persists.
func (s *Store) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.doc.Jobs {
		if j.ID == id {
			s.doc.Jobs = append(s.doc.Jobs[:i], s.doc.Jobs[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

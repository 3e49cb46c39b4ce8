package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ScheduledJob is the scheduler's owned record for one registered job.
type ScheduledJob struct {
	ID         string
	Name       string
	Expression string
	LastRun    time.Time
	NextRun    time.Time
	entryID    cron.EntryID
}

// Scheduler fires six-field (second-resolution) cron-expression jobs
// through a Spawner, so a slow job never backs up the scheduler's own tick
// loop.
type Scheduler struct {
	cron    *cron.Cron
	spawner *Spawner

	mu   sync.RWMutex
	jobs map[string]*ScheduledJob
}

// NewScheduler builds a scheduler dispatching through spawner.
func NewScheduler(spawner *Spawner) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		spawner: spawner,
		jobs:    make(map[string]*ScheduledJob),
	}
}

// Register adds a job on the given six-field cron expression. Callback is
// run via the Spawner with no timeout.
func (s *Scheduler) Register(name, expression string, callback Work) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	job := &ScheduledJob{ID: id, Name: name, Expression: expression}

	entryID, err := s.cron.AddFunc(expression, func() {
		s.mu.Lock()
		job.LastRun = time.Now()
		s.mu.Unlock()
		s.spawner.SpawnDetached(context.Background(), name, 0, callback)
	})
	if err != nil {
		return "", fmt.Errorf("scheduler: invalid cron expression %q: %w", expression, err)
	}
	job.entryID = entryID

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	s.refreshNextRun(id)
	return id, nil
}

// Unregister removes a job; it will not fire again.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(job.entryID)
	}
}

// RunNow fires a job's callback immediately, outside its normal schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: job %q not registered", id)
	}
	entry := s.cron.Entry(job.entryID)
	if entry.Job == nil {
		return fmt.Errorf("scheduler: job %q has no runnable entry", id)
	}
	entry.Job.Run()
	return nil
}

// List returns a snapshot of every registered job.
func (s *Scheduler) List() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Start begins the 1-second-resolution tick loop.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler; in-flight dispatches already handed to the
// Spawner are not cancelled.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) refreshNextRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	entry := s.cron.Entry(job.entryID)
	job.NextRun = entry.Next
}

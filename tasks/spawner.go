// Package tasks implements the Task Subsystem (component N): a tracked-task
// Spawner with semaphore-based admission control, and a six-field
// cron-expression Scheduler that dispatches fires through the Spawner.
// Admission-gate shape is grounded in the teacher gateway's
// middleware/concurrency.go Semaphore/AtomicCounter patterns, repurposed
// from per-org request concurrency to background-task concurrency.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrTaskNotFound is returned by Info for an unknown task id.
var ErrTaskNotFound = errors.New("tasks: task not found")

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed-out"
)

// Info is the tracked record for one spawned task.
type Info struct {
	ID          string
	Name        string
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	RetryCount  int
	Err         string
}

// Handle is returned by Spawn for joining or cancelling a tracked task.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	s      *Spawner
}

// Join blocks until the task reaches a terminal state or ctx is cancelled.
func (h *Handle) Join(ctx context.Context) (*Info, error) {
	select {
	case <-h.done:
		return h.s.Info(h.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of the task.
func (h *Handle) Cancel() { h.cancel() }

// Spawner tracks background tasks by id/status/stats and enforces
// max_concurrent via a weighted semaphore admission gate.
type Spawner struct {
	sem *semaphore.Weighted

	mu    sync.RWMutex
	infos map[string]*Info
}

// NewSpawner creates a Spawner admitting up to maxConcurrent tasks at once.
func NewSpawner(maxConcurrent int64) *Spawner {
	return &Spawner{
		sem:   semaphore.NewWeighted(maxConcurrent),
		infos: make(map[string]*Info),
	}
}

// Work is the unit of execution a spawned task runs.
type Work func(ctx context.Context) error

// Spawn admits, tracks, and runs work with the given timeout (zero means no
// timeout), returning a Handle for joining/cancelling.
func (s *Spawner) Spawn(ctx context.Context, name string, timeout time.Duration, work Work) (*Handle, error) {
	id := uuid.Must(uuid.NewV7()).String()
	info := &Info{ID: id, Name: name, Status: StatusPending, CreatedAt: time.Now()}
	s.mu.Lock()
	s.infos[id] = info
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	done := make(chan struct{})

	if err := s.sem.Acquire(ctx, 1); err != nil {
		cancel()
		s.setStatus(id, StatusCancelled, err)
		close(done)
		return &Handle{id: id, cancel: cancel, done: done, s: s}, err
	}

	go func() {
		defer s.sem.Release(1)
		defer close(done)
		defer cancel()

		s.setRunning(id)
		err := work(runCtx)
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			s.setStatus(id, StatusTimedOut, runCtx.Err())
		case runCtx.Err() == context.Canceled:
			s.setStatus(id, StatusCancelled, nil)
		case err != nil:
			s.setStatus(id, StatusFailed, err)
		default:
			s.setStatus(id, StatusCompleted, nil)
		}
	}()

	return &Handle{id: id, cancel: cancel, done: done, s: s}, nil
}

// SpawnDetached runs work fire-and-forget: tracked, but with no Handle for
// joining.
func (s *Spawner) SpawnDetached(ctx context.Context, name string, timeout time.Duration, work Work) {
	_, _ = s.Spawn(ctx, name, timeout, work)
}

func (s *Spawner) setRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.infos[id]; ok {
		info.Status = StatusRunning
		info.StartedAt = time.Now()
	}
}

func (s *Spawner) setStatus(id string, status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[id]
	if !ok {
		return
	}
	info.Status = status
	info.CompletedAt = time.Now()
	if err != nil {
		info.Err = err.Error()
	}
}

// Info returns the tracked record for a task id.
func (s *Spawner) Info(id string) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *info
	return &cp, nil
}

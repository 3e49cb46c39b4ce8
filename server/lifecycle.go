// Package server implements Connection & Lifecycle (component I): the HTTP
// server, graceful shutdown, and startup/shutdown hooks. Grounded in the
// teacher gateway's main.go signal-handling and srv.Shutdown(ctx) sequence,
// generalized into a reusable Lifecycle type.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/archimedes-run/archimedes/inject"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Hook is a startup or shutdown lifecycle callback.
type Hook func(ctx context.Context) error

// Lifecycle coordinates serialized startup hooks (registration order),
// serialized shutdown hooks (reverse registration order), a drain deadline,
// and connection admission caps.
type Lifecycle struct {
	logger zerolog.Logger

	startupHooks  []Hook
	shutdownHooks []Hook

	drainDeadline time.Duration
	container     *inject.Container

	connSem      *semaphore.Weighted
	perClientMu  sync.Mutex
	perClient    map[string]int
	maxPerClient int
}

// NewLifecycle builds a Lifecycle. maxTotal/maxPerClient enforce the
// connection caps on accept; zero disables a cap.
func NewLifecycle(logger zerolog.Logger, container *inject.Container, drainDeadline time.Duration, maxTotal, maxPerClient int) *Lifecycle {
	var sem *semaphore.Weighted
	if maxTotal > 0 {
		sem = semaphore.NewWeighted(int64(maxTotal))
	}
	return &Lifecycle{
		logger:        logger.With().Str("component", "lifecycle").Logger(),
		drainDeadline: drainDeadline,
		container:     container,
		connSem:       sem,
		perClient:     make(map[string]int),
		maxPerClient:  maxPerClient,
	}
}

// OnStartup registers a startup hook, run in registration order.
func (l *Lifecycle) OnStartup(h Hook) { l.startupHooks = append(l.startupHooks, h) }

// OnShutdown registers a shutdown hook, run in reverse registration order.
func (l *Lifecycle) OnShutdown(h Hook) { l.shutdownHooks = append(l.shutdownHooks, h) }

// RunStartup executes every startup hook in order; the first failure aborts
// and is returned. The container freezes after the first hook completes,
// per the spec's "registration closes when the first pre-startup hook
// completes" rule.
func (l *Lifecycle) RunStartup(ctx context.Context) error {
	for i, h := range l.startupHooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("startup hook %d failed: %w", i, err)
		}
		if i == 0 {
			l.container.Freeze()
		}
	}
	if len(l.startupHooks) == 0 {
		l.container.Freeze()
	}
	return nil
}

// RunShutdown executes every shutdown hook in reverse registration order.
// Errors are logged, not fatal — shutdown must make forward progress.
func (l *Lifecycle) RunShutdown(ctx context.Context) {
	for i := len(l.shutdownHooks) - 1; i >= 0; i-- {
		if err := l.shutdownHooks[i](ctx); err != nil {
			l.logger.Error().Err(err).Int("hook", i).Msg("shutdown hook failed")
		}
	}
}

// DrainDeadline returns the configured in-flight drain deadline.
func (l *Lifecycle) DrainDeadline() time.Duration { return l.drainDeadline }

// AcquireConnection enforces the total/per-client connection caps on
// accept. Returns an error if either cap is exceeded; callers should
// respond 503 and not proceed.
func (l *Lifecycle) AcquireConnection(ctx context.Context, clientID string) (release func(), err error) {
	l.perClientMu.Lock()
	if l.maxPerClient > 0 && l.perClient[clientID] >= l.maxPerClient {
		l.perClientMu.Unlock()
		return nil, fmt.Errorf("per-client connection cap exceeded for %s", clientID)
	}
	l.perClient[clientID]++
	l.perClientMu.Unlock()

	if l.connSem != nil {
		if !l.connSem.TryAcquire(1) {
			l.releaseClientSlot(clientID)
			return nil, fmt.Errorf("total connection cap exceeded")
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if l.connSem != nil {
			l.connSem.Release(1)
		}
		l.releaseClientSlot(clientID)
	}, nil
}

func (l *Lifecycle) releaseClientSlot(clientID string) {
	l.perClientMu.Lock()
	defer l.perClientMu.Unlock()
	l.perClient[clientID]--
	if l.perClient[clientID] <= 0 {
		delete(l.perClient, clientID)
	}
}

// WaitForSignal blocks until SIGTERM/SIGINT arrives or ctx is done.
func WaitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}

// Package shutdown coordinates process teardown: it turns SIGINT/SIGTERM
// into a cancelled context and runs registered cleanups in LIFO order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskmaster/internal/utils"
)

// CleanupFunc is a function that performs cleanup on shutdown.
// It receives a context that will be cancelled when the shutdown times out.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles graceful shutdown coordination.
type Manager struct {
	mu         sync.Mutex
	cleanups   []cleanupEntry
	shutdown   bool
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	waitOnce   sync.Once
	waitErr    error
}

// NewManager creates a new shutdown manager whose context derives from parent.
func NewManager(parent context.Context) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// RegisterCloser registers anything with a Close method.
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.RegisterCleanup(name, func(context.Context) error { return c.Close() })
}

// NotifySignals triggers Shutdown on SIGINT or SIGTERM. The returned
// function stops listening.
func (m *Manager) NotifySignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			utils.GetLogger().Debug("signal received", "signal", sig.String())
			m.Shutdown()
		case <-done:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}

// Shutdown initiates a graceful shutdown by cancelling Context.
// Safe to call multiple times; only the first call has effect.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()

		m.cancel()
		close(m.shutdownCh)
	})
}

// Done is closed when shutdown is initiated.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownCh
}

// runCleanups executes all cleanup functions in LIFO order. Every cleanup
// runs even if an earlier one fails.
func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			utils.GetLogger().Warn("cleanup failed", "name", cleanups[i].name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait runs the cleanups once and waits for them to finish.
// Returns ctx's error if cleanup outlives ctx.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.waitOnce.Do(func() {
			m.waitErr = m.runCleanups(ctx)
		})
		close(done)
	}()

	select {
	case <-done:
		return m.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown returns true if shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context returns a context that is cancelled when shutdown is initiated.
// Use this to make operations interruptible.
func (m *Manager) Context() context.Context {
	return m.ctx
}

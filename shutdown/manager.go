package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"genforge/logging"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Manager coordinates graceful shutdown: it owns the root context that
// components watch, tracks in-flight batches, and runs registered cleanup
// in priority order. The first SIGINT/SIGTERM cancels the context; the
// second forces an immediate exit.
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	finished bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry

	sigChan   chan os.Signal
	sigCount  int
	received  os.Signal
	forceExit func(code int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the shutdown timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) { m.timeout = timeout }
}

// NewManager creates a Manager. The logger is required.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:    logger.Named("shutdown"),
		timeout:   DefaultTimeout,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewRegistry(),
		sigChan:   make(chan os.Signal, 1),
		forceExit: os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the root context cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function; lower priority runs first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start begins listening for SIGINT and SIGTERM. Safe to call more than
// once; later calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go m.handleSignals()

	m.logger.Info("listening for shutdown signals")
}

func (m *Manager) handleSignals() {
	for sig := range m.sigChan {
		m.mu.Lock()
		m.sigCount++
		count := m.sigCount
		if count == 1 {
			m.received = sig
		}
		m.mu.Unlock()

		if count == 1 {
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			m.cancel()
			continue
		}
		m.logger.Warn("second signal received, forcing exit")
		m.forceExit(1)
	}
}

// Trigger initiates shutdown programmatically, as if a signal arrived.
func (m *Manager) Trigger() {
	m.cancel()
}

// Signal returns the signal that initiated shutdown, or nil when shutdown
// was triggered programmatically.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// Wait blocks until shutdown has been initiated.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn as a tracked in-flight operation. When shutdown
// has begun, fn is not run and ErrTrackerClosed is returned.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected during shutdown", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of tracked in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished || m.tracker.IsClosed()
}

// Shutdown runs the sequence: stop admitting work, wait for in-flight
// operations, then run cleanup in priority order with whatever time is
// left. Idempotent; later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Int("handlers", m.registry.Count()))

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("waiting for in-flight operations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("in-flight operations did not finish in time",
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Run(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup handler failed", zap.Error(err))
	}

	signal.Stop(m.sigChan)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d errors", len(errs))
	}
	m.logger.Info("shutdown complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Package shutdown coordinates graceful stop: in-flight batch tracking, a
// priority-ordered cleanup registry, and OS signal handling with a forced
// exit on the second signal.
package shutdown

import (
	"errors"
	"sync"
	"time"
)

// ErrTrackerClosed is returned when new work is rejected because shutdown
// has begun.
var ErrTrackerClosed = errors.New("shutdown: not accepting new operations")

// OperationTracker counts in-flight operations and gates new ones once
// closed. It lets shutdown wait for running batches instead of cutting
// them off.
type OperationTracker struct {
	mu     sync.Mutex
	active int64
	closed bool
	idle   chan struct{}
}

// NewOperationTracker returns an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{idle: make(chan struct{})}
}

// Start registers one in-flight operation. It returns false when the
// tracker is closed, in which case Done must not be called.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.active++
	return true
}

// Done marks one operation finished.
func (t *OperationTracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	t.signalIdleLocked()
}

// Close stops admitting new operations. In-flight operations run on.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.signalIdleLocked()
}

// signalIdleLocked wakes waiters once the tracker is closed and drained.
func (t *OperationTracker) signalIdleLocked() {
	if t.closed && t.active == 0 {
		select {
		case <-t.idle:
		default:
			close(t.idle)
		}
	}
}

// ActiveCount returns the number of in-flight operations.
func (t *OperationTracker) ActiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// IsClosed reports whether the tracker has stopped admitting work.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Wait blocks until the tracker is closed and drained, or the timeout
// passes. Returns an error on timeout.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	select {
	case <-t.idle:
		return nil
	case <-time.After(timeout):
		return errors.New("shutdown: timed out waiting for in-flight operations")
	}
}

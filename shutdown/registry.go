package shutdown

import (
	"context"
	"sort"
	"sync"
)

// Func is one cleanup step run during shutdown.
type Func func(ctx context.Context) error

// entry holds a registered cleanup function. Lower priority runs first.
type entry struct {
	name     string
	priority int
	fn       Func
}

// Registry holds cleanup functions and runs them in priority order.
// Suggested ranges: 0-9 flush logs and metrics, 10-19 close inbound
// surfaces, 20-29 stop background work, 30+ release resources.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cleanup function. Registration after Run is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, fn: fn})
}

// Run executes every registered function in priority order, continuing
// past failures, and returns the collected errors. Run closes the
// registry; a second call is a no-op.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Names returns registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	sorted := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []entry {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}

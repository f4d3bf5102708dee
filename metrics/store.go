package metrics

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds the batch history ring.
const DefaultHistoryCapacity = 100

// Store is a thread-safe in-memory metrics store. Recent batches live in a
// fixed-size circular buffer; aggregate totals run unbounded.
type Store struct {
	mu sync.RWMutex

	history []BatchRecord
	cap     int
	head    int
	size    int

	totalBatches   int64
	totalJobs      int64
	totalSucceeded int64
	totalFailed    int64

	startTime time.Time

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewStore creates a Store retaining up to capacity recent batches.
// A capacity below 1 falls back to DefaultHistoryCapacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		history:   make([]BatchRecord, capacity),
		cap:       capacity,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RecordBatch logs one completed batch.
func (s *Store) RecordBatch(record BatchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = record
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totalBatches++
	s.totalJobs += int64(record.Jobs)
	s.totalSucceeded += int64(record.Succeeded)
	s.totalFailed += int64(record.Failed)
}

// Recent returns up to n recent batches, newest first. n < 1 returns the
// whole retained history.
func (s *Store) Recent(n int) []BatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 1 || n > s.size {
		n = s.size
	}

	records := make([]BatchRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + s.cap) % s.cap
		records = append(records, s.history[idx])
	}
	return records
}

// Totals returns the running aggregates.
func (s *Store) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalsLocked()
}

func (s *Store) totalsLocked() Totals {
	return Totals{
		Batches:       s.totalBatches,
		Jobs:          s.totalJobs,
		Succeeded:     s.totalSucceeded,
		Failed:        s.totalFailed,
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
	}
}

// Snapshot returns totals plus the retained history, newest first.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	totals := s.totalsLocked()
	size := s.size
	s.mu.RUnlock()

	return Snapshot{
		Totals: totals,
		Recent: s.Recent(size),
	}
}

// Package metrics keeps in-memory generation statistics for the stats
// endpoint: a bounded history of recent batches plus running totals.
package metrics

import "time"

// BatchRecord is one completed batch. Pure data, no behavior.
type BatchRecord struct {
	// BatchID is the batch's unique identifier.
	BatchID string `json:"batch_id"`

	// Jobs is the number of prompts the batch carried.
	Jobs int `json:"jobs"`

	// Succeeded is the number of images generated.
	Succeeded int `json:"succeeded"`

	// Failed is the number of jobs that ended in a failure outcome.
	Failed int `json:"failed"`

	// Elapsed is the batch's wall time.
	Elapsed time.Duration `json:"elapsed"`

	// CompletedAt is when the batch finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Totals aggregates every batch recorded since startup. The history ring
// may have evicted older batches; totals never lose them.
type Totals struct {
	Batches   int64 `json:"batches"`
	Jobs      int64 `json:"jobs"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`

	// UptimeSeconds is seconds since the store was created.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Snapshot is the stats-endpoint view: totals plus recent history, newest
// first.
type Snapshot struct {
	Totals Totals        `json:"totals"`
	Recent []BatchRecord `json:"recent"`
}

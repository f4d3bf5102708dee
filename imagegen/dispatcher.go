package imagegen

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genforge/logging"
)

// ProgressUpdate reports one job completion to a ProgressSink.
type ProgressUpdate struct {
	// Completed is the number of jobs finished so far, this one included.
	Completed int

	// Total is the batch size.
	Total int

	// Outcome is the terminal outcome of the job that just finished.
	Outcome GenerationOutcome
}

// ProgressSink receives batch progress. Updates arrive serialized, in
// completion order, and each call is awaited before the next job completion
// is processed. A slow sink therefore backpressures progress reporting but
// never the generation work itself.
type ProgressSink interface {
	Progress(ctx context.Context, update ProgressUpdate)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(ctx context.Context, update ProgressUpdate)

func (f ProgressFunc) Progress(ctx context.Context, update ProgressUpdate) {
	f(ctx, update)
}

// BatchDispatcher fans a prompt list out across the credential pool, one
// goroutine per job, and restores input order in the result. Concurrency is
// bounded by pool capacity plus the acquire timeout, not by the dispatcher,
// so batch size never needs pre-chunking.
type BatchDispatcher struct {
	executor *RetryExecutor
	logger   *logging.Logger
}

// NewBatchDispatcher wires a dispatcher over an executor.
func NewBatchDispatcher(executor *RetryExecutor, logger *logging.Logger) *BatchDispatcher {
	return &BatchDispatcher{
		executor: executor,
		logger:   logger,
	}
}

// Dispatch runs every job to a terminal outcome and returns the partitioned,
// index-sorted result. sink may be nil. The call returns only after every
// job goroutine has finished and every progress update has been delivered.
//
// Cancellation via ctx does not abandon jobs silently: each in-flight job
// resolves to a cancelled outcome, so the result still covers every index.
func (d *BatchDispatcher) Dispatch(ctx context.Context, jobs []Job, sink ProgressSink) BatchResult {
	start := time.Now()
	batchID := uuid.NewString()
	log := d.logger.With(zap.String("batch_id", batchID))

	result := BatchResult{
		PromptsUsed: make([]string, len(jobs)),
	}
	for i, job := range jobs {
		result.PromptsUsed[i] = job.Prompt
	}
	if len(jobs) == 0 {
		return result
	}

	log.Info("dispatching batch", zap.Int("jobs", len(jobs)))

	outcomes := make(chan GenerationOutcome, len(jobs))
	for _, job := range jobs {
		go func(job Job) {
			outcomes <- d.executor.Execute(ctx, job)
		}(job)
	}

	// Single collector loop: progress stays serialized and in completion
	// order without any locking in the sink.
	for completed := 1; completed <= len(jobs); completed++ {
		outcome := <-outcomes
		if outcome.Success {
			result.Successes = append(result.Successes, outcome)
		} else {
			result.Failures = append(result.Failures, outcome)
		}
		if sink != nil {
			sink.Progress(ctx, ProgressUpdate{
				Completed: completed,
				Total:     len(jobs),
				Outcome:   outcome,
			})
		}
	}

	sort.Slice(result.Successes, func(i, j int) bool {
		return result.Successes[i].Index < result.Successes[j].Index
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Index < result.Failures[j].Index
	})
	result.TotalElapsed = time.Since(start)

	log.Info("batch complete",
		zap.Int("succeeded", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("elapsed", result.TotalElapsed))
	return result
}

// GenerateSingle is the one-prompt convenience path. It runs the prompt
// through the same retry machinery as a batch of one.
func (d *BatchDispatcher) GenerateSingle(ctx context.Context, prompt, aspectRatio string, reference []byte) GenerationOutcome {
	return d.executor.Execute(ctx, Job{
		Index:       0,
		Prompt:      prompt,
		Reference:   reference,
		AspectRatio: aspectRatio,
	})
}

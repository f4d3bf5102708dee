package imagegen

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"genforge/logging"
	"genforge/pool"
)

// Executor defaults. Attempt timing follows linear backoff: the delay
// after attempt n is BaseDelay*(n+1).
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 5 * time.Second
	DefaultAcquireTimeout = 60 * time.Second
)

// ExecutorConfig tunes the per-job retry loop.
type ExecutorConfig struct {
	// MaxAttempts is the attempt budget per job. Every attempt counts
	// against it, including attempts spent failing to borrow a credential.
	MaxAttempts int

	// BaseDelay is the linear backoff unit between generation failures.
	BaseDelay time.Duration

	// AcquireTimeout bounds one wait for a pool credential.
	AcquireTimeout time.Duration
}

func (c *ExecutorConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
}

// RetryExecutor runs one job to a terminal outcome: borrow a credential,
// call the provider, classify the failure, release, and either retry or
// stop. It is stateless across jobs and safe for concurrent use.
type RetryExecutor struct {
	pool     *pool.AccountPool
	provider Provider
	config   ExecutorConfig
	logger   *logging.Logger

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor wires an executor over a pool and a provider.
func NewRetryExecutor(accountPool *pool.AccountPool, provider Provider, config ExecutorConfig, logger *logging.Logger) *RetryExecutor {
	config.applyDefaults()
	return &RetryExecutor{
		pool:     accountPool,
		provider: provider,
		config:   config,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one job until it succeeds, exhausts its attempt budget, hits
// a terminal failure, or the context is cancelled. It always returns exactly
// one outcome and never returns an error: failures are data.
//
// No credential is held while sleeping between attempts, so a backing-off
// job never starves its siblings.
func (e *RetryExecutor) Execute(ctx context.Context, job Job) GenerationOutcome {
	start := time.Now()
	log := e.logger.With(zap.Int("job_index", job.Index))

	var lastKind ErrorKind
	var lastErr string

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return e.outcome(job, start, ErrorKindCancelled, ctx.Err().Error())
		}

		cred, err := e.pool.Acquire(ctx, e.config.AcquireTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.outcome(job, start, ErrorKindCancelled, err.Error())
			}
			// Pool exhaustion consumes the attempt but skips the backoff:
			// the acquire wait itself was the delay.
			lastKind = ErrorKindNoAvailableAccount
			lastErr = err.Error()
			log.Warn("no credential available, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", e.config.MaxAttempts))
			continue
		}

		aspect := job.AspectRatio
		if aspect == "" {
			aspect = DefaultAspectRatio
		}
		payload, genErr := e.provider.Generate(ctx, GenerateRequest{
			Prompt:      job.Prompt,
			AspectRatio: aspect,
			Reference:   job.Reference,
			APIKey:      cred.APIKey(),
		})

		if genErr == nil {
			e.pool.Release(cred, true, false)
			log.Debug("generation succeeded",
				zap.String("account", cred.ID()),
				zap.Int("attempt", attempt+1),
				zap.Int("payload_bytes", len(payload)))
			out := e.outcome(job, start, ErrorKindNone, "")
			out.Success = true
			out.Payload = payload
			return out
		}

		errText := genErr.Error()
		kind := ClassifyFailure(errText)
		// The cooldown flag is an independent substring check, not the
		// classified kind: a terminal rejection whose text also mentions
		// rate limiting must still cool the credential down.
		e.pool.Release(cred, false, IsRateLimited(errText))

		if ctx.Err() != nil {
			return e.outcome(job, start, ErrorKindCancelled, ctx.Err().Error())
		}

		log.Warn("generation attempt failed",
			zap.String("account", cred.ID()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.config.MaxAttempts),
			zap.String("kind", kind.String()),
			zap.String("error", errText))

		if !kind.Retryable() {
			return e.outcome(job, start, kind, errText)
		}

		lastKind = kind
		lastErr = errText

		if attempt < e.config.MaxAttempts-1 {
			delay := e.config.BaseDelay * time.Duration(attempt+1)
			if err := e.sleep(ctx, delay); err != nil {
				return e.outcome(job, start, ErrorKindCancelled, err.Error())
			}
		}
	}

	log.Warn("job exhausted its attempt budget",
		zap.Int("max_attempts", e.config.MaxAttempts),
		zap.String("kind", lastKind.String()))
	return e.outcome(job, start, lastKind, lastErr)
}

func (e *RetryExecutor) outcome(job Job, start time.Time, kind ErrorKind, errText string) GenerationOutcome {
	return GenerationOutcome{
		Index:   job.Index,
		Kind:    kind,
		Error:   errText,
		Elapsed: time.Since(start),
		Prompt:  job.Prompt,
	}
}

// Package pool mediates shared access to a fixed set of upstream API
// credentials. Each credential carries its own concurrency cap, failure
// counters and cooldown deadline; the pool hands out the least-loaded
// healthy credential and tracks the outcome of every borrowed slot.
//
// The pool is the single serialization point for concurrent generation
// jobs: all credential state is mutated under one mutex, and every
// read-modify-write (score evaluation + increment, decrement + cooldown
// assignment) is a single critical section.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"genforge/core"
	"genforge/logging"

	"go.uber.org/zap"
)

// ErrNoAvailableAccount is returned by Acquire when no credential becomes
// eligible before the timeout.
var ErrNoAvailableAccount = errors.New("pool: no available account")

// unhealthyFailureThreshold is the consecutive-failure count at which a
// credential stops counting toward pool health.
const unhealthyFailureThreshold = 5

// Credential is one upstream API account with its health state.
// All mutable fields are owned by the pool and touched only under the
// pool's mutex. The id and apiKey are immutable after construction.
type Credential struct {
	id            string
	apiKey        string
	maxConcurrent int

	active              int
	totalAttempts       int
	failures            int
	consecutiveFailures int
	cooldownUntil       time.Time
}

// ID returns the credential's stable identifier ("account-1", ...).
func (c *Credential) ID() string { return c.id }

// APIKey returns the upstream API key for making a generation call.
func (c *Credential) APIKey() string { return c.apiKey }

// Config holds the tunable parameters of an AccountPool.
// Zero values fall back to the engine defaults.
type Config struct {
	// DefaultMaxConcurrent caps in-flight calls per credential when the
	// credential itself does not override it.
	DefaultMaxConcurrent int

	// PollInterval is how often Acquire re-evaluates the credentials.
	PollInterval time.Duration

	// RateLimitCooldown is applied after a rate-limited failure.
	RateLimitCooldown time.Duration

	// FailureCooldown is applied once consecutive failures reach
	// FailureThreshold.
	FailureCooldown time.Duration

	// FailureThreshold is the consecutive-failure count that triggers
	// FailureCooldown.
	FailureThreshold int
}

// applyDefaults fills zero values with the engine defaults.
func (c Config) applyDefaults() Config {
	if c.DefaultMaxConcurrent <= 0 {
		c.DefaultMaxConcurrent = core.DefaultMaxConcurrentPerAccount
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = core.DefaultRateLimitCooldown
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = core.DefaultFailureCooldown
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = core.DefaultFailureCooldownThreshold
	}
	return c
}

// AccountPool distributes generation calls across upstream credentials.
//
// Selection is a cheap scoring heuristic biasing toward idle, historically
// reliable credentials; it makes no fairness guarantee beyond that.
// Credentials live for the lifetime of the pool and are never duplicated
// or migrated.
type AccountPool struct {
	mu       sync.Mutex
	accounts []*Credential

	config Config
	logger *logging.Logger

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates an AccountPool over the configured credentials.
// Returns an error if no credential is supplied.
func New(credentials []core.CredentialConfig, config Config, logger *logging.Logger) (*AccountPool, error) {
	if len(credentials) == 0 {
		return nil, errors.New("pool: at least one credential is required")
	}
	if logger == nil {
		return nil, errors.New("pool: logger cannot be nil")
	}

	cfg := config.applyDefaults()

	accounts := make([]*Credential, len(credentials))
	for i, cred := range credentials {
		maxConcurrent := cred.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = cfg.DefaultMaxConcurrent
		}
		accounts[i] = &Credential{
			id:            fmt.Sprintf("account-%d", i+1),
			apiKey:        cred.APIKey,
			maxConcurrent: maxConcurrent,
		}
	}

	return &AccountPool{
		accounts: accounts,
		config:   cfg,
		logger:   logger.Named("pool"),
		now:      time.Now,
	}, nil
}

// Acquire borrows the best available credential, waiting up to timeout.
//
// Eligible credentials are out of cooldown and under their concurrency cap.
// Among those, the one with the lowest score wins:
//
//	score = active*10 + failures*2 + consecutiveFailures*5
//
// Ties go to pool order, so earlier accounts absorb load first. The active
// and totalAttempts counters are incremented in the same critical section
// as the score evaluation.
//
// Returns ErrNoAvailableAccount on timeout, or ctx.Err() if the context is
// cancelled while waiting.
func (p *AccountPool) Acquire(ctx context.Context, timeout time.Duration) (*Credential, error) {
	deadline := p.now().Add(timeout)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		if cred := p.selectBestLocked(); cred != nil {
			cred.active++
			cred.totalAttempts++
			// Snapshot for the log: cred.active must not be read
			// outside the critical section.
			active := cred.active
			p.mu.Unlock()
			p.logger.Debug("credential acquired",
				zap.String("account", cred.id),
				zap.Int("active", active),
			)
			return cred, nil
		}
		p.mu.Unlock()

		if !p.now().Before(deadline) {
			return nil, ErrNoAvailableAccount
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// selectBestLocked returns the eligible credential with the lowest score,
// or nil if none is eligible. Caller must hold p.mu.
func (p *AccountPool) selectBestLocked() *Credential {
	now := p.now()

	var best *Credential
	bestScore := 0

	for _, acc := range p.accounts {
		if acc.cooldownUntil.After(now) {
			continue
		}
		if acc.active >= acc.maxConcurrent {
			continue
		}

		score := acc.active*10 + acc.failures*2 + acc.consecutiveFailures*5
		if best == nil || score < bestScore {
			best = acc
			bestScore = score
		}
	}

	return best
}

// Release returns a borrowed credential slot and records the call outcome.
//
// On success the consecutive-failure streak resets. On failure both failure
// counters advance; a rate-limited failure puts the credential in cooldown
// for RateLimitCooldown, and independently, reaching FailureThreshold
// consecutive failures sets a FailureCooldown. Both cooldown writes are
// plain overwrites in that order; the consecutive-failure write lands
// last and can shorten an already-set rate-limit cooldown. That matches
// the behavior this engine has always had; see DESIGN.md before changing it.
func (p *AccountPool) Release(c *Credential, success bool, rateLimited bool) {
	if c == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c.active > 0 {
		c.active--
	}

	if success {
		c.consecutiveFailures = 0
		return
	}

	c.failures++
	c.consecutiveFailures++

	now := p.now()
	if rateLimited {
		c.cooldownUntil = now.Add(p.config.RateLimitCooldown)
		p.logger.Warn("credential rate limited",
			zap.String("account", c.id),
			zap.Duration("cooldown", p.config.RateLimitCooldown),
		)
	}
	if c.consecutiveFailures >= p.config.FailureThreshold {
		c.cooldownUntil = now.Add(p.config.FailureCooldown)
		p.logger.Warn("credential cooling down after consecutive failures",
			zap.String("account", c.id),
			zap.Int("consecutive_failures", c.consecutiveFailures),
			zap.Duration("cooldown", p.config.FailureCooldown),
		)
	}
}

package pool

import (
	"context"
	"time"
)

// AccountStats is a point-in-time snapshot of one credential's state.
type AccountStats struct {
	ID                  string        `json:"id"`
	Active              int           `json:"active"`
	MaxConcurrent       int           `json:"max_concurrent"`
	TotalAttempts       int           `json:"total_attempts"`
	Failures            int           `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RateLimited         bool          `json:"rate_limited"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining"`
}

// Stats is a point-in-time snapshot of the whole pool.
type Stats struct {
	Accounts          int            `json:"accounts"`
	TotalCapacity     int            `json:"total_capacity"`
	AvailableCapacity int            `json:"available_capacity"`
	Healthy           bool           `json:"healthy"`
	AccountStats      []AccountStats `json:"account_stats"`
}

// TotalCapacity returns the pool-wide concurrent call limit, ignoring
// cooldowns.
func (p *AccountPool) TotalCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, acc := range p.accounts {
		total += acc.maxConcurrent
	}
	return total
}

// AvailableCapacity returns the number of free slots on credentials that
// are currently out of cooldown. Always in [0, TotalCapacity].
func (p *AccountPool) AvailableCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableCapacityLocked()
}

func (p *AccountPool) availableCapacityLocked() int {
	now := p.now()

	available := 0
	for _, acc := range p.accounts {
		if acc.cooldownUntil.After(now) {
			continue
		}
		if free := acc.maxConcurrent - acc.active; free > 0 {
			available += free
		}
	}
	return available
}

// IsHealthy reports whether at least one credential is out of cooldown and
// below the unhealthy consecutive-failure threshold.
func (p *AccountPool) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, acc := range p.accounts {
		if !acc.cooldownUntil.After(now) && acc.consecutiveFailures < unhealthyFailureThreshold {
			return true
		}
	}
	return false
}

// WaitForCapacity blocks until at least required slots are available, the
// timeout elapses, or the context is cancelled. Returns true only in the
// first case. It does not reserve the capacity it observed.
func (p *AccountPool) WaitForCapacity(ctx context.Context, required int, timeout time.Duration) bool {
	deadline := p.now().Add(timeout)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if p.AvailableCapacity() >= required {
			return true
		}
		if !p.now().Before(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Stats returns a consistent snapshot of pool and per-account state.
func (p *AccountPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	stats := Stats{
		Accounts:     len(p.accounts),
		AccountStats: make([]AccountStats, len(p.accounts)),
	}

	healthy := false
	for i, acc := range p.accounts {
		remaining := acc.cooldownUntil.Sub(now)
		if remaining < 0 {
			remaining = 0
		}

		stats.TotalCapacity += acc.maxConcurrent
		if remaining == 0 {
			if free := acc.maxConcurrent - acc.active; free > 0 {
				stats.AvailableCapacity += free
			}
			if acc.consecutiveFailures < unhealthyFailureThreshold {
				healthy = true
			}
		}

		stats.AccountStats[i] = AccountStats{
			ID:                  acc.id,
			Active:              acc.active,
			MaxConcurrent:       acc.maxConcurrent,
			TotalAttempts:       acc.totalAttempts,
			Failures:            acc.failures,
			ConsecutiveFailures: acc.consecutiveFailures,
			RateLimited:         remaining > 0,
			CooldownRemaining:   remaining,
		}
	}
	stats.Healthy = healthy

	return stats
}

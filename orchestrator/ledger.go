package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryLedger is a CreditLedger backed by a map. It is the standalone
// deployment's ledger; hosted deployments plug in their billing system.
type InMemoryLedger struct {
	mu        sync.Mutex
	balances  map[string]int
	initial   int
	unlimited bool
}

// NewInMemoryLedger creates a ledger where every user starts with the
// given balance.
func NewInMemoryLedger(initialBalance int) *InMemoryLedger {
	return &InMemoryLedger{
		balances: make(map[string]int),
		initial:  initialBalance,
	}
}

// NewUnlimitedLedger creates a ledger that always grants reservations.
// Balances still track usage; they just never run out.
func NewUnlimitedLedger() *InMemoryLedger {
	return &InMemoryLedger{
		balances:  make(map[string]int),
		unlimited: true,
	}
}

func (l *InMemoryLedger) balanceLocked(userID string) int {
	if _, ok := l.balances[userID]; !ok {
		l.balances[userID] = l.initial
	}
	return l.balances[userID]
}

// Reserve takes n credits from the user's balance.
func (l *InMemoryLedger) Reserve(_ context.Context, userID string, n int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(userID)
	if !l.unlimited && n > balance {
		return balance, fmt.Errorf("insufficient credits: have %d, need %d", balance, n)
	}
	l.balances[userID] = balance - n
	return l.balances[userID], nil
}

// Refund returns n credits to the user's balance.
func (l *InMemoryLedger) Refund(_ context.Context, userID string, n int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[userID] = l.balanceLocked(userID) + n
	return l.balances[userID], nil
}

// Balance returns the user's current balance.
func (l *InMemoryLedger) Balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(userID)
}

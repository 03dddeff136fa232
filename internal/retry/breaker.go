package retry

import (
	"sync"
	"time"
)

// Breaker caps the total emergency sleep of a run. Once the budget would be
// exceeded it stays open and every further charge fails. The zero budget
// means unlimited; a nil Breaker never opens.
type Breaker struct {
	mu     sync.Mutex
	budget time.Duration
	spent  time.Duration
	open   bool
}

// NewBreaker returns a breaker with the given budget.
func NewBreaker(budget time.Duration) *Breaker {
	return &Breaker{budget: budget}
}

// Charge books d against the budget or returns ErrCircuitOpen.
func (b *Breaker) Charge(d time.Duration) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return ErrCircuitOpen
	}
	if b.budget > 0 && b.spent+d > b.budget {
		b.open = true
		return ErrCircuitOpen
	}
	b.spent += d
	return nil
}

// Spent returns the sleep booked so far.
func (b *Breaker) Spent() time.Duration {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Open reports whether the budget has been exhausted.
func (b *Breaker) Open() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

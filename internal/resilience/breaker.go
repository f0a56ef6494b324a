package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable marks a call refused because the circuit is open. It is
// distinct from a network failure so callers can back off instead of
// retry-storming.
var ErrUnavailable = errors.New("service unavailable: circuit breaker open")

// CircuitBreaker counts consecutive failures against an external
// dependency and stops admitting calls for a recovery interval once the
// threshold is reached. Safe for concurrent use by multiple workers.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recovery         time.Duration
	failures         int
	openedAt         time.Time
	open             bool
	now              func() time.Time
}

func NewCircuitBreaker(failureThreshold int, recovery time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recovery:         recovery,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. After the recovery interval
// elapses the breaker clears its failure count and re-admits traffic.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.recovery {
		b.open = false
		b.failures = 0
		return true
	}
	return false
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.failureThreshold {
		b.open = true
		b.openedAt = b.now()
	}
}

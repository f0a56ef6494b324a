package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(3, 30*time.Second)

	breaker.RecordFailure()
	breaker.RecordFailure()
	if !breaker.Allow() {
		t.Fatalf("breaker opened before reaching the failure threshold")
	}

	breaker.RecordFailure()
	if breaker.Allow() {
		t.Fatalf("breaker still admitting calls after %d failures", 3)
	}
}

func TestCircuitBreakerRecoversAfterInterval(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(2, 30*time.Second)
	breaker.now = func() time.Time { return current }

	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.Allow() {
		t.Fatalf("breaker should be open")
	}

	current = current.Add(29 * time.Second)
	if breaker.Allow() {
		t.Fatalf("breaker re-admitted before the recovery interval elapsed")
	}

	current = current.Add(2 * time.Second)
	if !breaker.Allow() {
		t.Fatalf("breaker should re-admit after the recovery interval without an explicit reset")
	}

	// The cooldown transition cleared the failure count, so a single new
	// failure must not re-open the circuit.
	breaker.RecordFailure()
	if !breaker.Allow() {
		t.Fatalf("single failure after recovery re-opened the circuit")
	}
}

func TestCircuitBreakerSuccessClosesUnconditionally(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(1, time.Hour)
	breaker.RecordFailure()
	if breaker.Allow() {
		t.Fatalf("breaker should be open")
	}

	breaker.RecordSuccess()
	if !breaker.Allow() {
		t.Fatalf("RecordSuccess should close the circuit immediately")
	}
}

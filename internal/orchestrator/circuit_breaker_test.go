package orchestrator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBreaker(threshold, halfOpen int, recovery time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenMaxCalls: halfOpen,
	}, zerolog.Nop())
	clock := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 1, time.Minute)

	b.RecordOutcome(false)
	b.RecordOutcome(false)
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after 2 failures, got %s", b.State())
	}
	b.RecordOutcome(false)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", b.State())
	}
	if b.Permit() {
		t.Error("expected Permit to deny while OPEN")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, 1, time.Minute)

	b.RecordOutcome(false)
	b.RecordOutcome(false)
	b.RecordOutcome(true)
	b.RecordOutcome(false)
	b.RecordOutcome(false)
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", b.State())
	}
}

func TestBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordOutcome(false)
	if b.Permit() {
		t.Fatal("expected Permit to deny while OPEN")
	}

	*clock = clock.Add(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after recovery timeout, got %s", b.State())
	}
	if !b.Permit() {
		t.Error("expected first trial call to be permitted")
	}
	if !b.Permit() {
		t.Error("expected second trial call to be permitted")
	}
	if b.Permit() {
		t.Error("expected third trial call to be denied")
	}
}

func TestBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordOutcome(false)
	*clock = clock.Add(time.Minute)

	b.Permit()
	b.RecordOutcome(true)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after one success, got %s", b.State())
	}
	b.Permit()
	b.RecordOutcome(true)
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after two successes, got %s", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordOutcome(false)
	*clock = clock.Add(time.Minute)

	b.Permit()
	b.RecordOutcome(false)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after trial failure, got %s", b.State())
	}

	// The recovery window restarts from the trial failure.
	*clock = clock.Add(30 * time.Second)
	if b.Permit() {
		t.Error("expected Permit to deny before the new recovery window elapses")
	}
	*clock = clock.Add(30 * time.Second)
	if !b.Permit() {
		t.Error("expected Permit to allow after the new recovery window")
	}
}

func TestBreakerRetryAfter(t *testing.T) {
	b, clock := newTestBreaker(1, 1, time.Minute)

	if got := b.RetryAfter(); got != 0 {
		t.Errorf("expected zero RetryAfter while CLOSED, got %s", got)
	}
	b.RecordOutcome(false)
	if got := b.RetryAfter(); got != time.Minute {
		t.Errorf("expected RetryAfter of 1m, got %s", got)
	}
	*clock = clock.Add(45 * time.Second)
	if got := b.RetryAfter(); got != 15*time.Second {
		t.Errorf("expected RetryAfter of 15s, got %s", got)
	}
}

func TestBreakerCancelPermit(t *testing.T) {
	b, clock := newTestBreaker(1, 1, time.Minute)

	b.RecordOutcome(false)
	*clock = clock.Add(time.Minute)

	if !b.Permit() {
		t.Fatal("expected trial call to be permitted")
	}
	if b.Permit() {
		t.Fatal("expected second trial call to be denied")
	}
	b.CancelPermit()
	if !b.Permit() {
		t.Error("expected permit to be available again after CancelPermit")
	}
}

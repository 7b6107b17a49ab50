package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState is the circuit breaker state for one provider.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerSettings configures a CircuitBreaker.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit while CLOSED.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays OPEN before probing.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls while HALF_OPEN; the
	// same number of consecutive successes closes the circuit.
	HalfOpenMaxCalls int
}

// CircuitBreaker gates calls to a persistently failing provider. One instance
// exists per provider for the lifetime of a run; all access is synchronized.
type CircuitBreaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	log      zerolog.Logger
	now      func() time.Time

	state             BreakerState
	failures          int
	openedAt          time.Time
	halfOpenInFlight  int
	halfOpenSuccesses int
}

func NewCircuitBreaker(settings BreakerSettings, log zerolog.Logger) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 3
	}
	if settings.HalfOpenMaxCalls <= 0 {
		settings.HalfOpenMaxCalls = 1
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		settings: settings,
		log:      log,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Permit reports whether a call may proceed. While OPEN it returns false
// until the recovery timeout elapses, at which point the circuit moves to
// HALF_OPEN and admits up to HalfOpenMaxCalls trial calls.
func (b *CircuitBreaker) Permit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenInFlight < b.settings.HalfOpenMaxCalls {
			b.halfOpenInFlight++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordOutcome feeds a call outcome back into the state machine.
func (b *CircuitBreaker) RecordOutcome(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if success {
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.settings.HalfOpenMaxCalls {
				b.state = StateClosed
				b.failures = 0
				b.log.Info().Msg("circuit breaker CLOSED - provider recovered")
			}
		} else {
			// A single trial failure reopens the circuit immediately.
			b.state = StateOpen
			b.openedAt = b.now()
			b.log.Warn().Msg("circuit breaker OPEN - provider still failing")
		}
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.log.Warn().Int("failures", b.failures).Msg("circuit breaker OPEN - consecutive failures")
		}
	case StateOpen:
		// Outcome of a call permitted before the circuit opened. Failures
		// push the recovery window out.
		if !success {
			b.openedAt = b.now()
		}
	}
}

// CancelPermit returns a permit obtained from Permit without recording an
// outcome, for calls that never reached the provider.
func (b *CircuitBreaker) CancelPermit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// State returns the current state, applying the lazy OPEN to HALF_OPEN
// transition first.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// RetryAfter returns how long until an OPEN circuit is due to probe again,
// or zero when calls may already be attempted.
func (b *CircuitBreaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	if b.state != StateOpen {
		return 0
	}
	remaining := b.settings.RecoveryTimeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *CircuitBreaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
		b.log.Info().Msg("circuit breaker transitioning to HALF_OPEN")
	}
}

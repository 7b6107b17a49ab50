package orchestrator

import (
	"math"
	"math/rand"
	"time"
)

// BackoffSettings configures retry delays for transient failures.
type BackoffSettings struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	MaxAttempts    int
}

// Backoff computes exponentially growing, jittered retry delays.
type Backoff struct {
	settings  BackoffSettings
	randFloat func() float64
}

func NewBackoff(settings BackoffSettings) *Backoff {
	if settings.InitialDelay <= 0 {
		settings.InitialDelay = time.Second
	}
	if settings.MaxDelay < settings.InitialDelay {
		settings.MaxDelay = settings.InitialDelay
	}
	if settings.Multiplier < 1 {
		settings.Multiplier = 2.0
	}
	if settings.JitterFraction < 0 || settings.JitterFraction >= 1 {
		settings.JitterFraction = 0.25
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	return &Backoff{settings: settings, randFloat: rand.Float64}
}

// Delay returns the wait before retrying after the given zero-based attempt,
// jittered uniformly within the configured fraction of the base delay.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(b.settings.InitialDelay) * math.Pow(b.settings.Multiplier, float64(attempt))
	if max := float64(b.settings.MaxDelay); base > max {
		base = max
	}
	if j := b.settings.JitterFraction; j > 0 {
		base *= 1 - j + 2*j*b.randFloat()
	}
	if base < float64(time.Millisecond) {
		base = float64(time.Millisecond)
	}
	return time.Duration(base)
}

// MaxAttempts returns the total attempt budget per unit, the first call
// included.
func (b *Backoff) MaxAttempts() int {
	return b.settings.MaxAttempts
}

package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	throttleFloor     = 0.1
	throttleRaiseStep = 0.05
	successRunToRaise = 5
)

// LimiterSettings configures a RateLimiter. A zero limit means the
// corresponding constraint is not enforced.
type LimiterSettings struct {
	RequestsPerSecond int
	RequestsPerMinute int
	MaxConcurrent     int
}

// RateLimiter enforces per-second and per-minute request windows plus an
// in-flight concurrency cap. Waiters are admitted in FIFO order. An adaptive
// throttle factor scales both window limits down when the provider pushes
// back and recovers slowly after sustained success.
type RateLimiter struct {
	mu       sync.Mutex
	settings LimiterSettings
	log      zerolog.Logger
	now      func() time.Time

	perSecond  []time.Time
	perMinute  []time.Time
	inFlight   int
	throttle   float64
	successRun int
	waiters    []*waiter
	wakeTimer  *time.Timer
}

type waiter struct {
	ready chan struct{}
}

func NewRateLimiter(settings LimiterSettings, log zerolog.Logger) *RateLimiter {
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = 1
	}
	return &RateLimiter{
		settings: settings,
		log:      log,
		now:      time.Now,
		throttle: 1.0,
	}
}

// Acquire blocks until a request slot is available or ctx is done. Callers
// must pair every successful Acquire with a Release.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	w := &waiter{ready: make(chan struct{})}

	l.mu.Lock()
	l.waiters = append(l.waiters, w)
	l.admitLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// Admitted concurrently with cancellation; the slot counts.
			l.mu.Unlock()
			return nil
		default:
		}
		l.removeWaiterLocked(w)
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns an in-flight slot and wakes queued waiters.
func (l *RateLimiter) Release() {
	l.mu.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.admitLocked()
	l.mu.Unlock()
}

// Adapt records a request outcome. Failures shrink the throttle factor
// multiplicatively, rate-limit failures hardest; a run of successes raises it
// back in small additive steps.
func (l *RateLimiter) Adapt(success, rateLimited bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		l.successRun++
		if l.successRun >= successRunToRaise && l.throttle < 1.0 {
			l.successRun = 0
			l.throttle = math.Min(1.0, l.throttle+throttleRaiseStep)
			l.log.Debug().Float64("throttle", l.throttle).Msg("rate limiter easing throttle")
		}
		return
	}

	l.successRun = 0
	factor := 0.9
	if rateLimited {
		factor = 0.7
	}
	before := l.throttle
	l.throttle = math.Max(throttleFloor, l.throttle*factor)
	if l.throttle != before {
		l.log.Warn().Float64("throttle", l.throttle).Bool("rate_limited", rateLimited).
			Msg("rate limiter tightening throttle")
	}
}

// ThrottleFactor returns the current adaptive throttle in (0, 1].
func (l *RateLimiter) ThrottleFactor() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.throttle
}

// MaxConcurrent returns the configured concurrency ceiling.
func (l *RateLimiter) MaxConcurrent() int {
	return l.settings.MaxConcurrent
}

// admitLocked wakes queued waiters while capacity allows, oldest first.
func (l *RateLimiter) admitLocked() {
	now := l.now()
	l.pruneLocked(now)

	for len(l.waiters) > 0 {
		if l.inFlight >= l.settings.MaxConcurrent {
			return
		}
		if !l.windowsAllowLocked() {
			l.scheduleWakeLocked(now)
			return
		}
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.perSecond = append(l.perSecond, now)
		l.perMinute = append(l.perMinute, now)
		l.inFlight++
		close(w.ready)
	}
}

func (l *RateLimiter) windowsAllowLocked() bool {
	if lim := l.effectiveLimit(l.settings.RequestsPerSecond); lim > 0 && len(l.perSecond) >= lim {
		return false
	}
	if lim := l.effectiveLimit(l.settings.RequestsPerMinute); lim > 0 && len(l.perMinute) >= lim {
		return false
	}
	return true
}

// effectiveLimit scales a configured window limit by the throttle factor,
// never below one. Zero means unconstrained.
func (l *RateLimiter) effectiveLimit(configured int) int {
	if configured <= 0 {
		return 0
	}
	lim := int(float64(configured) * l.throttle)
	if lim < 1 {
		lim = 1
	}
	return lim
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	l.perSecond = pruneWindow(l.perSecond, now.Add(-time.Second))
	l.perMinute = pruneWindow(l.perMinute, now.Add(-time.Minute))
}

func pruneWindow(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// scheduleWakeLocked arms a timer for the moment the currently binding window
// constraint frees a slot, so blocked waiters are re-examined without polling.
func (l *RateLimiter) scheduleWakeLocked(now time.Time) {
	var wake time.Time
	if lim := l.effectiveLimit(l.settings.RequestsPerSecond); lim > 0 && len(l.perSecond) >= lim {
		wake = l.perSecond[0].Add(time.Second)
	}
	if lim := l.effectiveLimit(l.settings.RequestsPerMinute); lim > 0 && len(l.perMinute) >= lim {
		if t := l.perMinute[0].Add(time.Minute); t.After(wake) {
			wake = t
		}
	}
	if wake.IsZero() {
		return
	}

	delay := wake.Sub(now)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	if l.wakeTimer != nil {
		l.wakeTimer.Stop()
	}
	l.wakeTimer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		l.admitLocked()
		l.mu.Unlock()
	})
}

func (l *RateLimiter) removeWaiterLocked(target *waiter) {
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

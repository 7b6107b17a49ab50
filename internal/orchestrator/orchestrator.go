// Package orchestrator drives batched photo analysis through an AI provider
// while adapting to its failures: a circuit breaker stops hammering a broken
// provider, a dual-window rate limiter paces requests, transient failures are
// retried with jittered exponential backoff, and batch sizes grow and shrink
// with the observed success rate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"photo-curator/internal/ai"
	"photo-curator/internal/cache"
)

// ErrCircuitOpen marks units abandoned because the circuit breaker never let
// them through within their requeue budget.
var ErrCircuitOpen = errors.New("circuit breaker open")

// maxRequeueWait caps how long a worker sleeps before requeueing a unit the
// breaker rejected, so progress is re-examined regularly.
var maxRequeueWait = 2 * time.Second

// Sender issues one provider call for a batch of photos. ai.Provider
// satisfies it.
type Sender interface {
	Name() string
	AnalyzeBatch(ctx context.Context, reqs []ai.ImageRequest) ([]ai.ImageResult, error)
}

// Options tunes a run.
type Options struct {
	// Workers is the number of concurrent workers. It is capped by the rate
	// limiter's concurrency ceiling.
	Workers int
	// MaxRequeues bounds how many times a unit rejected by the circuit
	// breaker is put back on the queue before it fails terminally.
	MaxRequeues int
	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration
	// OnProgress, if set, is called after every terminal unit outcome.
	OnProgress func(Snapshot)
}

// Result aggregates a finished run. Every input unit has an entry in Units.
type Result struct {
	Units          map[string]*UnitResult
	Succeeded      int
	Cached         int
	Failed         int
	BatchesDone    int
	FailureReasons map[string]int
}

// Orchestrator coordinates one provider's breaker, limiter, backoff and batch
// sizer across a pool of workers.
type Orchestrator struct {
	sender  Sender
	store   cache.Store
	breaker *CircuitBreaker
	limiter *RateLimiter
	backoff *Backoff
	sizer   *BatchSizer
	log     zerolog.Logger
	opts    Options
}

func New(sender Sender, store cache.Store, breaker *CircuitBreaker, limiter *RateLimiter,
	backoff *Backoff, sizer *BatchSizer, log zerolog.Logger, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if max := limiter.MaxConcurrent(); opts.Workers > max {
		opts.Workers = max
	}
	if opts.MaxRequeues <= 0 {
		opts.MaxRequeues = 5
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Orchestrator{
		sender:  sender,
		store:   store,
		breaker: breaker,
		limiter: limiter,
		backoff: backoff,
		sizer:   sizer,
		log:     log.With().Str("provider", sender.Name()).Logger(),
		opts:    opts,
	}
}

// Run processes all units and returns once every unit has a terminal
// outcome. Individual failures never abort the run; cancellation of ctx
// stops new calls and retries but still drains every unit to a result.
func (o *Orchestrator) Run(ctx context.Context, units []*RequestUnit) *Result {
	res := &Result{
		Units:          make(map[string]*UnitResult, len(units)),
		FailureReasons: make(map[string]int),
	}
	if len(units) == 0 {
		return res
	}

	r := &run{
		o:      o,
		ctx:    ctx,
		result: res,
		total:  len(units),
		queue:  make(chan *pendingUnit, len(units)),
	}
	r.pending.Add(len(units))
	for _, u := range units {
		r.queue <- &pendingUnit{unit: u}
	}
	go func() {
		r.pending.Wait()
		close(r.queue)
	}()

	var workers sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for pu := range r.queue {
				r.process(pu)
			}
		}()
	}
	workers.Wait()

	o.log.Info().
		Int("succeeded", res.Succeeded).
		Int("cached", res.Cached).
		Int("failed", res.Failed).
		Int("batches", res.BatchesDone).
		Msg("analysis run finished")
	return res
}

// run holds the mutable state shared by workers for one Run call.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	queue   chan *pendingUnit
	pending sync.WaitGroup

	mu     sync.Mutex
	result *Result
	total  int
}

// process takes one unit off the queue and moves it toward a terminal
// outcome: cache hit, provider call as part of a batch, requeue, or failure.
func (r *run) process(pu *pendingUnit) {
	o := r.o

	if r.ctx.Err() != nil {
		r.terminal(pu, &UnitResult{Err: r.ctx.Err()})
		return
	}

	if r.cacheHit(pu) {
		return
	}

	if !o.breaker.Permit() {
		pu.requeues++
		if pu.requeues > o.opts.MaxRequeues {
			r.terminal(pu, &UnitResult{
				Attempts: pu.attempts,
				Err:      fmt.Errorf("%w: gave up after %d requeues", ErrCircuitOpen, o.opts.MaxRequeues),
			})
			return
		}
		wait := o.breaker.RetryAfter()
		if wait <= 0 {
			// HALF_OPEN with all trial slots taken; poll again shortly.
			wait = 50 * time.Millisecond
		} else if wait > maxRequeueWait {
			wait = maxRequeueWait
		}
		if !r.sleep(wait) {
			r.terminal(pu, &UnitResult{Attempts: pu.attempts, Err: r.ctx.Err()})
			return
		}
		r.queue <- pu
		return
	}

	batch := r.fillBatch(pu)

	if err := o.limiter.Acquire(r.ctx); err != nil {
		o.breaker.CancelPermit()
		for _, b := range batch {
			r.terminal(b, &UnitResult{Attempts: b.attempts, Err: err})
		}
		return
	}

	reqs := make([]ai.ImageRequest, len(batch))
	for i, b := range batch {
		reqs[i] = ai.ImageRequest{Key: b.unit.Key, Name: b.unit.Name, Payload: b.unit.Payload}
	}

	callCtx, cancel := context.WithTimeout(r.ctx, o.opts.RequestTimeout)
	results, err := o.sender.AnalyzeBatch(callCtx, reqs)
	cancel()
	o.limiter.Release()

	r.mu.Lock()
	r.result.BatchesDone++
	r.mu.Unlock()

	if err != nil {
		callErr := ai.Classify(err)
		o.breaker.RecordOutcome(false)
		o.limiter.Adapt(false, callErr.Class == ai.FailureRateLimit)
		o.sizer.Record(false)
		o.log.Warn().Err(callErr).Int("batch_size", len(batch)).Msg("provider call failed")
		for _, b := range batch {
			r.retryOrFail(b, callErr)
		}
		return
	}

	o.breaker.RecordOutcome(true)
	o.limiter.Adapt(true, false)
	o.sizer.Record(true)

	byKey := make(map[string]ai.ImageResult, len(results))
	for _, result := range results {
		byKey[result.Key] = result
	}
	for _, b := range batch {
		result, ok := byKey[b.unit.Key]
		if !ok {
			r.retryOrFail(b, ai.NewCallError(ai.FailureServer,
				fmt.Errorf("provider returned no result for %s", b.unit.Name)))
			continue
		}
		if result.Err != nil {
			r.retryOrFail(b, ai.Classify(result.Err))
			continue
		}
		if err := o.store.Put(r.ctx, b.unit.Key, result.Analysis); err != nil {
			o.log.Warn().Err(err).Str("photo", b.unit.Name).Msg("failed to cache analysis")
		}
		r.terminal(b, &UnitResult{Analysis: result.Analysis, Attempts: b.attempts + 1})
	}
}

// cacheHit resolves the unit from the cache if possible. Lookup errors are
// logged and treated as misses.
func (r *run) cacheHit(pu *pendingUnit) bool {
	if pu.cacheChecked {
		return false
	}
	pu.cacheChecked = true

	analysis, ok, err := r.o.store.Get(r.ctx, pu.unit.Key)
	if err != nil {
		r.o.log.Warn().Err(err).Str("photo", pu.unit.Name).Msg("cache lookup failed")
		return false
	}
	if !ok {
		return false
	}
	r.terminal(pu, &UnitResult{Analysis: analysis, Cached: true})
	return true
}

// fillBatch grows the batch around the already-permitted head unit by pulling
// further queued units without blocking, up to the sizer's current target.
// Cache hits resolved along the way do not consume batch slots.
func (r *run) fillBatch(head *pendingUnit) []*pendingUnit {
	target := r.o.sizer.Next(r.o.breaker.State(), r.o.limiter.ThrottleFactor())
	batch := []*pendingUnit{head}
	for len(batch) < target {
		select {
		case extra, ok := <-r.queue:
			if !ok {
				return batch
			}
			if r.cacheHit(extra) {
				continue
			}
			batch = append(batch, extra)
		default:
			return batch
		}
	}
	return batch
}

// retryOrFail decides a failed unit's fate: terminal failure for permanent
// errors or exhausted budgets, otherwise a backoff sleep and a requeue. The
// sleep runs in its own goroutine so the worker moves on immediately.
func (r *run) retryOrFail(pu *pendingUnit, callErr *ai.CallError) {
	pu.attempts++

	if !callErr.Retryable() {
		r.terminal(pu, &UnitResult{Attempts: pu.attempts, Err: callErr})
		return
	}
	if pu.attempts >= r.o.backoff.MaxAttempts() {
		r.terminal(pu, &UnitResult{
			Attempts: pu.attempts,
			Err:      fmt.Errorf("retries exhausted after %d attempts: %w", pu.attempts, callErr),
		})
		return
	}
	if r.ctx.Err() != nil {
		r.terminal(pu, &UnitResult{Attempts: pu.attempts, Err: r.ctx.Err()})
		return
	}

	delay := r.o.backoff.Delay(pu.attempts - 1)
	r.o.log.Debug().Str("photo", pu.unit.Name).Dur("delay", delay).
		Int("attempt", pu.attempts).Msg("scheduling retry")
	go func() {
		if !r.sleep(delay) {
			r.terminal(pu, &UnitResult{Attempts: pu.attempts, Err: r.ctx.Err()})
			return
		}
		r.queue <- pu
	}()
}

// terminal records a unit's final outcome and reports progress.
func (r *run) terminal(pu *pendingUnit, ur *UnitResult) {
	ur.Key = pu.unit.Key
	ur.Path = pu.unit.Path

	r.mu.Lock()
	r.result.Units[ur.Key] = ur
	switch {
	case ur.Err != nil:
		r.result.Failed++
		r.result.FailureReasons[failureReason(ur.Err)]++
	case ur.Cached:
		r.result.Cached++
	default:
		r.result.Succeeded++
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.o.opts.OnProgress != nil {
		r.o.opts.OnProgress(snap)
	}
	r.pending.Done()
}

func (r *run) snapshotLocked() Snapshot {
	return Snapshot{
		Total:          r.total,
		Completed:      r.result.Succeeded + r.result.Cached + r.result.Failed,
		Succeeded:      r.result.Succeeded,
		Cached:         r.result.Cached,
		Failed:         r.result.Failed,
		BatchesDone:    r.result.BatchesDone,
		ThrottleFactor: r.o.limiter.ThrottleFactor(),
		CircuitState:   r.o.breaker.State().String(),
	}
}

// sleep waits for d or until the run context is done. It reports whether the
// full duration elapsed.
func (r *run) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func failureReason(err error) string {
	var callErr *ai.CallError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &callErr):
		return callErr.Class.String()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"photo-curator/internal/ai"
	"photo-curator/internal/cache"
)

// scriptedSender answers provider calls from a test-supplied function, keyed
// by the 1-based call number.
type scriptedSender struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error)
}

func (s *scriptedSender) Name() string { return "scripted" }

func (s *scriptedSender) AnalyzeBatch(ctx context.Context, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, reqs)
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okResults(reqs []ai.ImageRequest) []ai.ImageResult {
	results := make([]ai.ImageResult, len(reqs))
	for i, req := range reqs {
		results[i] = ai.ImageResult{
			Key:      req.Key,
			Analysis: &ai.ImageAnalysis{TechnicalScore: 7, Category: "landscape"},
		}
	}
	return results
}

func testUnits(n int) []*RequestUnit {
	units := make([]*RequestUnit, n)
	for i := range units {
		name := fmt.Sprintf("IMG_%04d.jpg", i)
		units[i] = &RequestUnit{
			Key:     fmt.Sprintf("key-%d", i),
			Path:    "/photos/" + name,
			Name:    name,
			Payload: []byte{0xff, 0xd8},
		}
	}
	return units
}

type orchestratorTweaks struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	maxAttempts      int
	maxRequeues      int
	workers          int
	maxBatch         int
}

func newTestOrchestrator(sender Sender, store cache.Store, tw orchestratorTweaks) *Orchestrator {
	if tw.failureThreshold == 0 {
		tw.failureThreshold = 3
	}
	if tw.recoveryTimeout == 0 {
		tw.recoveryTimeout = 50 * time.Millisecond
	}
	if tw.maxAttempts == 0 {
		tw.maxAttempts = 3
	}
	if tw.maxRequeues == 0 {
		tw.maxRequeues = 3
	}
	if tw.workers == 0 {
		tw.workers = 2
	}
	if tw.maxBatch == 0 {
		tw.maxBatch = 3
	}

	log := zerolog.Nop()
	breaker := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: tw.failureThreshold,
		RecoveryTimeout:  tw.recoveryTimeout,
		HalfOpenMaxCalls: 1,
	}, log)
	limiter := NewRateLimiter(LimiterSettings{MaxConcurrent: 4}, log)
	backoff := NewBackoff(BackoffSettings{
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		MaxAttempts:    tw.maxAttempts,
	})
	sizer := NewBatchSizer(BatchSettings{MinSize: 1, MaxSize: tw.maxBatch}, log)

	return New(sender, store, breaker, limiter, backoff, sizer, log, Options{
		Workers:        tw.workers,
		MaxRequeues:    tw.maxRequeues,
		RequestTimeout: time.Second,
	})
}

func TestRunAllSucceed(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{})

	units := testUnits(10)
	res := o.Run(context.Background(), units)

	if res.Succeeded != 10 || res.Failed != 0 || res.Cached != 0 {
		t.Fatalf("got succeeded=%d failed=%d cached=%d, want 10/0/0",
			res.Succeeded, res.Failed, res.Cached)
	}
	if len(res.Units) != 10 {
		t.Fatalf("expected 10 unit results, got %d", len(res.Units))
	}
	for key, ur := range res.Units {
		if ur.Err != nil {
			t.Errorf("unit %s failed: %v", key, ur.Err)
		}
		if ur.Analysis == nil {
			t.Errorf("unit %s has no analysis", key)
		}
	}
	if store.Len() != 10 {
		t.Errorf("expected 10 cached analyses, got %d", store.Len())
	}
}

func TestRunServesCacheHitsWithoutCalls(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	units := testUnits(6)
	for _, u := range units[:4] {
		if err := store.Put(context.Background(), u.Key, &ai.ImageAnalysis{Category: "portrait"}); err != nil {
			t.Fatal(err)
		}
	}
	o := newTestOrchestrator(sender, store, orchestratorTweaks{})

	res := o.Run(context.Background(), units)

	if res.Cached != 4 || res.Succeeded != 2 || res.Failed != 0 {
		t.Fatalf("got cached=%d succeeded=%d failed=%d, want 4/2/0",
			res.Cached, res.Succeeded, res.Failed)
	}
	for _, u := range units[:4] {
		if ur := res.Units[u.Key]; !ur.Cached || ur.Analysis.Category != "portrait" {
			t.Errorf("unit %s: expected cached portrait analysis, got %+v", u.Key, ur)
		}
	}
}

func TestRunRetriesTransientFailure(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		if call == 1 {
			return nil, ai.NewCallError(ai.FailureServer, fmt.Errorf("upstream 503"))
		}
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 1})

	res := o.Run(context.Background(), testUnits(1))

	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("got succeeded=%d failed=%d, want 1/0", res.Succeeded, res.Failed)
	}
	ur := res.Units["key-0"]
	if ur.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", ur.Attempts)
	}
	if sender.callCount() != 2 {
		t.Errorf("expected 2 provider calls, got %d", sender.callCount())
	}
}

func TestRunPermanentFailureIsNotRetried(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return nil, ai.NewCallError(ai.FailurePermanent, fmt.Errorf("invalid API key"))
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 1})

	res := o.Run(context.Background(), testUnits(1))

	if res.Failed != 1 || res.Succeeded != 0 {
		t.Fatalf("got failed=%d succeeded=%d, want 1/0", res.Failed, res.Succeeded)
	}
	if sender.callCount() != 1 {
		t.Errorf("expected a single provider call, got %d", sender.callCount())
	}
	if res.FailureReasons["permanent"] != 1 {
		t.Errorf("expected 1 permanent failure, got %v", res.FailureReasons)
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return nil, ai.NewCallError(ai.FailureTimeout, fmt.Errorf("deadline exceeded"))
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{
		workers:          1,
		maxAttempts:      3,
		failureThreshold: 100, // keep the circuit out of the way
	})

	res := o.Run(context.Background(), testUnits(1))

	if res.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", res.Failed)
	}
	ur := res.Units["key-0"]
	if ur.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", ur.Attempts)
	}
	if !strings.Contains(ur.Err.Error(), "retries exhausted") {
		t.Errorf("expected retries exhausted error, got %v", ur.Err)
	}
	if res.FailureReasons["timeout"] != 1 {
		t.Errorf("expected timeout failure reason, got %v", res.FailureReasons)
	}
}

func TestRunGivesUpWhenCircuitStaysOpen(t *testing.T) {
	prev := maxRequeueWait
	maxRequeueWait = 5 * time.Millisecond
	defer func() { maxRequeueWait = prev }()

	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return nil, ai.NewCallError(ai.FailureServer, fmt.Errorf("upstream down"))
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{
		workers:          1,
		failureThreshold: 1,
		recoveryTimeout:  time.Hour, // the circuit never recovers in this run
		maxAttempts:      2,
		maxRequeues:      2,
	})

	res := o.Run(context.Background(), testUnits(4))

	if res.Failed != 4 {
		t.Fatalf("expected all 4 units to fail, got %d", res.Failed)
	}
	if res.FailureReasons["circuit_open"] == 0 {
		t.Errorf("expected circuit_open failures, got %v", res.FailureReasons)
	}
	// Only the calls made before the circuit opened reached the provider.
	if sender.callCount() > 2 {
		t.Errorf("expected at most 2 provider calls, got %d", sender.callCount())
	}
}

func TestRunRecoversThroughHalfOpen(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		if call <= 2 {
			return nil, ai.NewCallError(ai.FailureServer, fmt.Errorf("upstream down"))
		}
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{
		workers:          1,
		failureThreshold: 2,
		recoveryTimeout:  20 * time.Millisecond,
		maxAttempts:      5,
		maxRequeues:      20,
	})

	res := o.Run(context.Background(), testUnits(3))

	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("got succeeded=%d failed=%d, want 3/0", res.Succeeded, res.Failed)
	}
}

func TestRunDrainsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		cancel()
		return nil, ctx.Err()
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 2})

	units := testUnits(8)
	done := make(chan *Result, 1)
	go func() { done <- o.Run(ctx, units) }()

	select {
	case res := <-done:
		if got := res.Succeeded + res.Cached + res.Failed; got != len(units) {
			t.Errorf("expected %d terminal outcomes, got %d", len(units), got)
		}
		if len(res.Units) != len(units) {
			t.Errorf("expected a result for every unit, got %d", len(res.Units))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunRateLimitTightensThrottle(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		if call == 1 {
			return nil, ai.NewCallError(ai.FailureRateLimit, fmt.Errorf("429 too many requests"))
		}
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 1})

	res := o.Run(context.Background(), testUnits(2))

	if res.Succeeded != 2 {
		t.Fatalf("expected 2 successes, got %d", res.Succeeded)
	}
	if got := o.limiter.ThrottleFactor(); got >= 1.0 {
		t.Errorf("expected throttle below 1.0 after a rate limit, got %f", got)
	}
}

func TestRunPerImageFailureRetriesOnlyThatImage(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		results := okResults(reqs)
		if call == 1 {
			for i, req := range reqs {
				if req.Key == "key-1" {
					results[i] = ai.ImageResult{
						Key: req.Key,
						Err: ai.NewCallError(ai.FailureServer, fmt.Errorf("no analysis for image")),
					}
				}
			}
		}
		return results, nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 1})

	res := o.Run(context.Background(), testUnits(2))

	if res.Succeeded != 2 || res.Failed != 0 {
		t.Fatalf("got succeeded=%d failed=%d, want 2/0", res.Succeeded, res.Failed)
	}
	if ur := res.Units["key-0"]; ur.Attempts != 1 {
		t.Errorf("expected key-0 to succeed on the first attempt, got %d", ur.Attempts)
	}
}

func TestRunReportsProgress(t *testing.T) {
	sender := &scriptedSender{fn: func(call int, reqs []ai.ImageRequest) ([]ai.ImageResult, error) {
		return okResults(reqs), nil
	}}
	store := cache.NewMemoryStore(0)
	o := newTestOrchestrator(sender, store, orchestratorTweaks{workers: 1})

	var mu sync.Mutex
	var snaps []Snapshot
	o.opts.OnProgress = func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}

	o.Run(context.Background(), testUnits(5))

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 5 {
		t.Fatalf("expected 5 progress snapshots, got %d", len(snaps))
	}
	last := snaps[len(snaps)-1]
	if last.Completed != 5 || last.Total != 5 {
		t.Errorf("final snapshot: completed=%d total=%d, want 5/5", last.Completed, last.Total)
	}
	if last.CircuitState != "CLOSED" {
		t.Errorf("expected CLOSED circuit in final snapshot, got %s", last.CircuitState)
	}
}

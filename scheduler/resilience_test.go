package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     5 * time.Millisecond,
		MaxInterval:         20 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}
}

// TestRetryTransientThenSuccess verifies transient failures are retried
// within a single fire and the fire completes successfully.
func TestRetryTransientThenSuccess(t *testing.T) {
	s := newTestScheduler(t)

	var calls atomic.Int32
	h := s.ScheduleAt(time.Now(), func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("transient failure %d", calls.Load())
		}
		return "recovered", nil
	}, nil, WithRetry(fastRetry()))

	if err := s.Wait(h); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if v, err := s.Result(h); err != nil || v != "recovered" {
		t.Errorf("Result() = (%v, %v), want (recovered, nil)", v, err)
	}
	if st, _ := s.State(h); st != StateCompleted {
		t.Errorf("State() = %s, want completed", st)
	}
}

// TestRetryExhaustion verifies a persistently failing fire is recorded
// as failed once the retry budget is spent.
func TestRetryExhaustion(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("permanent failure")
	var calls atomic.Int32
	h := s.ScheduleAt(time.Now(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	}, nil, WithRetry(RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      50 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}))

	if err := s.Wait(h); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("expected multiple attempts, got %d", calls.Load())
	}
	if _, err := s.Result(h); !errors.Is(err, boom) {
		t.Errorf("Result() error = %v, want %v", err, boom)
	}
	if st, _ := s.State(h); st != StateFailed {
		t.Errorf("State() = %s, want failed", st)
	}
}

// TestBreakerOpensAfterConsecutiveFailures verifies tasks sharing a
// breaker fail fast once it trips, without running user code.
func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("downstream unavailable")
	var calls atomic.Int32
	failing := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	}

	// Five sequential failures trip the breaker; chain them so the
	// counts are deterministic.
	var prev Handle
	for i := 0; i < 5; i++ {
		deps := []Handle{}
		if prev.Valid() {
			deps = append(deps, prev)
		}
		prev = s.ScheduleAt(time.Now(), failing, deps, WithBreaker("downstream"))
	}
	if err := s.Wait(prev); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("expected 5 calls before trip, got %d", got)
	}

	// The sixth fire must fail fast with the breaker open.
	sixth := s.ScheduleAt(time.Now(), failing, []Handle{prev}, WithBreaker("downstream"))
	if err := s.Wait(sixth); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if _, err := s.Result(sixth); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Result() error = %v, want ErrOpenState", err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("open breaker still ran user code (%d calls)", got)
	}
}

// TestBreakerIsolation verifies breakers with different names do not
// share failure counts.
func TestBreakerIsolation(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("boom")
	var prev Handle
	for i := 0; i < 5; i++ {
		deps := []Handle{}
		if prev.Valid() {
			deps = append(deps, prev)
		}
		prev = s.ScheduleAt(time.Now(), func(ctx context.Context) (any, error) {
			return nil, boom
		}, deps, WithBreaker("noisy"))
	}
	if err := s.Wait(prev); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	h := s.ScheduleAt(time.Now(), noop, []Handle{prev}, WithBreaker("quiet"))
	if err := s.Wait(h); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if _, err := s.Result(h); err != nil {
		t.Errorf("unrelated breaker affected: %v", err)
	}
}

// TestDefaultRetryConfig sanity-checks the defaults.
func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.InitialInterval != 100*time.Millisecond {
		t.Errorf("InitialInterval = %v", cfg.InitialInterval)
	}
	if cfg.MaxElapsedTime != 2*time.Minute {
		t.Errorf("MaxElapsedTime = %v", cfg.MaxElapsedTime)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v", cfg.Multiplier)
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry for a task's fires.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// breakerRegistry manages named circuit breakers shared across tasks.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// get returns the breaker for the given name, creating it on first use.
func (r *breakerRegistry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // test requests allowed half-open
		Interval:    0,                // never clear counts automatically
		Timeout:     30 * time.Second, // open duration before probing
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Shutdown is not a task failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	r.breakers[name] = cb
	return cb
}

// invoke runs one fire of t with panic capture, applying the task's
// breaker and retry policy when configured.
func (s *Scheduler) invoke(ctx context.Context, t *task) (any, error) {
	call := func(ctx context.Context) (any, error) {
		return safeCall(ctx, t.fn)
	}

	if t.breaker != "" {
		cb := s.breakers.get(t.breaker)
		inner := call
		call = func(ctx context.Context) (any, error) {
			return cb.Execute(func() (any, error) {
				return inner(ctx)
			})
		}
	}

	if t.retry == nil {
		return call(ctx)
	}

	var value any
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		v, err := call(ctx)
		if err != nil {
			// An open circuit will not recover within a fire's retry
			// budget; fail the fire fast.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.retry.InitialInterval
	policy.MaxInterval = t.retry.MaxInterval
	policy.MaxElapsedTime = t.retry.MaxElapsedTime
	policy.Multiplier = t.retry.Multiplier
	policy.RandomizationFactor = t.retry.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return value, nil
}

// safeCall runs fn, converting a panic into an error so a misbehaving
// task is recorded as failed instead of unwinding through the pool.
func safeCall(ctx context.Context, fn Func) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

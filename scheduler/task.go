package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aristath/taskflow/cron"
)

// Handle is an opaque, stable task identifier. Handles are assigned
// monotonically at submission, never reused, and remain valid for the
// scheduler's lifetime. The zero value denotes "invalid/absent".
type Handle uint64

// InvalidHandle is returned by submission APIs on error.
const InvalidHandle Handle = 0

// Valid reports whether the handle refers to a task.
func (h Handle) Valid() bool { return h != InvalidHandle }

// Func is a unit of work. The context is the scheduler's run context and
// is cancelled at Stop; running work is never preempted but may observe
// the cancellation cooperatively. The returned value is stored on the
// task's completion signal and surfaced by Result.
type Func func(ctx context.Context) (any, error)

// State is a task's position in its lifecycle.
type State int32

const (
	StateWaiting   State = iota // trigger or predecessors outstanding
	StateReady                  // selected by the dispatcher, not yet on a worker
	StateRunning                // executing on a worker
	StateCompleted              // terminal: work returned successfully
	StateFailed                 // terminal: work returned an error or panicked
	StateCancelled              // terminal: cancelled before running, or shutdown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether the state is final for a one-shot task.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// task is a scheduled unit of work. Edges are stored as handles, never
// pointers: records live in the registry arena and reference each other
// by handle only, so the dependents back-pointer pattern creates no
// ownership cycle.
//
// Field discipline: cancelled, pending, and notified are atomics and may
// be touched without the registry mutex. Everything else that mutates
// after insert (state, startAt, sig, dependents) is guarded by the
// registry mutex.
type task struct {
	handle    Handle
	name      string
	fn        Func
	startAt   time.Time
	recurring bool
	interval  time.Duration
	schedule  *cron.Schedule // calendar recurrence; nil for interval tasks

	cancelled atomic.Bool
	pending   atomic.Int32 // predecessors not yet completed/cancelled
	notified  atomic.Bool  // completion hook ran; flipped under the registry mutex

	preds      []Handle // frozen at insert
	dependents []Handle // appended under the registry mutex

	state State
	sig   *signal

	retry   *RetryConfig
	breaker string
}

// TaskOption customizes a single submission.
type TaskOption func(*task)

// WithName labels the task for events and the fire journal. Unnamed
// tasks default to "task-<handle>".
func WithName(name string) TaskOption {
	return func(t *task) {
		t.name = name
	}
}

// WithRetry retries a failing fire with exponential backoff before the
// fire is recorded as failed.
func WithRetry(cfg RetryConfig) TaskOption {
	return func(t *task) {
		c := cfg
		t.retry = &c
	}
}

// WithBreaker routes the task's work through the named circuit breaker.
// Tasks sharing a name share a breaker; once it opens, fires fail fast
// without running user code until the breaker recovers.
func WithBreaker(name string) TaskOption {
	return func(t *task) {
		t.breaker = name
	}
}

// TaskInfo is a read-only snapshot of a task, as reported by Tasks.
type TaskInfo struct {
	Handle    Handle
	Name      string
	State     State
	Recurring bool
	StartAt   time.Time
	Preds     []Handle
}

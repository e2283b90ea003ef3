// Package scheduler executes user-supplied units of work across a fixed
// worker pool, subject to a time trigger (earliest permissible start) and
// a dependency graph (a task begins only after every predecessor has
// completed). Tasks are one-shot or recurring, interval- or
// calendar-driven, and are addressed by stable handles.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskflow/cron"
	"github.com/aristath/taskflow/events"
	"github.com/aristath/taskflow/pool"
)

// defaultTickCeiling bounds the dispatcher's sleep so wall-clock drift
// for calendar tasks stays small even when no wake-up arrives.
const defaultTickCeiling = 100 * time.Millisecond

// wallLayout is the accepted wall-clock submission form, interpreted in
// the local timezone.
const wallLayout = "2006-01-02 15:04:05"

// Scheduler is the engine: task registry, dependency bookkeeping, the
// dispatcher loop, and the dispatch interface to the worker pool. One
// dedicated dispatcher goroutine selects eligible tasks; user work runs
// on the pool's workers, never on the dispatcher.
type Scheduler struct {
	reg      *registry
	workers  int
	clock    Clock
	ceiling  time.Duration
	bus      *events.Bus
	breakers *breakerRegistry

	pool      *pool.Pool
	wakeCh    chan struct{}
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker pool size (default: number of CPUs).
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock injects a custom time source for testing.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTickCeiling bounds the dispatcher's maximum sleep (default 100ms).
func WithTickCeiling(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.ceiling = d
		}
	}
}

// WithEventBus publishes task and scheduler lifecycle events to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(s *Scheduler) {
		s.bus = bus
	}
}

// New constructs a Scheduler. Call Start to begin dispatching.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:      newRegistry(),
		clock:    realClock{},
		ceiling:  defaultTickCeiling,
		breakers: newBreakerRegistry(),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start launches the worker pool and the dispatcher loop. Calling Start
// on a running or stopped scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.started = true
	s.pool = pool.New(s.workers)
	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the scheduler down: it wakes and joins the dispatcher,
// cancels the run context, drains the worker pool, and transitions every
// non-terminal task to cancelled, releasing its waiters. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		// Serialized with Start: either Start completed and the pool and
		// dispatcher exist to be torn down, or Start observes the closed
		// stop channel and does nothing.
		s.mu.Lock()
		close(s.stopCh)
		p := s.pool
		s.mu.Unlock()

		s.wake()
		s.wg.Wait()
		s.runCancel()
		if p != nil {
			p.Shutdown()
		}
		s.reg.close()
		s.cancelRemaining()
		s.publish(events.TopicScheduler, events.SchedulerStoppedEvent{Timestamp: time.Now()})
	})
}

// cancelRemaining sweeps every non-terminal task to cancelled and
// resolves its completion signal so outstanding waiters return.
func (s *Scheduler) cancelRemaining() {
	s.reg.mu.Lock()
	var swept []*task
	for _, t := range s.reg.tasks {
		if !t.state.terminal() {
			t.state = StateCancelled
			t.cancelled.Store(true)
			swept = append(swept, t)
		}
	}
	s.reg.mu.Unlock()

	for _, t := range swept {
		t.sig.cancel()
		s.publish(events.TopicTask, events.TaskCancelledEvent{
			Handle:    uint64(t.handle),
			Name:      t.name,
			Timestamp: time.Now(),
		})
	}
}

// ScheduleAt submits a one-shot task eligible at the given instant.
// Returns InvalidHandle if fn is nil or any predecessor is unknown.
func (s *Scheduler) ScheduleAt(at time.Time, fn Func, deps []Handle, opts ...TaskOption) Handle {
	if fn == nil {
		return InvalidHandle
	}
	return s.submit(&task{fn: fn, startAt: at}, deps, opts)
}

// ScheduleOnce submits a one-shot task for a wall-clock instant given as
// "YYYY-MM-DD HH:MM:SS" in the local timezone. The instant is converted
// to the monotonic timeline once, at submission.
func (s *Scheduler) ScheduleOnce(wall string, fn Func, deps []Handle, opts ...TaskOption) Handle {
	wallAt, err := time.ParseInLocation(wallLayout, wall, time.Local)
	if err != nil {
		return InvalidHandle
	}
	now := s.clock.Now()
	return s.ScheduleAt(monoFromWall(now, wallAt), fn, deps, opts...)
}

// ScheduleEvery submits a recurring task firing every d, first at now+d.
// Returns InvalidHandle if d <= 0.
func (s *Scheduler) ScheduleEvery(d time.Duration, fn Func, deps []Handle, opts ...TaskOption) Handle {
	if fn == nil || d <= 0 {
		return InvalidHandle
	}
	t := &task{
		fn:        fn,
		startAt:   s.clock.Now().Add(d),
		recurring: true,
		interval:  d,
	}
	return s.submit(t, deps, opts)
}

// ScheduleCron submits a recurring task driven by a calendar expression.
// Malformed or unsupported expressions yield InvalidHandle without side
// effect. The next wall-clock fire is recomputed after each run.
func (s *Scheduler) ScheduleCron(expr string, fn Func, deps []Handle, opts ...TaskOption) Handle {
	if fn == nil {
		return InvalidHandle
	}
	sched, err := cron.Parse(expr)
	if err != nil {
		return InvalidHandle
	}
	now := s.clock.Now()
	t := &task{
		fn:        fn,
		startAt:   monoFromWall(now, sched.Next(now)),
		recurring: true,
		schedule:  &sched,
	}
	return s.submit(t, deps, opts)
}

func (s *Scheduler) submit(t *task, deps []Handle, opts []TaskOption) Handle {
	t.preds = append([]Handle(nil), deps...)
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	h := s.reg.insert(t)
	if !h.Valid() {
		return InvalidHandle
	}
	s.publish(events.TopicTask, events.TaskScheduledEvent{
		Handle:    uint64(h),
		Name:      t.name,
		Recurring: t.recurring,
		StartAt:   t.startAt,
		Timestamp: time.Now(),
	})
	s.wake()
	return h
}

// Cancel marks a task cancelled. A waiting task will never dispatch and
// is transitioned lazily on the next scan; a running task finishes its
// current execution but will not rearm. No-op for unknown or terminal
// handles.
func (s *Scheduler) Cancel(h Handle) {
	t, ok := s.reg.lookup(h)
	if !ok {
		return
	}
	t.cancelled.Store(true)
	s.wake()
}

// Wait blocks until the task reaches a terminal state or, for a
// recurring task, until its current fire completes. It returns nil even
// when the task failed or was cancelled; Result surfaces the cause.
func (s *Scheduler) Wait(h Handle) error {
	s.reg.mu.Lock()
	t, ok := s.reg.tasks[h]
	if !ok {
		s.reg.mu.Unlock()
		return ErrNoSuchHandle
	}
	sig := t.sig
	s.reg.mu.Unlock()

	sig.wait()
	return nil
}

// Result returns the stored success value or failure cause held by the
// task's current completion signal. ErrPending if that signal is not yet
// resolved, ErrCancelled if the task was cancelled before running,
// ErrNoSuchHandle for unknown handles. A recurring task's signal is
// replaced with a fresh one at each rearm, so between fires Result
// reports ErrPending rather than the previous fire's outcome.
func (s *Scheduler) Result(h Handle) (any, error) {
	s.reg.mu.Lock()
	t, ok := s.reg.tasks[h]
	if !ok {
		s.reg.mu.Unlock()
		return nil, ErrNoSuchHandle
	}
	sig := t.sig
	s.reg.mu.Unlock()

	return sig.result()
}

// State reports a task's current state.
func (s *Scheduler) State(h Handle) (State, error) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	t, ok := s.reg.tasks[h]
	if !ok {
		return 0, ErrNoSuchHandle
	}
	return t.state, nil
}

// Tasks returns a handle-ordered snapshot of every task.
func (s *Scheduler) Tasks() []TaskInfo {
	snap := s.reg.snapshot()
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	out := make([]TaskInfo, 0, len(snap))
	for _, t := range snap {
		out = append(out, TaskInfo{
			Handle:    t.handle,
			Name:      t.name,
			State:     t.state,
			Recurring: t.recurring,
			StartAt:   t.startAt,
			Preds:     append([]Handle(nil), t.preds...),
		})
	}
	return out
}

// Validate topologically checks the submitted dependency graph. The
// scheduler's progress guarantee is void for cyclic graphs; this is the
// advisory check for callers that assemble graphs programmatically.
func (s *Scheduler) Validate() error {
	return s.reg.validate()
}

// loop is the dispatcher: one iteration scans for ready candidates,
// hands them to the pool, then sleeps until the earliest future start,
// a wake-up, or the tick ceiling, whichever comes first.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		now := s.clock.Now()
		ready, lapsed, earliest := s.scan(now)

		for _, t := range lapsed {
			t.sig.cancel()
			s.publish(events.TopicTask, events.TaskCancelledEvent{
				Handle:    uint64(t.handle),
				Name:      t.name,
				Timestamp: time.Now(),
			})
			s.notifyDependents(t)
		}
		for _, t := range ready {
			t := t
			s.pool.Enqueue(func() { s.runTask(t) })
		}
		if len(ready) > 0 || len(lapsed) > 0 {
			continue
		}

		wait := s.ceiling
		if !earliest.IsZero() {
			if d := earliest.Sub(now); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeCh:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// scan collects, under the registry mutex, the candidates whose start
// instant has passed and whose pending-predecessor count is zero, in
// handle-ascending order (snapshot() sorts); candidates transition
// Waiting -> Ready here. Cancelled waiting tasks are transitioned to
// Cancelled and returned separately for finalization outside the lock.
// earliest is the minimum future start among remaining waiting tasks
// (zero when there is none).
func (s *Scheduler) scan(now time.Time) (ready, lapsed []*task, earliest time.Time) {
	snap := s.reg.snapshot()

	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	for _, t := range snap {
		if t.state != StateWaiting {
			continue
		}
		if t.cancelled.Load() {
			t.state = StateCancelled
			lapsed = append(lapsed, t)
			continue
		}
		if !t.startAt.After(now) && t.pending.Load() == 0 {
			t.state = StateReady
			ready = append(ready, t)
			continue
		}
		if t.startAt.After(now) && (earliest.IsZero() || t.startAt.Before(earliest)) {
			earliest = t.startAt
		}
	}
	return ready, lapsed, earliest
}

// runTask is the thunk body executed on a worker for one fire.
func (s *Scheduler) runTask(t *task) {
	s.reg.mu.Lock()
	sig := t.sig
	if t.cancelled.Load() {
		t.state = StateCancelled
		s.reg.mu.Unlock()
		sig.cancel()
		s.publish(events.TopicTask, events.TaskCancelledEvent{
			Handle:    uint64(t.handle),
			Name:      t.name,
			Timestamp: time.Now(),
		})
		s.notifyDependents(t)
		return
	}
	t.state = StateRunning
	s.reg.mu.Unlock()

	runID := uuid.New()
	started := s.clock.Now()
	s.publish(events.TopicTask, events.TaskStartedEvent{
		Handle:    uint64(t.handle),
		Name:      t.name,
		RunID:     runID,
		Timestamp: time.Now(),
	})

	value, err := s.invoke(s.runCtx, t)
	elapsed := s.clock.Now().Sub(started)

	// Resolve the current fire's latch before any rearm swaps it out, so
	// waiters holding this signal observe this fire's outcome.
	if err != nil {
		sig.fail(err)
	} else {
		sig.succeed(value)
	}

	if t.recurring && !t.cancelled.Load() {
		s.reg.mu.Lock()
		now := s.clock.Now()
		if t.schedule != nil {
			t.startAt = monoFromWall(now, t.schedule.Next(now))
		} else {
			t.startAt = now.Add(t.interval)
		}
		t.sig = newSignal()
		t.state = StateWaiting
		s.reg.mu.Unlock()
		s.wake()
	} else {
		s.reg.mu.Lock()
		switch {
		case t.recurring:
			// Cancelled mid-fire: the execution stands, the cycle ends.
			t.state = StateCancelled
		case err != nil:
			t.state = StateFailed
		default:
			t.state = StateCompleted
		}
		s.reg.mu.Unlock()
	}

	if err != nil {
		s.publish(events.TopicTask, events.TaskFailedEvent{
			Handle:    uint64(t.handle),
			Name:      t.name,
			RunID:     runID,
			Err:       err,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
	} else {
		s.publish(events.TopicTask, events.TaskCompletedEvent{
			Handle:    uint64(t.handle),
			Name:      t.name,
			RunID:     runID,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
	}

	s.notifyDependents(t)
}

// notifyDependents is the completion hook: it decrements the pending
// counter of every dependent exactly once per predecessor, regardless of
// outcome (failed and cancelled predecessors do not block dependents),
// and wakes the dispatcher when any counter reaches zero. Recurring
// tasks notify on their first completed fire only.
func (s *Scheduler) notifyDependents(t *task) {
	// The flag flip and the reverse-edge copy happen under the registry
	// mutex so that insert either counts this predecessor as pending and
	// lands in the copied slice, or skips it entirely.
	s.reg.mu.Lock()
	if !t.notified.CompareAndSwap(false, true) {
		s.reg.mu.Unlock()
		return
	}
	dependents := append([]Handle(nil), t.dependents...)
	s.reg.mu.Unlock()

	woke := false
	for _, h := range dependents {
		dep, ok := s.reg.lookup(h)
		if !ok {
			continue
		}
		if dep.pending.Add(-1) == 0 {
			woke = true
		}
	}
	if woke {
		s.wake()
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(topic string, ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, ev)
	}
}

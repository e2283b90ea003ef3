package history

import (
	"context"
	"log"
	"time"

	"github.com/aristath/taskflow/events"
)

// Recorder translates scheduler events into journal rows. It pairs each
// started event with the matching completion by run id; cancellations
// are journaled directly since the task never fired.
type Recorder struct {
	store   Store
	sub     <-chan events.Event
	started map[string]time.Time // run id -> start timestamp
}

// NewRecorder creates a recorder consuming the given subscription.
// Subscribe with a generous buffer: the bus drops events for slow
// consumers, and a dropped start yields a row whose start time is
// approximated as the finish timestamp minus the reported duration.
func NewRecorder(store Store, sub <-chan events.Event) *Recorder {
	return &Recorder{
		store:   store,
		sub:     sub,
		started: make(map[string]time.Time),
	}
}

// Run consumes events until the subscription channel closes or ctx is
// cancelled. Journal write failures are logged and skipped; the journal
// is best-effort by design.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.sub:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev events.Event) {
	var rec FireRecord
	switch e := ev.(type) {
	case events.TaskStartedEvent:
		r.started[e.RunID.String()] = e.Timestamp
		return
	case events.TaskCompletedEvent:
		rec = FireRecord{
			RunID:      e.RunID.String(),
			Handle:     e.Handle,
			Name:       e.Name,
			Outcome:    OutcomeCompleted,
			StartedAt:  r.takeStart(e.RunID.String(), e.Timestamp.Add(-e.Duration)),
			FinishedAt: e.Timestamp,
		}
	case events.TaskFailedEvent:
		errStr := ""
		if e.Err != nil {
			errStr = e.Err.Error()
		}
		rec = FireRecord{
			RunID:      e.RunID.String(),
			Handle:     e.Handle,
			Name:       e.Name,
			Outcome:    OutcomeFailed,
			Error:      errStr,
			StartedAt:  r.takeStart(e.RunID.String(), e.Timestamp.Add(-e.Duration)),
			FinishedAt: e.Timestamp,
		}
	case events.TaskCancelledEvent:
		rec = FireRecord{
			Handle:     e.Handle,
			Name:       e.Name,
			Outcome:    OutcomeCancelled,
			StartedAt:  e.Timestamp,
			FinishedAt: e.Timestamp,
		}
	default:
		return
	}

	if err := r.store.RecordFire(ctx, rec); err != nil {
		log.Printf("WARNING: failed to journal fire for task %d: %v", rec.Handle, err)
	}
}

func (r *Recorder) takeStart(runID string, fallback time.Time) time.Time {
	if at, ok := r.started[runID]; ok {
		delete(r.started, runID)
		return at
	}
	return fallback
}

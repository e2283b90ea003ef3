// Package events carries typed notifications emitted by the scheduler:
// task lifecycle transitions and scheduler lifecycle changes. Consumers
// (TUIs, audit journals) subscribe through the Bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskHandle() uint64
}

// Topic constants
const (
	TopicTask      = "task"
	TopicScheduler = "scheduler"
)

// Event type constants
const (
	EventTypeTaskScheduled    = "task.scheduled"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskCancelled    = "task.cancelled"
	EventTypeSchedulerStopped = "scheduler.stopped"
)

// TaskScheduledEvent is published when a submission is accepted.
type TaskScheduledEvent struct {
	Handle    uint64
	Name      string
	Recurring bool
	StartAt   time.Time
	Timestamp time.Time
}

func (e TaskScheduledEvent) EventType() string  { return EventTypeTaskScheduled }
func (e TaskScheduledEvent) TaskHandle() uint64 { return e.Handle }

// TaskStartedEvent is published when a fire begins executing on a worker.
// RunID identifies the individual fire; recurring tasks produce a fresh
// RunID per fire.
type TaskStartedEvent struct {
	Handle    uint64
	Name      string
	RunID     uuid.UUID
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string  { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskHandle() uint64 { return e.Handle }

// TaskCompletedEvent is published when a fire finishes successfully.
type TaskCompletedEvent struct {
	Handle    uint64
	Name      string
	RunID     uuid.UUID
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string  { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskHandle() uint64 { return e.Handle }

// TaskFailedEvent is published when a fire returns an error or panics.
type TaskFailedEvent struct {
	Handle    uint64
	Name      string
	RunID     uuid.UUID
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string  { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskHandle() uint64 { return e.Handle }

// TaskCancelledEvent is published when a task reaches the cancelled state
// without running (user cancellation or scheduler shutdown).
type TaskCancelledEvent struct {
	Handle    uint64
	Name      string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string  { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskHandle() uint64 { return e.Handle }

// SchedulerStoppedEvent is published once when the scheduler shuts down.
type SchedulerStoppedEvent struct {
	Timestamp time.Time
}

func (e SchedulerStoppedEvent) EventType() string  { return EventTypeSchedulerStopped }
func (e SchedulerStoppedEvent) TaskHandle() uint64 { return 0 }

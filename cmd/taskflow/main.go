package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/taskflow/config"
	"github.com/aristath/taskflow/events"
	"github.com/aristath/taskflow/history"
	"github.com/aristath/taskflow/scheduler"
)

// stage is one step of the demo data-processing pipeline.
type stage struct {
	name     string
	duration time.Duration
	deps     []string
}

var pipeline = []stage{
	{name: "extract-data", duration: 900 * time.Millisecond},
	{name: "clean-data", duration: 700 * time.Millisecond, deps: []string{"extract-data"}},
	{name: "analyze-data", duration: 1200 * time.Millisecond, deps: []string{"clean-data"}},
	{name: "generate-report", duration: 1000 * time.Millisecond, deps: []string{"analyze-data"}},
	{name: "backup-results", duration: 400 * time.Millisecond, deps: []string{"generate-report"}},
	{name: "notify-users", duration: 200 * time.Millisecond, deps: []string{"backup-results"}},
}

func main() {
	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	// Optional fire journal
	if cfg.HistoryPath != "" {
		store, err := history.NewSQLiteStore(ctx, cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening fire journal: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		recorder := history.NewRecorder(store, bus.SubscribeAll(512))
		go recorder.Run(ctx)
	}

	sched := scheduler.New(
		scheduler.WithWorkers(cfg.Workers),
		scheduler.WithTickCeiling(time.Duration(cfg.TickCeilingMS)*time.Millisecond),
		scheduler.WithEventBus(bus),
	)

	// The TUI model subscribes before any submission so it sees every event.
	model := newModel(bus.SubscribeAll(512))

	sched.Start()
	defer sched.Stop()

	final := submitPipeline(sched, cfg)
	if !final.Valid() {
		fmt.Fprintln(os.Stderr, "Error submitting pipeline")
		os.Exit(1)
	}
	if err := sched.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error validating pipeline graph: %v\n", err)
		os.Exit(1)
	}

	// A recurring heartbeat alongside the one-shot pipeline.
	sched.ScheduleEvery(time.Second, func(ctx context.Context) (any, error) {
		return "ok", nil
	}, nil, scheduler.WithName("heartbeat"))

	p := tea.NewProgram(model, tea.WithAltScreen())

	// Quit the TUI when the process is signalled.
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

// submitPipeline schedules every stage, wiring dependencies by name, and
// returns the handle of the final stage.
func submitPipeline(sched *scheduler.Scheduler, cfg *config.TaskflowConfig) scheduler.Handle {
	var opts []scheduler.TaskOption
	if cfg.RetryEnabled {
		opts = append(opts, scheduler.WithRetry(scheduler.RetryConfig{
			InitialInterval:     time.Duration(cfg.Retry.InitialIntervalMS) * time.Millisecond,
			MaxInterval:         time.Duration(cfg.Retry.MaxIntervalMS) * time.Millisecond,
			MaxElapsedTime:      time.Duration(cfg.Retry.MaxElapsedTimeMS) * time.Millisecond,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: 0.5,
		}))
	}

	handles := make(map[string]scheduler.Handle, len(pipeline))
	var last scheduler.Handle
	for _, st := range pipeline {
		deps := make([]scheduler.Handle, 0, len(st.deps))
		for _, dep := range st.deps {
			deps = append(deps, handles[dep])
		}
		d := st.duration
		h := sched.ScheduleAt(time.Now().Add(100*time.Millisecond), func(ctx context.Context) (any, error) {
			select {
			case <-time.After(d):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}, deps, append(opts, scheduler.WithName(st.name))...)
		if !h.Valid() {
			return scheduler.InvalidHandle
		}
		handles[st.name] = h
		last = h
	}
	return last
}

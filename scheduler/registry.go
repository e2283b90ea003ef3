package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// registry owns every task record and the graph-adjacency state. A
// single mutex protects the handle map, reverse-edge appends, state
// transitions, startAt mutation, and signal replacement; records carry
// atomic fields (pending, cancelled) that may be mutated without it.
//
// Records are modeled as an arena: they are addressed by handle, never
// deallocated while the scheduler runs, and kept after Stop so that
// Wait, Result, and State still report the tasks' final states.
type registry struct {
	mu     sync.Mutex
	tasks  map[Handle]*task
	nextID uint64
	closed bool
}

func newRegistry() *registry {
	return &registry{tasks: make(map[Handle]*task)}
}

// insert atomically assigns the next handle, installs the record, and
// wires reverse edges. It returns InvalidHandle without side effect if
// the registry is closed or any predecessor handle is unknown (which
// also covers self-edges, since the task's own handle does not exist
// yet).
func (r *registry) insert(t *task) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return InvalidHandle
	}
	for _, p := range t.preds {
		if _, ok := r.tasks[p]; !ok {
			return InvalidHandle
		}
	}

	r.nextID++
	t.handle = Handle(r.nextID)
	if t.name == "" {
		t.name = fmt.Sprintf("task-%d", t.handle)
	}
	t.state = StateWaiting
	t.sig = newSignal()

	// Count only predecessors whose completion hook has not yet run:
	// a predecessor that finished before this insert must not be waited
	// on, and its hook will not fire again.
	pending := int32(0)
	for _, p := range t.preds {
		pred := r.tasks[p]
		if !pred.notified.Load() {
			pending++
		}
		pred.dependents = append(pred.dependents, t.handle)
	}
	t.pending.Store(pending)
	r.tasks[t.handle] = t
	return t.handle
}

// lookup returns the record for a handle.
func (r *registry) lookup(h Handle) (*task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[h]
	return t, ok
}

// snapshot returns every record ordered handle-ascending. The slice is a
// copy; the records are live.
func (r *registry) snapshot() []*task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

// close marks the registry closed for further submissions.
func (r *registry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// validate topologically sorts the current dependency graph and returns
// an error if it contains a cycle. Submission never requires this (the
// caller is responsible for supplying an acyclic dependency set, and
// forward edges can only reference earlier handles); it exists as an
// advisory check for callers assembling graphs programmatically.
func (r *registry) validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var edges []toposort.Edge
	for h, t := range r.tasks {
		if len(t.preds) == 0 {
			edges = append(edges, toposort.Edge{nil, h})
			continue
		}
		for _, p := range t.preds {
			edges = append(edges, toposort.Edge{p, h})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("dependency graph contains cycle: %w", err)
	}
	return nil
}

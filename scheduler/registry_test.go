package scheduler

import (
	"context"
	"testing"
	"time"
)

func noop(ctx context.Context) (any, error) { return nil, nil }

// TestHandlesMonotonic verifies handle assignment order and uniqueness.
func TestHandlesMonotonic(t *testing.T) {
	s := New()
	defer s.Stop()

	seen := make(map[Handle]bool)
	var prev Handle
	for i := 0; i < 50; i++ {
		h := s.ScheduleAt(time.Now().Add(time.Hour), noop, nil)
		if !h.Valid() {
			t.Fatalf("submission %d returned invalid handle", i)
		}
		if h <= prev {
			t.Fatalf("handle %d not greater than previous %d", h, prev)
		}
		if seen[h] {
			t.Fatalf("handle %d reused", h)
		}
		seen[h] = true
		prev = h
	}
}

// TestUnknownPredecessorRejected verifies submission with an unknown
// predecessor returns the invalid handle without side effect.
func TestUnknownPredecessorRejected(t *testing.T) {
	s := New()
	defer s.Stop()

	h := s.ScheduleAt(time.Now(), noop, []Handle{Handle(99)})
	if h.Valid() {
		t.Fatalf("expected invalid handle, got %d", h)
	}
	if len(s.Tasks()) != 0 {
		t.Errorf("rejected submission left %d task(s) in the registry", len(s.Tasks()))
	}

	// A task cannot name its own (future) handle either.
	h = s.ScheduleAt(time.Now(), noop, []Handle{Handle(1)})
	if h.Valid() {
		t.Fatalf("self-referential predecessor accepted: %d", h)
	}
}

// TestReverseEdgesWired verifies dependents are appended at insert.
func TestReverseEdgesWired(t *testing.T) {
	s := New()
	defer s.Stop()

	a := s.ScheduleAt(time.Now().Add(time.Hour), noop, nil)
	b := s.ScheduleAt(time.Now().Add(time.Hour), noop, []Handle{a})
	c := s.ScheduleAt(time.Now().Add(time.Hour), noop, []Handle{a, b})

	ta, _ := s.reg.lookup(a)
	if len(ta.dependents) != 2 || ta.dependents[0] != b || ta.dependents[1] != c {
		t.Errorf("dependents of %d = %v, want [%d %d]", a, ta.dependents, b, c)
	}
	tc, _ := s.reg.lookup(c)
	if got := tc.pending.Load(); got != 2 {
		t.Errorf("pending of %d = %d, want 2", c, got)
	}
}

// TestValidateAcyclicGraph verifies the advisory topological check.
func TestValidateAcyclicGraph(t *testing.T) {
	s := New()
	defer s.Stop()

	a := s.ScheduleAt(time.Now().Add(time.Hour), noop, nil)
	b := s.ScheduleAt(time.Now().Add(time.Hour), noop, []Handle{a})
	s.ScheduleAt(time.Now().Add(time.Hour), noop, []Handle{a, b})

	if err := s.Validate(); err != nil {
		t.Errorf("Validate() on acyclic graph: %v", err)
	}
}

// TestSubmissionAfterStop verifies a stopped scheduler rejects work.
func TestSubmissionAfterStop(t *testing.T) {
	s := New()
	s.Start()
	s.Stop()

	if h := s.ScheduleAt(time.Now(), noop, nil); h.Valid() {
		t.Errorf("submission accepted after Stop: %d", h)
	}
	if h := s.ScheduleEvery(time.Second, noop, nil); h.Valid() {
		t.Errorf("recurring submission accepted after Stop: %d", h)
	}
}

// TestTasksSnapshotOrdered verifies Tasks reports handle-ascending order.
func TestTasksSnapshotOrdered(t *testing.T) {
	s := New()
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.ScheduleAt(time.Now().Add(time.Hour), noop, nil)
	}
	infos := s.Tasks()
	if len(infos) != 10 {
		t.Fatalf("expected 10 tasks, got %d", len(infos))
	}
	for i, info := range infos {
		if info.Handle != Handle(i+1) {
			t.Errorf("snapshot[%d].Handle = %d, want %d", i, info.Handle, i+1)
		}
		if info.State != StateWaiting {
			t.Errorf("snapshot[%d].State = %s, want waiting", i, info.State)
		}
	}
}

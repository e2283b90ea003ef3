// Package pool implements a fixed-size worker pool with FIFO submission.
//
// The pool knows nothing about tasks, dependencies, or time; it executes
// opaque thunks in submission order across its workers. Panics raised by
// a thunk are recovered and suppressed at this layer so a misbehaving
// thunk cannot take a worker down.
package pool

import (
	"log"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool is a bounded set of worker goroutines sharing a FIFO queue.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	workers errgroup.Group
	size    int
}

// New creates a pool with n workers and starts them immediately.
// If n <= 0 the pool sizes itself to the number of CPUs.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{size: n}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.workers.Go(func() error {
			p.work()
			return nil
		})
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Enqueue appends a thunk to the queue. It never blocks on queue
// capacity. After Shutdown it is a silent no-op.
func (p *Pool) Enqueue(thunk func()) {
	if thunk == nil {
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, thunk)
	p.mu.Unlock()
	p.cond.Signal()
}

// Shutdown stops the pool and joins every worker. Thunks already queued
// are drained before workers exit; no thunk is started after Shutdown
// returns. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	_ = p.workers.Wait()
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		thunk := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runThunk(thunk)
	}
}

func runThunk(thunk func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: worker recovered from panic: %v", r)
		}
	}()
	thunk()
}

// Package workerpool runs row-parallel work on a fixed set of goroutines.
//
// Workers are spawned once and reused across calls, so a quantization of a
// handful of rows does not pay for goroutine creation. Every call blocks until
// all of its chunks are done.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type task struct {
	fn         func(start, end int)
	start, end int
	done       chan struct{}
}

// Pool is a persistent worker pool.
type Pool struct {
	size      int
	tasks     chan task
	doneSlots chan chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	mu        sync.RWMutex
}

// New spawns a pool of size workers. size <= 0 means GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:      size,
		tasks:     make(chan task, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.tasks {
		t.fn(t.start, t.end)
		t.done <- struct{}{}
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Close stops the workers. Later calls run sequentially on the caller.
// Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed.Store(true)
		close(p.tasks)
		p.mu.Unlock()
	})
}

// ParallelFor splits [0, n) into at most Size contiguous chunks and runs fn
// on each. It returns once every chunk has finished.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers <= 1 {
		fn(0, n)
		return
	}

	p.mu.RLock()
	if p.closed.Load() {
		p.mu.RUnlock()
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots
	active := 0
	for i := range workers {
		start := i * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}
		active++
		p.tasks <- task{fn: fn, start: start, end: end, done: done}
	}
	p.mu.RUnlock()

	for range active {
		<-done
	}
	p.doneSlots <- done
}

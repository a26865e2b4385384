package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRange(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Close()

	for _, n := range []int{1, 2, 3, 4, 5, 17, 1000} {
		hits := make([]int32, n)
		p.ParallelFor(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
}

func TestParallelForZero(t *testing.T) {
	t.Parallel()
	p := New(2)
	defer p.Close()

	called := false
	p.ParallelFor(0, func(start, end int) { called = true })
	if called {
		t.Fatal("fn should not run for n=0")
	}
}

func TestDefaultSize(t *testing.T) {
	t.Parallel()
	p := New(0)
	defer p.Close()
	if p.Size() < 1 {
		t.Fatalf("expected at least one worker, got %d", p.Size())
	}
}

func TestClosedPoolRunsSequentially(t *testing.T) {
	t.Parallel()
	p := New(3)
	p.Close()
	p.Close()

	var calls int
	p.ParallelFor(10, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("expected single chunk [0,10), got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestConcurrentCallers(t *testing.T) {
	t.Parallel()
	p := New(2)
	defer p.Close()

	var wg sync.WaitGroup
	var total atomic.Int64
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ParallelFor(100, func(start, end int) {
				total.Add(int64(end - start))
			})
		}()
	}
	wg.Wait()
	if got := total.Load(); got != 800 {
		t.Fatalf("expected 800 items processed, got %d", got)
	}
}

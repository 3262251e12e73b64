// Package concurrency provides the bounded-parallelism primitives the
// pipeline uses to fan out per-item LLM calls without losing input order.
package concurrency

import (
	"context"
	"sync"
	"time"
)

// Semaphore bounds concurrent work to a fixed number of slots.
type Semaphore struct {
	ch chan struct{}
}

func NewSemaphore(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{ch: make(chan struct{}, max)}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Releasing more than was acquired is a no-op.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
	default:
	}
}

type RateLimiter struct {
	semaphore *Semaphore
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRateLimiter allows at most requestsPerSecond in-flight acquisitions,
// refilling one slot per interval.
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}

	rl := &RateLimiter{
		semaphore: NewSemaphore(requestsPerSecond),
		stopCh:    make(chan struct{}),
	}

	rl.ticker = time.NewTicker(time.Second / time.Duration(requestsPerSecond))
	go rl.refill()

	return rl
}

func (rl *RateLimiter) refill() {
	for {
		select {
		case <-rl.ticker.C:
			rl.semaphore.Release()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) Acquire(ctx context.Context) error {
	return rl.semaphore.Acquire(ctx)
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.ticker.Stop()
		close(rl.stopCh)
	})
}

// ForEach runs fn over indexes 0..n-1 with at most workers goroutines. Each
// fn call owns its index, so writes to per-index result slots need no
// locking and output order matches input order. ForEach returns ctx.Err()
// if the context is cancelled before all indexes are dispatched; fn's own
// failures are the caller's business, keeping batch semantics fail-open.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) error {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	sem := NewSemaphore(workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release()
			fn(ctx, i)
		}(i)
	}

	wg.Wait()
	return nil
}

package migrate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs units of work with bounded parallelism. Submission never
// blocks the caller, so tasks running inside the pool can safely submit
// follow-up work (queue flushes) without risking deadlock.
type Pool struct {
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewPool constructs a pool of the given width.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit schedules one unit of work. Submissions after Close are dropped.
func (p *Pool) Submit(ctx context.Context, task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		task()
	}()
}

// Close stops further submissions. Safe to call once per run only; the
// sync.Once guards against accidental double shutdown.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	})
}

// Join blocks until every submitted unit of work has completed, including
// work submitted by in-flight tasks.
func (p *Pool) Join() {
	p.wg.Wait()
}

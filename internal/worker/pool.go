package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"archivist/internal/services"
	"archivist/internal/status"
)

// ErrNoWorkers is reported when a pool has no members left to select.
var ErrNoWorkers = fmt.Errorf("%w: pool has no registered workers", services.ErrWorkerUnreachable)

// Task is one unit of work a pool runs against a selected worker.
type Task interface {
	// Execute runs the task on w. It must always return an outcome.
	Execute(ctx context.Context, w *Worker) *status.ItemStatus
	// Abandon produces the outcome for a task that could not be started.
	Abandon(err error) *status.ItemStatus
}

// Future is the pending outcome of a submitted task.
type Future struct {
	done    chan struct{}
	outcome *status.ItemStatus
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(outcome *status.ItemStatus) *Future {
	f := newFuture()
	f.resolve(outcome)
	return f
}

func (f *Future) resolve(outcome *status.ItemStatus) {
	f.outcome = outcome
	close(f.done)
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the outcome is available.
func (f *Future) Wait() *status.ItemStatus {
	<-f.done
	return f.outcome
}

// Pool is the bounded set of workers serving one group. At most concurrency
// tasks run at once; workers are selected round-robin.
type Pool struct {
	group    string
	capacity int64
	slots    *semaphore.Weighted
	next     atomic.Uint64

	mu      sync.RWMutex
	workers []*Worker
}

// NewPool creates an empty pool. A non-positive concurrency means one slot.
func NewPool(group string, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		group:    group,
		capacity: int64(concurrency),
		slots:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Group returns the worker group served by the pool.
func (p *Pool) Group() string { return p.group }

// Capacity returns the number of concurrent task slots.
func (p *Pool) Capacity() int { return int(p.capacity) }

// Add registers w. Worker IDs are unique within a pool.
func (p *Pool) Add(w *Worker) error {
	if w == nil || w.ID == "" {
		return services.Wrap(services.ErrValidation, "worker pool", "add", "worker id must be set", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.workers {
		if existing.ID == w.ID {
			return services.Wrap(services.ErrValidation, "worker pool", "add", fmt.Sprintf("worker %s already registered in group %s", w.ID, p.group), nil)
		}
	}
	w.Group = p.group
	p.workers = append(p.workers, w)
	return nil
}

// Remove deregisters a worker and reports whether it was present. In-flight
// tasks on that worker are unaffected.
func (p *Pool) Remove(workerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.workers {
		if w.ID == workerID {
			p.workers = append(p.workers[:i:i], p.workers[i+1:]...)
			return true
		}
	}
	return false
}

// Workers returns the current members.
func (p *Pool) Workers() []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Worker(nil), p.workers...)
}

// Len returns the number of current members.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Submit waits for a free slot, selects a worker, and runs task on its own
// goroutine. Calls made in sequence acquire slots in that sequence. The
// returned future always resolves, even if the task panics.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return Resolved(task.Abandon(err))
	}
	w := p.pick()
	if w == nil {
		p.slots.Release(1)
		return Resolved(task.Abandon(ErrNoWorkers))
	}

	f := newFuture()
	go func() {
		var outcome *status.ItemStatus
		defer func() {
			if r := recover(); r != nil {
				outcome = task.Abandon(fmt.Errorf("%w: task panicked: %v", services.ErrWorkerExecutor, r))
			}
			p.slots.Release(1)
			f.resolve(outcome)
		}()
		outcome = task.Execute(ctx, w)
	}()
	return f
}

func (p *Pool) pick() *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.workers) == 0 {
		return nil
	}
	idx := p.next.Add(1) - 1
	return p.workers[idx%uint64(len(p.workers))]
}

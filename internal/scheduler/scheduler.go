// Package scheduler bounds how many generation jobs run at once: work is
// enqueued onto a buffered channel and drained by a fixed pool of worker
// goroutines, mirroring the single-consumer-loop-over-channels shape used
// elsewhere in this codebase for per-connection event handling, just
// generalized to N consumers instead of one.
package scheduler

import (
	"context"
	"log"

	"avatarbackend/internal/apperr"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work the scheduler will run on a worker goroutine.
// Implementations are expected to handle their own error reporting (e.g.
// marking a job failed); a returned error is logged but does not stop
// other workers.
type Task func(ctx context.Context) error

// Scheduler is a bounded FIFO queue of Tasks drained by a fixed-size worker pool.
type Scheduler struct {
	queue   chan Task
	workers int
}

// New constructs a Scheduler with the given worker concurrency and queue capacity.
func New(workers, queueCapacity int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1
	}
	return &Scheduler{
		queue:   make(chan Task, queueCapacity),
		workers: workers,
	}
}

// Submit enqueues a task without blocking. The queue depth is the only
// backpressure knob in this system: once it's full, Submit fails immediately
// with a QueueFull error instead of making the caller wait for room.
func (s *Scheduler) Submit(ctx context.Context, task Task) error {
	select {
	case s.queue <- task:
		return nil
	default:
		return apperr.New(apperr.KindQueueFull, "job queue is full, try again shortly")
	}
}

// Run starts the worker pool and blocks until ctx is cancelled, at which
// point it stops accepting new tasks from the queue and waits for
// in-flight tasks to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.workers; i++ {
		workerID := i
		g.Go(func() error {
			for {
				select {
				case task, ok := <-s.queue:
					if !ok {
						return nil
					}
					if err := task(gctx); err != nil {
						log.Printf("[scheduler] worker %d: task failed: %v", workerID, err)
					}
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	<-ctx.Done()
	return g.Wait()
}

// QueueDepth reports how many tasks are currently buffered, for health/metrics endpoints.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

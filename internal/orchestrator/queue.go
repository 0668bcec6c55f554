package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// Queue runs submitted tasks on a single background worker. Each
// orchestrator run is one logical unit of work; callers poll run status
// rather than blocking on submission.
type Queue struct {
	tasks  chan func(context.Context)
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewQueue starts a queue with the given buffer capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan func(context.Context), capacity),
		logger: slog.Default().With("component", "task_queue"),
		ctx:    ctx,
		cancel: cancel,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			task(q.ctx)
		}
	}
}

// Submit enqueues a task. Returns false when the queue is full or shutting
// down; the caller decides whether that is an error.
func (q *Queue) Submit(task func(context.Context)) bool {
	select {
	case <-q.ctx.Done():
		return false
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("task queue full, submission rejected")
		return false
	}
}

// Shutdown cancels the worker context and waits for the in-flight task.
// Queued but unstarted tasks are dropped. The channel is never closed so a
// racing Submit can fail cleanly instead of panicking.
func (q *Queue) Shutdown() {
	q.closeOnce.Do(q.cancel)
	q.wg.Wait()
}

package syncer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pathQueues runs tasks one at a time per path, in submission order.
// Different paths run concurrently, bounded by sem.
type pathQueues struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	queues map[string][]func(context.Context)
	active sync.WaitGroup
}

func newPathQueues(sem *semaphore.Weighted) *pathQueues {
	return &pathQueues{sem: sem, queues: make(map[string][]func(context.Context))}
}

// submit appends task to the queue of path. done, if not nil, is called
// after the task ran or was dropped.
func (q *pathQueues) submit(ctx context.Context, path string, task func(context.Context), done func()) {
	wrapped := func(ctx context.Context) {
		if done != nil {
			defer done()
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer q.sem.Release(1)
		if ctx.Err() != nil {
			return
		}
		// A started change runs to completion.
		task(context.WithoutCancel(ctx))
	}

	q.mu.Lock()
	pending, running := q.queues[path]
	q.queues[path] = append(pending, wrapped)
	q.mu.Unlock()

	if !running {
		q.active.Add(1)
		go q.drain(ctx, path)
	}
}

func (q *pathQueues) drain(ctx context.Context, path string) {
	defer q.active.Done()
	for {
		q.mu.Lock()
		pending := q.queues[path]
		if len(pending) == 0 {
			delete(q.queues, path)
			q.mu.Unlock()
			return
		}
		task := pending[0]
		q.queues[path] = pending[1:]
		q.mu.Unlock()

		task(ctx)
	}
}

// wait blocks until every queue is empty.
func (q *pathQueues) wait() {
	q.active.Wait()
}

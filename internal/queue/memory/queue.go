// Package memory provides a bounded in-process download queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = crawler.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations. Enqueue
// may run concurrently with Close.
type Queue struct {
	ch chan crawler.DownloadJob
	// mu is held shared by senders and exclusively while closing ch.
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan crawler.DownloadJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue. It returns ErrClosed once Close has
// been called and gives up when ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job crawler.DownloadJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Jobs buffered
// before Close are still handed out; ErrClosed follows once they are gone.
func (q *Queue) Dequeue(ctx context.Context) (crawler.DownloadJob, error) {
	select {
	case <-ctx.Done():
		return crawler.DownloadJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return crawler.DownloadJob{}, ErrClosed
		}
		return job, nil
	}
}

// Len reports the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops new jobs, waits for in-flight Enqueue calls to return and
// closes the underlying channel. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		close(q.ch)
		q.mu.Unlock()
	})
}

// Package dispatcher manages worker fan-out over the download queue.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one of them has returned,
// which happens once the queue is closed and drained or ctx ends. Outcomes
// are sent to results; Run never closes it.
func (d *Dispatcher) Run(ctx context.Context, results chan<- crawler.Outcome) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx, d.queue, results)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job crawler.DownloadJob) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

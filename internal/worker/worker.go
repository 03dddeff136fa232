// Package worker executes download jobs pulled from a queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// DefaultContentType labels mirrored replay archives.
const DefaultContentType = "application/vnd.rar"

// Handler materializes one replay file on local disk.
type Handler interface {
	DownloadReplay(ctx context.Context, job crawler.DownloadJob) crawler.Outcome
}

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Worker runs the handler for each job and, for replays that landed on disk,
// mirrors them to the blob store and publishes a notice. Mirror and publish
// failures are logged and do not change the outcome.
type Worker struct {
	handler   Handler
	blobStore crawler.BlobStore
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. blobStore, publisher and clock may be nil.
func New(
	handler Handler,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		handler:   handler,
		blobStore: blobStore,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run consumes queue until it is closed and drained, sending one Outcome per
// job to results. It returns the context error if ctx ends first.
func (w *Worker) Run(ctx context.Context, queue crawler.Queue, results chan<- crawler.Outcome) error {
	for {
		job, err := queue.Dequeue(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("worker stopped: %w", ctxErr)
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				return nil
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("event_id", job.EventID),
			zap.String("demo_id", job.Match.DemoID),
		)
		outcome := w.Process(ctx, job)
		select {
		case results <- outcome:
		case <-ctx.Done():
			return fmt.Errorf("worker stopped: %w", ctx.Err())
		}
	}
}

// Process handles a single job synchronously.
func (w *Worker) Process(ctx context.Context, job crawler.DownloadJob) crawler.Outcome {
	if w.handler == nil {
		return crawler.Outcome{
			EventID: job.EventID,
			DemoID:  job.Match.DemoID,
			Status:  crawler.OutcomeFailed,
			Err:     errors.New("no download handler configured"),
		}
	}
	outcome := w.handler.DownloadReplay(ctx, job)
	if outcome.Status != crawler.OutcomeSucceeded {
		return outcome
	}

	if uri, err := w.mirror(ctx, outcome); err != nil {
		w.logger.Warn("mirror replay failed",
			zap.String("event_id", outcome.EventID),
			zap.String("demo_id", outcome.DemoID),
			zap.Error(err),
		)
	} else {
		outcome.MirrorURI = uri
	}
	if err := w.publishResult(ctx, job, outcome); err != nil {
		w.logger.Warn("publish replay notice failed",
			zap.String("event_id", outcome.EventID),
			zap.String("demo_id", outcome.DemoID),
			zap.Error(err),
		)
	}
	return outcome
}

func (w *Worker) buildBlobPath(eventID, demoID string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.rar", eventID, demoID)
	}
	return fmt.Sprintf("%s/%s/%s.rar", prefix, eventID, demoID)
}

func (w *Worker) mirror(ctx context.Context, outcome crawler.Outcome) (string, error) {
	if w.blobStore == nil {
		return "", nil
	}
	f, err := os.Open(outcome.Path) // #nosec G304 -- path produced by the replay store
	if err != nil {
		return "", fmt.Errorf("open replay: %w", err)
	}
	defer func() { _ = f.Close() }()

	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(outcome.EventID, outcome.DemoID), w.cfg.ContentType, f)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	w.logger.Info("replay mirrored",
		zap.String("event_id", outcome.EventID),
		zap.String("demo_id", outcome.DemoID),
		zap.String("blob_uri", uri),
	)
	return uri, nil
}

func (w *Worker) publishResult(ctx context.Context, job crawler.DownloadJob, outcome crawler.Outcome) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	notice := Notice{
		EventID:   outcome.EventID,
		DemoID:    outcome.DemoID,
		MatchURL:  job.Match.MatchURL,
		DemoURL:   job.Match.DemoURL,
		Path:      outcome.Path,
		MirrorURI: outcome.MirrorURI,
		SHA256:    outcome.Digest,
		Bytes:     outcome.Bytes,
		Timestamp: w.now().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, notice)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("replay published",
		zap.String("event_id", outcome.EventID),
		zap.String("demo_id", outcome.DemoID),
		zap.String("message_id", id),
	)
	return nil
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}

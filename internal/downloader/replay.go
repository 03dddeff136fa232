package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/hash/sha256"
	"github.com/JakeFAU/hltv-demo-scraper/internal/metrics"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
	"github.com/JakeFAU/hltv-demo-scraper/internal/retry"
	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/local"
)

// fileHandler downloads into one output root. It implements worker.Handler.
type fileHandler struct {
	d     *Downloader
	store *local.ReplayStore
}

type written struct {
	path   string
	bytes  int64
	digest string
}

// writeError marks a local filesystem failure while streaming.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return "write replay: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// DownloadReplay fetches one replay and always ends with the politeness delay.
func (h *fileHandler) DownloadReplay(ctx context.Context, job crawler.DownloadJob) crawler.Outcome {
	d := h.d
	m := job.Match
	start := d.now()
	outcome := crawler.Outcome{EventID: job.EventID, DemoID: m.DemoID}
	logger := d.logger.With(zap.String("event_id", job.EventID), zap.String("demo_id", m.DemoID))

	d.tracker.Emit(progress.Event{
		Stage:   progress.StageDownloadStart,
		EventID: job.EventID,
		DemoID:  m.DemoID,
		URL:     m.DemoURL,
	})
	metrics.IncActiveDownloads()
	res, err := h.fetch(ctx, job)
	metrics.DecActiveDownloads()
	outcome.Duration = d.now().Sub(start)

	switch {
	case err == nil:
		outcome.Status = crawler.OutcomeSucceeded
		outcome.Path, outcome.Bytes, outcome.Digest = res.path, res.bytes, res.digest
		logger.Info("replay downloaded",
			zap.String("path", res.path),
			zap.String("size", humanize.Bytes(uint64(max(res.bytes, 0)))),
			zap.Duration("took", outcome.Duration),
		)
		d.tracker.Emit(progress.Event{
			Stage:   progress.StageDownloadDone,
			EventID: job.EventID,
			DemoID:  m.DemoID,
			URL:     m.DemoURL,
			Bytes:   res.bytes,
			Dur:     outcome.Duration,
		})
	case errors.Is(err, retry.ErrBlocked):
		outcome.Status = crawler.OutcomeBlocked
	default:
		outcome.Status = crawler.OutcomeFailed
	}
	if err != nil {
		outcome.Err = err
		logger.Warn("replay download failed", zap.String("status", string(outcome.Status)), zap.Error(err))
		d.tracker.Emit(progress.Event{
			Stage:   progress.StageDownloadError,
			EventID: job.EventID,
			DemoID:  m.DemoID,
			URL:     m.DemoURL,
			Dur:     outcome.Duration,
			Note:    err.Error(),
		})
	}
	metrics.ObserveDownload(string(outcome.Status), outcome.Bytes)

	if d.cfg.Delay > 0 {
		if sleepErr := d.sleeper.Sleep(ctx, d.cfg.Delay); sleepErr != nil {
			logger.Debug("politeness delay interrupted", zap.Error(sleepErr))
		}
	}
	return outcome
}

// fetch prepares the event directory, then runs the GET under the retry policy.
func (h *fileHandler) fetch(ctx context.Context, job crawler.DownloadJob) (written, error) {
	replay := job.Match.Replay()
	if replay.URL == "" {
		return written{}, fmt.Errorf("demo %s: %w", replay.ID, crawler.ErrNoReplay)
	}
	if _, err := h.store.Path(job.EventID, replay.ID); err != nil {
		return written{}, err
	}
	if _, err := h.store.EnsureEventDir(job.EventID); err != nil {
		return written{}, err
	}
	var res written
	err := h.d.policy.Do(ctx, replay.URL, func(ctx context.Context) (int, error) {
		return h.attempt(ctx, job.EventID, replay, &res)
	})
	if err != nil {
		return written{}, err
	}
	return res, nil
}

// attempt performs one GET. Filesystem errors are permanent; transport and
// mid-stream read errors are retried like a blocked status.
func (h *fileHandler) attempt(ctx context.Context, eventID string, replay crawler.ReplayRef, res *written) (int, error) {
	d := h.d
	url := replay.URL
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, url); err != nil {
			return 0, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get replay: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	pending, err := h.store.Create(eventID, replay.ID)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("prepare replay file: %w", err))
	}
	digest := sha256.NewDigest()
	n, err := h.stream(eventID, replay.ID, io.MultiWriter(pending, digest), resp.Body)
	if err != nil {
		pending.Abort()
		var we *writeError
		if errors.As(err, &we) {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}
	if err := pending.Commit(); err != nil {
		return 0, backoff.Permanent(err)
	}
	*res = written{path: pending.FinalPath(), bytes: n, digest: digest.Sum()}
	return http.StatusOK, nil
}

// stream copies body to dst in fixed-size chunks, reporting cumulative bytes
// every ProgressStep.
func (h *fileHandler) stream(eventID, demoID string, dst io.Writer, body io.Reader) (int64, error) {
	d := h.d
	buf := make([]byte, d.cfg.ChunkSize)
	var total, reported int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, &writeError{err: err}
			}
			total += int64(n)
			if total-reported >= d.cfg.ProgressStep {
				reported = total
				d.tracker.Emit(progress.Event{
					Stage:   progress.StageDownloadProgress,
					EventID: eventID,
					DemoID:  demoID,
					Bytes:   total,
				})
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read replay body: %w", readErr)
		}
	}
}

// Package downloader materializes replay archives for one event or for every
// event of a lookup document.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/dispatcher"
	"github.com/JakeFAU/hltv-demo-scraper/internal/lookup"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
	"github.com/JakeFAU/hltv-demo-scraper/internal/queue/memory"
	"github.com/JakeFAU/hltv-demo-scraper/internal/retry"
	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/local"
	"github.com/JakeFAU/hltv-demo-scraper/internal/worker"
)

const (
	// DefaultChunkSize is the buffer used to stream a replay body.
	DefaultChunkSize = 32 * 1024
	// DefaultDelay is the politeness pause after every replay.
	DefaultDelay = 500 * time.Millisecond
	// DefaultProgressStep is how many bytes pass between DOWNLOAD_PROGRESS events.
	DefaultProgressStep = 1 << 20
)

// ErrUsage is returned when a Request names neither or both sources.
var ErrUsage = errors.New("exactly one of event id or lookup path is required")

// Waiter blocks until a request to rawURL may proceed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes the downloader.
type Config struct {
	// Workers bounds parallel downloads; zero means NumCPU-1.
	Workers   int
	ChunkSize int
	// Delay follows every file; zero means DefaultDelay.
	Delay time.Duration
	// NoDelay skips the pause after each file.
	NoDelay      bool
	ProgressStep int64
	UserAgent    string
	// BlobPrefix is prepended to mirrored object names.
	BlobPrefix  string
	ContentType string
	// Topic receives one notice per replay written; empty disables publishing.
	Topic string
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	switch {
	case c.NoDelay:
		c.Delay = 0
	case c.Delay <= 0:
		c.Delay = DefaultDelay
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = DefaultProgressStep
	}
	return c
}

// Request selects what to download. Exactly one of EventID and LookupPath
// must be set.
type Request struct {
	EventID    string
	LookupPath string
	// OutputRoot holds the demofiles directory; empty means the working directory.
	OutputRoot string
	Parallel   bool
}

// Report summarizes a Download call.
type Report struct {
	Outcomes  []crawler.Outcome
	Succeeded int
	Blocked   int
	Failed    int
	Bytes     int64
	// SkippedEvents lists lookup events that carried no matches.
	SkippedEvents []string
}

func (r *Report) add(o crawler.Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case crawler.OutcomeSucceeded:
		r.Succeeded++
		r.Bytes += o.Bytes
	case crawler.OutcomeBlocked:
		r.Blocked++
	default:
		r.Failed++
	}
}

// Downloader fetches replay archives through the shared retry policy.
type Downloader struct {
	cfg       Config
	client    *http.Client
	policy    *retry.Policy
	sleeper   crawler.Sleeper
	matches   crawler.MatchSource
	limiter   Waiter
	blobStore crawler.BlobStore
	publisher crawler.Publisher
	clock     crawler.Clock
	tracker   *progress.Tracker
	logger    *zap.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithLimiter throttles every replay request through w.
func WithLimiter(w Waiter) Option {
	return func(d *Downloader) {
		d.limiter = w
	}
}

// WithBlobStore mirrors every written replay to store.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(d *Downloader) {
		d.blobStore = store
	}
}

// WithPublisher publishes a notice per written replay to Config.Topic.
func WithPublisher(pub crawler.Publisher) Option {
	return func(d *Downloader) {
		d.publisher = pub
	}
}

// WithClock overrides the clock used for durations and notices.
func WithClock(clock crawler.Clock) Option {
	return func(d *Downloader) {
		d.clock = clock
	}
}

// WithTracker reports progress events.
func WithTracker(tracker *progress.Tracker) Option {
	return func(d *Downloader) {
		d.tracker = tracker
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New wires a Downloader. matches is only needed for single-event requests;
// a nil client falls back to http.DefaultClient.
func New(
	cfg Config,
	client *http.Client,
	policy *retry.Policy,
	sleeper crawler.Sleeper,
	matches crawler.MatchSource,
	opts ...Option,
) (*Downloader, error) {
	if policy == nil {
		return nil, errors.New("downloader: retry policy is required")
	}
	if sleeper == nil {
		return nil, errors.New("downloader: sleeper is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	d := &Downloader{
		cfg:     cfg.withDefaults(),
		client:  client,
		policy:  policy,
		sleeper: sleeper,
		matches: matches,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download writes every replay the request selects to
// <OutputRoot>/demofiles/<event_id>/<demo_id>.rar. Failed files are reported
// in the Report and never abort the run; the error is reserved for usage
// mistakes, an unusable output directory, an unreadable source and
// cancellation.
func (d *Downloader) Download(ctx context.Context, req Request) (Report, error) {
	if (req.EventID == "") == (req.LookupPath == "") {
		return Report{}, ErrUsage
	}
	store, err := local.New(req.OutputRoot)
	if err != nil {
		return Report{}, fmt.Errorf("prepare output: %w", err)
	}

	var report Report
	jobs, err := d.jobsFor(ctx, req, &report)
	if err != nil {
		return report, err
	}
	if len(jobs) == 0 {
		d.logger.Info("nothing to download")
		return report, nil
	}

	handler := &fileHandler{d: d, store: store}
	workers := d.workerCount(req.Parallel)
	d.logger.Info("starting downloads",
		zap.Int("replays", len(jobs)),
		zap.Int("workers", workers),
		zap.String("output", store.BaseDir()),
	)
	if workers < 2 {
		err = d.runSequential(ctx, handler, jobs, &report)
	} else {
		err = d.runParallel(ctx, handler, jobs, workers, &report)
	}
	d.logger.Info("downloads finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("blocked", report.Blocked),
		zap.Int("failed", report.Failed),
		zap.String("written", humanize.Bytes(uint64(max(report.Bytes, 0)))),
	)
	return report, err
}

func (d *Downloader) jobsFor(ctx context.Context, req Request, report *Report) ([]crawler.DownloadJob, error) {
	if req.EventID != "" {
		if d.matches == nil {
			return nil, errors.New("downloader: match source is required for a single event")
		}
		matches, err := d.matches.MatchesForEvent(ctx, req.EventID)
		if err != nil {
			return nil, fmt.Errorf("list matches: %w", err)
		}
		return toJobs(req.EventID, matches, req.OutputRoot), nil
	}

	doc, err := lookup.Load(req.LookupPath)
	if err != nil {
		return nil, err
	}
	var jobs []crawler.DownloadJob
	for _, id := range doc.EventIDs() {
		entry := doc[id]
		if len(entry.Matches) == 0 {
			d.logger.Info("event has no matches, skipping", zap.String("event_id", id))
			report.SkippedEvents = append(report.SkippedEvents, id)
			continue
		}
		jobs = append(jobs, toJobs(id, entry.Matches, req.OutputRoot)...)
	}
	return jobs, nil
}

func toJobs(eventID string, matches []crawler.MatchRecord, root string) []crawler.DownloadJob {
	jobs := make([]crawler.DownloadJob, 0, len(matches))
	for _, m := range crawler.DedupeMatches(matches) {
		jobs = append(jobs, crawler.DownloadJob{EventID: eventID, Match: m, OutputRoot: root})
	}
	return jobs
}

func (d *Downloader) workerCount(parallel bool) int {
	if !parallel {
		return 1
	}
	if d.cfg.Workers > 0 {
		return d.cfg.Workers
	}
	return runtime.NumCPU() - 1
}

func (d *Downloader) newWorker(handler worker.Handler) *worker.Worker {
	return worker.New(handler, d.blobStore, d.publisher, d.clock, worker.Config{
		ContentType: d.cfg.ContentType,
		BlobPrefix:  d.cfg.BlobPrefix,
		Topic:       d.cfg.Topic,
	}, d.logger)
}

func (d *Downloader) runSequential(ctx context.Context, handler worker.Handler, jobs []crawler.DownloadJob, report *Report) error {
	w := d.newWorker(handler)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("download canceled: %w", err)
		}
		report.add(w.Process(ctx, job))
	}
	return nil
}

func (d *Downloader) runParallel(
	ctx context.Context,
	handler worker.Handler,
	jobs []crawler.DownloadJob,
	n int,
	report *Report,
) error {
	queue := memory.NewQueue(len(jobs))
	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = d.newWorker(handler)
	}
	pool := dispatcher.New(queue, workers)
	d.logger.Debug("dispatching replays", zap.Int("workers", pool.Size()), zap.Int("jobs", len(jobs)))
	for _, job := range jobs {
		if err := pool.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	queue.Close()

	results := make(chan crawler.Outcome, len(jobs))
	runErr := pool.Run(ctx, results)
	close(results)

	byKey := make(map[string]crawler.Outcome, len(jobs))
	for o := range results {
		byKey[o.EventID+"/"+o.DemoID] = o
	}
	// Report in job order regardless of completion order.
	for _, job := range jobs {
		if o, ok := byKey[job.EventID+"/"+job.Match.DemoID]; ok {
			report.add(o)
		}
	}
	if runErr != nil {
		return fmt.Errorf("download canceled: %w", runErr)
	}
	return nil
}

func (d *Downloader) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}

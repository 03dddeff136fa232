// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/api"
	"github.com/JakeFAU/hltv-demo-scraper/internal/clock/system"
	"github.com/JakeFAU/hltv-demo-scraper/internal/config"
	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/downloader"
	"github.com/JakeFAU/hltv-demo-scraper/internal/extractor"
	collyfetcher "github.com/JakeFAU/hltv-demo-scraper/internal/fetcher/colly"
	iduuid "github.com/JakeFAU/hltv-demo-scraper/internal/id/uuid"
	"github.com/JakeFAU/hltv-demo-scraper/internal/metrics"
	"github.com/JakeFAU/hltv-demo-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress/sinks"
	pspublisher "github.com/JakeFAU/hltv-demo-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/hltv-demo-scraper/internal/retry"
	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/gcs"
	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/postgres"
)

// App holds the services shared by one scraper run. It is built once per
// command invocation and closed when the command returns.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock
	runID  uuid.UUID

	hub     *progress.Hub
	tracker *progress.Tracker
	breaker *retry.Breaker

	events     *extractor.EventExtractor
	downloader *downloader.Downloader

	pool      *pgxpool.Pool
	runs      *postgres.RunStore
	gcs       *gcstorage.Client
	pubsub    *pubsub.Client
	publisher *pspublisher.Publisher

	stopMetrics context.CancelFunc
	metricsDone chan error
}

type options struct {
	sleeper    crawler.Sleeper
	clock      crawler.Clock
	registerer prometheus.Registerer
	transport  http.RoundTripper
	ids        crawler.IDGenerator
}

// Option customizes the container.
type Option func(*options)

// WithSleeper replaces the sleeper used for politeness delays and emergency
// sleeps.
func WithSleeper(s crawler.Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleeper = s
		}
	}
}

// WithClock replaces the wall clock used for durations and notices.
func WithClock(c crawler.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRegisterer registers the progress collectors on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// WithTransport replaces the HTTP transport shared by pages and downloads.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithIDGenerator replaces the generator of the run id.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// New creates and initializes an App from cfg. Optional backends (Postgres,
// GCS, Pub/Sub, the metrics endpoint) are only built when configured. It
// fails fast if any configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := system.New()
	o := options{sleeper: clk, clock: clk, ids: iduuid.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = collyfetcher.NewHTTPTransport()
	}

	runID, err := o.ids.NewRunID()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger.With(zap.String("run_id", runID.String())),
		clock:   o.clock,
		runID:   runID,
		breaker: retry.NewBreaker(cfg.Retry.RunBudget),
	}

	if err := a.initBackends(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}
	if err := a.initProgress(o.registerer); err != nil {
		a.closeBackends()
		return nil, err
	}
	if err := a.initPipeline(o); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.Metrics.ListenAddr != "" {
		a.startMetrics(ctx)
	}

	a.logger.Info("application services initialized",
		zap.Bool("postgres", a.pool != nil),
		zap.Bool("gcs_mirror", a.gcs != nil),
		zap.Bool("pubsub", a.publisher != nil),
		zap.String("metrics_addr", cfg.Metrics.ListenAddr),
	)
	return a, nil
}

func (a *App) initBackends(ctx context.Context) error {
	if a.cfg.DB.DSN != "" {
		a.logger.Info("connecting to postgres")
		pool, err := postgres.NewPool(ctx, postgres.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
	}

	if a.cfg.Storage.GCSBucket != "" {
		a.logger.Info("using gcs replay mirror", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs: %w", err)
		}
		a.gcs = client
	}

	if a.cfg.PubSub.TopicName != "" {
		a.logger.Info("connecting to pub/sub", zap.String("topic", a.cfg.PubSub.TopicName))
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.pubsub = client
		pub, err := pspublisher.New(client)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
	}
	return nil
}

func (a *App) initProgress(reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return err
	}
	sinkList := []progress.Sink{sinks.NewLogSink(a.logger), promSink}
	if a.pool != nil {
		runs, err := postgres.NewRunStore(a.pool)
		if err != nil {
			return err
		}
		a.runs = runs
		sinkList = append(sinkList, sinks.NewStoreSink(runs, a.logger))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, sinkList...)
	a.tracker = progress.NewTracker(a.hub, a.runID)
	return nil
}

func (a *App) initPipeline(o options) error {
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.HTTP.RateLimitRPS,
		Burst: a.cfg.HTTP.RateLimitBurst,
	})
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Site.UserAgent,
		Timeout:   a.cfg.HTTPTimeout(),
		Limiter:   limiter,
	}, o.transport)

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:    a.cfg.Retry.MaxAttempts,
		EmergencySleep: a.cfg.Retry.EmergencySleep,
	}, o.sleeper, a.breaker, a.logger)
	fetcher := retry.NewFetcher(pages, policy)

	extCfg := extractor.Config{
		BaseURL:         a.cfg.Site.BaseURL,
		PageSize:        a.cfg.Extractor.PageSize,
		TeamPlaceholder: a.cfg.Extractor.TeamPlaceholder,
		ListingDelay:    a.cfg.Politeness.ListingDelay,
		MatchDelay:      a.cfg.Politeness.MatchDelay,
		NoDelay:         a.cfg.Politeness.Disabled,
	}
	matches, err := extractor.NewMatchExtractor(extCfg, fetcher, o.sleeper, a.tracker, a.logger)
	if err != nil {
		return err
	}

	extOpts := []extractor.Option{
		extractor.WithTracker(a.tracker),
		extractor.WithLogger(a.logger),
	}
	if a.pool != nil {
		lookups, err := postgres.NewLookupStore(a.pool, postgres.LookupStoreConfig{})
		if err != nil {
			return err
		}
		extOpts = append(extOpts, extractor.WithLookupStore(lookups))
	}
	a.events, err = extractor.NewEventExtractor(extCfg, fetcher, matches, o.sleeper, extOpts...)
	if err != nil {
		return err
	}

	dlOpts := []downloader.Option{
		downloader.WithLimiter(limiter),
		downloader.WithClock(a.clock),
		downloader.WithTracker(a.tracker),
		downloader.WithLogger(a.logger),
	}
	if a.gcs != nil {
		blobs, err := gcs.New(a.gcs, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return err
		}
		dlOpts = append(dlOpts, downloader.WithBlobStore(blobs))
	}
	if a.publisher != nil {
		dlOpts = append(dlOpts, downloader.WithPublisher(a.publisher))
	}
	// Replays can take minutes, so the client carries no overall timeout.
	client := &http.Client{Transport: pages.Transport()}
	a.downloader, err = downloader.New(downloader.Config{
		Workers:     a.cfg.Download.Workers,
		ChunkSize:   a.cfg.Download.ChunkSize,
		Delay:       a.cfg.Politeness.DownloadDelay,
		NoDelay:     a.cfg.Politeness.Disabled,
		UserAgent:   a.cfg.Site.UserAgent,
		BlobPrefix:  a.cfg.Storage.Prefix,
		ContentType: a.cfg.Storage.ContentType,
		Topic:       a.cfg.PubSub.TopicName,
	}, client, policy, o.sleeper, matches, dlOpts...)
	return err
}

func (a *App) startMetrics(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	a.stopMetrics = cancel
	a.metricsDone = make(chan error, 1)
	var mounts []metrics.Mount
	if a.runs != nil {
		mounts = append(mounts, api.NewRunHandler(a.runs, a.logger).Routes)
	}
	go func() {
		a.metricsDone <- metrics.Serve(ctx, a.cfg.Metrics.ListenAddr, a.logger, mounts...)
	}()
}

// RunID identifies this run in logs, progress events and the run store.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Discover writes the Lookup Document for req into dir and returns its path.
func (a *App) Discover(ctx context.Context, req extractor.DiscoverRequest, dir string) (string, crawler.LookupDocument, error) {
	start := a.begin()
	path, doc, err := a.events.DiscoverToFile(ctx, req, dir)
	a.finish(start, err)
	if err != nil {
		return "", nil, err
	}
	a.logger.Info("lookup document written",
		zap.String("path", path),
		zap.Int("events", len(doc)),
	)
	return path, doc, nil
}

// Download fetches the replays selected by req. Per-file failures live in the
// report; the error is reserved for usage mistakes and fatal conditions.
func (a *App) Download(ctx context.Context, req downloader.Request) (downloader.Report, error) {
	start := a.begin()
	report, err := a.downloader.Download(ctx, req)
	a.finish(start, err)
	return report, err
}

func (a *App) begin() time.Time {
	a.tracker.Emit(progress.Event{Stage: progress.StageRunStart})
	return a.clock.Now()
}

func (a *App) finish(start time.Time, err error) {
	evt := progress.Event{Stage: progress.StageRunDone, Dur: a.clock.Now().Sub(start)}
	if err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
	}
	a.tracker.Emit(evt)
}

// Close flushes progress sinks and shuts down every backend. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close", zap.Error(err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
		a.hub = nil
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("metrics server", zap.Error(err))
		}
		a.stopMetrics = nil
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.publisher != nil {
		a.publisher.Stop()
		a.publisher = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub close", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs close", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

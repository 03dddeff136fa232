package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
)

// PrometheusSink exports run progress via Prometheus collectors registered on
// the supplied registry.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    *prometheus.HistogramVec

	pages         prometheus.Counter
	eventsFound   prometheus.Counter
	matches       *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	downloadBytes prometheus.Counter
	downloadDur   prometheus.Histogram
	inFlight      prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_archive_pages_total",
			Help: "Archive listing pages parsed.",
		}),
		eventsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_events_found_total",
			Help: "Events discovered on archive pages.",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_matches_total",
			Help: "Match pages processed partitioned by result.",
		}, []string{"result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_replays_total",
			Help: "Replay downloads finished partitioned by result.",
		}, []string{"result"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_replay_bytes_total",
			Help: "Replay bytes written by completed downloads.",
		}),
		downloadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_replay_download_seconds",
			Help:    "Wall time per completed replay download.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_replays_in_flight",
			Help: "Replay downloads started but not yet finished.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.pages,
		s.eventsFound,
		s.matches,
		s.downloads,
		s.downloadBytes,
		s.downloadDur,
		s.inFlight,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.completeRun(evt, "success")
	case progress.StageRunError:
		s.completeRun(evt, "error")
	case progress.StagePageDone:
		s.pages.Inc()
	case progress.StageEventFound:
		s.eventsFound.Inc()
	case progress.StageMatchFound:
		s.matches.WithLabelValues("found").Inc()
	case progress.StageMatchSkipped:
		s.matches.WithLabelValues("skipped").Inc()
	case progress.StageDownloadStart:
		s.inFlight.Inc()
	case progress.StageDownloadDone:
		s.inFlight.Dec()
		s.downloads.WithLabelValues("success").Inc()
		if evt.Bytes > 0 {
			s.downloadBytes.Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.downloadDur.Observe(evt.Dur.Seconds())
		}
	case progress.StageDownloadError:
		s.inFlight.Dec()
		s.downloads.WithLabelValues("error").Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

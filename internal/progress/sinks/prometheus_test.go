package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Count: 12},
		{RunID: runID, TS: now, Stage: progress.StageEventFound, EventID: "5555"},
		{RunID: runID, TS: now, Stage: progress.StageMatchFound, EventID: "5555"},
		{RunID: runID, TS: now, Stage: progress.StageMatchSkipped, EventID: "5555"},
		{RunID: runID, TS: now, Stage: progress.StageDownloadStart, EventID: "5555", DemoID: "1"},
		{RunID: runID, TS: now, Stage: progress.StageDownloadStart, EventID: "5555", DemoID: "2"},
		{
			RunID:   runID,
			TS:      now.Add(10 * time.Second),
			Stage:   progress.StageDownloadDone,
			EventID: "5555",
			DemoID:  "1",
			Bytes:   1024,
			Dur:     2 * time.Second,
		},
		{RunID: runID, TS: now, Stage: progress.StageDownloadError, EventID: "5555", DemoID: "2"},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pages))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsFound))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.matches.WithLabelValues("found")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.matches.WithLabelValues("skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.downloads.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.downloads.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.inFlight))
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.downloadBytes), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.downloadDur, "scraper_replay_download_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageDownloadProgress, EventID: "1", DemoID: "2", Bytes: 2048},
		{RunID: runID, Stage: progress.StageMatchSkipped, EventID: "1", Note: "no replay"},
		{RunID: runID, Stage: progress.StageEventFound, EventID: "1"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zap.DebugLevel, entries[0].Level)
	require.Equal(t, "2.0 kB", entries[0].ContextMap()["size"])
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "no replay", entries[1].ContextMap()["note"])
	require.Equal(t, zap.InfoLevel, entries[2].Level)
}

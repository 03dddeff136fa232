package sinks

import (
	"context"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
)

// LogSink turns progress events into human-readable log lines. Download
// progress is logged at debug level because it is chatty.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.EventID != "" {
			fields = append(fields, zap.String("event_id", evt.EventID))
		}
		if evt.DemoID != "" {
			fields = append(fields, zap.String("demo_id", evt.DemoID))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.String("size", humanize.Bytes(uint64(evt.Bytes))))
		}
		if evt.Count > 0 {
			fields = append(fields, zap.Int("count", evt.Count))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}

		switch evt.Stage {
		case progress.StageDownloadProgress:
			s.logger.Debug("progress", fields...)
		case progress.StageDownloadError, progress.StageRunError, progress.StageMatchSkipped:
			s.logger.Warn("progress", fields...)
		default:
			s.logger.Info("progress", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

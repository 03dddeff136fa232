package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
	"github.com/JakeFAU/hltv-demo-scraper/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Counter deltas are
// collapsed per run so each batch costs one update per run.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events immediately and counter deltas once
// per run at the end of the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]store.RunCounters)
	var order []uuid.UUID

	for _, evt := range batch {
		runID := evt.RunUUID()
		if err := s.handleRunEvent(ctx, runID, evt); err != nil {
			return err
		}
		delta := countersFor(evt)
		if delta.IsZero() {
			continue
		}
		if _, seen := deltas[runID]; !seen {
			order = append(order, runID)
		}
		deltas[runID] = deltas[runID].Add(delta)
	}

	for _, runID := range order {
		if err := s.repo.AddRunCounters(ctx, runID, deltas[runID]); err != nil {
			return fmt.Errorf("add run counters: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func countersFor(evt progress.Event) store.RunCounters {
	switch evt.Stage {
	case progress.StagePageDone:
		return store.RunCounters{Pages: 1}
	case progress.StageEventFound:
		return store.RunCounters{EventsFound: 1}
	case progress.StageMatchFound:
		return store.RunCounters{MatchesFound: 1}
	case progress.StageMatchSkipped:
		return store.RunCounters{MatchesSkipped: 1}
	case progress.StageDownloadDone:
		return store.RunCounters{DownloadsOK: 1, BytesWritten: evt.Bytes}
	case progress.StageDownloadError:
		return store.RunCounters{DownloadsFailed: 1}
	default:
		return store.RunCounters{}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

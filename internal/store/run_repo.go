package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the scrape_runs status column.
type RunStatus string

// Run statuses persisted in scrape_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunCounters are additive per-run totals.
type RunCounters struct {
	Pages           int64
	EventsFound     int64
	MatchesFound    int64
	MatchesSkipped  int64
	DownloadsOK     int64
	DownloadsFailed int64
	BytesWritten    int64
}

// IsZero reports whether every counter is zero.
func (c RunCounters) IsZero() bool {
	return c == RunCounters{}
}

// Add returns the element-wise sum.
func (c RunCounters) Add(o RunCounters) RunCounters {
	return RunCounters{
		Pages:           c.Pages + o.Pages,
		EventsFound:     c.EventsFound + o.EventsFound,
		MatchesFound:    c.MatchesFound + o.MatchesFound,
		MatchesSkipped:  c.MatchesSkipped + o.MatchesSkipped,
		DownloadsOK:     c.DownloadsOK + o.DownloadsOK,
		DownloadsFailed: c.DownloadsFailed + o.DownloadsFailed,
		BytesWritten:    c.BytesWritten + o.BytesWritten,
	}
}

// Run models one row of scrape_runs.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
	Counters     RunCounters
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// UpsertRunStart inserts the run or leaves an existing row untouched.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// AddRunCounters applies counter deltas to the run.
	AddRunCounters(ctx context.Context, runID uuid.UUID, delta RunCounters) error
}

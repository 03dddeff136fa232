package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/hltv-demo-scraper/internal/store"
)

type runDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const runColumns = `id, started_at, finished_at, status, error_message,
			pages, events_found, matches_found, matches_skipped,
			downloads_ok, downloads_failed, bytes_written`

// RunStore implements store.RunRepository on the scrape_runs table.
type RunStore struct {
	db runDB
}

// NewRunStore wraps db, usually a *pgxpool.Pool.
func NewRunStore(db runDB) (*RunStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{db: db}, nil
}

// UpsertRunStart inserts the run or leaves an existing row untouched.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO scrape_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE scrape_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	res, err := s.db.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddRunCounters applies counter deltas to the run.
func (s *RunStore) AddRunCounters(ctx context.Context, runID uuid.UUID, delta store.RunCounters) error {
	if delta.IsZero() {
		return nil
	}
	query := `
		UPDATE scrape_runs SET
			pages = pages + $1,
			events_found = events_found + $2,
			matches_found = matches_found + $3,
			matches_skipped = matches_skipped + $4,
			downloads_ok = downloads_ok + $5,
			downloads_failed = downloads_failed + $6,
			bytes_written = bytes_written + $7
		WHERE id = $8;
	`
	res, err := s.db.Exec(ctx, query,
		delta.Pages,
		delta.EventsFound,
		delta.MatchesFound,
		delta.MatchesSkipped,
		delta.DownloadsOK,
		delta.DownloadsFailed,
		delta.BytesWritten,
		runID,
	)
	if err != nil {
		return fmt.Errorf("add run counters: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun reads one run.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs WHERE id = $1;`
	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.db.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	c := &run.Counters
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
		&c.Pages,
		&c.EventsFound,
		&c.MatchesFound,
		&c.MatchesSkipped,
		&c.DownloadsOK,
		&c.DownloadsFailed,
		&c.BytesWritten,
	)
	return run, err
}

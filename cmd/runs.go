package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/postgres"
	"github.com/JakeFAU/hltv-demo-scraper/internal/store"
)

// newRunsCmd creates the 'runs' subcommand, which prints recorded run
// progress from the scrape_runs table: one run in detail, or the latest runs.
func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Shows the recorded progress of runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runID uuid.UUID
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("run id: %w", err)
				}
				runID = id
			}
			if limit <= 0 {
				return errors.New("--limit must be > 0")
			}
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			if s.cfg.DB.DSN == "" {
				return errNoDSN
			}
			pool, err := postgres.NewPool(cmd.Context(), postgres.Config{DSN: s.cfg.DB.DSN, MaxConns: s.cfg.DB.MaxConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := postgres.NewRunStore(pool)
			if err != nil {
				return err
			}
			if runID == uuid.Nil {
				list, err := runs.ListRuns(cmd.Context(), nil, limit, 0)
				if err != nil {
					return err
				}
				return printRunList(cmd.OutOrStdout(), list)
			}
			run, err := runs.GetRun(cmd.Context(), runID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), run)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs listed when no run id is given")
	return cmd
}

func printRunList(w io.Writer, runs []store.Run) error {
	for _, run := range runs {
		c := run.Counters
		_, err := fmt.Fprintf(w, "%s  %s  %-8s  events=%d replays=%d/%d\n",
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Status,
			c.EventsFound,
			c.DownloadsOK, c.DownloadsOK+c.DownloadsFailed,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func printRun(w io.Writer, run store.Run) error {
	finished := "running"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	status := string(run.Status)
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		status += ": " + *run.ErrorMessage
	}
	c := run.Counters
	_, err := fmt.Fprintf(w,
		"run       %s\nstarted   %s\nfinished  %s\nstatus    %s\npages     %d\nevents    %d\nmatches   %d found, %d skipped\nreplays   %d ok, %d failed, %s\n",
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		finished,
		status,
		c.Pages,
		c.EventsFound,
		c.MatchesFound, c.MatchesSkipped,
		c.DownloadsOK, c.DownloadsFailed, humanize.IBytes(uint64(c.BytesWritten)),
	)
	return err
}

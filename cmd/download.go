package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/downloader"
)

// newDownloadCmd creates the 'download' subcommand. Individual failed
// replays are reported, not returned; the command only fails on usage,
// configuration or fatal errors.
func newDownloadCmd() *cobra.Command {
	var req downloader.Request
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Downloads match replays for one event or a Lookup Document",
		Long: `Downloads every replay of --event-id, or of every event in the Lookup
Document given by --lookup, into <output>/demofiles/<event_id>/<demo_id>.rar.
Exactly one of --event-id and --lookup is required. --parallel spreads the
files over download.workers workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a App, logger *zap.Logger) error {
				report, err := a.Download(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("download: %w", err)
				}
				logger.Info("download command finished",
					zap.Int("succeeded", report.Succeeded),
					zap.Int("blocked", report.Blocked),
					zap.Int("failed", report.Failed),
				)
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d blocked, %d failed, %s written\n",
					report.Succeeded, report.Blocked, report.Failed, humanize.IBytes(uint64(report.Bytes)))
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.EventID, "event-id", "", "download every replay of this event")
	flags.StringVar(&req.LookupPath, "lookup", "", "download every replay listed in this Lookup Document")
	flags.StringVarP(&req.OutputRoot, "output", "o", ".", "directory that receives demofiles/")
	flags.BoolVar(&req.Parallel, "parallel", false, "download with a worker pool")
	cmd.MarkFlagsOneRequired("event-id", "lookup")
	cmd.MarkFlagsMutuallyExclusive("event-id", "lookup")
	return cmd
}

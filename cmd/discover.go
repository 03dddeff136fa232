package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/extractor"
)

type discoverOptions struct {
	start          string
	end            string
	eventType      string
	includeMatches bool
	output         string
}

// newDiscoverCmd creates the 'discover' subcommand, which writes the Lookup
// Document for a date range and event type.
func newDiscoverCmd() *cobra.Command {
	opts := &discoverOptions{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Builds the Lookup Document for a date range",
		Long: `Walks the event archive between --start and --end (inclusive, YYYY-MM-DD),
optionally filtered by --type, and writes
event_lookup__<start>__<end>__<TYPE>.json into --output. With
--include-matches every event is enriched with its matches and replay links.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a App, logger *zap.Logger) error {
				path, doc, err := a.Discover(cmd.Context(), req, opts.output)
				if err != nil {
					return fmt.Errorf("discover: %w", err)
				}
				matches := 0
				for _, entry := range doc {
					matches += len(entry.Matches)
				}
				logger.Info("discover command finished",
					zap.String("path", path),
					zap.Int("events", len(doc)),
					zap.Int("matches", matches),
				)
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.start, "start", "", "first day of the range (YYYY-MM-DD)")
	flags.StringVar(&opts.end, "end", "", "last day of the range (YYYY-MM-DD)")
	flags.StringVar(&opts.eventType, "type", crawler.EventTypeAll.Name(),
		"event type: ALL, MAJOR, INTERNATIONAL_LAN, REGIONAL_LAN, ONLINE, LOCAL_LAN")
	flags.BoolVar(&opts.includeMatches, "include-matches", false, "fetch matches and replay links per event")
	flags.StringVarP(&opts.output, "output", "o", ".", "directory the Lookup Document is written to")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (o *discoverOptions) request() (extractor.DiscoverRequest, error) {
	start, err := crawler.ParseDate(o.start)
	if err != nil {
		return extractor.DiscoverRequest{}, fmt.Errorf("--start: %w", err)
	}
	end, err := crawler.ParseDate(o.end)
	if err != nil {
		return extractor.DiscoverRequest{}, fmt.Errorf("--end: %w", err)
	}
	eventType, err := crawler.ParseEventType(o.eventType)
	if err != nil {
		return extractor.DiscoverRequest{}, fmt.Errorf("--type: %w", err)
	}
	return extractor.DiscoverRequest{
		Start:          start,
		End:            end,
		Type:           eventType,
		IncludeMatches: o.includeMatches,
	}, nil
}

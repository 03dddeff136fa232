package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/app"
	"github.com/JakeFAU/hltv-demo-scraper/internal/config"
	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/downloader"
	"github.com/JakeFAU/hltv-demo-scraper/internal/extractor"
	"github.com/JakeFAU/hltv-demo-scraper/internal/logging"
)

// sessionKeyType is the key for storing the loaded session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

const closeTimeout = 15 * time.Second

// App defines the application interface that commands use.
// This allows us to inject a fake app during tests.
type App interface {
	Discover(ctx context.Context, req extractor.DiscoverRequest, dir string) (string, crawler.LookupDocument, error)
	Download(ctx context.Context, req downloader.Request) (downloader.Report, error)
	Close(ctx context.Context)
}

// AppFactory builds the application for one command invocation.
type AppFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// session is what the root command hands to every subcommand.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	factory AppFactory
}

// newRootCmd creates and configures the root command.
func newRootCmd(factory AppFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "demoscraper",
		Short: "Discovers esports events and downloads their match replays.",
		Long: `demoscraper walks the hltv.org event archive for a date range, records
every event and its matches in a Lookup Document and downloads the replay
archive of each match into demofiles/<event_id>/<demo_id>.rar.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logger are loaded once here so every subcommand sees the
		// same values.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), sessionKey, &session{
				cfg:     cfg,
				logger:  logger,
				factory: factory,
			})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(sessionKey).(*session); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); env DEMOSCRAPER_* overrides")

	cmd.AddCommand(
		newDiscoverCmd(),
		newDownloadCmd(),
		newMigrateCmd(),
		newRunsCmd(),
	)
	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	rt, ok := ctx.Value(sessionKey).(*session)
	if !ok || rt == nil {
		return nil, errors.New("application session not initialized")
	}
	return rt, nil
}

// withApp builds the application, runs fn and closes the application with a
// context that survives cancellation so progress sinks still flush.
func withApp(ctx context.Context, fn func(App, *zap.Logger) error) error {
	rt, err := resolveSession(ctx)
	if err != nil {
		return err
	}
	appInstance, err := rt.factory(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		appInstance.Close(closeCtx)
	}()
	return fn(appInstance, rt.logger)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command; a non-nil error exits with status 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(defaultAppFactory).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "demoscraper:", err)
		os.Exit(1)
	}
}

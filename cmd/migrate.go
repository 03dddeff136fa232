package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/postgres"
)

// errNoDSN is returned by commands that need Postgres when db.dsn is empty.
var errNoDSN = errors.New("db.dsn is not configured")

// newMigrateCmd creates the 'migrate' subcommand, which applies the embedded
// schema to db.dsn.
func newMigrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				names, err := postgres.MigrationNames()
				if err != nil {
					return err
				}
				for _, name := range names {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			}

			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			if s.cfg.DB.DSN == "" {
				return errNoDSN
			}
			if err := postgres.Migrate(cmd.Context(), s.cfg.DB.DSN); err != nil {
				return err
			}
			s.logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the embedded migrations instead of applying them")
	return cmd
}

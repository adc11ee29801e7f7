package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/miniapp-auth/internal/config"
	"github.com/sakif/miniapp-auth/internal/repository/sqlstore"
)

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all up migrations",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, db *sqlstore.DB) error {
				if err := db.Migrate(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, db *sqlstore.DB) error {
				if err := db.MigrateDown(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE:  withStore(printVersion),
		},
	)

	return migrateCmd
}

// withStore loads config, opens the configured database and closes it
// after fn.
func withStore(fn func(cmd *cobra.Command, db *sqlstore.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := sqlstore.Open(cmd.Context(), cfg.DatabaseDSN(), sqlstore.Options{
			Logger: cfg.Log.NewLogger(cmd.ErrOrStderr()),
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		return fn(cmd, db)
	}
}

func printVersion(cmd *cobra.Command, db *sqlstore.DB) error {
	version, dirty, err := db.SchemaVersion(cmd.Context())
	if err != nil {
		return err
	}
	if version == 0 && !dirty {
		fmt.Fprintln(cmd.OutOrStdout(), "schema version: none")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d (dirty=%t)\n", version, dirty)
	return nil
}

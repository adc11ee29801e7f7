// Package cli defines the miniapp command tree:
//
//	miniapp [serve]                 run the HTTP API (default)
//	miniapp migrate up|down|version manage the database schema
//	miniapp initdata sign ...       print signed init data for local testing
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/miniapp-auth/internal/config"
	"github.com/sakif/miniapp-auth/internal/server"
)

// NewRootCommand builds the full command tree. Running the root command
// without a subcommand starts the server.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "miniapp",
		Short:         "Telegram Mini-App authentication backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.AddCommand(newServeCommand(), newMigrateCommand(), newInitDataCommand())
	return root
}

// Execute runs the command tree against os.Args and returns the process
// exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. Pending migrations are applied on startup.

Configuration is read from the environment (and .env outside production).`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout)

	srv, err := server.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return srv.Start()
}

// Package cmd defines and implements the CLI commands for the fleetscore executable.
package cmd

import (
	"fmt"

	"github.com/greenproof/fleetscore/internal/server"
	"github.com/spf13/cobra"
)

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the scoring service",
		Long: `Runs the HTTP API, the run queue and the worker pool. Scoring runs
are submitted over the API and processed until the process receives
SIGINT or SIGTERM.`,
		RunE: runServeCommand,
	}
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := server.Build(cmd.Context(), &cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	return app.Run(cmd.Context())
}

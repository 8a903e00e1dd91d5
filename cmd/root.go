package cmd

import (
	"fmt"
	"os"

	"github.com/greenproof/fleetscore/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleetscore",
		Short: "Evidence-driven sustainability scoring for company fleets.",
		Long: `fleetscore scores a named company against a fixed set of fleet
sustainability criteria. It gathers evidence from the company's own
publications, targeted web search and a bounded site crawl, submits the
text to an analysis oracle and consolidates the findings into one
scorecard record per criterion.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and FLEETSCORE_* env vars apply when unset)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())

	return cmd
}

// loadConfig reads and validates the configuration for a subcommand.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package cmd provides the CLI commands for the smartcart discovery engine.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/logging"
	"github.com/smartcart/discovery/pkg/version"
)

var (
	cfgPath   string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the smartcart CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartcart",
		Short: "Explainable product discovery engine",
		Long: `SmartCart is a product discovery engine combining semantic search with
transparent linear re-ranking: every result carries its score decomposition
and a human-readable explanation.

Point it at a Postgres database via DATABASE_URL, or run without one to use
an in-memory catalog for local experiments.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("smartcart version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.smartcart/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.smartcart/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newRecommendCmd())
	cmd.AddCommand(newTrendingCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWeightsCmd())
	cmd.AddCommand(newEvaluateCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging initializes file-based logging before any command runs.
func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

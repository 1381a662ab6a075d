// Package cmd implements the skald command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaldhq/skald/internal/config"
	"github.com/skaldhq/skald/internal/observability"
	"github.com/skaldhq/skald/internal/server/handlers"
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Asynchronous audio transcription and summarization service",
	Long: `skald turns long audio recordings into transcripts and summaries.

Jobs run asynchronously: create one over the HTTP API, poll its status,
and read the result when it completes. Inputs over the provider size
ceiling are chunked, processed per chunk, and reassembled in order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if rootLogLevel != "" {
			overrides["logging"] = map[string]any{"level": rootLogLevel}
		}

		cfg, err := config.Load(cmd.Context(), rootConfigFile, overrides)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if err := observability.Init(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
			return err
		}
		return nil
	},
}

var (
	rootConfigFile string
	rootLogLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigFile, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Override log level (debug|info|warn|error)")
}

// SetVersionInfo installs the build identity injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	rootCmd.Version = version
	handlers.SetVersionInfo(handlers.VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
}

// Execute runs the CLI. Errors are printed once, here.
func Execute(ctx context.Context) {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

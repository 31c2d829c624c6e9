// Package cmd implements the csvpipe CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/threeoaks/csvpipe/internal/config"
	"github.com/threeoaks/csvpipe/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "csvpipe",
	Short: "CSV ingestion pipeline",
	Long: `csvpipe validates uploaded CSV files, converts them to JSON, and
tracks per-job status in a shared store.

The pipeline stages run as separate commands: "watch" (or a one-shot
"validate") feeds the queue, "worker" drains it, and "serve" exposes
job status over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgPath  string
	logLevel string

	cfg *config.Config
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: csvpipe.yaml discovery)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging level (debug|info|warn|error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if err := observability.InitLogger(loaded.Logging.Level, loaded.Logging.Format); err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
}

// Execute runs the CLI with SIGINT/SIGTERM wired to context cancel.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/threeoaks/csvpipe/internal/observability"
	"github.com/threeoaks/csvpipe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job status API",
	Long: `Serve the HTTP status API.

Endpoints:
  GET /jobs/{jobId}  job status record
  GET /healthz       liveness probe
  GET /version       build version

Runs until interrupted; in-flight requests get the configured shutdown
grace period.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	jobs, err := buildJobStore(ctx, cfg.Jobs)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Close() }()

	srv := server.New(cfg.Server, jobs, versionInfo.Version, observability.Logger)
	return srv.Run(ctx)
}

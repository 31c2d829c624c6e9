package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Print a job's status record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID := args[0]

	jobs, err := buildJobStore(ctx, cfg.Jobs)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Close() }()

	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return fmt.Errorf("job %s not found", jobID)
		}
		return err
	}

	encoded, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

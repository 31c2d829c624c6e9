package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/internal/observability"
	"github.com/threeoaks/csvpipe/pkg/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one uploaded CSV and enqueue it for conversion",
	Long: `Run the validator stage once for a single object, the way an
upload event would trigger it.

Example:
  csvpipe validate --bucket ingest --key uploads/orders.csv`,
	RunE: runValidate,
}

var (
	validateBucket string
	validateKey    string
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateBucket, "bucket", "", "Bucket holding the upload (required)")
	validateCmd.Flags().StringVar(&validateKey, "key", "", "Object key of the upload (required)")

	_ = validateCmd.MarkFlagRequired("bucket")
	_ = validateCmd.MarkFlagRequired("key")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.Logger

	objects, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = objects.Close() }()

	jobs, err := buildJobStore(ctx, cfg.Jobs)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Close() }()

	q, err := buildQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	validator := pipeline.NewValidator(objects, jobs, q, logger)
	key := pipeline.DecodeEventKey(validateKey)
	if err := validator.HandleUpload(ctx, validateBucket, key); err != nil {
		logger.Error("Validation failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

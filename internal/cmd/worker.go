package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/internal/observability"
	"github.com/threeoaks/csvpipe/pkg/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the converter stage against the job queue",
	Long: `Receive queued validation messages and convert each CSV to its JSON
artifact. Messages are deleted only after successful handling, so a
failed conversion is redelivered by the queue.

Runs until interrupted.`,
	RunE: runWorker,
}

var workerBatchSize int

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerBatchSize, "batch-size", 10, "Max messages per receive (1-10)")
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	converter := pipeline.NewConverter(objects, jobs, cfg.Pipeline.ProcessedPrefix, logger)

	logger.Info("Worker started")
	for {
		deliveries, err := q.Receive(ctx, workerBatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("Worker stopping")
				return nil
			}
			logger.Error("Receive failed", zap.Error(err))
			continue
		}

		for _, d := range deliveries {
			if err := converter.HandleMessage(ctx, d.Message); err != nil {
				// Leave the message for redelivery.
				logger.Error("Conversion failed", zap.String("jobId", d.Message.JobID), zap.Error(err))
				continue
			}
			if err := q.Delete(ctx, d.Receipt); err != nil {
				logger.Error("Delete failed", zap.String("jobId", d.Message.JobID), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Worker stopping")
			return nil
		default:
		}
	}
}

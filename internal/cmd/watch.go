package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threeoaks/csvpipe/internal/observability"
	"github.com/threeoaks/csvpipe/pkg/match"
	"github.com/threeoaks/csvpipe/pkg/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the uploads prefix and validate new files",
	Long: `Watch the configured bucket's uploads prefix and run the validator
for every new object that matches the include/exclude patterns. This is
the polling substitute for bucket upload notifications.

Runs until interrupted.`,
	RunE: runWatch,
}

var watchBucket string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchBucket, "bucket", "", "Bucket to watch (default: storage.bucket)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.Logger

	bucket := watchBucket
	if bucket == "" {
		bucket = cfg.Storage.Bucket
	}
	if bucket == "" {
		return fmt.Errorf("no bucket: set --bucket or storage.bucket")
	}

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

	var matcher *match.Matcher
	if len(cfg.Pipeline.Include) > 0 {
		matcher, err = match.New(match.Config{
			Includes: cfg.Pipeline.Include,
			Excludes: cfg.Pipeline.Exclude,
		})
		if err != nil {
			return fmt.Errorf("pipeline patterns: %w", err)
		}
	}

	validator := pipeline.NewValidator(objects, jobs, q, logger)
	watcher, err := pipeline.NewWatcher(objects, validator, matcher, pipeline.WatcherConfig{
		Bucket:        bucket,
		UploadsPrefix: cfg.Pipeline.UploadsPrefix,
		PollInterval:  cfg.Pipeline.PollInterval,
		ListRate:      cfg.Pipeline.ListRate,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("Watching for uploads")
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

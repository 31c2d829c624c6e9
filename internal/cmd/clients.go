package cmd

import (
	"context"
	"fmt"

	"github.com/threeoaks/csvpipe/internal/config"
	"github.com/threeoaks/csvpipe/pkg/jobstore"
	jobdynamo "github.com/threeoaks/csvpipe/pkg/jobstore/dynamo"
	jobsqlite "github.com/threeoaks/csvpipe/pkg/jobstore/sqlite"
	"github.com/threeoaks/csvpipe/pkg/queue"
	queuemem "github.com/threeoaks/csvpipe/pkg/queue/memory"
	queuesqs "github.com/threeoaks/csvpipe/pkg/queue/sqs"
	"github.com/threeoaks/csvpipe/pkg/storage"
	filestore "github.com/threeoaks/csvpipe/pkg/storage/file"
	s3store "github.com/threeoaks/csvpipe/pkg/storage/s3"
)

// buildStorage constructs the configured object storage backend.
func buildStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			ForcePathStyle: cfg.ForcePathStyle,
			Profile:        cfg.Profile,
		})
	case "file":
		return filestore.New(filestore.Config{BaseDir: cfg.BaseDir})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// buildQueue constructs the configured job queue backend.
func buildQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case "sqs":
		if cfg.URL == "" {
			return nil, fmt.Errorf("queue.url is required for the sqs backend")
		}
		return queuesqs.New(ctx, queuesqs.Config{
			URL:               cfg.URL,
			Region:            cfg.Region,
			Endpoint:          cfg.Endpoint,
			WaitTime:          cfg.WaitTime,
			VisibilityTimeout: cfg.VisibilityTimeout,
		})
	case "memory":
		return queuemem.New(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// buildJobStore constructs the configured job status store.
func buildJobStore(ctx context.Context, cfg config.JobsConfig) (jobstore.Store, error) {
	switch cfg.Backend {
	case "dynamodb":
		return jobdynamo.New(ctx, jobdynamo.Config{
			Table:    cfg.Table,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case "sqlite":
		return jobsqlite.Open(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown jobs backend %q", cfg.Backend)
	}
}

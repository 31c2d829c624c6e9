// Package pipeline implements the two processing stages of the CSV
// ingest pipeline and the upload watcher that triggers the first one.
//
// The stages never call each other: the validator hands work to the
// converter through the queue, and both communicate results through the
// shared job store. Every external handle is injected so tests can run
// the whole pipeline against local fakes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/pkg/convert"
	"github.com/threeoaks/csvpipe/pkg/jobstore"
	"github.com/threeoaks/csvpipe/pkg/queue"
	"github.com/threeoaks/csvpipe/pkg/storage"
)

// Validator is the first pipeline stage: it creates the job record,
// checks the CSV header, and enqueues structurally valid files for
// conversion.
type Validator struct {
	objects storage.Store
	jobs    jobstore.Store
	queue   queue.Queue
	logger  *zap.Logger
	now     func() time.Time
}

// NewValidator wires a validator from its collaborators.
func NewValidator(objects storage.Store, jobs jobstore.Store, q queue.Queue, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		objects: objects,
		jobs:    jobs,
		queue:   q,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock injects a clock for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// HandleUpload processes one upload event.
//
// Fetch and structural failures terminate the job as FAILED and return
// nil: re-running the stage on the same static file cannot change the
// outcome, so no retry is signalled. Store and queue failures propagate
// so the invoking infrastructure can retry the whole invocation.
func (v *Validator) HandleUpload(ctx context.Context, bucket, key string) error {
	jobID := DeriveJobID(key)
	logger := v.logger.With(
		zap.String("jobId", jobID),
		zap.String("bucket", bucket),
		zap.String("key", key),
	)
	logger.Info("Validating upload")

	// Create the record before any validation logic runs; a prior record
	// for the same filename is silently overwritten.
	job := &jobstore.Job{
		JobID:          jobID,
		Status:         jobstore.StatusValidating,
		SourceLocation: fmt.Sprintf("s3://%s/%s", bucket, key),
		StartedAt:      v.now(),
		Message:        "Validating CSV structure",
	}
	if err := v.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}

	body, _, err := v.objects.Get(ctx, bucket, key)
	if err != nil {
		logger.Error("Failed to read upload", zap.Error(err))
		return v.fail(ctx, jobID, fmt.Sprintf("Could not read file: %v", err))
	}
	defer func() { _ = body.Close() }()

	if err := convert.ValidateHeader(body); err != nil {
		if convert.IsStructural(err) {
			logger.Warn("CSV structurally invalid", zap.Error(err))
			return v.fail(ctx, jobID, fmt.Sprintf("Missing required columns: %v", err))
		}
		logger.Error("Failed to parse header", zap.Error(err))
		return v.fail(ctx, jobID, fmt.Sprintf("Could not parse CSV header: %v", err))
	}

	// Enqueue before the PENDING write: a PENDING status is only ever
	// observable once the converter can already see the message.
	msg := queue.Message{JobID: jobID, Bucket: bucket, Key: key}
	if err := v.queue.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}

	upd := jobstore.Update{
		Status:  jobstore.StatusPtr(jobstore.StatusPending),
		Message: jobstore.StringPtr("Queued for processing"),
	}
	if err := v.jobs.Update(ctx, jobID, upd); err != nil {
		return fmt.Errorf("mark job %s pending: %w", jobID, err)
	}

	logger.Info("Upload validated and queued")
	return nil
}

// fail writes the terminal FAILED transition. A failure of this write
// itself propagates: the invoker's retry is the only recovery path left.
func (v *Validator) fail(ctx context.Context, jobID, message string) error {
	upd := jobstore.Update{
		Status:     jobstore.StatusPtr(jobstore.StatusFailed),
		Message:    jobstore.StringPtr(message),
		FinishedAt: jobstore.TimePtr(v.now()),
	}
	if err := v.jobs.Update(ctx, jobID, upd); err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

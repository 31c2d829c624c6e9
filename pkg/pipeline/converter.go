package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/pkg/convert"
	"github.com/threeoaks/csvpipe/pkg/jobstore"
	"github.com/threeoaks/csvpipe/pkg/queue"
	"github.com/threeoaks/csvpipe/pkg/storage"
)

// OutputFileName is the artifact written under the job's output prefix.
const OutputFileName = "output.json"

// DefaultProcessedPrefix is where output artifacts land when no prefix
// is configured.
const DefaultProcessedPrefix = "processed/"

// Converter is the second pipeline stage: it re-derives the valid rows,
// writes the JSON artifact, and finalizes the job record.
//
// HandleMessage is safe under redelivery: conversion is deterministic,
// the output write is an idempotent overwrite, every status write
// repeats or advances the job's transition, and a message arriving
// after the job reached a terminal status is dropped.
type Converter struct {
	objects         storage.Store
	jobs            jobstore.Store
	processedPrefix string
	logger          *zap.Logger
	now             func() time.Time
}

// NewConverter wires a converter from its collaborators.
// processedPrefix defaults to DefaultProcessedPrefix when empty.
func NewConverter(objects storage.Store, jobs jobstore.Store, processedPrefix string, logger *zap.Logger) *Converter {
	if processedPrefix == "" {
		processedPrefix = DefaultProcessedPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		objects:         objects,
		jobs:            jobs,
		processedPrefix: processedPrefix,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock injects a clock for tests.
func (c *Converter) WithClock(now func() time.Time) *Converter {
	c.now = now
	return c
}

// HandleMessage processes one queue message, possibly redelivered.
//
// Fetch failures write the terminal FAILED transition and then return the
// error, so the queue's native redelivery and backoff still apply.
// Structural failures exit cleanly after the FAILED write: redelivery
// cannot change a static file's header. Store and output-write failures
// propagate unhandled.
func (c *Converter) HandleMessage(ctx context.Context, msg queue.Message) error {
	logger := c.logger.With(
		zap.String("jobId", msg.JobID),
		zap.String("bucket", msg.Bucket),
		zap.String("key", msg.Key),
	)
	logger.Info("Processing job")

	// A message redelivered after the job already finished (a lost delete,
	// a visibility-timeout race) must not regress a terminal status.
	cur, err := c.jobs.Get(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}
	if !jobstore.CanTransition(cur.Status, jobstore.StatusProcessing) {
		logger.Info("Job already finished, skipping redelivery", zap.String("status", string(cur.Status)))
		return nil
	}

	upd := jobstore.Update{
		Status:  jobstore.StatusPtr(jobstore.StatusProcessing),
		Message: jobstore.StringPtr("Converting CSV to JSON"),
	}
	if err := c.jobs.Update(ctx, msg.JobID, upd); err != nil {
		return fmt.Errorf("mark job %s processing: %w", msg.JobID, err)
	}

	body, _, err := c.objects.Get(ctx, msg.Bucket, msg.Key)
	if err != nil {
		logger.Error("Failed to read upload", zap.Error(err))
		if failErr := c.fail(ctx, msg.JobID, fmt.Sprintf("Could not read file: %v", err)); failErr != nil {
			return failErr
		}
		return fmt.Errorf("fetch %s/%s: %w", msg.Bucket, msg.Key, err)
	}
	defer func() { _ = body.Close() }()

	res, err := convert.Convert(body)
	if err != nil {
		if convert.IsStructural(err) {
			// The file changed (or was replaced) between stages.
			logger.Warn("CSV structurally invalid at conversion", zap.Error(err))
			return c.fail(ctx, msg.JobID, fmt.Sprintf("Missing required columns: %v", err))
		}
		logger.Error("Failed to convert CSV", zap.Error(err))
		if failErr := c.fail(ctx, msg.JobID, fmt.Sprintf("Could not convert file: %v", err)); failErr != nil {
			return failErr
		}
		return fmt.Errorf("convert %s/%s: %w", msg.Bucket, msg.Key, err)
	}

	// The artifact is written even for zero valid records so readers can
	// rely on its presence for every successful job.
	encoded, err := json.MarshalIndent(res.Records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output for job %s: %w", msg.JobID, err)
	}

	outputPrefix := c.processedPrefix + msg.JobID + "/"
	outputKey := outputPrefix + OutputFileName
	if err := c.objects.Put(ctx, msg.Bucket, outputKey, bytes.NewReader(encoded), int64(len(encoded)), "application/json"); err != nil {
		return fmt.Errorf("write output for job %s: %w", msg.JobID, err)
	}

	status := jobstore.StatusCompleted
	message := fmt.Sprintf("Processed %d rows", res.RowCount)
	if res.ErrorCount > 0 {
		status = jobstore.StatusCompletedWithErrors
		message = fmt.Sprintf("Processed %d rows (%d errors)", res.RowCount, res.ErrorCount)
	}

	final := jobstore.Update{
		Status:       jobstore.StatusPtr(status),
		Message:      jobstore.StringPtr(message),
		RowCount:     jobstore.IntPtr(res.RowCount),
		ErrorCount:   jobstore.IntPtr(res.ErrorCount),
		OutputPrefix: jobstore.StringPtr(outputPrefix),
		FinishedAt:   jobstore.TimePtr(c.now()),
	}
	if err := c.jobs.Update(ctx, msg.JobID, final); err != nil {
		return fmt.Errorf("finalize job %s: %w", msg.JobID, err)
	}

	logger.Info("Job completed",
		zap.String("status", string(status)),
		zap.Int("rowCount", res.RowCount),
		zap.Int("errorCount", res.ErrorCount),
	)
	return nil
}

func (c *Converter) fail(ctx context.Context, jobID, message string) error {
	upd := jobstore.Update{
		Status:     jobstore.StatusPtr(jobstore.StatusFailed),
		Message:    jobstore.StringPtr(message),
		FinishedAt: jobstore.TimePtr(c.now()),
	}
	if err := c.jobs.Update(ctx, jobID, upd); err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

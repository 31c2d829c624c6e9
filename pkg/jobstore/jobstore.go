// Package jobstore defines the job status record, its lifecycle state
// machine, and the store contract both pipeline stages use to create and
// mutate records.
//
// The record is the only shared mutable state in the pipeline. Updates are
// field-level: a stage only writes the fields relevant to its own
// transition, so concurrent or redelivered invocations cannot clobber
// unrelated fields.
package jobstore

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
//
// NOTE: These values are persisted and are part of the stable external
// contract; status readers poll them directly.
type Status string

const (
	StatusValidating          Status = "VALIDATING"
	StatusPending             Status = "PENDING"
	StatusProcessing          Status = "PROCESSING"
	StatusCompleted           Status = "COMPLETED"
	StatusCompletedWithErrors Status = "COMPLETED_WITH_ERRORS"
	StatusFailed              Status = "FAILED"
)

// statusRank orders statuses along the transition graph. Terminal states
// share the highest rank; a transition is never written "behind" the
// current status.
var statusRank = map[Status]int{
	StatusValidating:          0,
	StatusPending:             1,
	StatusProcessing:          2,
	StatusCompleted:           3,
	StatusCompletedWithErrors: 3,
	StatusFailed:              3,
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether writing to is a forward move from from.
// Re-applying the same non-terminal status (a redelivered transition) is
// allowed; leaving a terminal state is not.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Job is the persisted status record, keyed by job identifier.
//
// The jobId derives deterministically from the source file's base name;
// a re-upload of the same name silently overwrites the prior record.
type Job struct {
	JobID          string     `json:"jobId" dynamodbav:"jobId"`
	Status         Status     `json:"status" dynamodbav:"status"`
	SourceLocation string     `json:"sourceLocation,omitempty" dynamodbav:"sourceLocation,omitempty"`
	OutputPrefix   *string    `json:"outputPrefix" dynamodbav:"outputPrefix,omitempty"`
	RowCount       int        `json:"rowCount" dynamodbav:"rowCount"`
	ErrorCount     int        `json:"errorCount" dynamodbav:"errorCount"`
	StartedAt      time.Time  `json:"startedAt" dynamodbav:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt" dynamodbav:"finishedAt,omitempty"`
	Message        string     `json:"message" dynamodbav:"message"`
}

// Update names the fields a single transition writes. Nil fields are left
// untouched by the store; there is no whole-record replace after creation.
type Update struct {
	Status       *Status
	Message      *string
	RowCount     *int
	ErrorCount   *int
	OutputPrefix *string
	FinishedAt   *time.Time
}

// Empty reports whether the update names no fields.
func (u Update) Empty() bool {
	return u.Status == nil && u.Message == nil && u.RowCount == nil &&
		u.ErrorCount == nil && u.OutputPrefix == nil && u.FinishedAt == nil
}

// ErrNotFound indicates no record exists for the requested job id.
var ErrNotFound = errors.New("job not found")

// Store is the status store contract shared by both pipeline stages and
// the status reader.
type Store interface {
	// Create writes the full initial record. Creating over an existing
	// jobId overwrites it (documented duplicate-upload semantics).
	Create(ctx context.Context, job *Job) error

	// Update applies the named fields to an existing record. Fields not
	// named in upd are preserved.
	Update(ctx context.Context, jobID string, upd Update) error

	// Get returns the full record, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*Job, error)

	// Close releases any resources held by the store.
	Close() error
}

// Helpers for building Update literals without intermediate variables.

func StatusPtr(s Status) *Status     { return &s }
func StringPtr(s string) *string     { return &s }
func IntPtr(i int) *int              { return &i }
func TimePtr(t time.Time) *time.Time { return &t }

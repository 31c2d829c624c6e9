// Package queue defines the hand-off between the validator and converter
// stages.
//
// Delivery is at-least-once: a delivery that is never deleted becomes
// receivable again, so consumers must be idempotent. The converter is, by
// construction - conversion is a pure function of the source bytes and
// every status write it performs is a forward or repeated transition.
package queue

import (
	"context"
	"errors"
)

// Message is the body handed from the validator to the converter,
// serialized as {"jobId","bucket","key"}.
type Message struct {
	JobID  string `json:"jobId"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Delivery is one received message plus the receipt used to acknowledge it.
type Delivery struct {
	Message Message

	// Receipt acknowledges this specific delivery via Delete. Receipts
	// are delivery-scoped: a redelivered message carries a new receipt.
	Receipt string
}

// ErrClosed indicates the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is the stage hand-off contract.
type Queue interface {
	// Send enqueues one message.
	Send(ctx context.Context, msg Message) error

	// Receive returns up to max deliveries, blocking up to the backend's
	// wait time when the queue is empty. An empty slice with a nil error
	// means no messages were available.
	Receive(ctx context.Context, max int) ([]Delivery, error)

	// Delete acknowledges a delivery. Un-deleted deliveries are
	// redelivered after the backend's visibility timeout.
	Delete(ctx context.Context, receipt string) error

	// Close releases any resources held by the queue.
	Close() error
}

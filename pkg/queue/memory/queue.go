// Package memory implements queue.Queue in-process.
//
// It backs the local deployment mode (watcher, worker, and server in one
// process) and the pipeline tests. Redelivery semantics mirror SQS: a
// received delivery stays invisible until its visibility deadline, then
// becomes receivable again unless deleted.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threeoaks/csvpipe/pkg/queue"
)

// DefaultVisibility is the redelivery deadline for received messages.
const DefaultVisibility = 30 * time.Second

type inflight struct {
	msg      queue.Message
	deadline time.Time
}

// Queue is an in-process queue.Queue.
type Queue struct {
	mu         sync.Mutex
	ready      []queue.Message
	inflight   map[string]inflight
	visibility time.Duration
	closed     bool
	now        func() time.Time
}

var _ queue.Queue = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithVisibility sets the redelivery deadline for received messages.
func WithVisibility(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithClock injects a clock; tests use it to expire visibility deadlines.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(opts ...Option) *Queue {
	q := &Queue{
		inflight:   make(map[string]inflight),
		visibility: DefaultVisibility,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Send(ctx context.Context, msg queue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	q.ready = append(q.ready, msg)
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, queue.ErrClosed
	}

	q.reclaimExpired()

	n := max
	if n > len(q.ready) {
		n = len(q.ready)
	}

	deliveries := make([]queue.Delivery, 0, n)
	for _, msg := range q.ready[:n] {
		receipt := uuid.NewString()
		q.inflight[receipt] = inflight{msg: msg, deadline: q.now().Add(q.visibility)}
		deliveries = append(deliveries, queue.Delivery{Message: msg, Receipt: receipt})
	}
	q.ready = q.ready[n:]
	return deliveries, nil
}

func (q *Queue) Delete(ctx context.Context, receipt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	// Deleting an unknown or already-expired receipt is a no-op, as with
	// SQS receipts after redelivery.
	delete(q.inflight, receipt)
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports the number of immediately receivable messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimExpired()
	return len(q.ready)
}

// reclaimExpired moves expired inflight deliveries back to ready.
// Callers must hold mu.
func (q *Queue) reclaimExpired() {
	now := q.now()
	for receipt, fl := range q.inflight {
		if now.After(fl.deadline) {
			q.ready = append(q.ready, fl.msg)
			delete(q.inflight, receipt)
		}
	}
}

// Package queue defines the run queue contract between the API surface
// and the dispatcher's run workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Dequeue once the queue has shut down.
var ErrClosed = errors.New("queue closed")

// Job is one accepted run waiting for a worker.
type Job struct {
	// RunID is the identifier handed back to the API caller; the
	// engine, events, and persistence all reuse it.
	RunID uuid.UUID
	// Entity is the company name to analyze.
	Entity string
	// Budget optionally bounds the run's wall clock beyond the
	// engine's own phase budgets. Zero means no extra bound.
	Budget time.Duration
	// Attempt starts at 1; requeues would increment it.
	Attempt int
	// Submitted is the acceptance time in unix seconds.
	Submitted int64
}

// Queue moves jobs from the API to the run workers.
type Queue interface {
	// Enqueue adds a job, blocking until space frees or ctx ends.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue removes the next job, blocking until one arrives, ctx
	// ends, or the queue closes.
	Dequeue(ctx context.Context) (Job, error)
	// Close releases blocked Dequeue callers during shutdown.
	Close()
}

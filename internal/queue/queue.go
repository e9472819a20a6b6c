// Package queue carries job ids from the admission path to the worker pool.
// The queue holds ids only; the job record in Postgres stays the source of
// truth.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Dequeue when no job became ready within the
// blocking window.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the pull-based job feed. Implementations must be safe for
// concurrent use by many workers.
type Queue interface {
	// Enqueue makes the job id available at runAt (immediately when runAt
	// is in the past).
	Enqueue(ctx context.Context, jobID string, runAt time.Time) error
	// Dequeue blocks up to the given duration for the next ready job id and
	// returns ErrEmpty on timeout.
	Dequeue(ctx context.Context, block time.Duration) (string, error)
	// MoveDue promotes delayed jobs whose time has come into the ready
	// queue. Callers run it on a ticker.
	MoveDue(ctx context.Context, now time.Time, batch int64) error
}

package domain

import (
	"context"
	"time"
)

// StatusUpdate carries the optional field changes applied together with a
// status transition.
type StatusUpdate struct {
	Error       *JobError
	Output      []Artifact
	// ClearError drops the error recorded by an earlier attempt. Set on
	// the transition to completed so a job that recovered after retries
	// does not keep reporting the failure it outlived.
	ClearError  bool
	RetryCount  *int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// JobFilter narrows List queries. Zero values mean "any". Results are sorted
// most recent first.
type JobFilter struct {
	TenantID string
	UserID   string
	Status   JobStatus
	Module   JobModule
	Limit    int
}

// JobRepository defines persistence for job records.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// TransitionStatus atomically moves a job from one of the expected
	// statuses to the target status, applying update in the same write.
	// It returns ErrConcurrentModification when the job is no longer in an
	// expected status, which is how duplicate workers lose ownership races.
	TransitionStatus(ctx context.Context, jobID string, expect []JobStatus, to JobStatus, update StatusUpdate) (*Job, error)
	List(ctx context.Context, filter JobFilter) ([]Job, error)
	// ListNonTerminal returns every job still in flight, oldest first. Used
	// by the maintenance sweep.
	ListNonTerminal(ctx context.Context) ([]Job, error)
}

// LedgerStore persists credit balances and the transaction log. Debit and
// Credit must each apply the balance mutation and the ledger entry
// atomically, and reject a second entry for the same (job, reason) pair with
// ErrDuplicateOperation.
type LedgerStore interface {
	Balance(ctx context.Context, tenantID string) (int64, error)
	// Debit decrements the balance only if funds cover tx.Amount (which is
	// negative); otherwise it returns ErrInsufficientCredits and writes
	// nothing.
	Debit(ctx context.Context, tx CreditTransaction) error
	Credit(ctx context.Context, tx CreditTransaction) error
	JobTransactions(ctx context.Context, jobID string) ([]CreditTransaction, error)
	ListTransactions(ctx context.Context, tenantID string, limit int) ([]CreditTransaction, error)
}

// TenantRepository exposes read-only tenant lookups for the admission path.
type TenantRepository interface {
	GetByID(ctx context.Context, tenantID string) (*Tenant, error)
}

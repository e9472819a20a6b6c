package domain

import "time"

// TransactionReason classifies a ledger entry.
type TransactionReason string

const (
	ReasonDebitForJob      TransactionReason = "debit_for_job"
	ReasonRefundForJob     TransactionReason = "refund_for_job"
	ReasonPlanGrant        TransactionReason = "plan_grant"
	ReasonManualAdjustment TransactionReason = "manual_adjustment"
)

// CreditTransaction is an immutable ledger entry. Amount is signed: debits
// are negative, grants and refunds positive. The materialized tenant balance
// is updated transactionally with each entry.
type CreditTransaction struct {
	ID       string
	TenantID string
	Amount   int64
	Reason   TransactionReason
	// JobID relates the entry to the job that caused it; empty for grants
	// and manual adjustments. At most one entry exists per (job, reason).
	JobID     string
	Note      string
	CreatedAt time.Time
}

// Package ledger owns tenant credit balances. Every mutation is an immutable
// transaction plus a materialized balance update, applied atomically by the
// backing store. Reserve, Finalize and Refund are keyed by job id so a
// crash-and-retry of the caller cannot double-apply any of them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// Ledger serializes balance mutations per tenant and enforces the
// reservation semantics on top of a LedgerStore. The per-tenant lock covers
// only the balance mutation itself; callers must never hold it across a
// provider round-trip, and the API here makes that impossible.
type Ledger struct {
	store  domain.LedgerStore
	logger zerolog.Logger

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// New constructs a Ledger over the given store.
func New(store domain.LedgerStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		logger:  logger,
		tenants: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) tenantLock(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		l.tenants[tenantID] = lock
	}
	return lock
}

// Reserve provisionally debits amount credits from the tenant for the given
// job. Insufficient funds surface as domain.ErrInsufficientCredits, a normal
// business outcome. Reserving the same job twice is a no-op.
func (l *Ledger) Reserve(ctx context.Context, tenantID string, amount int64, jobID string) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive: %w", domain.ErrInvalidInput)
	}
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	err := l.store.Debit(ctx, domain.CreditTransaction{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Amount:    -amount,
		Reason:    domain.ReasonDebitForJob,
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrDuplicateOperation) {
		// Already reserved by an earlier attempt of the same admission.
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.Info().Str("tenant_id", tenantID).Str("job_id", jobID).Int64("amount", amount).Msg("ledger: reserved")
	return nil
}

// Finalize converts a reservation into a realized charge. The debit entry
// already carries the full effect, so this only records the outcome; calling
// it twice is harmless.
func (l *Ledger) Finalize(ctx context.Context, tenantID, jobID string) error {
	l.logger.Info().Str("tenant_id", tenantID).Str("job_id", jobID).Msg("ledger: finalized")
	return nil
}

// Refund returns the reserved amount for a job. Refunding a job that was
// never reserved, or that has already been refunded, is a no-op rather than
// a double credit.
func (l *Ledger) Refund(ctx context.Context, tenantID string, amount int64, jobID, note string) error {
	if amount <= 0 {
		return nil
	}
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.store.JobTransactions(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job transactions: %w", err)
	}
	var reserved bool
	for _, tx := range existing {
		switch tx.Reason {
		case domain.ReasonRefundForJob:
			return nil
		case domain.ReasonDebitForJob:
			reserved = true
		}
	}
	if !reserved {
		return nil
	}

	err = l.store.Credit(ctx, domain.CreditTransaction{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Amount:    amount,
		Reason:    domain.ReasonRefundForJob,
		JobID:     jobID,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrDuplicateOperation) {
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.Info().Str("tenant_id", tenantID).Str("job_id", jobID).Int64("amount", amount).Msg("ledger: refunded")
	return nil
}

// Grant credits the tenant outside any job, for plan renewals and manual
// top-ups.
func (l *Ledger) Grant(ctx context.Context, tenantID string, amount int64, reason domain.TransactionReason, note string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive: %w", domain.ErrInvalidInput)
	}
	switch reason {
	case domain.ReasonPlanGrant, domain.ReasonManualAdjustment:
	default:
		return fmt.Errorf("grant reason %q: %w", reason, domain.ErrInvalidInput)
	}
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.Credit(ctx, domain.CreditTransaction{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Amount:    amount,
		Reason:    reason,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	l.logger.Info().Str("tenant_id", tenantID).Int64("amount", amount).Str("reason", string(reason)).Msg("ledger: granted")
	return nil
}

// Balance returns the tenant's current credit balance.
func (l *Ledger) Balance(ctx context.Context, tenantID string) (int64, error) {
	return l.store.Balance(ctx, tenantID)
}

// Transactions returns the tenant's most recent ledger entries.
func (l *Ledger) Transactions(ctx context.Context, tenantID string, limit int) ([]domain.CreditTransaction, error) {
	return l.store.ListTransactions(ctx, tenantID, limit)
}

package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

const pgUniqueViolation = "23505"

// LedgerStorePG implements domain.LedgerStore on PostgreSQL. The balance row
// and the transaction entry are written inside one database transaction, and
// a partial unique index on (job_id, reason) turns a crash-and-retry of any
// job-keyed mutation into ErrDuplicateOperation.
type LedgerStorePG struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a ledger store backed by PostgreSQL.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStorePG {
	return &LedgerStorePG{pool: pool}
}

// Balance implements domain.LedgerStore.
func (s *LedgerStorePG) Balance(ctx context.Context, tenantID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE tenant_id = $1;`, tenantID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit implements domain.LedgerStore. The conditional decrement and the
// ledger insert run as one transaction; zero updated rows means the funds
// check failed at decrement time.
func (s *LedgerStorePG) Debit(ctx context.Context, tx domain.CreditTransaction) error {
	if tx.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative: %w", domain.ErrInvalidInput)
	}
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx)

	tag, err := dbtx.Exec(ctx, `
UPDATE credit_balances
SET balance = balance + $2, updated_at = NOW()
WHERE tenant_id = $1 AND balance + $2 >= 0;
`, tx.TenantID, tx.Amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientCredits
	}
	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		return err
	}
	return dbtx.Commit(ctx)
}

// Credit implements domain.LedgerStore.
func (s *LedgerStorePG) Credit(ctx context.Context, tx domain.CreditTransaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("credit amount must be positive: %w", domain.ErrInvalidInput)
	}
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx)

	_, err = dbtx.Exec(ctx, `
INSERT INTO credit_balances (tenant_id, balance, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (tenant_id) DO UPDATE SET balance = credit_balances.balance + $2, updated_at = NOW();
`, tx.TenantID, tx.Amount)
	if err != nil {
		return err
	}
	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		return err
	}
	return dbtx.Commit(ctx)
}

func insertTransaction(ctx context.Context, dbtx pgx.Tx, tx domain.CreditTransaction) error {
	_, err := dbtx.Exec(ctx, `
INSERT INTO credit_transactions (id, tenant_id, amount, reason, job_id, note, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7);
`, tx.ID, tx.TenantID, tx.Amount, tx.Reason, tx.JobID, tx.Note, tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateOperation
		}
		return err
	}
	return nil
}

// JobTransactions implements domain.LedgerStore.
func (s *LedgerStorePG) JobTransactions(ctx context.Context, jobID string) ([]domain.CreditTransaction, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, amount, reason, COALESCE(job_id, ''), note, created_at
FROM credit_transactions
WHERE job_id = $1
ORDER BY created_at ASC;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListTransactions implements domain.LedgerStore.
func (s *LedgerStorePG) ListTransactions(ctx context.Context, tenantID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, amount, reason, COALESCE(job_id, ''), note, created_at
FROM credit_transactions
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2;`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.CreditTransaction, error) {
	var out []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.Amount, &tx.Reason, &tx.JobID, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

var _ domain.LedgerStore = (*LedgerStorePG)(nil)

package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// MemoryStore is an in-process LedgerStore. It backs tests and keyless
// development environments where Postgres is not available.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []domain.CreditTransaction
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int64)}
}

// Balance implements domain.LedgerStore.
func (s *MemoryStore) Balance(ctx context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[tenantID], nil
}

// Debit implements domain.LedgerStore. The funds check and decrement happen
// under one lock, matching the conditional-decrement guarantee of the SQL
// store.
func (s *MemoryStore) Debit(ctx context.Context, tx domain.CreditTransaction) error {
	if tx.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicateLocked(tx) {
		return domain.ErrDuplicateOperation
	}
	if s.balances[tx.TenantID]+tx.Amount < 0 {
		return domain.ErrInsufficientCredits
	}
	s.balances[tx.TenantID] += tx.Amount
	s.entries = append(s.entries, tx)
	return nil
}

// Credit implements domain.LedgerStore.
func (s *MemoryStore) Credit(ctx context.Context, tx domain.CreditTransaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("credit amount must be positive: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicateLocked(tx) {
		return domain.ErrDuplicateOperation
	}
	s.balances[tx.TenantID] += tx.Amount
	s.entries = append(s.entries, tx)
	return nil
}

func (s *MemoryStore) duplicateLocked(tx domain.CreditTransaction) bool {
	if tx.JobID == "" {
		return false
	}
	for _, e := range s.entries {
		if e.JobID == tx.JobID && e.Reason == tx.Reason {
			return true
		}
	}
	return false
}

// JobTransactions implements domain.LedgerStore.
func (s *MemoryStore) JobTransactions(ctx context.Context, jobID string) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CreditTransaction
	for _, e := range s.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListTransactions implements domain.LedgerStore.
func (s *MemoryStore) ListTransactions(ctx context.Context, tenantID string, limit int) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CreditTransaction
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.LedgerStore = (*MemoryStore)(nil)

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

func newTestLedger() (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	return New(store, zerolog.Nop()), store
}

func mustGrant(t *testing.T, l *Ledger, tenantID string, amount int64) {
	t.Helper()
	if err := l.Grant(context.Background(), tenantID, amount, domain.ReasonPlanGrant, "test grant"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
}

func balance(t *testing.T, l *Ledger, tenantID string) int64 {
	t.Helper()
	got, err := l.Balance(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return got
}

func TestReserveDebitsBalance(t *testing.T) {
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 100)

	if err := l.Reserve(context.Background(), "t1", 10, "job-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := balance(t, l, "t1"); got != 90 {
		t.Fatalf("balance after reserve: got %d want 90", got)
	}
}

func TestReserveInsufficientCredits(t *testing.T) {
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 5)

	err := l.Reserve(context.Background(), "t1", 10, "job-1")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if got := balance(t, l, "t1"); got != 5 {
		t.Fatalf("balance must be untouched: got %d want 5", got)
	}
}

func TestReserveIsIdempotentPerJob(t *testing.T) {
	l, store := newTestLedger()
	mustGrant(t, l, "t1", 100)

	for i := 0; i < 3; i++ {
		if err := l.Reserve(context.Background(), "t1", 10, "job-1"); err != nil {
			t.Fatalf("Reserve attempt %d: %v", i, err)
		}
	}
	if got := balance(t, l, "t1"); got != 90 {
		t.Fatalf("balance after repeated reserve: got %d want 90", got)
	}
	entries, err := store.JobTransactions(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("JobTransactions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
}

func TestRefundIsIdempotent(t *testing.T) {
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 100)
	if err := l.Reserve(context.Background(), "t1", 10, "job-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := l.Refund(context.Background(), "t1", 10, "job-1", "provider failure"); err != nil {
			t.Fatalf("Refund attempt %d: %v", i, err)
		}
	}
	if got := balance(t, l, "t1"); got != 100 {
		t.Fatalf("balance after double refund: got %d want 100", got)
	}
}

func TestRefundWithoutReservationIsNoop(t *testing.T) {
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 100)

	if err := l.Refund(context.Background(), "t1", 10, "job-never-reserved", "stale retry"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := balance(t, l, "t1"); got != 100 {
		t.Fatalf("balance after noop refund: got %d want 100", got)
	}
}

func TestFinalizeThenRefundStillRefunds(t *testing.T) {
	// Finalize records the realized charge; operator recovery may still
	// refund a job that later gets force-cancelled, so Finalize must not
	// block Refund.
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 100)
	if err := l.Reserve(context.Background(), "t1", 10, "job-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := l.Finalize(context.Background(), "t1", "job-1"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := l.Refund(context.Background(), "t1", 10, "job-1", "operator recovery"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := balance(t, l, "t1"); got != 100 {
		t.Fatalf("balance: got %d want 100", got)
	}
}

func TestConcurrentReservesNeverGoNegative(t *testing.T) {
	l, _ := newTestLedger()
	mustGrant(t, l, "t1", 100)

	const workers = 50
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := l.Reserve(context.Background(), "t1", 10, jobID(n))
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInsufficientCredits) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("admitted %d reserves, want 10", admitted)
	}
	if got := balance(t, l, "t1"); got != 0 {
		t.Fatalf("final balance: got %d want 0", got)
	}
}

func TestGrantRejectsJobReasons(t *testing.T) {
	l, _ := newTestLedger()
	err := l.Grant(context.Background(), "t1", 10, domain.ReasonRefundForJob, "bad")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func jobID(n int) string {
	return fmt.Sprintf("job-%03d", n)
}

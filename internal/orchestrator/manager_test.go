package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/queue"
	"github.com/hadiwinata/mediaforge/internal/retry"
)

type testEnv struct {
	jobs        *repo.MemoryJobs
	tenants     *repo.MemoryTenants
	ledger      *ledger.Ledger
	queue       *queue.Memory
	maintenance *gate.MaintenanceController
	manager     *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jobs := repo.NewMemoryJobs()
	tenants := repo.NewMemoryTenants(domain.Tenant{
		ID:     "t1",
		Name:   "Acme",
		Status: domain.TenantActive,
		PlanID: domain.PlanTeam,
	})
	led := ledger.New(ledger.NewMemoryStore(), zerolog.Nop())
	q := queue.NewMemory()
	maintenance := gate.NewMaintenanceController(gate.MaintenanceState{})
	g := gate.New(maintenance, nil)
	policy := retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	manager := NewManager(jobs, tenants, led, q, g, policy, zerolog.Nop())
	return &testEnv{jobs: jobs, tenants: tenants, ledger: led, queue: q, maintenance: maintenance, manager: manager}
}

func (e *testEnv) grant(t *testing.T, tenantID string, amount int64) {
	t.Helper()
	if err := e.ledger.Grant(context.Background(), tenantID, amount, domain.ReasonPlanGrant, "seed"); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func (e *testEnv) balance(t *testing.T, tenantID string) int64 {
	t.Helper()
	got, err := e.ledger.Balance(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return got
}

func (e *testEnv) submit(t *testing.T, module domain.JobModule) *domain.Job {
	t.Helper()
	job, err := e.manager.Submit(context.Background(), SubmitRequest{
		TenantID: "t1",
		UserID:   "u1",
		Module:   module,
		Input:    domain.JobInput{Prompt: "a red bicycle"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return job
}

func TestSubmitReservesCreditsAndQueues(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)

	job := env.submit(t, domain.ModuleTextToImage)

	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status: got %s want queued", job.Status)
	}
	if job.CreditsUsed != 10 {
		t.Fatalf("credits used: got %d want 10", job.CreditsUsed)
	}
	if got := env.balance(t, "t1"); got != 90 {
		t.Fatalf("balance: got %d want 90", got)
	}

	queued, err := env.queue.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if queued != job.ID {
		t.Fatalf("queued id: got %s want %s", queued, job.ID)
	}
}

func TestSubmitInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 5)

	_, err := env.manager.Submit(context.Background(), SubmitRequest{
		TenantID: "t1",
		UserID:   "u1",
		Module:   domain.ModuleTextToImage,
	})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if got := env.balance(t, "t1"); got != 5 {
		t.Fatalf("balance must be untouched: got %d want 5", got)
	}
	listed, err := env.jobs.List(context.Background(), domain.JobFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("no job row may survive a denied admission, got %d", len(listed))
	}
}

func TestSubmitDeniedDuringMaintenance(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	env.maintenance.Set(gate.MaintenanceState{Enabled: true, Message: "upgrade"})

	_, err := env.manager.Submit(context.Background(), SubmitRequest{
		TenantID: "t1",
		UserID:   "u1",
		Module:   domain.ModuleTextToImage,
	})
	if !errors.Is(err, domain.ErrAdmissionDenied) {
		t.Fatalf("expected ErrAdmissionDenied, got %v", err)
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance must be untouched: got %d want 100", got)
	}
}

func TestSubmitUnknownModule(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Submit(context.Background(), SubmitRequest{
		TenantID: "t1",
		Module:   domain.JobModule("telepathy"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCancelRefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	job := env.submit(t, domain.ModuleTextToImage)

	cancelled, err := env.manager.Cancel(context.Background(), job.ID, CodeCancelled, "user request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.JobStatusCancelled {
		t.Fatalf("status: got %s want cancelled", cancelled.Status)
	}
	if cancelled.Error == nil || cancelled.Error.Code != CodeCancelled {
		t.Fatalf("cancelled job must carry an error reason, got %+v", cancelled.Error)
	}
	if cancelled.CompletedAt == nil {
		t.Fatalf("terminal job must have completedAt")
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance after cancel: got %d want 100", got)
	}

	// Cancelling a terminal job is rejected and does not double-refund.
	if _, err := env.manager.Cancel(context.Background(), job.ID, CodeCancelled, "again"); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance after repeated cancel: got %d want 100", got)
	}
}

func TestBeginAttemptClaimsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	job := env.submit(t, domain.ModuleTextToImage)

	claimed, err := env.manager.BeginAttempt(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed.Status != domain.JobStatusProcessing {
		t.Fatalf("status: got %s want processing", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatalf("startedAt must be set on first processing transition")
	}

	if _, err := env.manager.BeginAttempt(context.Background(), job.ID); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("second claim must lose, got %v", err)
	}
}

func TestBeginAttemptFromRetryingIncrementsCount(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	job := env.submit(t, domain.ModuleTextToImage)

	first, err := env.manager.BeginAttempt(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	startedAt := *first.StartedAt

	if _, err := env.jobs.TransitionStatus(context.Background(), job.ID,
		[]domain.JobStatus{domain.JobStatusProcessing}, domain.JobStatusRetrying, domain.StatusUpdate{}); err != nil {
		t.Fatalf("force retrying: %v", err)
	}

	second, err := env.manager.BeginAttempt(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if second.RetryCount != 1 {
		t.Fatalf("retry count: got %d want 1", second.RetryCount)
	}
	if !second.StartedAt.Equal(startedAt) {
		t.Fatalf("startedAt must be set on the first attempt only")
	}
}

func TestForceCancelAllMaintenanceSweep(t *testing.T) {
	env := newTestEnv(t)
	env.tenants.Put(domain.Tenant{ID: "t2", Status: domain.TenantActive, PlanID: domain.PlanTeam})
	env.grant(t, "t1", 100)
	env.grant(t, "t2", 100)

	jobA := env.submit(t, domain.ModuleTextToImage) // 10 credits
	jobB := env.submit(t, domain.ModuleTextToVideo) // 50 credits
	jobC, err := env.manager.Submit(context.Background(), SubmitRequest{
		TenantID: "t2", UserID: "u2", Module: domain.ModuleTextToAudio, // 15 credits
	})
	if err != nil {
		t.Fatalf("submit t2: %v", err)
	}
	// One of them is already mid-flight.
	if _, err := env.manager.BeginAttempt(context.Background(), jobB.ID); err != nil {
		t.Fatalf("claim jobB: %v", err)
	}

	count, err := env.manager.ForceCancelAll(context.Background(), CodeMaintenanceMode, "maintenance window")
	if err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	if count != 3 {
		t.Fatalf("cancelled count: got %d want 3", count)
	}

	for _, id := range []string{jobA.ID, jobB.ID, jobC.ID} {
		job, err := env.jobs.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if job.Status != domain.JobStatusCancelled {
			t.Fatalf("job %s status: got %s want cancelled", id, job.Status)
		}
		if job.Error == nil || job.Error.Code != CodeMaintenanceMode {
			t.Fatalf("job %s must carry MAINTENANCE_MODE, got %+v", id, job.Error)
		}
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("t1 balance after sweep: got %d want 100", got)
	}
	if got := env.balance(t, "t2"); got != 100 {
		t.Fatalf("t2 balance after sweep: got %d want 100", got)
	}
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 1000)
	env.submit(t, domain.ModuleTextToImage)
	env.submit(t, domain.ModuleTextToVideo)

	byModule, err := env.manager.List(context.Background(), domain.JobFilter{TenantID: "t1", Module: domain.ModuleTextToVideo})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byModule) != 1 || byModule[0].Module != domain.ModuleTextToVideo {
		t.Fatalf("module filter returned %d jobs", len(byModule))
	}
	byStatus, err := env.manager.List(context.Background(), domain.JobFilter{Status: domain.JobStatusQueued})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byStatus) != 2 {
		t.Fatalf("status filter returned %d jobs, want 2", len(byStatus))
	}
}

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/provider"
)

// stubGateway scripts one error per Await call (nil meaning success) and
// counts dispatches. onAwait runs before each Await resolves, letting tests
// interleave a cancel with an in-flight provider call.
type stubGateway struct {
	mu        sync.Mutex
	awaitErrs []error
	dispatches int
	awaits     int
	onAwait    func(job *domain.Job)
	lastJob    *domain.Job
}

func (s *stubGateway) Dispatch(ctx context.Context, job *domain.Job) (provider.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatches++
	s.lastJob = job
	return provider.Receipt{TaskID: "task-" + job.ID, Provider: "stub"}, nil
}

func (s *stubGateway) Await(ctx context.Context, receipt provider.Receipt) (provider.Result, error) {
	s.mu.Lock()
	job := s.lastJob
	var err error
	if s.awaits < len(s.awaitErrs) {
		err = s.awaitErrs[s.awaits]
	}
	s.awaits++
	hook := s.onAwait
	s.mu.Unlock()

	if hook != nil {
		hook(job)
	}
	if err != nil {
		return provider.Result{}, err
	}
	return provider.Result{Artifacts: []domain.Artifact{{
		Kind:     domain.ArtifactImage,
		Location: "generated/" + receipt.TaskID + "/image-01.png",
		Provider: receipt.Provider,
	}}}, nil
}

func (s *stubGateway) dispatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatches
}

func runWorker(t *testing.T, env *testEnv, gw provider.Gateway) context.CancelFunc {
	t.Helper()
	registry := provider.NewRegistry(nil, gw)
	worker := NewWorker(env.manager, env.queue, registry, zerolog.Nop(), WorkerOptions{
		Concurrency:  2,
		DequeueBlock: 10 * time.Millisecond,
		MoveDueEvery: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitForStatus(t *testing.T, env *testEnv, jobID string, want domain.JobStatus) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := env.jobs.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := env.jobs.GetByID(context.Background(), jobID)
	t.Fatalf("job %s never reached %s, last status %s", jobID, want, job.Status)
	return nil
}

func TestWorkerCompletesJobAndFinalizesCharge(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	gw := &stubGateway{}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	done := waitForStatus(t, env, job.ID, domain.JobStatusCompleted)

	if len(done.Output) != 1 {
		t.Fatalf("artifacts: got %d want 1", len(done.Output))
	}
	if done.CompletedAt == nil || done.StartedAt == nil {
		t.Fatalf("timestamps missing: %+v", done)
	}
	// Success keeps the debit: balance stays at 90.
	if got := env.balance(t, "t1"); got != 90 {
		t.Fatalf("balance: got %d want 90", got)
	}
}

func TestWorkerRetriesRateLimitedThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	gw := &stubGateway{awaitErrs: []error{
		&provider.Error{Kind: provider.KindRateLimited, Message: "slow down"},
		&provider.Error{Kind: provider.KindRateLimited, Message: "slow down"},
		nil,
	}}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	done := waitForStatus(t, env, job.ID, domain.JobStatusCompleted)

	if done.RetryCount != 2 {
		t.Fatalf("retry count: got %d want 2", done.RetryCount)
	}
	// The rate_limited errors from the failed attempts must not survive on
	// the completed job.
	if done.Error != nil {
		t.Fatalf("completed job still carries error %+v", done.Error)
	}
	if gw.dispatchCount() != 3 {
		t.Fatalf("dispatches: got %d want 3", gw.dispatchCount())
	}
	// Debited exactly once across all attempts.
	if got := env.balance(t, "t1"); got != 90 {
		t.Fatalf("balance: got %d want 90", got)
	}
}

func TestWorkerNonRetryableFailureRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	gw := &stubGateway{awaitErrs: []error{
		&provider.Error{Kind: provider.KindInvalidRequest, Code: "bad_prompt", Message: "prompt rejected"},
	}}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	done := waitForStatus(t, env, job.ID, domain.JobStatusFailed)

	if done.Error == nil || done.Error.Code != string(provider.KindInvalidRequest) {
		t.Fatalf("failed job error: %+v", done.Error)
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance after refund: got %d want 100", got)
	}
}

func TestWorkerExhaustsRetryBudget(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	rateLimited := &provider.Error{Kind: provider.KindRateLimited, Message: "throttled"}
	// text_to_image allows 3 retries; every attempt fails.
	gw := &stubGateway{awaitErrs: []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited}}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	done := waitForStatus(t, env, job.ID, domain.JobStatusFailed)

	if done.RetryCount != done.MaxRetries {
		t.Fatalf("retry count: got %d want %d", done.RetryCount, done.MaxRetries)
	}
	if done.Error == nil || done.Error.Code != CodeRetryBudgetExhausted {
		t.Fatalf("expected RETRY_BUDGET_EXHAUSTED, got %+v", done.Error)
	}
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance after refund: got %d want 100", got)
	}
}

func TestWorkerDiscardsResultOfCancelledJob(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	gw := &stubGateway{}
	gw.onAwait = func(job *domain.Job) {
		// Cancel while the provider call is in flight; the call itself
		// cannot be aborted and still returns a result.
		if _, err := env.manager.Cancel(context.Background(), job.ID, CodeCancelled, "user cancelled"); err != nil {
			t.Errorf("cancel during await: %v", err)
		}
	}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	done := waitForStatus(t, env, job.ID, domain.JobStatusCancelled)

	// Refund stands, no finalize, and the late result is discarded.
	if got := env.balance(t, "t1"); got != 100 {
		t.Fatalf("balance: got %d want 100", got)
	}
	if len(done.Output) != 0 {
		t.Fatalf("cancelled job must not keep discarded output")
	}

	// Give the worker a moment; the job must stay cancelled.
	time.Sleep(50 * time.Millisecond)
	final, err := env.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != domain.JobStatusCancelled {
		t.Fatalf("status drifted to %s", final.Status)
	}
}

func TestWorkerDuplicateDeliveryDispatchesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "t1", 100)
	gw := &stubGateway{}
	runWorker(t, env, gw)

	job := env.submit(t, domain.ModuleTextToImage)
	// Simulate an at-least-once queue delivering the id twice.
	if err := env.queue.Enqueue(context.Background(), job.ID, time.Time{}); err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}

	waitForStatus(t, env, job.ID, domain.JobStatusCompleted)
	time.Sleep(50 * time.Millisecond)

	if gw.dispatchCount() != 1 {
		t.Fatalf("dispatches: got %d want 1 (no double-dispatch)", gw.dispatchCount())
	}
	if got := env.balance(t, "t1"); got != 90 {
		t.Fatalf("balance: got %d want 90", got)
	}
}

// Package orchestrator drives a job from admission to a terminal state,
// coordinating the tenant gate, the credit ledger, the queue and the
// provider gateways.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/provider"
	"github.com/hadiwinata/mediaforge/internal/queue"
	"github.com/hadiwinata/mediaforge/internal/retry"
)

// Error codes attached to terminal jobs.
const (
	CodeMaintenanceMode      = "MAINTENANCE_MODE"
	CodeCancelled            = "CANCELLED"
	CodeEnqueueFailed        = "ENQUEUE_FAILED"
	CodeRetryBudgetExhausted = "RETRY_BUDGET_EXHAUSTED"
)

// Manager owns every job state transition and the ledger effects attached to
// them. Workers and the admin surface both go through it so refunds are
// never applied outside the ledger's idempotent path.
type Manager struct {
	jobs    domain.JobRepository
	tenants domain.TenantRepository
	ledger  *ledger.Ledger
	queue   queue.Queue
	gate    *gate.Gate
	policy  retry.Policy
	logger  zerolog.Logger
}

// NewManager wires the orchestration core.
func NewManager(
	jobs domain.JobRepository,
	tenants domain.TenantRepository,
	led *ledger.Ledger,
	q queue.Queue,
	g *gate.Gate,
	policy retry.Policy,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		jobs:    jobs,
		tenants: tenants,
		ledger:  led,
		queue:   q,
		gate:    g,
		policy:  policy,
		logger:  logger,
	}
}

// SubmitRequest is an admission request for one generation job.
type SubmitRequest struct {
	TenantID   string
	UserID     string
	Module     domain.JobModule
	Input      domain.JobInput
	SuperAdmin bool
}

// Submit runs the admission pipeline: gate, credit reservation, job record,
// enqueue. AdmissionDenied and InsufficientCredits surface synchronously and
// are never retried.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if !req.Module.Valid() {
		return nil, fmt.Errorf("unknown module %q: %w", req.Module, domain.ErrInvalidInput)
	}
	tenant, err := m.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if err := m.gate.Admit(tenant, req.Module.Feature(), gate.Options{SuperAdmin: req.SuperAdmin}); err != nil {
		return nil, err
	}

	plan := domain.LookupPlan(tenant.PlanID)
	cost := plan.CostFor(req.Module)
	jobID := uuid.NewString()

	if err := m.ledger.Reserve(ctx, tenant.ID, cost, jobID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          jobID,
		TenantID:    tenant.ID,
		UserID:      req.UserID,
		Module:      req.Module,
		Status:      domain.JobStatusQueued,
		Input:       req.Input,
		CreditsUsed: cost,
		MaxRetries:  plan.RetriesFor(req.Module),
		QueuedAt:    now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		// Roll the reservation back; admission did not happen.
		if rerr := m.ledger.Refund(ctx, tenant.ID, cost, jobID, "admission rollback"); rerr != nil {
			m.logger.Error().Err(rerr).Str("job_id", jobID).Msg("orchestrator: admission rollback refund failed")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.queue.Enqueue(ctx, jobID, now); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: enqueue failed")
		if _, cerr := m.Cancel(ctx, jobID, CodeEnqueueFailed, "job could not be queued"); cerr != nil {
			m.logger.Error().Err(cerr).Str("job_id", jobID).Msg("orchestrator: enqueue rollback failed")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("tenant_id", tenant.ID).
		Str("module", string(req.Module)).
		Int64("credits", cost).
		Msg("orchestrator: job admitted")
	return job, nil
}

// Get returns a job by id.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.jobs.GetByID(ctx, jobID)
}

// List returns jobs matching the filter, most recent first.
func (m *Manager) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	return m.jobs.List(ctx, filter)
}

// Cancel transitions a non-terminal job to cancelled and refunds its
// reservation. Cancelling an already terminal job returns
// domain.ErrConcurrentModification. The refund is idempotent, so repeating a
// cancel after a crash cannot double-credit.
func (m *Manager) Cancel(ctx context.Context, jobID, code, message string) (*domain.Job, error) {
	now := time.Now().UTC()
	job, err := m.jobs.TransitionStatus(ctx, jobID, domain.NonTerminalStatuses, domain.JobStatusCancelled, domain.StatusUpdate{
		Error:       &domain.JobError{Code: code, Message: message, At: now},
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	if err := m.ledger.Refund(ctx, job.TenantID, job.CreditsUsed, job.ID, message); err != nil {
		return nil, fmt.Errorf("refund cancelled job: %w", err)
	}
	m.logger.Info().Str("job_id", jobID).Str("code", code).Msg("orchestrator: job cancelled")
	return job, nil
}

// ForceCancelAll bulk-cancels every non-terminal job with the given error
// code, refunding each tenant by that job's reserved amount. It is the
// maintenance-mode sweep and the operator recovery path.
func (m *Manager) ForceCancelAll(ctx context.Context, code, message string) (int, error) {
	jobs, err := m.jobs.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal jobs: %w", err)
	}
	cancelled := 0
	for _, job := range jobs {
		if _, err := m.Cancel(ctx, job.ID, code, message); err != nil {
			// A worker finishing the job concurrently is fine; anything
			// else is reported after the sweep completes.
			if errors.Is(err, domain.ErrConcurrentModification) {
				continue
			}
			return cancelled, fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
		cancelled++
	}
	m.logger.Info().Int("count", cancelled).Str("code", code).Msg("orchestrator: bulk cancel complete")
	return cancelled, nil
}

// BeginAttempt claims the job for the calling worker by compare-and-swapping
// its status to processing. Losing the race (another worker owns it, or the
// job was cancelled) surfaces as domain.ErrConcurrentModification and the
// caller walks away.
func (m *Manager) BeginAttempt(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	update := domain.StatusUpdate{}
	switch job.Status {
	case domain.JobStatusQueued:
		if job.StartedAt == nil {
			now := time.Now().UTC()
			update.StartedAt = &now
		}
	case domain.JobStatusRetrying:
		next := job.RetryCount + 1
		update.RetryCount = &next
	default:
		return nil, domain.ErrConcurrentModification
	}

	return m.jobs.TransitionStatus(ctx, jobID, []domain.JobStatus{job.Status}, domain.JobStatusProcessing, update)
}

// Complete records a successful provider result and finalizes the charge.
// When the CAS fails because the job was cancelled mid-flight, the result is
// discarded with no ledger effect and ErrConcurrentModification is returned.
func (m *Manager) Complete(ctx context.Context, jobID string, artifacts []domain.Artifact) (*domain.Job, error) {
	now := time.Now().UTC()
	job, err := m.jobs.TransitionStatus(ctx, jobID, []domain.JobStatus{domain.JobStatusProcessing}, domain.JobStatusCompleted, domain.StatusUpdate{
		Output:      artifacts,
		ClearError:  true,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	if err := m.ledger.Finalize(ctx, job.TenantID, job.ID); err != nil {
		return nil, fmt.Errorf("finalize charge: %w", err)
	}
	m.logger.Info().Str("job_id", jobID).Int("artifacts", len(artifacts)).Msg("orchestrator: job completed")
	return job, nil
}

// FailAttempt handles a provider failure on the current attempt: either
// schedule a retry with backoff or land the job in failed with a full
// refund. A lost CAS means the job was cancelled meanwhile and nothing more
// is owed; the cancel path already refunded it.
func (m *Manager) FailAttempt(ctx context.Context, job *domain.Job, attemptErr error) error {
	now := time.Now().UTC()

	if m.policy.ShouldRetry(attemptErr, job.RetryCount, job.MaxRetries) {
		jobErr := jobErrorFrom(attemptErr, now)
		if _, err := m.jobs.TransitionStatus(ctx, job.ID, []domain.JobStatus{domain.JobStatusProcessing}, domain.JobStatusRetrying, domain.StatusUpdate{
			Error: &jobErr,
		}); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				return nil
			}
			return err
		}
		delay := m.policy.NextDelay(job.RetryCount)
		if err := m.queue.Enqueue(ctx, job.ID, now.Add(delay)); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		m.logger.Warn().
			Str("job_id", job.ID).
			Int("retry_count", job.RetryCount).
			Dur("delay", delay).
			Str("code", jobErr.Code).
			Msg("orchestrator: attempt failed, retry scheduled")
		return nil
	}

	jobErr := jobErrorFrom(attemptErr, now)
	if job.RetryCount >= job.MaxRetries && retryableKind(attemptErr) {
		jobErr = domain.JobError{
			Code:    CodeRetryBudgetExhausted,
			Message: fmt.Sprintf("retry budget exhausted after %d attempts: %s", job.RetryCount+1, jobErr.Message),
			At:      now,
		}
	}
	if _, err := m.jobs.TransitionStatus(ctx, job.ID, []domain.JobStatus{domain.JobStatusProcessing}, domain.JobStatusFailed, domain.StatusUpdate{
		Error:       &jobErr,
		CompletedAt: &now,
	}); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return nil
		}
		return err
	}
	if err := m.ledger.Refund(ctx, job.TenantID, job.CreditsUsed, job.ID, jobErr.Message); err != nil {
		return fmt.Errorf("refund failed job: %w", err)
	}
	m.logger.Error().
		Str("job_id", job.ID).
		Str("code", jobErr.Code).
		Msg("orchestrator: job failed terminally")
	return nil
}

func jobErrorFrom(err error, at time.Time) domain.JobError {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return domain.JobError{Code: string(perr.Kind), Message: perr.Message, At: at}
	}
	return domain.JobError{Code: string(provider.KindUpstreamInternal), Message: err.Error(), At: at}
}

func retryableKind(err error) bool {
	switch provider.KindOf(err) {
	case provider.KindRateLimited, provider.KindUpstreamTimeout, provider.KindUpstreamInternal:
		return true
	}
	return false
}

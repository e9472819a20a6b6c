package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// MemoryJobs is an in-process JobRepository with the same CAS semantics as
// the Postgres implementation. It backs tests and single-binary development.
type MemoryJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryJobs returns an empty in-memory job repository.
func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: make(map[string]*domain.Job)}
}

// Create implements domain.JobRepository.
func (r *MemoryJobs) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return domain.ErrDuplicateOperation
	}
	stored := cloneJob(job)
	r.jobs[job.ID] = &stored
	return nil
}

// GetByID implements domain.JobRepository.
func (r *MemoryJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

// TransitionStatus implements domain.JobRepository. The expected-status check
// and the write happen under one lock, mirroring the single UPDATE ... WHERE
// status = ANY(...) statement of the SQL store.
func (r *MemoryJobs) TransitionStatus(ctx context.Context, jobID string, expect []domain.JobStatus, to domain.JobStatus, update domain.StatusUpdate) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	matched := false
	for _, status := range expect {
		if job.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return nil, domain.ErrConcurrentModification
	}
	job.Status = to
	if update.ClearError {
		job.Error = nil
	} else if update.Error != nil {
		job.Error = update.Error
	}
	if update.Output != nil {
		job.Output = update.Output
	}
	if update.RetryCount != nil {
		job.RetryCount = *update.RetryCount
	}
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	out := cloneJob(job)
	return &out, nil
}

// List implements domain.JobRepository.
func (r *MemoryJobs) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if filter.TenantID != "" && job.TenantID != filter.TenantID {
			continue
		}
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Module != "" && job.Module != filter.Module {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListNonTerminal implements domain.JobRepository.
func (r *MemoryJobs) ListNonTerminal(ctx context.Context) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if !job.Status.Terminal() {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out, nil
}

func cloneJob(job *domain.Job) domain.Job {
	out := *job
	if job.Output != nil {
		out.Output = append([]domain.Artifact(nil), job.Output...)
	}
	if job.Error != nil {
		errCopy := *job.Error
		out.Error = &errCopy
	}
	return out
}

var _ domain.JobRepository = (*MemoryJobs)(nil)

// MemoryTenants is an in-process TenantRepository.
type MemoryTenants struct {
	mu      sync.Mutex
	tenants map[string]domain.Tenant
}

// NewMemoryTenants seeds the repository with the given tenants.
func NewMemoryTenants(tenants ...domain.Tenant) *MemoryTenants {
	r := &MemoryTenants{tenants: make(map[string]domain.Tenant, len(tenants))}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

// Put inserts or replaces a tenant.
func (r *MemoryTenants) Put(tenant domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenant.ID] = tenant
}

// GetByID implements domain.TenantRepository.
func (r *MemoryTenants) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.tenants[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tenant, nil
}

var _ domain.TenantRepository = (*MemoryTenants)(nil)

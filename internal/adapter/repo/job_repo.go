package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, tenant_id, user_id, module, status, input, output, credits_used, retry_count, max_retries, error, queued_at, started_at, completed_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("encode job input: %w", err)
	}
	query := `
INSERT INTO jobs (id, tenant_id, user_id, module, status, input, credits_used, retry_count, max_retries, queued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.TenantID,
		job.UserID,
		job.Module,
		job.Status,
		input,
		job.CreditsUsed,
		job.RetryCount,
		job.MaxRetries,
		job.QueuedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// TransitionStatus applies the compare-and-swap transition in one UPDATE so
// duplicate workers can never both win a claim.
func (r *JobRepositoryPG) TransitionStatus(ctx context.Context, jobID string, expect []domain.JobStatus, to domain.JobStatus, update domain.StatusUpdate) (*domain.Job, error) {
	expected := make([]string, len(expect))
	for i, s := range expect {
		expected[i] = string(s)
	}
	var errJSON []byte
	if update.Error != nil {
		var err error
		errJSON, err = json.Marshal(update.Error)
		if err != nil {
			return nil, fmt.Errorf("encode job error: %w", err)
		}
	}
	var outputJSON []byte
	if update.Output != nil {
		var err error
		outputJSON, err = json.Marshal(update.Output)
		if err != nil {
			return nil, fmt.Errorf("encode job output: %w", err)
		}
	}
	query := `
UPDATE jobs
SET status = $3,
    error = CASE WHEN $9 THEN NULL ELSE COALESCE($4, error) END,
    output = COALESCE($5, output),
    retry_count = COALESCE($6, retry_count),
    started_at = COALESCE($7, started_at),
    completed_at = COALESCE($8, completed_at),
    updated_at = NOW()
WHERE id = $1 AND status = ANY($2)
RETURNING ` + jobColumns + `;`
	row := r.pool.QueryRow(ctx, query,
		jobID,
		expected,
		to,
		errJSON,
		outputJSON,
		update.RetryCount,
		update.StartedAt,
		update.CompletedAt,
		update.ClearError,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the job does not exist or its status moved under us.
			if _, gerr := r.GetByID(ctx, jobID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrConcurrentModification
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs matching the filter, most recent first.
func (r *JobRepositoryPG) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE ($1 = '' OR tenant_id = $1)
  AND ($2 = '' OR user_id = $2)
  AND ($3 = '' OR status = $3)
  AND ($4 = '' OR module = $4)
ORDER BY queued_at DESC
LIMIT $5;`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, filter.TenantID, filter.UserID, string(filter.Status), string(filter.Module), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListNonTerminal returns every job still in flight, oldest first.
func (r *JobRepositoryPG) ListNonTerminal(ctx context.Context) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status IN ('queued', 'processing', 'retrying')
ORDER BY queued_at ASC;`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var input, output, jobErr []byte
	if err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.UserID,
		&job.Module,
		&job.Status,
		&input,
		&output,
		&job.CreditsUsed,
		&job.RetryCount,
		&job.MaxRetries,
		&jobErr,
		&job.QueuedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("decode job input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &job.Output); err != nil {
			return nil, fmt.Errorf("decode job output: %w", err)
		}
	}
	if len(jobErr) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(jobErr, job.Error); err != nil {
			return nil, fmt.Errorf("decode job error: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)

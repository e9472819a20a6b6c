package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// TenantRepositoryPG implements domain.TenantRepository on PostgreSQL.
type TenantRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a tenant repository backed by PostgreSQL.
func NewTenantRepository(pool *pgxpool.Pool) *TenantRepositoryPG {
	return &TenantRepositoryPG{pool: pool}
}

// GetByID fetches a tenant, including its feature overrides.
func (r *TenantRepositoryPG) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	query := `
SELECT id, name, status, plan_id, COALESCE(feature_overrides, '{}'), created_at, updated_at
FROM tenants
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, tenantID)
	var tenant domain.Tenant
	var overrides []string
	if err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Status,
		&tenant.PlanID,
		&overrides,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	tenant.FeatureOverrides = make([]domain.FeatureID, len(overrides))
	for i, f := range overrides {
		tenant.FeatureOverrides[i] = domain.FeatureID(f)
	}
	return &tenant, nil
}

var _ domain.TenantRepository = (*TenantRepositoryPG)(nil)

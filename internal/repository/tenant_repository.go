package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TenantRepository lists tenants for sweep partitioning.
type TenantRepository interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}

type tenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository instantiates repository.
func NewTenantRepository(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepository{pool: pool}
}

func (r *tenantRepository) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	const query = `
        SELECT id, name, is_active, created_at
        FROM tenants WHERE is_active = TRUE ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

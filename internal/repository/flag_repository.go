package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// FlagRepository records configuration the engine had to skip, for admin
// attention.
type FlagRepository interface {
	Insert(ctx context.Context, flag *domain.ConfigurationFlag) error
	ListOpen(ctx context.Context, scope tenant.Scope, limit int) ([]domain.ConfigurationFlag, error)
	Resolve(ctx context.Context, scope tenant.Scope, flagID string) error
}

type flagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository instantiates repository.
func NewFlagRepository(pool *pgxpool.Pool) FlagRepository {
	return &flagRepository{pool: pool}
}

func (r *flagRepository) Insert(ctx context.Context, flag *domain.ConfigurationFlag) error {
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO configuration_flags (id, tenant_id, subject, subject_id, code, message, resolved, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,FALSE,NOW())`
	_, err := r.pool.Exec(ctx, query,
		flag.ID,
		flag.TenantID,
		flag.Subject,
		flag.SubjectID,
		flag.Code,
		flag.Message,
	)
	return err
}

func (r *flagRepository) ListOpen(ctx context.Context, scope tenant.Scope, limit int) ([]domain.ConfigurationFlag, error) {
	const query = `
        SELECT id, tenant_id, subject, subject_id, code, message, resolved, created_at
        FROM configuration_flags
        WHERE tenant_id=$1 AND resolved=FALSE
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, scope.TenantID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ConfigurationFlag
	for rows.Next() {
		var f domain.ConfigurationFlag
		if err := rows.Scan(
			&f.ID,
			&f.TenantID,
			&f.Subject,
			&f.SubjectID,
			&f.Code,
			&f.Message,
			&f.Resolved,
			&f.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *flagRepository) Resolve(ctx context.Context, scope tenant.Scope, flagID string) error {
	const query = `
        UPDATE configuration_flags SET resolved=TRUE
        WHERE tenant_id=$1 AND id=$2`
	_, err := r.pool.Exec(ctx, query, scope.TenantID, flagID)
	return err
}

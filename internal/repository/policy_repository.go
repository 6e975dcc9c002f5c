package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// SLAPolicyRepository loads policies and their per-priority targets.
type SLAPolicyRepository interface {
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.SLAPolicy, error)
	GetDefault(ctx context.Context, scope tenant.Scope) (*domain.SLAPolicy, error)
	GetTarget(ctx context.Context, policyID string, priority domain.TicketPriority) (*domain.SLATarget, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository instantiates repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, tenant_id, name, calendar_id, is_default, created_at, updated_at
        FROM sla_policies WHERE tenant_id=$1 AND id=$2`
	return r.fetch(ctx, query, scope.TenantID, id)
}

func (r *slaPolicyRepository) GetDefault(ctx context.Context, scope tenant.Scope) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, tenant_id, name, calendar_id, is_default, created_at, updated_at
        FROM sla_policies WHERE tenant_id=$1 AND is_default=TRUE LIMIT 1`
	return r.fetch(ctx, query, scope.TenantID)
}

func (r *slaPolicyRepository) fetch(ctx context.Context, query string, args ...any) (*domain.SLAPolicy, error) {
	var p domain.SLAPolicy
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.CalendarID,
		&p.IsDefault,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *slaPolicyRepository) GetTarget(ctx context.Context, policyID string, priority domain.TicketPriority) (*domain.SLATarget, error) {
	const query = `
        SELECT id, sla_policy_id, priority, response_minutes, resolution_minutes, multiplier, mode
        FROM sla_targets WHERE sla_policy_id=$1 AND priority=$2`
	var t domain.SLATarget
	if err := r.pool.QueryRow(ctx, query, policyID, priority).Scan(
		&t.ID,
		&t.PolicyID,
		&t.Priority,
		&t.ResponseMinutes,
		&t.ResolutionMinutes,
		&t.Multiplier,
		&t.Mode,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// ContractOverrideRepository stores contract-level SLA policy pins.
type ContractOverrideRepository interface {
	Get(ctx context.Context, scope tenant.Scope, contractID string) (*domain.ContractSLAOverride, error)
	Upsert(ctx context.Context, override *domain.ContractSLAOverride) error
}

type contractOverrideRepository struct {
	pool *pgxpool.Pool
}

// NewContractOverrideRepository instantiates repository.
func NewContractOverrideRepository(pool *pgxpool.Pool) ContractOverrideRepository {
	return &contractOverrideRepository{pool: pool}
}

func (r *contractOverrideRepository) Get(ctx context.Context, scope tenant.Scope, contractID string) (*domain.ContractSLAOverride, error) {
	const query = `
        SELECT tenant_id, contract_id, sla_policy_id, updated_at
        FROM contract_sla_overrides WHERE tenant_id=$1 AND contract_id=$2`
	var o domain.ContractSLAOverride
	if err := r.pool.QueryRow(ctx, query, scope.TenantID, contractID).Scan(
		&o.TenantID,
		&o.ContractID,
		&o.PolicyID,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *contractOverrideRepository) Upsert(ctx context.Context, override *domain.ContractSLAOverride) error {
	const query = `
        INSERT INTO contract_sla_overrides (tenant_id, contract_id, sla_policy_id, updated_at)
        VALUES ($1,$2,$3,NOW())
        ON CONFLICT (tenant_id, contract_id)
        DO UPDATE SET sla_policy_id=EXCLUDED.sla_policy_id, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, override.TenantID, override.ContractID, override.PolicyID)
	return err
}

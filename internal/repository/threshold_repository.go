package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// ThresholdRepository persists per-(ticket, clock) threshold states. The
// Transition compare-and-set is what makes warning/breach emission
// at-most-once: only the caller whose expected state still holds wins the
// row and earns the right to emit.
type ThresholdRepository interface {
	Get(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock) (*domain.SLAThresholdState, error)
	Ensure(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock) error
	Transition(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock, from, to domain.ThresholdState, ticketVersion int64) (bool, error)
	ResetAll(ctx context.Context, scope tenant.Scope, ticketID string, ticketVersion int64) error
	ClearAll(ctx context.Context, scope tenant.Scope, ticketID string) error
}

type thresholdRepository struct {
	pool *pgxpool.Pool
}

// NewThresholdRepository instantiates repository.
func NewThresholdRepository(pool *pgxpool.Pool) ThresholdRepository {
	return &thresholdRepository{pool: pool}
}

func (r *thresholdRepository) Get(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock) (*domain.SLAThresholdState, error) {
	const query = `
        SELECT tenant_id, ticket_id, clock, state, ticket_version, updated_at
        FROM sla_threshold_states
        WHERE tenant_id=$1 AND ticket_id=$2 AND clock=$3`
	var s domain.SLAThresholdState
	if err := r.pool.QueryRow(ctx, query, scope.TenantID, ticketID, clock).Scan(
		&s.TenantID,
		&s.TicketID,
		&s.Clock,
		&s.State,
		&s.TicketVersion,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *thresholdRepository) Ensure(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock) error {
	const query = `
        INSERT INTO sla_threshold_states (tenant_id, ticket_id, clock, state, ticket_version, updated_at)
        VALUES ($1,$2,$3,'none',0,NOW())
        ON CONFLICT (tenant_id, ticket_id, clock) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, scope.TenantID, ticketID, clock)
	return err
}

func (r *thresholdRepository) Transition(ctx context.Context, scope tenant.Scope, ticketID string, clock domain.SLAClock, from, to domain.ThresholdState, ticketVersion int64) (bool, error) {
	const query = `
        UPDATE sla_threshold_states
        SET state=$1, ticket_version=$2, updated_at=NOW()
        WHERE tenant_id=$3 AND ticket_id=$4 AND clock=$5 AND state=$6`
	cmd, err := r.pool.Exec(ctx, query, to, ticketVersion, scope.TenantID, ticketID, clock, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// ResetAll returns both clocks to none after a schedule recompute. Breach
// rows are left alone: a recompute never clears an already-notified breach
// retroactively; the next sweep pass re-evaluates against the new target.
func (r *thresholdRepository) ResetAll(ctx context.Context, scope tenant.Scope, ticketID string, ticketVersion int64) error {
	const query = `
        UPDATE sla_threshold_states
        SET state='none', ticket_version=$1, updated_at=NOW()
        WHERE tenant_id=$2 AND ticket_id=$3 AND state <> 'breach'`
	_, err := r.pool.Exec(ctx, query, ticketVersion, scope.TenantID, ticketID)
	return err
}

func (r *thresholdRepository) ClearAll(ctx context.Context, scope tenant.Scope, ticketID string) error {
	const query = `
        UPDATE sla_threshold_states
        SET state='cleared', updated_at=NOW()
        WHERE tenant_id=$1 AND ticket_id=$2`
	_, err := r.pool.Exec(ctx, query, scope.TenantID, ticketID)
	return err
}

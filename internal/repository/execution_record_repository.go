package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// ExecutionRecordRepository is the append-only idempotency ledger for rule
// action application. Insert relies on conditional-insert semantics; rows are
// never updated, only pruned by retention.
type ExecutionRecordRepository interface {
	Exists(ctx context.Context, scope tenant.Scope, ticketID, ruleID, eventID string) (bool, error)
	Insert(ctx context.Context, record *domain.RuleExecutionRecord) (bool, error)
	PruneOlderThanDays(ctx context.Context, scope tenant.Scope, days int) (int64, error)
}

type executionRecordRepository struct {
	pool *pgxpool.Pool
}

// NewExecutionRecordRepository instantiates repository.
func NewExecutionRecordRepository(pool *pgxpool.Pool) ExecutionRecordRepository {
	return &executionRecordRepository{pool: pool}
}

func (r *executionRecordRepository) Exists(ctx context.Context, scope tenant.Scope, ticketID, ruleID, eventID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM rule_execution_records
            WHERE tenant_id=$1 AND ticket_id=$2 AND rule_id=$3 AND event_id=$4)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, scope.TenantID, ticketID, ruleID, eventID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert returns false when the idempotency key already existed, meaning
// another writer applied the actions first.
func (r *executionRecordRepository) Insert(ctx context.Context, record *domain.RuleExecutionRecord) (bool, error) {
	const query = `
        INSERT INTO rule_execution_records (tenant_id, ticket_id, rule_id, event_id, status, message, applied_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (tenant_id, ticket_id, rule_id, event_id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		record.TenantID,
		record.TicketID,
		record.RuleID,
		record.EventID,
		record.Status,
		record.Message,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *executionRecordRepository) PruneOlderThanDays(ctx context.Context, scope tenant.Scope, days int) (int64, error) {
	const query = `
        DELETE FROM rule_execution_records
        WHERE tenant_id=$1 AND applied_at < NOW() - make_interval(days => $2)`
	cmd, err := r.pool.Exec(ctx, query, scope.TenantID, days)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

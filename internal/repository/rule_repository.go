package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// RuleRecord is the stored form of an automation rule: condition and action
// documents still serialized. The automation package parses them into typed
// variants at load time.
type RuleRecord struct {
	ID             string
	TenantID       string
	Name           string
	Description    *string
	Active         bool
	TriggerType    string
	Priority       int
	ConditionsJSON []byte
	ActionsJSON    []byte
	LastRunAt      *time.Time
	RunCount       int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RuleRepository reads tenant-authored rules and maintains run statistics.
// Rule CRUD itself belongs to the settings collaborator.
type RuleRepository interface {
	ListActiveByTrigger(ctx context.Context, scope tenant.Scope, trigger domain.TriggerKind) ([]RuleRecord, error)
	RecordRun(ctx context.Context, scope tenant.Scope, ruleID string) error
	Disable(ctx context.Context, scope tenant.Scope, ruleID string) error
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

func (r *ruleRepository) ListActiveByTrigger(ctx context.Context, scope tenant.Scope, trigger domain.TriggerKind) ([]RuleRecord, error) {
	const query = `
        SELECT id, tenant_id, name, description, is_active, trigger_type,
               conditions, actions, priority, last_run_at, run_count,
               created_at, updated_at
        FROM automation_rules
        WHERE tenant_id=$1 AND trigger_type=$2 AND is_active=TRUE
        ORDER BY priority ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, scope.TenantID, string(trigger))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]RuleRecord, error) {
	var result []RuleRecord
	for rows.Next() {
		var rec RuleRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.Name,
			&rec.Description,
			&rec.Active,
			&rec.TriggerType,
			&rec.ConditionsJSON,
			&rec.ActionsJSON,
			&rec.Priority,
			&rec.LastRunAt,
			&rec.RunCount,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *ruleRepository) RecordRun(ctx context.Context, scope tenant.Scope, ruleID string) error {
	const query = `
        UPDATE automation_rules SET last_run_at=NOW(), run_count=run_count+1
        WHERE tenant_id=$1 AND id=$2`
	_, err := r.pool.Exec(ctx, query, scope.TenantID, ruleID)
	return err
}

func (r *ruleRepository) Disable(ctx context.Context, scope tenant.Scope, ruleID string) error {
	const query = `
        UPDATE automation_rules SET is_active=FALSE, updated_at=NOW()
        WHERE tenant_id=$1 AND id=$2`
	_, err := r.pool.Exec(ctx, query, scope.TenantID, ruleID)
	return err
}

package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

const ticketColumns = `
        id, tenant_id, subject, status, priority, queue_id, team_id,
        assignee_id, contract_id, sla_policy_id, tags, custom_fields,
        created_at, updated_at, first_response_due, first_response_at,
        resolution_due, resolved_at, closed_at, version`

// TicketRepository maintains the consumed ticket read-model. Snapshots arrive
// from the ticketing collaborator; the only fields this core originates are
// the due timestamps and the policy binding, written under optimistic
// concurrency.
type TicketRepository interface {
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.Ticket, error)
	ListOpenByNearestDue(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Ticket, error)
	ListOpen(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Ticket, error)
	UpsertSnapshot(ctx context.Context, ticket *domain.Ticket) error
	UpdateSLASchedule(ctx context.Context, scope tenant.Scope, ticketID string, policyID *string, firstResponseDue, resolutionDue *time.Time, expectedVersion int64) error
	MarkClosed(ctx context.Context, scope tenant.Scope, ticketID string, closedAt time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND id=$2`
	var t domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, scope.TenantID, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepository) ListOpenByNearestDue(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND closed_at IS NULL AND status NOT IN ('CLOSED','CANCELLED')
          AND (first_response_due IS NOT NULL OR resolution_due IS NOT NULL)
        ORDER BY LEAST(
            COALESCE(first_response_due, 'infinity'::timestamptz),
            COALESCE(resolution_due, 'infinity'::timestamptz)) ASC
        LIMIT $2`
	return r.list(ctx, query, scope.TenantID, normalizeLimit(limit))
}

func (r *ticketRepository) ListOpen(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND closed_at IS NULL AND status NOT IN ('CLOSED','CANCELLED')
        ORDER BY created_at ASC
        LIMIT $2`
	return r.list(ctx, query, scope.TenantID, normalizeLimit(limit))
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpsertSnapshot(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, tenant_id, subject, status, priority, queue_id, team_id,
            assignee_id, contract_id, sla_policy_id, tags, custom_fields, created_at,
            updated_at, first_response_due, first_response_at, resolution_due,
            resolved_at, closed_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),$14,$15,$16,$17,$18,1)
        ON CONFLICT (tenant_id, id) DO UPDATE SET
            subject=EXCLUDED.subject,
            status=EXCLUDED.status,
            priority=EXCLUDED.priority,
            queue_id=EXCLUDED.queue_id,
            team_id=EXCLUDED.team_id,
            assignee_id=EXCLUDED.assignee_id,
            contract_id=EXCLUDED.contract_id,
            tags=EXCLUDED.tags,
            custom_fields=EXCLUDED.custom_fields,
            first_response_at=EXCLUDED.first_response_at,
            resolved_at=EXCLUDED.resolved_at,
            closed_at=EXCLUDED.closed_at,
            updated_at=NOW(),
            version=tickets.version+1`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.TenantID,
		ticket.Subject,
		ticket.Status,
		ticket.Priority,
		ticket.QueueID,
		ticket.TeamID,
		ticket.AssigneeID,
		ticket.ContractID,
		ticket.SLAPolicyID,
		ticket.Tags,
		ticket.CustomFields,
		ticket.CreatedAt,
		ticket.FirstResponseDue,
		ticket.FirstResponseAt,
		ticket.ResolutionDue,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	)
	return err
}

func (r *ticketRepository) UpdateSLASchedule(ctx context.Context, scope tenant.Scope, ticketID string, policyID *string, firstResponseDue, resolutionDue *time.Time, expectedVersion int64) error {
	const query = `
        UPDATE tickets
        SET sla_policy_id=$1, first_response_due=$2, resolution_due=$3,
            updated_at=NOW(), version=version+1
        WHERE tenant_id=$4 AND id=$5 AND version=$6`
	cmd, err := r.pool.Exec(ctx, query,
		policyID, firstResponseDue, resolutionDue,
		scope.TenantID, ticketID, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewConcurrencyConflict("ticket", map[string]any{
			"ticket_id": ticketID,
			"version":   expectedVersion,
		})
	}
	return nil
}

func (r *ticketRepository) MarkClosed(ctx context.Context, scope tenant.Scope, ticketID string, closedAt time.Time) error {
	const query = `
        UPDATE tickets SET closed_at=$1, status='CLOSED', updated_at=NOW(), version=version+1
        WHERE tenant_id=$2 AND id=$3 AND closed_at IS NULL`
	_, err := r.pool.Exec(ctx, query, closedAt, scope.TenantID, ticketID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, t *domain.Ticket) error {
	return row.Scan(
		&t.ID,
		&t.TenantID,
		&t.Subject,
		&t.Status,
		&t.Priority,
		&t.QueueID,
		&t.TeamID,
		&t.AssigneeID,
		&t.ContractID,
		&t.SLAPolicyID,
		&t.Tags,
		&t.CustomFields,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.FirstResponseDue,
		&t.FirstResponseAt,
		&t.ResolutionDue,
		&t.ResolvedAt,
		&t.ClosedAt,
		&t.Version,
	)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit
}

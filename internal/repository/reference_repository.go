package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/tenant"
)

// referenceRepository resolves which tenant owns a referenced entity. Queues,
// teams and users are read-model mirrors of collaborator-owned directories,
// kept here only so rule and policy references can be validated at save time.
type referenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository returns a tenant.OwnerResolver backed by postgres.
func NewReferenceRepository(pool *pgxpool.Pool) tenant.OwnerResolver {
	return &referenceRepository{pool: pool}
}

func (r *referenceRepository) OwnerTenant(ctx context.Context, kind tenant.ReferenceKind, id string) (string, error) {
	table, ok := referenceTables[kind]
	if !ok {
		return "", fmt.Errorf("unsupported reference kind %q", kind)
	}
	query := `SELECT tenant_id FROM ` + table + ` WHERE id=$1`
	var owner string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", tenant.ErrUnknownReference
		}
		return "", err
	}
	return owner, nil
}

var referenceTables = map[tenant.ReferenceKind]string{
	tenant.RefCalendar: "business_hours_calendars",
	tenant.RefPolicy:   "sla_policies",
	tenant.RefQueue:    "queues",
	tenant.RefTeam:     "teams",
	tenant.RefUser:     "users",
	tenant.RefTicket:   "tickets",
}

package tenant

import (
	"context"
	"errors"

	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// ReferenceKind names the entity kinds a rule or policy may reference.
type ReferenceKind string

const (
	RefCalendar ReferenceKind = "calendar"
	RefPolicy   ReferenceKind = "sla_policy"
	RefQueue    ReferenceKind = "queue"
	RefTeam     ReferenceKind = "team"
	RefUser     ReferenceKind = "user"
	RefTicket   ReferenceKind = "ticket"
)

// Reference is one (kind, id) pair to validate against a scope.
type Reference struct {
	Kind ReferenceKind
	ID   string
}

// ErrUnknownReference is returned by resolvers for ids that do not exist at
// all; the guard reports those as validation failures, not isolation ones.
var ErrUnknownReference = errors.New("referenced entity does not exist")

// OwnerResolver looks up which tenant owns a referenced entity.
type OwnerResolver interface {
	OwnerTenant(ctx context.Context, kind ReferenceKind, id string) (string, error)
}

// Guard rejects any operation whose referenced entities do not belong to the
// operating tenant, before any mutation is attempted.
type Guard struct {
	resolver OwnerResolver
}

// NewGuard constructs the guard.
func NewGuard(resolver OwnerResolver) *Guard {
	return &Guard{resolver: resolver}
}

// Require validates a single reference against the scope.
func (g *Guard) Require(ctx context.Context, scope Scope, ref Reference) error {
	if ref.ID == "" {
		return nil
	}
	owner, err := g.resolver.OwnerTenant(ctx, ref.Kind, ref.ID)
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			return apperrors.NewValidationError("referenced entity not found", map[string]any{
				"kind": string(ref.Kind),
				"id":   ref.ID,
			})
		}
		return err
	}
	if owner != scope.TenantID {
		return apperrors.NewCrossTenantReference(string(ref.Kind), map[string]any{
			"kind":      string(ref.Kind),
			"id":        ref.ID,
			"tenant_id": scope.TenantID,
		})
	}
	return nil
}

// RequireAll validates every reference, failing on the first violation.
func (g *Guard) RequireAll(ctx context.Context, scope Scope, refs []Reference) error {
	for _, ref := range refs {
		if err := g.Require(ctx, scope, ref); err != nil {
			return err
		}
	}
	return nil
}

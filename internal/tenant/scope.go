// Package tenant carries the explicit tenant scope threaded through every
// call in the engine. No component infers a tenant from ambient state; a
// Scope is established once per request or sweep iteration and passed down.
package tenant

import (
	"github.com/google/uuid"

	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// Scope identifies the tenant an operation runs under.
type Scope struct {
	TenantID string
}

// NewScope validates and wraps a tenant identifier.
func NewScope(tenantID string) (Scope, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return Scope{}, apperrors.NewValidationError("invalid tenant id", map[string]any{"tenant_id": tenantID})
	}
	return Scope{TenantID: tenantID}, nil
}

// Check verifies an already-loaded entity belongs to this scope.
func (s Scope) Check(entityTenantID, resource string) error {
	if entityTenantID != s.TenantID {
		return apperrors.NewCrossTenantReference(resource, map[string]any{
			"tenant_id":        s.TenantID,
			"entity_tenant_id": entityTenantID,
		})
	}
	return nil
}

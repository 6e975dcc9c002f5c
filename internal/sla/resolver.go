// Package sla selects the effective policy, target and calendar for a
// ticket: an explicit policy on the ticket wins, then the contract override,
// then the tenant default.
package sla

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// Resolution bundles everything the calculator and sweep need for one ticket.
type Resolution struct {
	Policy   *domain.SLAPolicy
	Target   *domain.SLATarget
	Calendar *domain.BusinessHoursCalendar
}

// Resolver resolves tickets to their effective SLA configuration.
type Resolver struct {
	policies  repository.SLAPolicyRepository
	overrides repository.ContractOverrideRepository
	calendars repository.CalendarRepository
}

// Dependencies bundles repositories for the resolver.
type Dependencies struct {
	PolicyRepo   repository.SLAPolicyRepository
	OverrideRepo repository.ContractOverrideRepository
	CalendarRepo repository.CalendarRepository
}

// NewResolver constructs the resolver.
func NewResolver(deps Dependencies) *Resolver {
	return &Resolver{
		policies:  deps.PolicyRepo,
		overrides: deps.OverrideRepo,
		calendars: deps.CalendarRepo,
	}
}

// Resolve determines the policy, per-priority target and calendar for the
// ticket. A missing target for the ticket's priority is a configuration
// error: the ticket is flagged un-schedulable rather than silently defaulted.
func (r *Resolver) Resolve(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket) (*Resolution, error) {
	policy, err := r.resolvePolicy(ctx, scope, ticket)
	if err != nil {
		return nil, err
	}
	if err := scope.Check(policy.TenantID, "sla_policy"); err != nil {
		return nil, err
	}

	target, err := r.policies.GetTarget(ctx, policy.ID, ticket.Priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConfigurationError("no SLA target for priority", map[string]any{
				"policy_id": policy.ID,
				"priority":  string(ticket.Priority),
			})
		}
		return nil, err
	}

	calendar, err := r.calendars.GetByID(ctx, scope, policy.CalendarID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConfigurationError("policy references missing calendar", map[string]any{
				"policy_id":   policy.ID,
				"calendar_id": policy.CalendarID,
			})
		}
		return nil, err
	}
	if err := scope.Check(calendar.TenantID, "calendar"); err != nil {
		return nil, err
	}

	return &Resolution{Policy: policy, Target: target, Calendar: calendar}, nil
}

func (r *Resolver) resolvePolicy(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket) (*domain.SLAPolicy, error) {
	if ticket.SLAPolicyID != nil && *ticket.SLAPolicyID != "" {
		policy, err := r.policies.GetByID(ctx, scope, *ticket.SLAPolicyID)
		if err == nil {
			return policy, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Dangling explicit policy falls through to contract/default.
	}

	if ticket.ContractID != nil && *ticket.ContractID != "" {
		override, err := r.overrides.Get(ctx, scope, *ticket.ContractID)
		if err == nil {
			return r.policies.GetByID(ctx, scope, override.PolicyID)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	policy, err := r.policies.GetDefault(ctx, scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConfigurationError("tenant has no default SLA policy", map[string]any{
				"tenant_id": scope.TenantID,
			})
		}
		return nil, err
	}
	return policy, nil
}

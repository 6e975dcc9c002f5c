// Package service wires inbound collaborator events to SLA scheduling and
// rule execution, and carries rule side effects back out as commands.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/automation"
	"github.com/spec-kit/sla-engine/internal/businesshours"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sweep"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// IngestService consumes ticket lifecycle events: it mirrors the snapshot,
// recomputes SLA deadlines and hands the event to the rule engine.
type IngestService struct {
	tickets    repository.TicketRepository
	thresholds repository.ThresholdRepository
	overrides  repository.ContractOverrideRepository
	flags      repository.FlagRepository
	resolver   sweep.PolicyResolver
	engine     *automation.Engine
	guard      *tenant.Guard
	logger     *zap.Logger

	conflictRetryLimit int
	now                func() time.Time
}

// IngestDependencies bundles what the ingest service needs.
type IngestDependencies struct {
	TicketRepo         repository.TicketRepository
	ThresholdRepo      repository.ThresholdRepository
	OverrideRepo       repository.ContractOverrideRepository
	FlagRepo           repository.FlagRepository
	Resolver           sweep.PolicyResolver
	Engine             *automation.Engine
	Guard              *tenant.Guard
	Logger             *zap.Logger
	ConflictRetryLimit int
	Now                func() time.Time
}

// NewIngestService constructs the service.
func NewIngestService(deps IngestDependencies) *IngestService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	retries := deps.ConflictRetryLimit
	if retries <= 0 {
		retries = 3
	}
	return &IngestService{
		tickets:            deps.TicketRepo,
		thresholds:         deps.ThresholdRepo,
		overrides:          deps.OverrideRepo,
		flags:              deps.FlagRepo,
		resolver:           deps.Resolver,
		engine:             deps.Engine,
		guard:              deps.Guard,
		logger:             deps.Logger,
		conflictRetryLimit: retries,
		now:                now,
	}
}

// HandleTicketChanged mirrors the snapshot, recomputes deadlines when the
// snapshot shifted the effective policy, then runs the trigger's rules. A
// ticket that cannot be scheduled is flagged but its rules still run.
func (s *IngestService) HandleTicketChanged(ctx context.Context, scope tenant.Scope, evt events.Event, payload events.TicketChangedPayload) error {
	if payload.New == nil {
		return apperrors.NewValidationError("ticket_changed event has no snapshot", nil)
	}
	if err := scope.Check(payload.New.TenantID, "ticket"); err != nil {
		return err
	}

	if err := s.tickets.UpsertSnapshot(ctx, payload.New); err != nil {
		return err
	}

	if err := s.scheduleDeadlines(ctx, scope, payload.New.ID); err != nil {
		if apperrors.IsConfigurationError(err) {
			s.flagTicket(ctx, scope, payload.New.ID, err.Error())
		} else {
			return err
		}
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = domain.TriggerOnUpdate
		if payload.Old == nil {
			trigger = domain.TriggerOnCreate
		}
	}
	return s.engine.Run(ctx, scope, evt, trigger, payload.Old, payload.New)
}

// HandleTicketClosed removes the ticket from the sweep's working set and
// marks its threshold rows cleared.
func (s *IngestService) HandleTicketClosed(ctx context.Context, scope tenant.Scope, ticketID string, closedAt time.Time) error {
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	if err := s.tickets.MarkClosed(ctx, scope, ticketID, closedAt); err != nil {
		return err
	}
	return s.thresholds.ClearAll(ctx, scope, ticketID)
}

// HandleContractOverride validates and stores a contract-to-policy pin. Open
// tickets pick the new policy up on their next change or sweep resolution.
func (s *IngestService) HandleContractOverride(ctx context.Context, scope tenant.Scope, contractID, policyID string) error {
	if contractID == "" || policyID == "" {
		return apperrors.NewValidationError("contract_id and sla_policy_id are required", nil)
	}
	ref := tenant.Reference{Kind: tenant.RefPolicy, ID: policyID}
	if err := s.guard.Require(ctx, scope, ref); err != nil {
		return err
	}
	return s.overrides.Upsert(ctx, &domain.ContractSLAOverride{
		TenantID:   scope.TenantID,
		ContractID: contractID,
		PolicyID:   policyID,
	})
}

// scheduleDeadlines recomputes both due timestamps from the current effective
// policy and writes them under optimistic concurrency, resetting threshold
// states when the schedule actually moved. Conflicts re-read and retry a
// bounded number of times.
func (s *IngestService) scheduleDeadlines(ctx context.Context, scope tenant.Scope, ticketID string) error {
	for attempt := 0; attempt < s.conflictRetryLimit; attempt++ {
		ticket, err := s.tickets.GetByID(ctx, scope, ticketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
			}
			return err
		}
		if !ticket.IsOpen() {
			return nil
		}

		res, err := s.resolver.Resolve(ctx, scope, ticket)
		if err != nil {
			return err
		}

		responseDue, err := businesshours.AddOperationalTime(
			ticket.CreatedAt, res.Target.EffectiveResponseMinutes(), res.Calendar, res.Target.Mode)
		if err != nil {
			return err
		}
		resolutionDue, err := businesshours.AddOperationalTime(
			ticket.CreatedAt, res.Target.EffectiveResolutionMinutes(), res.Calendar, res.Target.Mode)
		if err != nil {
			return err
		}

		if !scheduleChanged(ticket, responseDue, resolutionDue) {
			return nil
		}

		// The stored binding stays whatever the ticket carries: writing the
		// resolved policy back would promote a defaulted ticket to an
		// explicit binding and freeze it against later contract overrides.
		err = s.tickets.UpdateSLASchedule(ctx, scope, ticket.ID, ticket.SLAPolicyID, &responseDue, &resolutionDue, ticket.Version)
		if err != nil {
			if apperrors.IsConcurrencyConflict(err) {
				continue
			}
			return err
		}

		if err := s.thresholds.ResetAll(ctx, scope, ticket.ID, ticket.Version+1); err != nil {
			return err
		}
		s.logger.Info("sla schedule written",
			zap.String("tenant_id", scope.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.String("policy_id", res.Policy.ID),
			zap.Time("first_response_due", responseDue),
			zap.Time("resolution_due", resolutionDue))
		return nil
	}
	return apperrors.NewConcurrencyConflict("ticket", map[string]any{
		"ticket_id": ticketID,
		"retries":   s.conflictRetryLimit,
	})
}

func scheduleChanged(ticket *domain.Ticket, responseDue, resolutionDue time.Time) bool {
	if ticket.FirstResponseDue == nil || !ticket.FirstResponseDue.Equal(responseDue) {
		return true
	}
	return ticket.ResolutionDue == nil || !ticket.ResolutionDue.Equal(resolutionDue)
}

func (s *IngestService) flagTicket(ctx context.Context, scope tenant.Scope, ticketID, message string) {
	err := s.flags.Insert(ctx, &domain.ConfigurationFlag{
		TenantID:  scope.TenantID,
		Subject:   domain.FlagSubjectTicket,
		SubjectID: ticketID,
		Code:      "unschedulable",
		Message:   message,
	})
	if err != nil {
		s.logger.Error("flag insert failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// Package sweep periodically examines open tickets against their SLA targets
// and emits warning and breach events. Emission is at-most-once per (ticket,
// clock, threshold): the compare-and-set on the threshold row decides which
// pass wins the right to publish.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/businesshours"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sla"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// PolicyResolver resolves a ticket to its effective SLA configuration.
type PolicyResolver interface {
	Resolve(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket) (*sla.Resolution, error)
}

// Sweeper runs the periodic deadline pass. Tenants are swept concurrently
// but independently; one tenant's failure never blocks another's pass.
type Sweeper struct {
	tenants    repository.TenantRepository
	tickets    repository.TicketRepository
	thresholds repository.ThresholdRepository
	flags      repository.FlagRepository
	resolver   PolicyResolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	warningRatio float64
	batchSize    int
	now          func() time.Time
}

// Dependencies bundles what the sweeper needs.
type Dependencies struct {
	TenantRepo    repository.TenantRepository
	TicketRepo    repository.TicketRepository
	ThresholdRepo repository.ThresholdRepository
	FlagRepo      repository.FlagRepository
	Resolver      PolicyResolver
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	WarningRatio  float64
	BatchSize     int
	Now           func() time.Time
}

// NewSweeper constructs the sweeper.
func NewSweeper(deps Dependencies) *Sweeper {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		tenants:      deps.TenantRepo,
		tickets:      deps.TicketRepo,
		thresholds:   deps.ThresholdRepo,
		flags:        deps.FlagRepo,
		resolver:     deps.Resolver,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		warningRatio: deps.WarningRatio,
		batchSize:    deps.BatchSize,
		now:          now,
	}
}

// Run executes one full pass over all active tenants.
func (s *Sweeper) Run(ctx context.Context) error {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, t := range tenants {
		scope, err := tenant.NewScope(t.ID)
		if err != nil {
			s.logger.Error("skipping tenant with invalid id", zap.String("tenant_id", t.ID), zap.Error(err))
			continue
		}
		wg.Add(1)
		go func(scope tenant.Scope) {
			defer wg.Done()
			s.sweepTenant(ctx, scope)
		}(scope)
	}
	wg.Wait()
	return nil
}

func (s *Sweeper) sweepTenant(ctx context.Context, scope tenant.Scope) {
	tickets, err := s.tickets.ListOpenByNearestDue(ctx, scope, s.batchSize)
	if err != nil {
		s.logger.Error("sweep listing failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return
	}

	for i := range tickets {
		if ctx.Err() != nil {
			return
		}
		s.examineTicket(ctx, scope, &tickets[i])
	}
	s.metrics.RecordSweep(scope.TenantID, len(tickets))
}

// examineTicket evaluates both clocks of one ticket. Resolution failures flag
// the ticket and move on; they never halt the tenant's pass.
func (s *Sweeper) examineTicket(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket) {
	res, err := s.resolver.Resolve(ctx, scope, ticket)
	if err != nil {
		if apperrors.IsConfigurationError(err) {
			s.flagTicket(ctx, scope, ticket.ID, "unschedulable", err.Error())
			return
		}
		s.logger.Error("sweep resolution failed",
			zap.String("tenant_id", scope.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return
	}

	for _, clock := range []domain.SLAClock{domain.ClockFirstResponse, domain.ClockResolution} {
		if err := s.examineClock(ctx, scope, ticket, res, clock); err != nil {
			s.logger.Error("sweep clock evaluation failed",
				zap.String("tenant_id", scope.TenantID),
				zap.String("ticket_id", ticket.ID),
				zap.String("clock", string(clock)),
				zap.Error(err))
		}
	}
}

func (s *Sweeper) examineClock(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket, res *sla.Resolution, clock domain.SLAClock) error {
	if !ticket.ClockActive(clock) {
		return nil
	}
	due := ticket.DueFor(clock)
	if due == nil {
		return nil
	}

	targetMinutes := res.Target.EffectiveResolutionMinutes()
	if clock == domain.ClockFirstResponse {
		targetMinutes = res.Target.EffectiveResponseMinutes()
	}
	if targetMinutes <= 0 {
		s.flagTicket(ctx, scope, ticket.ID, "unschedulable", "SLA target has no positive duration for clock "+string(clock))
		return nil
	}

	now := s.now()
	elapsed, err := businesshours.ElapsedOperationalTime(ticket.CreatedAt, now, res.Calendar, res.Target.Mode)
	if err != nil {
		if apperrors.IsConfigurationError(err) {
			s.flagTicket(ctx, scope, ticket.ID, "unschedulable", err.Error())
			return nil
		}
		return err
	}

	switch {
	case !now.Before(*due):
		return s.emit(ctx, scope, ticket, clock, domain.ThresholdBreach, *due, elapsed, targetMinutes)
	case float64(elapsed) >= s.warningRatio*float64(targetMinutes):
		return s.emit(ctx, scope, ticket, clock, domain.ThresholdWarning, *due, elapsed, targetMinutes)
	}
	return nil
}

// emit moves the threshold row forward and publishes the matching event when
// this pass wins the transition. A concurrent pass losing the compare-and-set
// simply does nothing.
func (s *Sweeper) emit(ctx context.Context, scope tenant.Scope, ticket *domain.Ticket, clock domain.SLAClock, to domain.ThresholdState, due time.Time, elapsed, targetMinutes int) error {
	if err := s.thresholds.Ensure(ctx, scope, ticket.ID, clock); err != nil {
		return err
	}
	current, err := s.thresholds.Get(ctx, scope, ticket.ID, clock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	var from domain.ThresholdState
	switch to {
	case domain.ThresholdWarning:
		if current.State != domain.ThresholdNone {
			return nil
		}
		from = domain.ThresholdNone
	case domain.ThresholdBreach:
		if current.State == domain.ThresholdBreach {
			return nil
		}
		from = current.State
	default:
		return nil
	}

	// Re-check against fresh state: a ticket resolved between listing and
	// now must not produce a late emission.
	fresh, err := s.tickets.GetByID(ctx, scope, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !fresh.ClockActive(clock) {
		return nil
	}

	won, err := s.thresholds.Transition(ctx, scope, ticket.ID, clock, from, to, fresh.Version)
	if err != nil || !won {
		return err
	}

	eventType := events.EventSLABreach
	if to == domain.ThresholdWarning {
		eventType = events.EventSLAWarning
	}
	err = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  scope.TenantID,
		TicketID:  ticket.ID,
		Timestamp: s.now(),
		Payload: events.SLAThresholdPayload{
			Clock:          clock,
			Due:            due,
			ElapsedMinutes: elapsed,
			TargetMinutes:  targetMinutes,
		},
	})
	if err != nil {
		return err
	}

	s.metrics.RecordThresholdEmit(scope.TenantID, string(to))
	s.logger.Info("sla threshold crossed",
		zap.String("tenant_id", scope.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.String("clock", string(clock)),
		zap.String("threshold", string(to)),
		zap.Time("due", due))
	return nil
}

func (s *Sweeper) flagTicket(ctx context.Context, scope tenant.Scope, ticketID, code, message string) {
	err := s.flags.Insert(ctx, &domain.ConfigurationFlag{
		TenantID:  scope.TenantID,
		Subject:   domain.FlagSubjectTicket,
		SubjectID: ticketID,
		Code:      code,
		Message:   message,
	})
	if err != nil {
		s.logger.Error("flag insert failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

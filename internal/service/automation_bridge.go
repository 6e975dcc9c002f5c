package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/automation"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// executionRetentionDays bounds the idempotency ledger; a record older than
// this can no longer collide with a live event.
const executionRetentionDays = 90

// AutomationBridge connects threshold events to their rule triggers and runs
// the periodic scheduled pass for time-based triggers.
type AutomationBridge struct {
	tenants repository.TenantRepository
	tickets repository.TicketRepository
	records repository.ExecutionRecordRepository
	engine  *automation.Engine
	logger  *zap.Logger

	batchSize int
}

// BridgeDependencies bundles what the bridge needs.
type BridgeDependencies struct {
	TenantRepo repository.TenantRepository
	TicketRepo repository.TicketRepository
	RecordRepo repository.ExecutionRecordRepository
	Engine     *automation.Engine
	Logger     *zap.Logger
	BatchSize  int
}

// NewAutomationBridge constructs the bridge.
func NewAutomationBridge(deps BridgeDependencies) *AutomationBridge {
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 200
	}
	return &AutomationBridge{
		tenants:   deps.TenantRepo,
		tickets:   deps.TicketRepo,
		records:   deps.RecordRepo,
		engine:    deps.Engine,
		logger:    deps.Logger,
		batchSize: batch,
	}
}

// RegisterSubscriptions binds sweep emissions to the on_sla_warning and
// on_sla_breach triggers.
func (b *AutomationBridge) RegisterSubscriptions(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventSLAWarning, b.handleThreshold(domain.TriggerOnSLAWarning))
	dispatcher.Subscribe(events.EventSLABreach, b.handleThreshold(domain.TriggerOnSLABreach))
}

func (b *AutomationBridge) handleThreshold(trigger domain.TriggerKind) events.EventHandler {
	return func(ctx context.Context, evt events.Event) error {
		scope, err := tenant.NewScope(evt.TenantID)
		if err != nil {
			return err
		}
		ticket, err := b.tickets.GetByID(ctx, scope, evt.TicketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		if err := b.engine.Run(ctx, scope, evt, trigger, nil, ticket); err != nil {
			b.logger.Error("threshold rule run failed",
				zap.String("tenant_id", evt.TenantID),
				zap.String("ticket_id", evt.TicketID),
				zap.String("trigger", string(trigger)),
				zap.Error(err))
		}
		return nil
	}
}

// RunScheduledPass evaluates on_schedule and on_aging rules over every open
// ticket, tenant by tenant. Each pass is a fresh event per ticket: a rule
// that matches again on the next pass applies again, and its conditions are
// what bound repetition.
func (b *AutomationBridge) RunScheduledPass(ctx context.Context) error {
	tenants, err := b.tenants.ListActive(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, t := range tenants {
		scope, err := tenant.NewScope(t.ID)
		if err != nil {
			b.logger.Error("skipping tenant with invalid id", zap.String("tenant_id", t.ID), zap.Error(err))
			continue
		}
		wg.Add(1)
		go func(scope tenant.Scope) {
			defer wg.Done()
			b.scheduledPassTenant(ctx, scope)
		}(scope)
	}
	wg.Wait()
	return nil
}

func (b *AutomationBridge) scheduledPassTenant(ctx context.Context, scope tenant.Scope) {
	tickets, err := b.tickets.ListOpen(ctx, scope, b.batchSize)
	if err != nil {
		b.logger.Error("scheduled pass listing failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return
	}

	passID := uuid.NewString()
	for i := range tickets {
		if ctx.Err() != nil {
			return
		}
		ticket := &tickets[i]
		for _, trigger := range []domain.TriggerKind{domain.TriggerOnSchedule, domain.TriggerOnAging} {
			evt := events.Event{
				ID:       fmt.Sprintf("%s:%s:%s", passID, ticket.ID, trigger),
				Type:     events.EventTicketChanged,
				TenantID: scope.TenantID,
				TicketID: ticket.ID,
			}
			if err := b.engine.Run(ctx, scope, evt, trigger, nil, ticket); err != nil {
				b.logger.Error("scheduled rule run failed",
					zap.String("tenant_id", scope.TenantID),
					zap.String("ticket_id", ticket.ID),
					zap.String("trigger", string(trigger)),
					zap.Error(err))
			}
		}
	}
}

// PruneExecutionRecords trims the idempotency ledger for every tenant.
func (b *AutomationBridge) PruneExecutionRecords(ctx context.Context) error {
	tenants, err := b.tenants.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		scope, err := tenant.NewScope(t.ID)
		if err != nil {
			continue
		}
		pruned, err := b.records.PruneOlderThanDays(ctx, scope, executionRetentionDays)
		if err != nil {
			b.logger.Error("execution record prune failed", zap.String("tenant_id", t.ID), zap.Error(err))
			continue
		}
		if pruned > 0 {
			b.logger.Info("execution records pruned",
				zap.String("tenant_id", t.ID),
				zap.Int64("count", pruned))
		}
	}
	return nil
}

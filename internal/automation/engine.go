// Package automation loads tenant-authored rules, evaluates their condition
// trees against ticket snapshots and applies action sets exactly once per
// triggering event.
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// Claimer is the fast-path dedupe layer in front of the durable execution
// records. Implemented by persistence.Redis.
type Claimer interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) bool
	ReleaseClaim(ctx context.Context, key string)
}

// Effector carries rule side effects out of the engine. The engine never
// writes ticket storage or calls external systems itself; the service layer
// translates these into commands for the owning collaborators.
type Effector interface {
	ApplyCommand(ctx context.Context, scope tenant.Scope, ticketID string, cmd events.TicketCommandPayload, chainDepth int) error
	SendNotification(ctx context.Context, scope tenant.Scope, ticketID string, req events.NotificationRequest) error
	InvokeWebhook(ctx context.Context, scope tenant.Scope, ticketID string, url string, trigger domain.TriggerKind) error
}

// Engine runs rule evaluation for one triggering event at a time per ticket.
type Engine struct {
	rules    repository.RuleRepository
	records  repository.ExecutionRecordRepository
	flags    repository.FlagRepository
	guard    *tenant.Guard
	claimer  Claimer
	effector Effector
	logger   *zap.Logger
	metrics  *observability.Metrics

	maxChainDepth int
	dedupeTTL     time.Duration

	locks ticketLocks
}

// Dependencies bundles what the engine needs.
type Dependencies struct {
	RuleRepo      repository.RuleRepository
	RecordRepo    repository.ExecutionRecordRepository
	FlagRepo      repository.FlagRepository
	Guard         *tenant.Guard
	Claimer       Claimer
	Effector      Effector
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	MaxChainDepth int
	DedupeTTL     time.Duration
}

// NewEngine constructs the engine.
func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		rules:         deps.RuleRepo,
		records:       deps.RecordRepo,
		flags:         deps.FlagRepo,
		guard:         deps.Guard,
		claimer:       deps.Claimer,
		effector:      deps.Effector,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		maxChainDepth: deps.MaxChainDepth,
		dedupeTTL:     deps.DedupeTTL,
		locks:         ticketLocks{held: make(map[string]*lockEntry)},
	}
}

// Run evaluates every active rule for the trigger against the event's ticket
// snapshots, in priority order, applying matched action sets at most once per
// (ticket, rule, event). Two events for the same ticket are serialized; rule
// or action failures never abort the remaining rules.
func (e *Engine) Run(ctx context.Context, scope tenant.Scope, evt events.Event, trigger domain.TriggerKind, prev, curr *domain.Ticket) error {
	if curr == nil {
		return fmt.Errorf("automation: event %s has no ticket snapshot", evt.ID)
	}

	unlock := e.locks.lock(scope.TenantID + "|" + curr.ID)
	defer unlock()

	records, err := e.rules.ListActiveByTrigger(ctx, scope, trigger)
	if err != nil {
		return fmt.Errorf("list rules for %s: %w", trigger, err)
	}

	ectx := EvalContext{Now: time.Now().UTC(), Old: prev, New: curr}
	for _, rec := range records {
		rule, err := ParseRule(rec)
		if err != nil {
			e.quarantine(ctx, scope, rec, err)
			continue
		}

		if !Evaluate(rule.Condition, ectx) {
			continue
		}

		stop, err := e.applyOnce(ctx, scope, evt, rule, curr)
		if err != nil {
			e.logger.Error("rule application failed",
				zap.String("tenant_id", scope.TenantID),
				zap.String("rule_id", rule.ID),
				zap.String("ticket_id", curr.ID),
				zap.Error(err))
			e.metrics.RecordRuleRun(scope.TenantID, "error")
			continue
		}
		if stop {
			break
		}
	}
	return nil
}

// applyOnce applies one matched rule's actions, guarded by the redis claim
// and the durable execution record. It reports whether later rules for the
// same event should be skipped.
func (e *Engine) applyOnce(ctx context.Context, scope tenant.Scope, evt events.Event, rule *domain.AutomationRule, ticket *domain.Ticket) (bool, error) {
	claimKey := fmt.Sprintf("rulerun:%s:%s:%s:%s", scope.TenantID, ticket.ID, rule.ID, evt.ID)
	if !e.claimer.ClaimOnce(ctx, claimKey, e.dedupeTTL) {
		e.metrics.RecordRuleRun(scope.TenantID, "deduped")
		return rule.StopsProcessing(), nil
	}

	applied, err := e.records.Exists(ctx, scope, ticket.ID, rule.ID, evt.ID)
	if err != nil {
		e.claimer.ReleaseClaim(ctx, claimKey)
		return false, err
	}
	if applied {
		e.metrics.RecordRuleRun(scope.TenantID, "deduped")
		return rule.StopsProcessing(), nil
	}

	if err := e.guard.RequireAll(ctx, scope, CollectReferences(rule.Actions)); err != nil {
		e.flag(ctx, scope, domain.FlagSubjectRule, rule.ID, "invalid_reference", err.Error())
		e.claimer.ReleaseClaim(ctx, claimKey)
		e.metrics.RecordRuleRun(scope.TenantID, "skipped")
		return false, nil
	}

	if err := e.executeActions(ctx, scope, evt, rule, ticket); err != nil {
		e.claimer.ReleaseClaim(ctx, claimKey)
		return false, err
	}

	inserted, err := e.records.Insert(ctx, &domain.RuleExecutionRecord{
		TenantID: scope.TenantID,
		TicketID: ticket.ID,
		RuleID:   rule.ID,
		EventID:  evt.ID,
		Status:   domain.ExecutionStatusApplied,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		if err := e.rules.RecordRun(ctx, scope, rule.ID); err != nil {
			e.logger.Warn("run stats update failed",
				zap.String("rule_id", rule.ID), zap.Error(err))
		}
		e.metrics.RecordRuleRun(scope.TenantID, "applied")
		e.logger.Info("rule applied",
			zap.String("tenant_id", scope.TenantID),
			zap.String("rule_id", rule.ID),
			zap.String("ticket_id", ticket.ID),
			zap.String("event_id", evt.ID))
	} else {
		e.metrics.RecordRuleRun(scope.TenantID, "deduped")
	}
	return rule.StopsProcessing(), nil
}

func (e *Engine) executeActions(ctx context.Context, scope tenant.Scope, evt events.Event, rule *domain.AutomationRule, ticket *domain.Ticket) error {
	for _, action := range rule.Actions {
		if err := e.executeAction(ctx, scope, evt, rule, ticket, action); err != nil {
			return fmt.Errorf("action %s: %w", action.Kind, err)
		}
	}
	return nil
}

func (e *Engine) executeAction(ctx context.Context, scope tenant.Scope, evt events.Event, rule *domain.AutomationRule, ticket *domain.Ticket, action domain.Action) error {
	switch action.Kind {
	case domain.ActionStopProcessing:
		return nil
	case domain.ActionCreateChildTicket:
		if evt.ChainDepth+1 > e.maxChainDepth {
			e.flag(ctx, scope, domain.FlagSubjectRule, rule.ID, "recursion_limit",
				fmt.Sprintf("create_child_ticket skipped at chain depth %d", evt.ChainDepth))
			e.logger.Warn("automation chain depth exceeded",
				zap.String("rule_id", rule.ID),
				zap.String("ticket_id", ticket.ID),
				zap.Int("chain_depth", evt.ChainDepth))
			return nil
		}
		return e.effector.ApplyCommand(ctx, scope, ticket.ID, events.TicketCommandPayload{
			Kind:          events.CommandCreateChild,
			ChildSubject:  action.ChildSubject,
			ChildPriority: action.ChildPriority,
			ChildQueueID:  action.ChildQueueID,
			RuleID:        rule.ID,
		}, evt.ChainDepth+1)
	case domain.ActionSendNotification:
		return e.effector.SendNotification(ctx, scope, ticket.ID, events.NotificationRequest{
			Channel:           action.Channel,
			TemplateID:        action.TemplateID,
			RecipientSelector: action.RecipientSelector,
			RuleID:            rule.ID,
		})
	case domain.ActionInvokeWebhook:
		return e.effector.InvokeWebhook(ctx, scope, ticket.ID, action.WebhookURL, rule.Trigger)
	}

	cmd, ok := commandFor(action, rule.ID)
	if !ok {
		return fmt.Errorf("no command mapping for action kind %q", action.Kind)
	}
	return e.effector.ApplyCommand(ctx, scope, ticket.ID, cmd, evt.ChainDepth)
}

func commandFor(action domain.Action, ruleID string) (events.TicketCommandPayload, bool) {
	cmd := events.TicketCommandPayload{RuleID: ruleID}
	switch action.Kind {
	case domain.ActionSetField:
		cmd.Kind = events.CommandSetField
		cmd.Field = action.Field
		cmd.Value = action.Value
	case domain.ActionAssignToUser:
		cmd.Kind = events.CommandAssignUser
		cmd.UserID = action.UserID
	case domain.ActionAssignToTeam:
		cmd.Kind = events.CommandAssignTeam
		cmd.TeamID = action.TeamID
	case domain.ActionChangeQueue:
		cmd.Kind = events.CommandChangeQueue
		cmd.QueueID = action.QueueID
	case domain.ActionAddNote:
		cmd.Kind = events.CommandAddNote
		cmd.NoteBody = action.NoteBody
	case domain.ActionEscalate:
		cmd.Kind = events.CommandEscalate
	case domain.ActionApplySLAPolicy:
		cmd.Kind = events.CommandApplyPolicy
		cmd.PolicyID = action.PolicyID
	default:
		return cmd, false
	}
	return cmd, true
}

// quarantine disables a rule that failed to parse and flags it for admin
// attention, so one malformed document cannot wedge the trigger's rule list.
func (e *Engine) quarantine(ctx context.Context, scope tenant.Scope, rec repository.RuleRecord, parseErr error) {
	e.logger.Error("disabling malformed rule",
		zap.String("tenant_id", scope.TenantID),
		zap.String("rule_id", rec.ID),
		zap.Error(parseErr))
	if err := e.rules.Disable(ctx, scope, rec.ID); err != nil {
		e.logger.Error("disable failed", zap.String("rule_id", rec.ID), zap.Error(err))
	}
	e.flag(ctx, scope, domain.FlagSubjectRule, rec.ID, "malformed_rule", parseErr.Error())
	e.metrics.RecordRuleRun(scope.TenantID, "quarantined")
}

func (e *Engine) flag(ctx context.Context, scope tenant.Scope, subject domain.FlagSubject, subjectID, code, message string) {
	err := e.flags.Insert(ctx, &domain.ConfigurationFlag{
		TenantID:  scope.TenantID,
		Subject:   subject,
		SubjectID: subjectID,
		Code:      code,
		Message:   message,
	})
	if err != nil {
		e.logger.Error("flag insert failed",
			zap.String("subject_id", subjectID),
			zap.String("code", code),
			zap.Error(err))
	}
}

// ticketLocks serializes rule runs per ticket. Entries are reference counted
// and removed once the last holder releases, so the map does not grow with
// ticket cardinality.
type ticketLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *ticketLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.held[key]
	if !ok {
		entry = &lockEntry{}
		l.held[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}

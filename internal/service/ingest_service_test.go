package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/automation"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sla"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

const svcTenant = "7b0d1c3a-9d4e-4f55-8a10-555555555555"

type svcTicketRepo struct {
	tickets  map[string]*domain.Ticket
	onUpdate func() // runs before the version check, to inject conflicts
}

func newSvcTicketRepo() *svcTicketRepo {
	return &svcTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (f *svcTicketRepo) GetByID(_ context.Context, scope tenant.Scope, id string) (*domain.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok || t.TenantID != scope.TenantID {
		return nil, pgx.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *svcTicketRepo) ListOpenByNearestDue(context.Context, tenant.Scope, int) ([]domain.Ticket, error) {
	return nil, nil
}

func (f *svcTicketRepo) ListOpen(context.Context, tenant.Scope, int) ([]domain.Ticket, error) {
	return nil, nil
}

func (f *svcTicketRepo) UpsertSnapshot(_ context.Context, t *domain.Ticket) error {
	if existing, ok := f.tickets[t.ID]; ok {
		t.Version = existing.Version + 1
		t.FirstResponseDue = existing.FirstResponseDue
		t.ResolutionDue = existing.ResolutionDue
	} else {
		t.Version = 1
	}
	copied := *t
	f.tickets[t.ID] = &copied
	return nil
}

func (f *svcTicketRepo) UpdateSLASchedule(_ context.Context, scope tenant.Scope, ticketID string, policyID *string, firstResponseDue, resolutionDue *time.Time, expectedVersion int64) error {
	if f.onUpdate != nil {
		f.onUpdate()
	}
	t, ok := f.tickets[ticketID]
	if !ok || t.TenantID != scope.TenantID || t.Version != expectedVersion {
		return apperrors.NewConcurrencyConflict("ticket", nil)
	}
	t.SLAPolicyID = policyID
	t.FirstResponseDue = firstResponseDue
	t.ResolutionDue = resolutionDue
	t.Version++
	return nil
}

func (f *svcTicketRepo) MarkClosed(_ context.Context, _ tenant.Scope, id string, closedAt time.Time) error {
	if t, ok := f.tickets[id]; ok {
		t.ClosedAt = &closedAt
		t.Status = domain.TicketStatusClosed
	}
	return nil
}

type svcThresholdRepo struct {
	resets  int
	cleared []string
}

func (f *svcThresholdRepo) Get(context.Context, tenant.Scope, string, domain.SLAClock) (*domain.SLAThresholdState, error) {
	return nil, pgx.ErrNoRows
}

func (f *svcThresholdRepo) Ensure(context.Context, tenant.Scope, string, domain.SLAClock) error {
	return nil
}

func (f *svcThresholdRepo) Transition(context.Context, tenant.Scope, string, domain.SLAClock, domain.ThresholdState, domain.ThresholdState, int64) (bool, error) {
	return true, nil
}

func (f *svcThresholdRepo) ResetAll(context.Context, tenant.Scope, string, int64) error {
	f.resets++
	return nil
}

func (f *svcThresholdRepo) ClearAll(_ context.Context, _ tenant.Scope, ticketID string) error {
	f.cleared = append(f.cleared, ticketID)
	return nil
}

type svcOverrideRepo struct {
	upserted []domain.ContractSLAOverride
}

func (f *svcOverrideRepo) Get(context.Context, tenant.Scope, string) (*domain.ContractSLAOverride, error) {
	return nil, pgx.ErrNoRows
}

func (f *svcOverrideRepo) Upsert(_ context.Context, o *domain.ContractSLAOverride) error {
	f.upserted = append(f.upserted, *o)
	return nil
}

type svcFlagRepo struct {
	flags []domain.ConfigurationFlag
}

func (f *svcFlagRepo) Insert(_ context.Context, flag *domain.ConfigurationFlag) error {
	f.flags = append(f.flags, *flag)
	return nil
}

func (f *svcFlagRepo) ListOpen(context.Context, tenant.Scope, int) ([]domain.ConfigurationFlag, error) {
	return nil, nil
}

func (f *svcFlagRepo) Resolve(context.Context, tenant.Scope, string) error { return nil }

type svcResolver struct {
	res *sla.Resolution
	err error
}

func (f *svcResolver) Resolve(context.Context, tenant.Scope, *domain.Ticket) (*sla.Resolution, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type svcRuleRepo struct {
	records []repository.RuleRecord
	runs    map[string]int
}

func (f *svcRuleRepo) ListActiveByTrigger(_ context.Context, _ tenant.Scope, trigger domain.TriggerKind) ([]repository.RuleRecord, error) {
	var out []repository.RuleRecord
	for _, rec := range f.records {
		if rec.TriggerType == string(trigger) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *svcRuleRepo) RecordRun(_ context.Context, _ tenant.Scope, ruleID string) error {
	if f.runs == nil {
		f.runs = map[string]int{}
	}
	f.runs[ruleID]++
	return nil
}

func (f *svcRuleRepo) Disable(context.Context, tenant.Scope, string) error { return nil }

type svcRecordRepo struct {
	seen map[string]bool
}

func (f *svcRecordRepo) Exists(_ context.Context, scope tenant.Scope, ticketID, ruleID, eventID string) (bool, error) {
	return f.seen[scope.TenantID+ticketID+ruleID+eventID], nil
}

func (f *svcRecordRepo) Insert(_ context.Context, rec *domain.RuleExecutionRecord) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := rec.TenantID + rec.TicketID + rec.RuleID + rec.EventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *svcRecordRepo) PruneOlderThanDays(context.Context, tenant.Scope, int) (int64, error) {
	return 0, nil
}

type svcClaimer struct{}

func (svcClaimer) ClaimOnce(context.Context, string, time.Duration) bool { return true }
func (svcClaimer) ReleaseClaim(context.Context, string)                  {}

type svcEffector struct {
	commands []events.TicketCommandPayload
}

func (f *svcEffector) ApplyCommand(_ context.Context, _ tenant.Scope, _ string, cmd events.TicketCommandPayload, _ int) error {
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *svcEffector) SendNotification(context.Context, tenant.Scope, string, events.NotificationRequest) error {
	return nil
}

func (f *svcEffector) InvokeWebhook(context.Context, tenant.Scope, string, string, domain.TriggerKind) error {
	return nil
}

type svcOwnerResolver struct{}

func (svcOwnerResolver) OwnerTenant(_ context.Context, _ tenant.ReferenceKind, id string) (string, error) {
	switch id {
	case "pol-foreign":
		return "another-tenant", nil
	case "pol-missing":
		return "", tenant.ErrUnknownReference
	}
	return svcTenant, nil
}

type ingestFixture struct {
	service    *IngestService
	tickets    *svcTicketRepo
	thresholds *svcThresholdRepo
	overrides  *svcOverrideRepo
	flags      *svcFlagRepo
	effector   *svcEffector
	rules      *svcRuleRepo
	scope      tenant.Scope
}

func newIngestFixture(t *testing.T, resolver *svcResolver, rules ...repository.RuleRecord) *ingestFixture {
	t.Helper()
	ticketRepo := newSvcTicketRepo()
	thresholds := &svcThresholdRepo{}
	overrides := &svcOverrideRepo{}
	flags := &svcFlagRepo{}
	effector := &svcEffector{}
	ruleRepo := &svcRuleRepo{records: rules, runs: map[string]int{}}
	guard := tenant.NewGuard(svcOwnerResolver{})

	engine := automation.NewEngine(automation.Dependencies{
		RuleRepo:      ruleRepo,
		RecordRepo:    &svcRecordRepo{seen: map[string]bool{}},
		FlagRepo:      flags,
		Guard:         guard,
		Claimer:       svcClaimer{},
		Effector:      effector,
		Logger:        zap.NewNop(),
		Metrics:       observability.NewMetrics(),
		MaxChainDepth: 5,
		DedupeTTL:     time.Minute,
	})

	svc := NewIngestService(IngestDependencies{
		TicketRepo:         ticketRepo,
		ThresholdRepo:      thresholds,
		OverrideRepo:       overrides,
		FlagRepo:           flags,
		Resolver:           resolver,
		Engine:             engine,
		Guard:              guard,
		Logger:             zap.NewNop(),
		ConflictRetryLimit: 3,
	})
	scope, err := tenant.NewScope(svcTenant)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return &ingestFixture{
		service: svc, tickets: ticketRepo, thresholds: thresholds,
		overrides: overrides, flags: flags, effector: effector,
		rules: ruleRepo, scope: scope,
	}
}

func resolution(responseMin, resolutionMin int) *sla.Resolution {
	return &sla.Resolution{
		Policy: &domain.SLAPolicy{ID: "pol-1", TenantID: svcTenant},
		Target: &domain.SLATarget{
			PolicyID:          "pol-1",
			ResponseMinutes:   responseMin,
			ResolutionMinutes: resolutionMin,
			Multiplier:        1.0,
			Mode:              domain.SLAMode24x7,
		},
		Calendar: &domain.BusinessHoursCalendar{ID: "cal-1", TenantID: svcTenant, Timezone: "UTC"},
	}
}

func incomingTicket(created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        "tic-1",
		TenantID:  svcTenant,
		Subject:   "cannot log in",
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func changedEvent(trigger domain.TriggerKind, old, curr *domain.Ticket) (events.Event, events.TicketChangedPayload) {
	payload := events.TicketChangedPayload{Trigger: trigger, Old: old, New: curr}
	return events.Event{
		ID:        "evt-" + string(trigger),
		Type:      events.EventTicketChanged,
		TenantID:  svcTenant,
		TicketID:  curr.ID,
		Timestamp: curr.CreatedAt,
	}, payload
}

func TestHandleTicketChangedSchedulesDeadlines(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})

	evt, payload := changedEvent(domain.TriggerOnCreate, nil, incomingTicket(created))
	if err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload); err != nil {
		t.Fatalf("HandleTicketChanged: %v", err)
	}

	stored := fx.tickets.tickets["tic-1"]
	if stored == nil {
		t.Fatal("snapshot not stored")
	}
	wantResponse := created.Add(60 * time.Minute)
	wantResolution := created.Add(240 * time.Minute)
	if stored.FirstResponseDue == nil || !stored.FirstResponseDue.Equal(wantResponse) {
		t.Fatalf("first_response_due %v, want %v", stored.FirstResponseDue, wantResponse)
	}
	if stored.ResolutionDue == nil || !stored.ResolutionDue.Equal(wantResolution) {
		t.Fatalf("resolution_due %v, want %v", stored.ResolutionDue, wantResolution)
	}
	if fx.thresholds.resets != 1 {
		t.Fatalf("threshold resets %d, want 1", fx.thresholds.resets)
	}
}

func TestHandleTicketChangedIdempotentSchedule(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})

	ticket := incomingTicket(created)
	evt, payload := changedEvent(domain.TriggerOnCreate, nil, ticket)
	if err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Same snapshot again: dues unchanged, no second threshold reset.
	evt2, payload2 := changedEvent(domain.TriggerOnUpdate, ticket, incomingTicket(created))
	evt2.ID = "evt-2"
	if err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt2, payload2); err != nil {
		t.Fatalf("second: %v", err)
	}
	if fx.thresholds.resets != 1 {
		t.Fatalf("threshold resets %d, want 1", fx.thresholds.resets)
	}
}

func TestHandleTicketChangedRetriesOnConflict(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})

	conflicts := 0
	fx.tickets.onUpdate = func() {
		// A concurrent writer bumps the version once, ahead of our write.
		if conflicts == 0 {
			conflicts++
			fx.tickets.tickets["tic-1"].Version++
		}
	}

	evt, payload := changedEvent(domain.TriggerOnCreate, nil, incomingTicket(created))
	if err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload); err != nil {
		t.Fatalf("HandleTicketChanged: %v", err)
	}
	if fx.tickets.tickets["tic-1"].FirstResponseDue == nil {
		t.Fatal("schedule must land after a bounded retry")
	}
}

func TestHandleTicketChangedExhaustedRetries(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})
	fx.tickets.onUpdate = func() {
		fx.tickets.tickets["tic-1"].Version++ // conflict every attempt
	}

	evt, payload := changedEvent(domain.TriggerOnCreate, nil, incomingTicket(created))
	err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload)
	if !apperrors.IsConcurrencyConflict(err) {
		t.Fatalf("expected concurrency conflict after retry budget, got %v", err)
	}
}

func TestHandleTicketChangedUnschedulableStillRunsRules(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	resolver := &svcResolver{err: apperrors.NewConfigurationError("no SLA target for priority", nil)}
	fx := newIngestFixture(t, resolver, repository.RuleRecord{
		ID:             "r1",
		TenantID:       svcTenant,
		Name:           "note on create",
		Active:         true,
		TriggerType:    string(domain.TriggerOnCreate),
		ActionsJSON:    []byte(`[{"kind":"add_note","note_body":"welcome"}]`),
		ConditionsJSON: nil,
	})

	evt, payload := changedEvent(domain.TriggerOnCreate, nil, incomingTicket(created))
	if err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload); err != nil {
		t.Fatalf("HandleTicketChanged: %v", err)
	}

	if len(fx.flags.flags) != 1 || fx.flags.flags[0].Code != "unschedulable" {
		t.Fatalf("expected unschedulable flag, got %+v", fx.flags.flags)
	}
	if len(fx.effector.commands) != 1 {
		t.Fatalf("rules must still run for an unschedulable ticket, got %d commands", len(fx.effector.commands))
	}
}

func TestHandleTicketChangedRejectsCrossTenantSnapshot(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})

	foreign := incomingTicket(created)
	foreign.TenantID = "7b0d1c3a-9d4e-4f55-8a10-999999999999"
	evt, payload := changedEvent(domain.TriggerOnCreate, nil, foreign)

	err := fx.service.HandleTicketChanged(context.Background(), fx.scope, evt, payload)
	if !apperrors.IsCrossTenantReference(err) {
		t.Fatalf("expected cross-tenant rejection, got %v", err)
	}
	if len(fx.tickets.tickets) != 0 {
		t.Fatal("no snapshot may be written for a foreign tenant")
	}
}

func TestHandleTicketClosedClearsThresholds(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})
	fx.tickets.tickets["tic-1"] = incomingTicket(created)

	closedAt := created.Add(2 * time.Hour)
	if err := fx.service.HandleTicketClosed(context.Background(), fx.scope, "tic-1", closedAt); err != nil {
		t.Fatalf("HandleTicketClosed: %v", err)
	}
	if fx.tickets.tickets["tic-1"].ClosedAt == nil {
		t.Fatal("ticket not marked closed")
	}
	if len(fx.thresholds.cleared) != 1 || fx.thresholds.cleared[0] != "tic-1" {
		t.Fatalf("thresholds not cleared: %+v", fx.thresholds.cleared)
	}
}

func TestHandleContractOverrideValidatesPolicyOwnership(t *testing.T) {
	fx := newIngestFixture(t, &svcResolver{res: resolution(60, 240)})

	if err := fx.service.HandleContractOverride(context.Background(), fx.scope, "contract-1", "pol-1"); err != nil {
		t.Fatalf("HandleContractOverride: %v", err)
	}
	if len(fx.overrides.upserted) != 1 {
		t.Fatalf("override not stored: %+v", fx.overrides.upserted)
	}

	err := fx.service.HandleContractOverride(context.Background(), fx.scope, "contract-2", "pol-foreign")
	if !apperrors.IsCrossTenantReference(err) {
		t.Fatalf("expected cross-tenant rejection, got %v", err)
	}
	err = fx.service.HandleContractOverride(context.Background(), fx.scope, "contract-3", "pol-missing")
	if err == nil || apperrors.IsCrossTenantReference(err) {
		t.Fatalf("expected validation failure for unknown policy, got %v", err)
	}
	if len(fx.overrides.upserted) != 1 {
		t.Fatal("rejected overrides must not be stored")
	}
}

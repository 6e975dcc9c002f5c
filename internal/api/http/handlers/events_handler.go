package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// tenantHeader names the operating tenant on every request. The surface is
// internal; upstream gateways authenticate callers and set this header.
const tenantHeader = "X-Tenant-ID"

func scopeFromRequest(c *fiber.Ctx) (tenant.Scope, error) {
	return tenant.NewScope(c.Get(tenantHeader))
}

// EventsHandler receives collaborator notifications.
type EventsHandler struct {
	ingest *service.IngestService
}

// NewEventsHandler constructs handler.
func NewEventsHandler(ingest *service.IngestService) *EventsHandler {
	return &EventsHandler{ingest: ingest}
}

// TicketChanged POST /events/ticket-changed.
func (h *EventsHandler) TicketChanged(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.TicketChangedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.New == nil || req.New.ID == "" {
		return apperrors.NewValidationError("new snapshot with id required", nil)
	}

	trigger := domain.TriggerKind(req.Trigger)
	if req.Trigger != "" {
		parsed, ok := domain.ParseTriggerKind(req.Trigger)
		if !ok || (parsed != domain.TriggerOnCreate && parsed != domain.TriggerOnUpdate) {
			return apperrors.NewValidationError("trigger must be on_create or on_update", map[string]any{
				"trigger": req.Trigger,
			})
		}
		trigger = parsed
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	evt := events.Event{
		ID:         eventID,
		Type:       events.EventTicketChanged,
		TenantID:   scope.TenantID,
		TicketID:   req.New.ID,
		ChainDepth: req.ChainDepth,
		Timestamp:  time.Now().UTC(),
	}
	payload := events.TicketChangedPayload{
		Trigger: trigger,
		Old:     req.Old.ToDomain(),
		New:     req.New.ToDomain(),
	}
	if err := h.ingest.HandleTicketChanged(c.UserContext(), scope, evt, payload); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"event_id": eventID}})
}

// TicketClosed POST /events/ticket-closed.
func (h *EventsHandler) TicketClosed(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.TicketClosedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	closedAt := time.Now().UTC()
	if req.ClosedAt != nil {
		closedAt = *req.ClosedAt
	}
	if err := h.ingest.HandleTicketClosed(c.UserContext(), scope, req.TicketID, closedAt); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"ticket_id": req.TicketID}})
}

// ContractOverride POST /events/contract-sla-override.
func (h *EventsHandler) ContractOverride(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.ContractOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.ingest.HandleContractOverride(c.UserContext(), scope, req.ContractID, req.PolicyID); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"contract_id": req.ContractID}})
}

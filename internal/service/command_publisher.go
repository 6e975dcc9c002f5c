package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// WebhookSender delivers a signed webhook call. Implemented by
// WebhookDispatcher; an interface so the publisher is testable without HTTP.
type WebhookSender interface {
	Send(ctx context.Context, scope tenant.Scope, url string, body WebhookBody) error
}

// CommandPublisher translates rule side effects into published events. Ticket
// mutations travel as ticket_command events for the ticketing collaborator;
// notifications as notification_request for the notification collaborator.
// This core never writes ticket storage on a rule's behalf.
type CommandPublisher struct {
	dispatcher events.Dispatcher
	webhooks   WebhookSender
	logger     *zap.Logger
}

// NewCommandPublisher constructs the publisher.
func NewCommandPublisher(dispatcher events.Dispatcher, webhooks WebhookSender, logger *zap.Logger) *CommandPublisher {
	return &CommandPublisher{dispatcher: dispatcher, webhooks: webhooks, logger: logger}
}

// ApplyCommand publishes a ticket mutation command. ChainDepth rides the
// envelope so commands that create tickets keep their causal lineage.
func (p *CommandPublisher) ApplyCommand(ctx context.Context, scope tenant.Scope, ticketID string, cmd events.TicketCommandPayload, chainDepth int) error {
	return p.dispatcher.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventTicketCommand,
		TenantID:   scope.TenantID,
		TicketID:   ticketID,
		ChainDepth: chainDepth,
		Timestamp:  time.Now().UTC(),
		Payload:    cmd,
	})
}

// SendNotification hands the request off; delivery, retry and backoff are the
// notification collaborator's concern.
func (p *CommandPublisher) SendNotification(ctx context.Context, scope tenant.Scope, ticketID string, req events.NotificationRequest) error {
	return p.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventNotificationRequest,
		TenantID:  scope.TenantID,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
		Payload:   req,
	})
}

// InvokeWebhook hands the call off without awaiting delivery, so a slow or
// dead endpoint never stalls rule evaluation for the ticket. Hand-off is
// success; the delivery itself is at-most-once and a failure is only logged.
func (p *CommandPublisher) InvokeWebhook(ctx context.Context, scope tenant.Scope, ticketID, url string, trigger domain.TriggerKind) error {
	body := WebhookBody{
		TenantID:  scope.TenantID,
		TicketID:  ticketID,
		Trigger:   string(trigger),
		Timestamp: time.Now().UTC(),
	}
	go func() {
		// Detached from the triggering request: cancellation there must
		// not abort a delivery already handed off.
		if err := p.webhooks.Send(context.Background(), scope, url, body); err != nil {
			p.logger.Warn("webhook delivery failed",
				zap.String("tenant_id", scope.TenantID),
				zap.String("ticket_id", ticketID),
				zap.String("url", url),
				zap.Error(err))
		}
	}()
	return nil
}

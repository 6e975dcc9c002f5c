package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

const pubTenant = "7b0d1c3a-9d4e-4f55-8a10-666666666666"

// stubWebhookSender blocks each delivery until release is closed, so tests
// can observe whether the caller waited for it.
type stubWebhookSender struct {
	calls   chan WebhookBody
	release chan struct{}
	err     error
}

func (s *stubWebhookSender) Send(_ context.Context, _ tenant.Scope, _ string, body WebhookBody) error {
	if s.release != nil {
		<-s.release
	}
	s.calls <- body
	return s.err
}

func pubScope(t *testing.T) tenant.Scope {
	t.Helper()
	scope, err := tenant.NewScope(pubTenant)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return scope
}

func TestInvokeWebhookDoesNotAwaitDelivery(t *testing.T) {
	sender := &stubWebhookSender{
		calls:   make(chan WebhookBody, 1),
		release: make(chan struct{}),
	}
	pub := NewCommandPublisher(events.NewInMemoryDispatcher(), sender, zap.NewNop())

	if err := pub.InvokeWebhook(context.Background(), pubScope(t), "tic-1", "https://hooks.example.com/x", domain.TriggerOnSLABreach); err != nil {
		t.Fatalf("InvokeWebhook should return on hand-off, got %v", err)
	}

	select {
	case <-sender.calls:
		t.Fatal("delivery completed before release; the call was awaited")
	default:
	}

	close(sender.release)
	select {
	case body := <-sender.calls:
		if body.TicketID != "tic-1" || body.Trigger != string(domain.TriggerOnSLABreach) {
			t.Fatalf("unexpected webhook body %+v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never ran after hand-off")
	}
}

func TestInvokeWebhookDeliveryFailureIsNotSurfaced(t *testing.T) {
	sender := &stubWebhookSender{
		calls: make(chan WebhookBody, 1),
		err:   errors.New("endpoint returned 503"),
	}
	pub := NewCommandPublisher(events.NewInMemoryDispatcher(), sender, zap.NewNop())

	if err := pub.InvokeWebhook(context.Background(), pubScope(t), "tic-1", "https://hooks.example.com/x", domain.TriggerOnCreate); err != nil {
		t.Fatalf("hand-off must succeed even when delivery will fail, got %v", err)
	}

	select {
	case <-sender.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never attempted")
	}
}

func TestApplyCommandPublishesWithChainDepth(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	var got events.Event
	dispatcher.Subscribe(events.EventTicketCommand, func(_ context.Context, evt events.Event) error {
		got = evt
		return nil
	})
	pub := NewCommandPublisher(dispatcher, &stubWebhookSender{calls: make(chan WebhookBody, 1)}, zap.NewNop())

	cmd := events.TicketCommandPayload{Kind: events.CommandCreateChild, ChildSubject: "follow-up", RuleID: "r1"}
	if err := pub.ApplyCommand(context.Background(), pubScope(t), "tic-1", cmd, 3); err != nil {
		t.Fatalf("ApplyCommand: %v", err)
	}

	if got.Type != events.EventTicketCommand || got.ChainDepth != 3 {
		t.Fatalf("published envelope %+v, want ticket_command at chain depth 3", got)
	}
	payload, ok := got.Payload.(events.TicketCommandPayload)
	if !ok || payload.Kind != events.CommandCreateChild {
		t.Fatalf("unexpected payload %+v", got.Payload)
	}
}

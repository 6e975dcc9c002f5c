package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// WebhookBody is the JSON document POSTed to rule-configured endpoints.
type WebhookBody struct {
	TenantID  string    `json:"tenant_id"`
	TicketID  string    `json:"ticket_id"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookDispatcher POSTs rule-configured webhook calls, authenticated with a
// short-lived HS256 token so receivers can verify origin and tenant.
type WebhookDispatcher struct {
	client *http.Client
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
}

// NewWebhookDispatcher constructs the dispatcher from webhook config.
func NewWebhookDispatcher(cfg config.WebhookConfig, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: cfg.Timeout()},
		secret: []byte(cfg.SigningSecret),
		ttl:    cfg.TokenTTL(),
		logger: logger,
	}
}

// Send delivers one webhook call. The bearer token scopes the call to the
// tenant and expires quickly; replaying it past the TTL fails verification.
func (d *WebhookDispatcher) Send(ctx context.Context, scope tenant.Scope, url string, body WebhookBody) error {
	token, err := d.signToken(scope, body.TicketID)
	if err != nil {
		return fmt.Errorf("sign webhook token: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	d.logger.Debug("webhook delivered",
		zap.String("tenant_id", scope.TenantID),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode))
	return nil
}

func (d *WebhookDispatcher) signToken(scope tenant.Scope, ticketID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": "sla-engine",
		"sub": scope.TenantID,
		"tid": ticketID,
		"iat": now.Unix(),
		"exp": now.Add(d.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}

// Package dto defines the wire shapes of the engine's HTTP surface.
package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketSnapshot is the wire form of a ticket state observed by the
// ticketing collaborator.
type TicketSnapshot struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	Subject         string            `json:"subject"`
	Status          string            `json:"status"`
	Priority        string            `json:"priority"`
	QueueID         *string           `json:"queue_id,omitempty"`
	TeamID          *string           `json:"team_id,omitempty"`
	AssigneeID      *string           `json:"assignee_id,omitempty"`
	ContractID      *string           `json:"contract_id,omitempty"`
	SLAPolicyID     *string           `json:"sla_policy_id,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	CustomFields    map[string]string `json:"custom_fields,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	FirstResponseAt *time.Time        `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
}

// ToDomain converts the snapshot. Due timestamps are absent on purpose: this
// core owns them and never accepts them from outside.
func (s *TicketSnapshot) ToDomain() *domain.Ticket {
	if s == nil {
		return nil
	}
	return &domain.Ticket{
		ID:              s.ID,
		TenantID:        s.TenantID,
		Subject:         s.Subject,
		Status:          domain.TicketStatus(s.Status),
		Priority:        domain.TicketPriority(s.Priority),
		QueueID:         s.QueueID,
		TeamID:          s.TeamID,
		AssigneeID:      s.AssigneeID,
		ContractID:      s.ContractID,
		SLAPolicyID:     s.SLAPolicyID,
		Tags:            s.Tags,
		CustomFields:    s.CustomFields,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		FirstResponseAt: s.FirstResponseAt,
		ResolvedAt:      s.ResolvedAt,
		ClosedAt:        s.ClosedAt,
	}
}

// TicketChangedRequest carries a create or update notification.
type TicketChangedRequest struct {
	EventID    string          `json:"event_id"`
	Trigger    string          `json:"trigger,omitempty"`
	ChainDepth int             `json:"chain_depth,omitempty"`
	Old        *TicketSnapshot `json:"old,omitempty"`
	New        *TicketSnapshot `json:"new"`
}

// TicketClosedRequest removes a ticket from the working set.
type TicketClosedRequest struct {
	TicketID string     `json:"ticket_id"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// ContractOverrideRequest pins a contract to a policy.
type ContractOverrideRequest struct {
	ContractID string `json:"contract_id"`
	PolicyID   string `json:"sla_policy_id"`
}

// RuleValidationRequest checks a rule document before the settings
// collaborator persists it.
type RuleValidationRequest struct {
	TriggerType string          `json:"trigger_type"`
	Conditions  json.RawMessage `json:"conditions"`
	Actions     json.RawMessage `json:"actions"`
}

// ValidationResponse reports document validity with per-problem detail.
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// CalendarValidationRequest checks a business-hours calendar document.
type CalendarValidationRequest struct {
	Timezone string            `json:"timezone"`
	Windows  map[string]Window `json:"windows"`
	Holidays []string          `json:"holidays,omitempty"`
}

// Window is one weekday's open interval in minutes from midnight.
type Window struct {
	OpenMinute  int `json:"open_minute"`
	CloseMinute int `json:"close_minute"`
}

// FlagSummary is the admin view of one configuration flag.
type FlagSummary struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	SubjectID string    `json:"subject_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// FlagSummaryFrom maps a domain flag.
func FlagSummaryFrom(f *domain.ConfigurationFlag) FlagSummary {
	return FlagSummary{
		ID:        f.ID,
		Subject:   string(f.Subject),
		SubjectID: f.SubjectID,
		Code:      f.Code,
		Message:   f.Message,
		CreatedAt: f.CreatedAt,
	}
}

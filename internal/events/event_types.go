package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// Inbound from collaborators.
	EventTicketChanged       EventType = "ticket_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventContractSLAOverride EventType = "contract_sla_override"

	// Produced by the sweep.
	EventSLAWarning EventType = "sla_warning"
	EventSLABreach  EventType = "sla_breach"

	// Produced by rule actions.
	EventNotificationRequest EventType = "notification_request"
	EventTicketCommand       EventType = "ticket_command"
)

// Event is the envelope every published event rides in. ChainDepth counts
// automation-triggered ticket creations along the causal lineage and bounds
// recursive automation without call-stack recursion.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	TenantID   string      `json:"tenant_id"`
	TicketID   string      `json:"ticket_id,omitempty"`
	ChainDepth int         `json:"chain_depth"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// TicketChangedPayload carries old and new snapshots so on-update conditions
// can compare field transitions.
type TicketChangedPayload struct {
	Trigger domain.TriggerKind `json:"trigger"`
	Old     *domain.Ticket     `json:"old,omitempty"`
	New     *domain.Ticket     `json:"new"`
}

// TicketClosedPayload marks a ticket as leaving the sweep's working set.
type TicketClosedPayload struct {
	ClosedAt time.Time `json:"closed_at"`
}

// ContractSLAOverridePayload pins a contract to a policy.
type ContractSLAOverridePayload struct {
	ContractID string `json:"contract_id"`
	PolicyID   string `json:"sla_policy_id"`
}

// SLAThresholdPayload is shared by warning and breach events.
type SLAThresholdPayload struct {
	Clock          domain.SLAClock `json:"clock"`
	Due            time.Time       `json:"due"`
	ElapsedMinutes int             `json:"elapsed_minutes"`
	TargetMinutes  int             `json:"target_minutes"`
}

// NotificationRequest is handed to the notification collaborator; delivery,
// retry and backoff are its responsibility.
type NotificationRequest struct {
	Channel           string `json:"channel"`
	TemplateID        string `json:"template_id"`
	RecipientSelector string `json:"recipient_selector"`
	RuleID            string `json:"rule_id,omitempty"`
}

// TicketCommandKind enumerates mutations requested of the ticketing
// collaborator. This core never writes ticket storage directly.
type TicketCommandKind string

const (
	CommandSetField    TicketCommandKind = "set_field"
	CommandAssignUser  TicketCommandKind = "assign_user"
	CommandAssignTeam  TicketCommandKind = "assign_team"
	CommandChangeQueue TicketCommandKind = "change_queue"
	CommandAddNote     TicketCommandKind = "add_note"
	CommandCreateChild TicketCommandKind = "create_child_ticket"
	CommandEscalate    TicketCommandKind = "escalate"
	CommandApplyPolicy TicketCommandKind = "apply_sla_policy"
)

// TicketCommandPayload is a field-mutation command produced by rule actions.
type TicketCommandPayload struct {
	Kind          TicketCommandKind     `json:"kind"`
	Field         string                `json:"field,omitempty"`
	Value         string                `json:"value,omitempty"`
	UserID        string                `json:"user_id,omitempty"`
	TeamID        string                `json:"team_id,omitempty"`
	QueueID       string                `json:"queue_id,omitempty"`
	NoteBody      string                `json:"note_body,omitempty"`
	PolicyID      string                `json:"sla_policy_id,omitempty"`
	ChildSubject  string                `json:"child_subject,omitempty"`
	ChildPriority domain.TicketPriority `json:"child_priority,omitempty"`
	ChildQueueID  string                `json:"child_queue_id,omitempty"`
	RuleID        string                `json:"rule_id"`
}

package domain

import "time"

// TicketStatus enumerates lifecycle states observed from the ticketing
// collaborator.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Ticket is the subset of the ticketing collaborator's aggregate this core
// consumes. Due timestamps are the only fields this core mutates; everything
// else is observed. Version increments on every write and backs optimistic
// concurrency in the sweep.
type Ticket struct {
	ID               string
	TenantID         string
	Subject          string
	Status           TicketStatus
	Priority         TicketPriority
	QueueID          *string
	TeamID           *string
	AssigneeID       *string
	ContractID       *string
	SLAPolicyID      *string
	Tags             []string
	CustomFields     map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FirstResponseDue *time.Time
	FirstResponseAt  *time.Time
	ResolutionDue    *time.Time
	ResolvedAt       *time.Time
	ClosedAt         *time.Time
	Version          int64
}

// IsOpen reports whether the ticket still participates in sweeps at all.
func (t *Ticket) IsOpen() bool {
	return t.ClosedAt == nil &&
		t.Status != TicketStatusClosed &&
		t.Status != TicketStatusCancelled
}

// ClockActive reports whether the given SLA clock is still running: a clock
// stops once its activity is recorded or the ticket leaves the open set.
func (t *Ticket) ClockActive(clock SLAClock) bool {
	if !t.IsOpen() {
		return false
	}
	switch clock {
	case ClockFirstResponse:
		return t.FirstResponseAt == nil && t.FirstResponseDue != nil
	case ClockResolution:
		return t.ResolvedAt == nil && t.ResolutionDue != nil
	}
	return false
}

// DueFor returns the due timestamp for a clock, nil when unscheduled.
func (t *Ticket) DueFor(clock SLAClock) *time.Time {
	switch clock {
	case ClockFirstResponse:
		return t.FirstResponseDue
	case ClockResolution:
		return t.ResolutionDue
	}
	return nil
}

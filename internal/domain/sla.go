package domain

import "time"

// SLAMode selects how a target's clock accrues time.
type SLAMode string

const (
	SLAModeBusinessHours SLAMode = "business_hours"
	SLAMode24x7          SLAMode = "24x7"
)

// SLAPolicy is a tenant-owned bundle of per-priority targets bound to one
// business-hours calendar. Exactly one policy per tenant carries IsDefault.
type SLAPolicy struct {
	ID         string
	TenantID   string
	Name       string
	CalendarID string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SLATarget holds the response/resolution durations for one (policy,
// priority) pair. Multiplier scales both durations; seed data keeps it 1.0.
type SLATarget struct {
	ID                string
	PolicyID          string
	Priority          TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	Multiplier        float64
	Mode              SLAMode
}

// EffectiveResponseMinutes applies the multiplier to the response duration.
func (t *SLATarget) EffectiveResponseMinutes() int {
	return scaleMinutes(t.ResponseMinutes, t.Multiplier)
}

// EffectiveResolutionMinutes applies the multiplier to the resolution duration.
func (t *SLATarget) EffectiveResolutionMinutes() int {
	return scaleMinutes(t.ResolutionMinutes, t.Multiplier)
}

func scaleMinutes(minutes int, multiplier float64) int {
	if multiplier <= 0 || multiplier == 1.0 {
		return minutes
	}
	return int(float64(minutes) * multiplier)
}

// ContractSLAOverride pins a contract to a specific policy, taking precedence
// over the tenant default when resolving a ticket's target.
type ContractSLAOverride struct {
	TenantID   string
	ContractID string
	PolicyID   string
	UpdatedAt  time.Time
}

// SLAClock distinguishes the two deadline dimensions tracked per ticket.
type SLAClock string

const (
	ClockFirstResponse SLAClock = "first_response"
	ClockResolution    SLAClock = "resolution"
)

// ThresholdState is the last threshold crossed and notified for one clock.
// Transitions are compare-and-set so each threshold emits at most once.
type ThresholdState string

const (
	ThresholdNone    ThresholdState = "none"
	ThresholdWarning ThresholdState = "warning"
	ThresholdBreach  ThresholdState = "breach"
	ThresholdCleared ThresholdState = "cleared"
)

// SLAThresholdState is the per-(ticket, clock) threshold record. TicketVersion
// snapshots the ticket version observed when the state was written.
type SLAThresholdState struct {
	TenantID      string
	TicketID      string
	Clock         SLAClock
	State         ThresholdState
	TicketVersion int64
	UpdatedAt     time.Time
}

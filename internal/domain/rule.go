package domain

import (
	"regexp"
	"time"
)

// TriggerKind is the lifecycle event kind that causes a rule to be considered.
type TriggerKind string

const (
	TriggerOnCreate     TriggerKind = "on_create"
	TriggerOnUpdate     TriggerKind = "on_update"
	TriggerOnSchedule   TriggerKind = "on_schedule"
	TriggerOnSLAWarning TriggerKind = "on_sla_warning"
	TriggerOnSLABreach  TriggerKind = "on_sla_breach"
	TriggerOnAging      TriggerKind = "on_aging"
)

// ParseTriggerKind validates a stored trigger string.
func ParseTriggerKind(s string) (TriggerKind, bool) {
	switch TriggerKind(s) {
	case TriggerOnCreate, TriggerOnUpdate, TriggerOnSchedule,
		TriggerOnSLAWarning, TriggerOnSLABreach, TriggerOnAging:
		return TriggerKind(s), true
	}
	return "", false
}

// PredicateOp is the closed set of comparison kinds a condition leaf may use.
type PredicateOp string

const (
	OpEquals          PredicateOp = "equals"
	OpNotEquals       PredicateOp = "not_equals"
	OpContains        PredicateOp = "contains"
	OpStartsWith      PredicateOp = "starts_with"
	OpEndsWith        PredicateOp = "ends_with"
	OpRegexMatch      PredicateOp = "regex_match"
	OpGreaterThan     PredicateOp = "greater_than"
	OpGreaterOrEqual  PredicateOp = "greater_or_equal"
	OpLessThan        PredicateOp = "less_than"
	OpLessOrEqual     PredicateOp = "less_or_equal"
	OpWithinLastHours PredicateOp = "within_last_hours"
	OpInSet           PredicateOp = "in_set"
	OpChangedFromTo   PredicateOp = "changed_from_to"
	OpIsEmpty         PredicateOp = "is_empty"
	OpIsNotEmpty      PredicateOp = "is_not_empty"
)

// Condition is a node of the boolean expression tree. Exactly one of the
// composite slices or the leaf Predicate is populated per node.
type Condition interface {
	isCondition()
}

// AllOf matches when every child matches. An empty child list matches.
type AllOf struct {
	Conditions []Condition
}

// AnyOf matches when at least one child matches.
type AnyOf struct {
	Conditions []Condition
}

// Not inverts its child.
type Not struct {
	Condition Condition
}

// Predicate is a leaf comparison against one ticket field. Pattern is
// compiled once at rule-load time. A reference to a field the snapshot does
// not carry evaluates to a non-match, never an error.
type Predicate struct {
	Field   string
	Op      PredicateOp
	Value   string
	Values  []string
	Number  float64
	Hours   int
	From    string
	To      string
	Pattern *regexp.Regexp
}

func (AllOf) isCondition()     {}
func (AnyOf) isCondition()     {}
func (Not) isCondition()       {}
func (Predicate) isCondition() {}

// ActionKind is the closed set of operations a rule may perform.
type ActionKind string

const (
	ActionSetField          ActionKind = "set_field"
	ActionAssignToUser      ActionKind = "assign_to_user"
	ActionAssignToTeam      ActionKind = "assign_to_team"
	ActionChangeQueue       ActionKind = "change_queue"
	ActionAddNote           ActionKind = "add_note"
	ActionSendNotification  ActionKind = "send_notification"
	ActionCreateChildTicket ActionKind = "create_child_ticket"
	ActionEscalate          ActionKind = "escalate"
	ActionApplySLAPolicy    ActionKind = "apply_sla_policy"
	ActionInvokeWebhook     ActionKind = "invoke_webhook"
	ActionStopProcessing    ActionKind = "stop_processing"
)

// Action carries the typed payload for one action kind. Fields irrelevant to
// the kind stay zero.
type Action struct {
	Kind ActionKind

	Field string
	Value string

	UserID  string
	TeamID  string
	QueueID string

	NoteBody string

	Channel           string
	TemplateID        string
	RecipientSelector string

	ChildSubject  string
	ChildPriority TicketPriority
	ChildQueueID  string

	PolicyID string

	WebhookURL string
}

// AutomationRule is tenant-authored configuration consumed read-only by the
// engine. Condition and Actions are parsed from their stored documents once
// at load time; a rule that fails to parse is disabled and flagged.
type AutomationRule struct {
	ID          string
	TenantID    string
	Name        string
	Description *string
	Active      bool
	Trigger     TriggerKind
	Priority    int
	Condition   Condition
	Actions     []Action
	LastRunAt   *time.Time
	RunCount    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StopsProcessing reports whether the rule's action list halts evaluation of
// later rules for the same event.
func (r *AutomationRule) StopsProcessing() bool {
	for _, a := range r.Actions {
		if a.Kind == ActionStopProcessing {
			return true
		}
	}
	return false
}

// RuleExecutionRecord marks a rule's action set as applied for one triggering
// event. Append-only; the (tenant, ticket, rule, event) key is the natural
// idempotency key.
type RuleExecutionRecord struct {
	TenantID  string
	TicketID  string
	RuleID    string
	EventID   string
	Status    string
	Message   string
	AppliedAt time.Time
}

const (
	ExecutionStatusApplied = "applied"
	ExecutionStatusSkipped = "skipped"
)

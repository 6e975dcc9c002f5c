package automation

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// conditionDoc is the stored wire form of a condition node. Exactly one of
// All, Any, Not or the leaf fields should be set.
type conditionDoc struct {
	All []conditionDoc `json:"all,omitempty"`
	Any []conditionDoc `json:"any,omitempty"`
	Not *conditionDoc  `json:"not,omitempty"`

	Field  string   `json:"field,omitempty"`
	Op     string   `json:"op,omitempty"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
	Number float64  `json:"number,omitempty"`
	Hours  int      `json:"hours,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
}

// actionDoc is the stored wire form of one action.
type actionDoc struct {
	Kind string `json:"kind"`

	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`

	UserID  string `json:"user_id,omitempty"`
	TeamID  string `json:"team_id,omitempty"`
	QueueID string `json:"queue_id,omitempty"`

	NoteBody string `json:"note_body,omitempty"`

	Channel           string `json:"channel,omitempty"`
	TemplateID        string `json:"template_id,omitempty"`
	RecipientSelector string `json:"recipient_selector,omitempty"`

	ChildSubject  string `json:"child_subject,omitempty"`
	ChildPriority string `json:"child_priority,omitempty"`
	ChildQueueID  string `json:"child_queue_id,omitempty"`

	PolicyID string `json:"sla_policy_id,omitempty"`

	WebhookURL string `json:"webhook_url,omitempty"`
}

// ParseRule turns a stored rule row into its evaluated form. Condition and
// action documents are parsed and validated here, once, so evaluation never
// re-interprets JSON.
func ParseRule(rec repository.RuleRecord) (*domain.AutomationRule, error) {
	trigger, ok := domain.ParseTriggerKind(rec.TriggerType)
	if !ok {
		return nil, apperrors.NewConfigurationError("unknown trigger kind", map[string]any{
			"rule_id": rec.ID,
			"trigger": rec.TriggerType,
		})
	}

	cond, err := ParseCondition(rec.ConditionsJSON)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("malformed condition: %v", err), map[string]any{
			"rule_id": rec.ID,
		})
	}
	actions, err := ParseActions(rec.ActionsJSON)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("malformed actions: %v", err), map[string]any{
			"rule_id": rec.ID,
		})
	}

	return &domain.AutomationRule{
		ID:          rec.ID,
		TenantID:    rec.TenantID,
		Name:        rec.Name,
		Description: rec.Description,
		Active:      rec.Active,
		Trigger:     trigger,
		Priority:    rec.Priority,
		Condition:   cond,
		Actions:     actions,
		LastRunAt:   rec.LastRunAt,
		RunCount:    rec.RunCount,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

// ParseCondition parses a condition document. An empty document always
// matches.
func ParseCondition(raw []byte) (domain.Condition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return domain.AllOf{}, nil
	}
	var doc conditionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return buildCondition(doc)
}

func buildCondition(doc conditionDoc) (domain.Condition, error) {
	composites := 0
	if len(doc.All) > 0 {
		composites++
	}
	if len(doc.Any) > 0 {
		composites++
	}
	if doc.Not != nil {
		composites++
	}
	if composites > 1 || (composites == 1 && doc.Op != "") {
		return nil, fmt.Errorf("condition node mixes composite and leaf forms")
	}

	switch {
	case len(doc.All) > 0:
		children, err := buildChildren(doc.All)
		if err != nil {
			return nil, err
		}
		return domain.AllOf{Conditions: children}, nil
	case len(doc.Any) > 0:
		children, err := buildChildren(doc.Any)
		if err != nil {
			return nil, err
		}
		return domain.AnyOf{Conditions: children}, nil
	case doc.Not != nil:
		child, err := buildCondition(*doc.Not)
		if err != nil {
			return nil, err
		}
		return domain.Not{Condition: child}, nil
	}
	return buildPredicate(doc)
}

func buildChildren(docs []conditionDoc) ([]domain.Condition, error) {
	children := make([]domain.Condition, 0, len(docs))
	for _, d := range docs {
		child, err := buildCondition(d)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func buildPredicate(doc conditionDoc) (domain.Condition, error) {
	if doc.Field == "" {
		return nil, fmt.Errorf("predicate missing field")
	}
	op := domain.PredicateOp(doc.Op)
	pred := domain.Predicate{
		Field:  doc.Field,
		Op:     op,
		Value:  doc.Value,
		Values: doc.Values,
		Number: doc.Number,
		Hours:  doc.Hours,
		From:   doc.From,
		To:     doc.To,
	}

	switch op {
	case domain.OpEquals, domain.OpNotEquals, domain.OpContains,
		domain.OpStartsWith, domain.OpEndsWith,
		domain.OpIsEmpty, domain.OpIsNotEmpty:
	case domain.OpRegexMatch:
		re, err := regexp.Compile(doc.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: invalid pattern: %w", doc.Field, err)
		}
		pred.Pattern = re
	case domain.OpGreaterThan, domain.OpGreaterOrEqual,
		domain.OpLessThan, domain.OpLessOrEqual:
	case domain.OpWithinLastHours:
		if doc.Hours <= 0 {
			return nil, fmt.Errorf("field %s: within_last_hours needs positive hours", doc.Field)
		}
	case domain.OpInSet:
		if len(doc.Values) == 0 {
			return nil, fmt.Errorf("field %s: in_set needs values", doc.Field)
		}
	case domain.OpChangedFromTo:
	default:
		return nil, fmt.Errorf("field %s: unknown operator %q", doc.Field, doc.Op)
	}
	return pred, nil
}

// ParseActions parses an action list document, validating each kind's
// required payload.
func ParseActions(raw []byte) ([]domain.Action, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("rule has no actions")
	}
	var docs []actionDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("rule has no actions")
	}

	actions := make([]domain.Action, 0, len(docs))
	for i, doc := range docs {
		action, err := buildAction(doc)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func buildAction(doc actionDoc) (domain.Action, error) {
	kind := domain.ActionKind(doc.Kind)
	action := domain.Action{
		Kind:              kind,
		Field:             doc.Field,
		Value:             doc.Value,
		UserID:            doc.UserID,
		TeamID:            doc.TeamID,
		QueueID:           doc.QueueID,
		NoteBody:          doc.NoteBody,
		Channel:           doc.Channel,
		TemplateID:        doc.TemplateID,
		RecipientSelector: doc.RecipientSelector,
		ChildSubject:      doc.ChildSubject,
		ChildPriority:     domain.TicketPriority(doc.ChildPriority),
		ChildQueueID:      doc.ChildQueueID,
		PolicyID:          doc.PolicyID,
		WebhookURL:        doc.WebhookURL,
	}

	switch kind {
	case domain.ActionSetField:
		if doc.Field == "" {
			return action, fmt.Errorf("set_field needs field")
		}
	case domain.ActionAssignToUser:
		if doc.UserID == "" {
			return action, fmt.Errorf("assign_to_user needs user_id")
		}
	case domain.ActionAssignToTeam:
		if doc.TeamID == "" {
			return action, fmt.Errorf("assign_to_team needs team_id")
		}
	case domain.ActionChangeQueue:
		if doc.QueueID == "" {
			return action, fmt.Errorf("change_queue needs queue_id")
		}
	case domain.ActionAddNote:
		if doc.NoteBody == "" {
			return action, fmt.Errorf("add_note needs note_body")
		}
	case domain.ActionSendNotification:
		if doc.Channel == "" || doc.TemplateID == "" {
			return action, fmt.Errorf("send_notification needs channel and template_id")
		}
	case domain.ActionCreateChildTicket:
		if doc.ChildSubject == "" {
			return action, fmt.Errorf("create_child_ticket needs child_subject")
		}
	case domain.ActionEscalate:
	case domain.ActionApplySLAPolicy:
		if doc.PolicyID == "" {
			return action, fmt.Errorf("apply_sla_policy needs sla_policy_id")
		}
	case domain.ActionInvokeWebhook:
		if doc.WebhookURL == "" {
			return action, fmt.Errorf("invoke_webhook needs webhook_url")
		}
	case domain.ActionStopProcessing:
	default:
		return action, fmt.Errorf("unknown action kind %q", doc.Kind)
	}
	return action, nil
}

// CollectReferences lists the tenant-owned entities an action set points at,
// for save-time cross-tenant validation.
func CollectReferences(actions []domain.Action) []tenant.Reference {
	var refs []tenant.Reference
	for _, a := range actions {
		switch a.Kind {
		case domain.ActionAssignToUser:
			refs = append(refs, tenant.Reference{Kind: tenant.RefUser, ID: a.UserID})
		case domain.ActionAssignToTeam:
			refs = append(refs, tenant.Reference{Kind: tenant.RefTeam, ID: a.TeamID})
		case domain.ActionChangeQueue:
			refs = append(refs, tenant.Reference{Kind: tenant.RefQueue, ID: a.QueueID})
		case domain.ActionApplySLAPolicy:
			refs = append(refs, tenant.Reference{Kind: tenant.RefPolicy, ID: a.PolicyID})
		case domain.ActionCreateChildTicket:
			if a.ChildQueueID != "" {
				refs = append(refs, tenant.Reference{Kind: tenant.RefQueue, ID: a.ChildQueueID})
			}
		}
	}
	return refs
}

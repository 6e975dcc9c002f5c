package automation

import (
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// customFieldPrefix addresses tenant-defined fields in condition documents,
// e.g. "custom.region".
const customFieldPrefix = "custom."

// EvalContext carries the snapshots a condition is evaluated against. Old is
// nil for triggers that have no prior snapshot (on_create, scheduled passes).
type EvalContext struct {
	Now time.Time
	Old *domain.Ticket
	New *domain.Ticket
}

// Evaluate walks the condition tree against the context. Evaluation is total:
// a reference to a field the snapshot does not carry is a non-match, never an
// error.
func Evaluate(cond domain.Condition, ectx EvalContext) bool {
	switch c := cond.(type) {
	case domain.AllOf:
		for _, child := range c.Conditions {
			if !Evaluate(child, ectx) {
				return false
			}
		}
		return true
	case domain.AnyOf:
		for _, child := range c.Conditions {
			if Evaluate(child, ectx) {
				return true
			}
		}
		return false
	case domain.Not:
		return !Evaluate(c.Condition, ectx)
	case domain.Predicate:
		return evaluatePredicate(c, ectx)
	}
	return false
}

func evaluatePredicate(p domain.Predicate, ectx EvalContext) bool {
	if ectx.New == nil {
		return false
	}

	switch p.Op {
	case domain.OpWithinLastHours:
		ts, ok := fieldTime(ectx.New, p.Field)
		if !ok || ts == nil {
			return false
		}
		age := ectx.Now.Sub(*ts)
		return age >= 0 && age <= time.Duration(p.Hours)*time.Hour
	case domain.OpChangedFromTo:
		if ectx.Old == nil {
			return false
		}
		oldVal, oldOK := fieldString(ectx.Old, p.Field)
		newVal, newOK := fieldString(ectx.New, p.Field)
		if !oldOK || !newOK || oldVal == newVal {
			return false
		}
		if p.From != "" && oldVal != p.From {
			return false
		}
		if p.To != "" && newVal != p.To {
			return false
		}
		return true
	case domain.OpIsEmpty, domain.OpIsNotEmpty:
		// Absent custom keys count as empty only for the emptiness checks;
		// every other operator treats them as an unknown field.
		if strings.HasPrefix(p.Field, customFieldPrefix) {
			val := ectx.New.CustomFields[strings.TrimPrefix(p.Field, customFieldPrefix)]
			if p.Op == domain.OpIsEmpty {
				return val == ""
			}
			return val != ""
		}
		val, ok := fieldString(ectx.New, p.Field)
		if !ok {
			return false
		}
		if p.Op == domain.OpIsEmpty {
			return val == ""
		}
		return val != ""
	case domain.OpInSet:
		if p.Field == "tags" {
			return tagIntersects(ectx.New.Tags, p.Values)
		}
		val, ok := fieldString(ectx.New, p.Field)
		if !ok {
			return false
		}
		for _, candidate := range p.Values {
			if val == candidate {
				return true
			}
		}
		return false
	}

	val, ok := fieldString(ectx.New, p.Field)
	if !ok {
		return false
	}

	switch p.Op {
	case domain.OpEquals:
		return val == p.Value
	case domain.OpNotEquals:
		return val != p.Value
	case domain.OpContains:
		return strings.Contains(val, p.Value)
	case domain.OpStartsWith:
		return strings.HasPrefix(val, p.Value)
	case domain.OpEndsWith:
		return strings.HasSuffix(val, p.Value)
	case domain.OpRegexMatch:
		return p.Pattern != nil && p.Pattern.MatchString(val)
	case domain.OpGreaterThan:
		n, err := strconv.ParseFloat(val, 64)
		return err == nil && n > p.Number
	case domain.OpGreaterOrEqual:
		n, err := strconv.ParseFloat(val, 64)
		return err == nil && n >= p.Number
	case domain.OpLessThan:
		n, err := strconv.ParseFloat(val, 64)
		return err == nil && n < p.Number
	case domain.OpLessOrEqual:
		n, err := strconv.ParseFloat(val, 64)
		return err == nil && n <= p.Number
	}
	return false
}

func tagIntersects(tags, values []string) bool {
	for _, tag := range tags {
		for _, v := range values {
			if tag == v {
				return true
			}
		}
	}
	return false
}

// fieldString resolves a condition field name to the ticket's current string
// value. The second return is false for names the snapshot does not carry.
func fieldString(t *domain.Ticket, field string) (string, bool) {
	if strings.HasPrefix(field, customFieldPrefix) {
		val, ok := t.CustomFields[strings.TrimPrefix(field, customFieldPrefix)]
		return val, ok
	}

	switch field {
	case "subject":
		return t.Subject, true
	case "status":
		return string(t.Status), true
	case "priority":
		return string(t.Priority), true
	case "queue_id":
		return deref(t.QueueID), true
	case "team_id":
		return deref(t.TeamID), true
	case "assignee_id":
		return deref(t.AssigneeID), true
	case "contract_id":
		return deref(t.ContractID), true
	case "sla_policy_id":
		return deref(t.SLAPolicyID), true
	case "tags":
		return strings.Join(t.Tags, ","), true
	}
	return "", false
}

// fieldTime resolves the timestamp fields usable with within_last_hours.
func fieldTime(t *domain.Ticket, field string) (*time.Time, bool) {
	switch field {
	case "created_at":
		ts := t.CreatedAt
		return &ts, true
	case "updated_at":
		ts := t.UpdatedAt
		return &ts, true
	case "first_response_at":
		return t.FirstResponseAt, true
	case "resolved_at":
		return t.ResolvedAt, true
	case "closed_at":
		return t.ClosedAt, true
	}
	return nil, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

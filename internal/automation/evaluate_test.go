package automation

import (
	"testing"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func strPtr(s string) *string { return &s }

func snapshot() *domain.Ticket {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	return &domain.Ticket{
		ID:       "tic-1",
		TenantID: "ten-1",
		Subject:  "Payment gateway timeout on checkout",
		Status:   domain.TicketStatusOpen,
		Priority: domain.TicketPriorityCritical,
		QueueID:  strPtr("queue-billing"),
		Tags:     []string{"payments", "vip"},
		CustomFields: map[string]string{
			"region":      "emea",
			"error_count": "7",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func mustParseCondition(t *testing.T, doc string) domain.Condition {
	t.Helper()
	cond, err := ParseCondition([]byte(doc))
	if err != nil {
		t.Fatalf("ParseCondition(%s): %v", doc, err)
	}
	return cond
}

func TestEvaluatePredicates(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"equals match", `{"field":"priority","op":"equals","value":"CRITICAL"}`, true},
		{"equals miss", `{"field":"priority","op":"equals","value":"LOW"}`, false},
		{"not_equals", `{"field":"status","op":"not_equals","value":"CLOSED"}`, true},
		{"contains", `{"field":"subject","op":"contains","value":"gateway"}`, true},
		{"starts_with", `{"field":"subject","op":"starts_with","value":"Payment"}`, true},
		{"ends_with", `{"field":"subject","op":"ends_with","value":"checkout"}`, true},
		{"regex", `{"field":"subject","op":"regex_match","value":"time ?out"}`, true},
		{"greater_than custom field", `{"field":"custom.error_count","op":"greater_than","number":5}`, true},
		{"greater_or_equal at boundary", `{"field":"custom.error_count","op":"greater_or_equal","number":7}`, true},
		{"less_than miss", `{"field":"custom.error_count","op":"less_than","number":5}`, false},
		{"less_or_equal at boundary", `{"field":"custom.error_count","op":"less_or_equal","number":7}`, true},
		{"less_or_equal miss", `{"field":"custom.error_count","op":"less_or_equal","number":6}`, false},
		{"greater_than non-numeric", `{"field":"custom.region","op":"greater_than","number":1}`, false},
		{"within_last_hours", `{"field":"created_at","op":"within_last_hours","hours":4}`, true},
		{"within_last_hours expired", `{"field":"created_at","op":"within_last_hours","hours":2}`, false},
		{"in_set value", `{"field":"priority","op":"in_set","values":["HIGH","CRITICAL"]}`, true},
		{"in_set tags", `{"field":"tags","op":"in_set","values":["vip"]}`, true},
		{"in_set tags miss", `{"field":"tags","op":"in_set","values":["internal"]}`, false},
		{"is_empty on set field", `{"field":"queue_id","op":"is_empty"}`, false},
		{"is_not_empty on nil field", `{"field":"assignee_id","op":"is_not_empty"}`, false},
		{"is_empty on missing custom field", `{"field":"custom.absent","op":"is_empty"}`, true},
		{"is_not_empty on missing custom field", `{"field":"custom.absent","op":"is_not_empty"}`, false},
		{"equals empty string on missing custom field is a non-match", `{"field":"custom.absent","op":"equals","value":""}`, false},
		{"contains on missing custom field is a non-match", `{"field":"custom.absent","op":"contains","value":""}`, false},
		{"unknown field is a non-match", `{"field":"no_such_field","op":"equals","value":"x"}`, false},
		{"unknown field not_equals is still a non-match", `{"field":"no_such_field","op":"not_equals","value":"x"}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cond := mustParseCondition(t, tc.doc)
			got := Evaluate(cond, EvalContext{Now: now, New: snapshot()})
			if got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateComposites(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ectx := EvalContext{Now: now, New: snapshot()}

	all := mustParseCondition(t, `{"all":[
        {"field":"priority","op":"equals","value":"CRITICAL"},
        {"field":"tags","op":"in_set","values":["vip"]}]}`)
	if !Evaluate(all, ectx) {
		t.Fatal("all-of should match")
	}

	anyOf := mustParseCondition(t, `{"any":[
        {"field":"priority","op":"equals","value":"LOW"},
        {"field":"status","op":"equals","value":"OPEN"}]}`)
	if !Evaluate(anyOf, ectx) {
		t.Fatal("any-of should match on second child")
	}

	not := mustParseCondition(t, `{"not":{"field":"priority","op":"equals","value":"LOW"}}`)
	if !Evaluate(not, ectx) {
		t.Fatal("not should invert a miss")
	}

	empty := mustParseCondition(t, ``)
	if !Evaluate(empty, ectx) {
		t.Fatal("empty condition document should always match")
	}
}

func TestEvaluateChangedFromTo(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	prev := snapshot()
	prev.Status = domain.TicketStatusOpen
	curr := snapshot()
	curr.Status = domain.TicketStatusInProgress

	cond := mustParseCondition(t, `{"field":"status","op":"changed_from_to","from":"OPEN","to":"IN_PROGRESS"}`)

	if !Evaluate(cond, EvalContext{Now: now, Old: prev, New: curr}) {
		t.Fatal("transition should match")
	}
	if Evaluate(cond, EvalContext{Now: now, Old: curr, New: curr}) {
		t.Fatal("no change should not match")
	}
	if Evaluate(cond, EvalContext{Now: now, New: curr}) {
		t.Fatal("missing old snapshot should not match")
	}

	anyTo := mustParseCondition(t, `{"field":"status","op":"changed_from_to","to":"IN_PROGRESS"}`)
	if !Evaluate(anyTo, EvalContext{Now: now, Old: prev, New: curr}) {
		t.Fatal("open from side should match any prior value")
	}
}

func TestParseConditionRejectsMalformed(t *testing.T) {
	bad := []string{
		`{"field":"priority","op":"no_such_op","value":"x"}`,
		`{"field":"subject","op":"regex_match","value":"("}`,
		`{"field":"created_at","op":"within_last_hours","hours":0}`,
		`{"field":"priority","op":"in_set"}`,
		`{"op":"equals","value":"x"}`,
		`{"all":[{"field":"a","op":"equals"}],"any":[{"field":"b","op":"equals"}]}`,
		`not json`,
	}
	for _, doc := range bad {
		if _, err := ParseCondition([]byte(doc)); err == nil {
			t.Errorf("ParseCondition(%s) should fail", doc)
		}
	}
}

func TestParseActionsValidatesPayloads(t *testing.T) {
	good := `[
        {"kind":"assign_to_team","team_id":"team-1"},
        {"kind":"add_note","note_body":"escalated automatically"},
        {"kind":"stop_processing"}]`
	actions, err := ParseActions([]byte(good))
	if err != nil {
		t.Fatalf("ParseActions: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(actions))
	}
	if actions[0].Kind != domain.ActionAssignToTeam || actions[0].TeamID != "team-1" {
		t.Fatalf("unexpected first action %+v", actions[0])
	}

	bad := []string{
		`[]`,
		`[{"kind":"assign_to_team"}]`,
		`[{"kind":"send_notification","channel":"email"}]`,
		`[{"kind":"launch_missiles"}]`,
	}
	for _, doc := range bad {
		if _, err := ParseActions([]byte(doc)); err == nil {
			t.Errorf("ParseActions(%s) should fail", doc)
		}
	}
}

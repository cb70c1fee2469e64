package abac

import (
	"testing"
	"time"
)

func snapshots() (Attributes, Attributes, Attributes) {
	subject := Attributes{
		"department":      String("Engineering"),
		"job_level":       Number(5),
		"is_manager":      Bool(true),
		"email":           String("dev@acme.example"),
		"date_of_joining": Time(time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)),
	}
	resource := Attributes{
		"owner_id": String("u1"),
		"amount":   Number(1200),
	}
	environment := Attributes{
		"hour":       Number(14),
		"is_weekend": Bool(false),
	}
	return subject, resource, environment
}

func TestEvaluateRuleOperators(t *testing.T) {
	subject, resource, environment := snapshots()
	cases := []struct {
		name string
		rule PolicyRule
		want bool
	}{
		{"equals match", PolicyRule{AttributePath: "subject.department", Operator: OpEquals, Value: "Engineering"}, true},
		{"equals miss", PolicyRule{AttributePath: "subject.department", Operator: OpEquals, Value: "Sales"}, false},
		{"equals coerces numeric string", PolicyRule{AttributePath: "subject.job_level", Operator: OpEquals, Value: "5"}, true},
		{"equals coerces bool string", PolicyRule{AttributePath: "subject.is_manager", Operator: OpEquals, Value: "true"}, true},
		{"not_equals", PolicyRule{AttributePath: "subject.department", Operator: OpNotEquals, Value: "Sales"}, true},
		{"in match", PolicyRule{AttributePath: "subject.department", Operator: OpIn, Value: []any{"Sales", "Engineering"}}, true},
		{"in miss", PolicyRule{AttributePath: "subject.department", Operator: OpIn, Value: []any{"Sales", "HR"}}, false},
		{"in string slice", PolicyRule{AttributePath: "subject.department", Operator: OpIn, Value: []string{"Engineering"}}, true},
		{"not_in", PolicyRule{AttributePath: "subject.department", Operator: OpNotIn, Value: []any{"Sales"}}, true},
		{"not_in miss", PolicyRule{AttributePath: "subject.department", Operator: OpNotIn, Value: []any{"Engineering"}}, false},
		{"gt", PolicyRule{AttributePath: "subject.job_level", Operator: OpGT, Value: 4}, true},
		{"gt equal is false", PolicyRule{AttributePath: "subject.job_level", Operator: OpGT, Value: 5}, false},
		{"gte equal", PolicyRule{AttributePath: "subject.job_level", Operator: OpGTE, Value: 5}, true},
		{"lt", PolicyRule{AttributePath: "resource.amount", Operator: OpLT, Value: 2000}, true},
		{"lte", PolicyRule{AttributePath: "environment.hour", Operator: OpLTE, Value: 14}, true},
		{"numeric string comparand", PolicyRule{AttributePath: "subject.job_level", Operator: OpGT, Value: "3"}, true},
		{"contains", PolicyRule{AttributePath: "subject.email", Operator: OpContains, Value: "@acme"}, true},
		{"starts_with", PolicyRule{AttributePath: "subject.email", Operator: OpStartsWith, Value: "dev@"}, true},
		{"starts_with miss", PolicyRule{AttributePath: "subject.email", Operator: OpStartsWith, Value: "admin@"}, false},
		{"env alias prefix", PolicyRule{AttributePath: "env.hour", Operator: OpEquals, Value: 14}, true},
		{"bare path subject first", PolicyRule{AttributePath: "department", Operator: OpEquals, Value: "Engineering"}, true},
		{"bare path falls through to resource", PolicyRule{AttributePath: "amount", Operator: OpEquals, Value: 1200}, true},
		{"date gte", PolicyRule{AttributePath: "subject.date_of_joining", Operator: OpGTE, Value: "2021-01-01"}, true},
		{"date lt", PolicyRule{AttributePath: "subject.date_of_joining", Operator: OpLT, Value: "2021-01-01"}, false},
		{"unknown operator never grants", PolicyRule{AttributePath: "subject.department", Operator: Operator("matches"), Value: "Engineering"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateRule(tc.rule, subject, resource, environment)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateRuleMissingAttribute(t *testing.T) {
	subject, resource, environment := snapshots()
	cases := []struct {
		op   Operator
		want bool
	}{
		{OpEquals, false},
		{OpIn, false},
		{OpGT, false},
		{OpContains, false},
		{OpNotEquals, true},
		{OpNotIn, true},
	}
	for _, tc := range cases {
		rule := PolicyRule{AttributePath: "subject.missing", Operator: tc.op, Value: "x"}
		if got := EvaluateRule(rule, subject, resource, environment); got != tc.want {
			t.Fatalf("%s on missing attribute: got %v, want %v", tc.op, got, tc.want)
		}
	}
}

func TestNullAttributeCountsAsMissing(t *testing.T) {
	subject := Attributes{"manager_id": Null()}
	rule := PolicyRule{AttributePath: "subject.manager_id", Operator: OpEquals, Value: ""}
	if EvaluateRule(rule, subject, nil, nil) {
		t.Fatalf("null attribute must not satisfy equals")
	}
	rule.Operator = OpNotEquals
	if !EvaluateRule(rule, subject, nil, nil) {
		t.Fatalf("null attribute satisfies not_equals")
	}
}

func TestPolicyMatchesConjunction(t *testing.T) {
	subject, resource, environment := snapshots()
	p := &Policy{
		ID: "p1", Effect: EffectAllow, IsActive: true,
		Rules: []PolicyRule{
			{ID: "r1", AttributePath: "subject.department", Operator: OpEquals, Value: "Engineering", IsActive: true},
			{ID: "r2", AttributePath: "subject.job_level", Operator: OpGTE, Value: 3, IsActive: true},
		},
	}
	if !PolicyMatches(p, subject, resource, environment) {
		t.Fatalf("all rules hold, expected match")
	}
	p.Rules[1].Value = 9
	if PolicyMatches(p, subject, resource, environment) {
		t.Fatalf("one failing rule must fail the policy")
	}
}

func TestPolicyMatchesIgnoresInactiveRules(t *testing.T) {
	subject, resource, environment := snapshots()
	p := &Policy{
		ID: "p1", Effect: EffectAllow, IsActive: true,
		Rules: []PolicyRule{
			{ID: "r1", AttributePath: "subject.department", Operator: OpEquals, Value: "Sales", IsActive: false},
		},
	}
	if !PolicyMatches(p, subject, resource, environment) {
		t.Fatalf("inactive rules must be skipped")
	}
}

func TestPolicyWithNoRulesMatches(t *testing.T) {
	p := &Policy{ID: "p1", Effect: EffectAllow, IsActive: true}
	if !PolicyMatches(p, nil, nil, nil) {
		t.Fatalf("a rule-less policy matches unconditionally")
	}
}

func TestMatchesGroupValue(t *testing.T) {
	if !matchesGroupValue(String("Engineering"), "Engineering") {
		t.Fatalf("exact string match expected")
	}
	if matchesGroupValue(String("engineering"), "Engineering") {
		t.Fatalf("group matching is case sensitive")
	}
	if !matchesGroupValue(Number(5), "5") {
		t.Fatalf("numeric attribute should match its textual form")
	}
	if matchesGroupValue(Null(), "") {
		t.Fatalf("null attribute never belongs to a group")
	}
}

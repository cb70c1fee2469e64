package abac

import (
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// parseTime accepts the flexible timestamp forms that show up in rule values
// and stored snapshots.
func parseTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// resolvePath resolves a dotted attribute path against the three snapshots.
// Paths are routed by their "subject." / "resource." / "environment." prefix
// ("env." is accepted as an alias); a bare path is looked up in subject,
// then resource, then environment.
func resolvePath(path string, subject, resource, environment Attributes) (Value, bool) {
	switch {
	case strings.HasPrefix(path, "subject."):
		return subject.Get(path[len("subject."):])
	case strings.HasPrefix(path, "resource."):
		return resource.Get(path[len("resource."):])
	case strings.HasPrefix(path, "environment."):
		return environment.Get(path[len("environment."):])
	case strings.HasPrefix(path, "env."):
		return environment.Get(path[len("env."):])
	}
	if v, ok := subject.Get(path); ok {
		return v, true
	}
	if v, ok := resource.Get(path); ok {
		return v, true
	}
	return environment.Get(path)
}

// ruleValues normalizes a rule's stored comparison value into tagged values.
// in/not_in carry a collection; every other operator a single scalar.
func ruleValues(raw any) []Value {
	switch list := raw.(type) {
	case []any:
		out := make([]Value, 0, len(list))
		for _, item := range list {
			out = append(out, ValueOf(item))
		}
		return out
	case []string:
		out := make([]Value, 0, len(list))
		for _, item := range list {
			out = append(out, String(item))
		}
		return out
	default:
		return []Value{ValueOf(raw)}
	}
}

// compareOrdered returns the ordering of attr against want, using numeric
// ordering when both sides have a numeric view and date ordering when the
// attribute is temporal. Other combinations report no ordering.
func compareOrdered(attr, want Value) (int, bool) {
	if at, ok := attr.asTime(); ok && (attr.Kind() == KindTime || want.Kind() == KindTime) {
		if wt, ok := want.asTime(); ok {
			switch {
			case at.Before(wt):
				return -1, true
			case at.After(wt):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	an, okA := attr.asNumber()
	wn, okW := want.asNumber()
	if okA && okW {
		switch {
		case an < wn:
			return -1, true
		case an > wn:
			return 1, true
		default:
			return 0, true
		}
	}
	// fall back to date ordering when the numeric view failed but both
	// sides parse as timestamps (e.g. date_of_joining vs "2020-01-01")
	at, okA := attr.asTime()
	wt, okW := want.asTime()
	if okA && okW {
		switch {
		case at.Before(wt):
			return -1, true
		case at.After(wt):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// EvaluateRule applies one rule against the combined attribute namespace. A
// rule whose attribute path resolves to missing (or null) evaluates to false
// for every operator except not_equals and not_in.
func EvaluateRule(rule PolicyRule, subject, resource, environment Attributes) bool {
	attr, ok := resolvePath(rule.AttributePath, subject, resource, environment)
	if !ok {
		return rule.Operator == OpNotEquals || rule.Operator == OpNotIn
	}
	values := ruleValues(rule.Value)
	switch rule.Operator {
	case OpEquals:
		return len(values) == 1 && attr.Equal(values[0])
	case OpNotEquals:
		return len(values) == 1 && !attr.Equal(values[0])
	case OpIn:
		for _, want := range values {
			if attr.Equal(want) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, want := range values {
			if attr.Equal(want) {
				return false
			}
		}
		return true
	case OpGT:
		if len(values) != 1 {
			return false
		}
		c, ordered := compareOrdered(attr, values[0])
		return ordered && c > 0
	case OpGTE:
		if len(values) != 1 {
			return false
		}
		c, ordered := compareOrdered(attr, values[0])
		return ordered && c >= 0
	case OpLT:
		if len(values) != 1 {
			return false
		}
		c, ordered := compareOrdered(attr, values[0])
		return ordered && c < 0
	case OpLTE:
		if len(values) != 1 {
			return false
		}
		c, ordered := compareOrdered(attr, values[0])
		return ordered && c <= 0
	case OpContains:
		return len(values) == 1 && strings.Contains(attr.String(), values[0].String())
	case OpStartsWith:
		return len(values) == 1 && strings.HasPrefix(attr.String(), values[0].String())
	default:
		// unknown operators never grant anything
		return false
	}
}

// PolicyMatches reports whether all active rules of the policy hold against
// the given snapshots. A policy with zero active rules matches
// unconditionally; the resolver's scoping filters have already passed by the
// time this runs.
func PolicyMatches(p *Policy, subject, resource, environment Attributes) bool {
	for _, rule := range p.Rules {
		if !rule.IsActive {
			continue
		}
		if !EvaluateRule(rule, subject, resource, environment) {
			return false
		}
	}
	return true
}

// matchesGroupValue implements dynamic group membership: exact equality of
// the subject's current attribute against the stored group value, with the
// group value coerced to the attribute's kind (so job_level 5 matches "5").
func matchesGroupValue(attr Value, groupValue string) bool {
	if attr.IsNull() {
		return false
	}
	return attr.Equal(String(groupValue))
}

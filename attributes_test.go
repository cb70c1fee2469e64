package abac

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSubjectAttributesWithProfile(t *testing.T) {
	lvl := 6
	doj := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	attrs := SubjectAttributes(
		&Subject{ID: "u1", Email: "u1@acme.example", IsVerified: true},
		&Tenant{ID: "tenant-1", Name: "Acme"},
		&EmployeeProfile{
			EmployeeID: "E-100", Department: "Finance", JobLevel: &lvl,
			Location: "Kathmandu", EmploymentType: "full_time",
			DateOfJoining: doj, IsManager: true,
		},
	)
	checks := map[string]string{
		"user_id":           "u1",
		"email":             "u1@acme.example",
		"organization_id":   "tenant-1",
		"organization_name": "Acme",
		"employee_id":       "E-100",
		"department":        "Finance",
		"job_level":         "6",
		"location":          "Kathmandu",
		"employment_type":   "full_time",
		"is_manager":        "true",
		"is_verified":       "true",
	}
	for name, want := range checks {
		v, ok := attrs.Get(name)
		if !ok || v.String() != want {
			t.Fatalf("%s: got (%q, %v), want %q", name, v.String(), ok, want)
		}
	}
	if v, ok := attrs.Get("date_of_joining"); !ok || v.Kind() != KindTime {
		t.Fatalf("date_of_joining should be a time attribute, got %v", v)
	}
	// empty profile fields resolve to missing, not empty strings
	if _, ok := attrs.Get("manager_id"); ok {
		t.Fatalf("empty manager_id must be a null attribute")
	}
}

func TestSubjectAttributesWithoutProfile(t *testing.T) {
	attrs := SubjectAttributes(&Subject{ID: "u1"}, &Tenant{ID: "tenant-1"}, nil)
	if _, ok := attrs.Get("department"); ok {
		t.Fatalf("no profile means no organizational attributes")
	}
	if v, ok := attrs.Get("user_id"); !ok || v.String() != "u1" {
		t.Fatalf("identity attributes are always present, got %v", v)
	}
}

func TestEnvironmentAttributes(t *testing.T) {
	// Saturday afternoon
	sat := time.Date(2025, 6, 14, 15, 30, 45, 0, time.UTC)
	attrs := EnvironmentAttributes(sat)
	if v, _ := attrs.Get("is_weekend"); v.String() != "true" {
		t.Fatalf("saturday is a weekend")
	}
	if v, _ := attrs.Get("day_of_week"); v.String() != "Saturday" {
		t.Fatalf("day_of_week: got %q", v.String())
	}
	if v, _ := attrs.Get("current_time"); v.String() != "15:30:45" {
		t.Fatalf("current_time: got %q", v.String())
	}
	if v, _ := attrs.Get("current_date"); v.String() != "2025-06-14" {
		t.Fatalf("current_date: got %q", v.String())
	}
	if v, _ := attrs.Get("hour"); v.String() != "15" {
		t.Fatalf("hour: got %q", v.String())
	}

	// Monday is not
	mon := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	attrs = EnvironmentAttributes(mon)
	if v, _ := attrs.Get("is_weekend"); v.String() != "false" {
		t.Fatalf("monday is not a weekend")
	}
}

func TestValueEqualCoercion(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		a, b Value
		want bool
	}{
		{Number(5), String("5"), true},
		{Number(5), String("5.0"), true},
		{Number(5), String("six"), false},
		{Bool(true), String("true"), true},
		{Bool(false), String("true"), false},
		{Time(now), String("2025-01-02T03:04:05Z"), true},
		{Null(), Null(), true},
		{Null(), String(""), false},
	}
	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Fatalf("Equal(%v, %v): got %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := tc.b.Equal(tc.a); got != tc.want {
			t.Fatalf("Equal is symmetric: Equal(%v, %v) got %v, want %v", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestAttributesJSONRoundtrip(t *testing.T) {
	doj := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	in := Attributes{
		"department": String("Engineering"),
		"job_level":  Number(5),
		"is_manager": Bool(true),
		"joined":     Time(doj),
		"absent":     Null(),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Attributes
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range []string{"department", "job_level", "is_manager", "joined"} {
		a, _ := in.Get(name)
		b, ok := out.Get(name)
		if !ok || !a.Equal(b) {
			t.Fatalf("%s: got %v, want %v", name, b, a)
		}
	}
	if v, ok := out.Get("joined"); !ok || v.Kind() != KindTime {
		t.Fatalf("times must survive storage as times, got kind %d", v.Kind())
	}
	if _, ok := out.Get("absent"); ok {
		t.Fatalf("null survives as null")
	}
}

func TestValueOf(t *testing.T) {
	if ValueOf(42).Kind() != KindNumber {
		t.Fatalf("int should map to number")
	}
	if ValueOf(nil).Kind() != KindNull {
		t.Fatalf("nil should map to null")
	}
	if ValueOf("x").Kind() != KindString {
		t.Fatalf("string should map to string")
	}
	if ValueOf(time.Now()).Kind() != KindTime {
		t.Fatalf("time.Time should map to time")
	}
	var tp *time.Time
	if ValueOf(tp).Kind() != KindNull {
		t.Fatalf("nil *time.Time should map to null")
	}
}

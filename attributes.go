package abac

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// ATTRIBUTE VALUES
// ============================================================================

// Kind tags the dynamic type of an attribute value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is a tagged attribute value. Snapshots carry Values instead of
// untyped interfaces so operator evaluation can switch on the tag instead of
// reflecting over arbitrary runtime types.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

func Null() Value             { return Value{kind: KindNull} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Number(f float64) Value  { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value  { return Value{kind: KindTime, t: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders the value in its canonical textual form.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// ValueOf coerces an untyped caller-supplied value into a tagged Value.
func ValueOf(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case string:
		return String(v)
	case bool:
		return Bool(v)
	case int:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case float32:
		return Number(float64(v))
	case float64:
		return Number(v)
	case time.Time:
		return Time(v)
	case *time.Time:
		if v == nil {
			return Null()
		}
		return Time(*v)
	default:
		return String(fmt.Sprint(v))
	}
}

// asNumber attempts a numeric view of the value.
func (v Value) asNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// asTime attempts a temporal view of the value.
func (v Value) asTime() (time.Time, bool) {
	switch v.kind {
	case KindTime:
		return v.t, true
	case KindString:
		t, err := parseTime(v.str)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// Equal compares two values by identity after type coercion: a Number(5)
// equals String("5"), a Bool(true) equals String("true"), and a Time equals
// any string that parses to the same instant.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	if v.kind == o.kind {
		switch v.kind {
		case KindString:
			return v.str == o.str
		case KindNumber:
			return v.num == o.num
		case KindBool:
			return v.b == o.b
		case KindTime:
			return v.t.Equal(o.t)
		}
	}
	if v.kind == KindTime || o.kind == KindTime {
		vt, okV := v.asTime()
		ot, okO := o.asTime()
		return okV && okO && vt.Equal(ot)
	}
	if v.kind == KindNumber || o.kind == KindNumber {
		vn, okV := v.asNumber()
		on, okO := o.asNumber()
		return okV && okO && vn == on
	}
	if v.kind == KindBool || o.kind == KindBool {
		return strings.EqualFold(v.String(), o.String())
	}
	return v.String() == o.String()
}

// MarshalJSON writes the value as its underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON restores a scalar into a tagged value. RFC3339 strings come
// back as times so audit snapshots roundtrip through storage.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(x)
	case float64:
		*v = Number(x)
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			*v = Time(t)
		} else {
			*v = String(x)
		}
	default:
		*v = String(fmt.Sprint(x))
	}
	return nil
}

// Attributes is one attribute snapshot (subject, resource or environment).
type Attributes map[string]Value

// Get returns the named attribute; present-but-null counts as missing.
func (a Attributes) Get(name string) (Value, bool) {
	v, ok := a[name]
	if !ok || v.IsNull() {
		return Null(), false
	}
	return v, true
}

// ============================================================================
// SNAPSHOT BUILDERS
// ============================================================================

// SubjectAttributes builds the subject snapshot from identity, tenant and the
// optional employment profile. Pure: identical inputs produce an identical
// snapshot. Absent relations become null attributes, never errors.
func SubjectAttributes(sub *Subject, tenant *Tenant, profile *EmployeeProfile) Attributes {
	attrs := Attributes{
		"user_id":      String(sub.ID),
		"email":        String(sub.Email),
		"is_superuser": Bool(sub.IsSuperuser),
		"is_org_admin": Bool(sub.IsOrgAdmin),
		"is_verified":  Bool(sub.IsVerified),
	}
	if tenant != nil {
		attrs["organization_id"] = String(tenant.ID)
		attrs["organization_name"] = String(tenant.Name)
	} else {
		attrs["organization_id"] = Null()
		attrs["organization_name"] = Null()
	}
	if profile == nil {
		return attrs
	}
	attrs["employee_id"] = stringOrNull(profile.EmployeeID)
	attrs["department"] = stringOrNull(profile.Department)
	attrs["department_id"] = stringOrNull(profile.DepartmentID)
	attrs["designation"] = stringOrNull(profile.Designation)
	if profile.JobLevel != nil {
		attrs["job_level"] = Number(float64(*profile.JobLevel))
	} else {
		attrs["job_level"] = Null()
	}
	attrs["location"] = stringOrNull(profile.Location)
	attrs["location_id"] = stringOrNull(profile.LocationID)
	attrs["employment_status"] = stringOrNull(profile.EmploymentStatus)
	attrs["employment_type"] = stringOrNull(profile.EmploymentType)
	if profile.DateOfJoining.IsZero() {
		attrs["date_of_joining"] = Null()
	} else {
		attrs["date_of_joining"] = Time(profile.DateOfJoining)
	}
	attrs["is_manager"] = Bool(profile.IsManager)
	attrs["manager_id"] = stringOrNull(profile.ManagerID)
	return attrs
}

// ResourceAttributes coerces the caller-supplied resource map into a
// snapshot. A nil map yields an empty snapshot.
func ResourceAttributes(raw map[string]any) Attributes {
	attrs := make(Attributes, len(raw))
	for k, v := range raw {
		attrs[k] = ValueOf(v)
	}
	return attrs
}

// EnvironmentAttributes derives the time-of-day snapshot for now. Weekday
// indexing follows the Monday=0 convention, so Saturday and Sunday are the
// weekend.
func EnvironmentAttributes(now time.Time) Attributes {
	weekdayIdx := (int(now.Weekday()) + 6) % 7
	return Attributes{
		"current_time":     String(now.Format("15:04:05")),
		"current_date":     String(now.Format("2006-01-02")),
		"current_datetime": Time(now),
		"day_of_week":      String(now.Weekday().String()),
		"is_weekend":       Bool(weekdayIdx >= 5),
		"hour":             Number(float64(now.Hour())),
	}
}

func stringOrNull(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

package abac

import (
	"fmt"
	"strings"
)

// AttributeCategory names the snapshot an attribute belongs to.
type AttributeCategory string

const (
	CategorySubject     AttributeCategory = "subject"
	CategoryResource    AttributeCategory = "resource"
	CategoryEnvironment AttributeCategory = "environment"
)

// AttributeType describes one known attribute path for admin-side policy
// validation.
type AttributeType struct {
	Path        string            `json:"path" yaml:"path"`
	Category    AttributeCategory `json:"category" yaml:"category"`
	DataType    Kind              `json:"data_type" yaml:"data_type"`
	Description string            `json:"description" yaml:"description"`
}

// Catalog is a registry of attribute types. Resource attributes are
// caller-defined, so any "resource."-prefixed path is accepted; subject and
// environment paths must be registered.
type Catalog struct {
	types map[string]AttributeType
}

func NewCatalog(types ...AttributeType) *Catalog {
	c := &Catalog{types: make(map[string]AttributeType, len(types))}
	for _, t := range types {
		c.types[t.Path] = t
	}
	return c
}

// DefaultCatalog registers the built-in subject and environment attributes.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		AttributeType{Path: "subject.user_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.email", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.is_superuser", Category: CategorySubject, DataType: KindBool},
		AttributeType{Path: "subject.is_org_admin", Category: CategorySubject, DataType: KindBool},
		AttributeType{Path: "subject.is_verified", Category: CategorySubject, DataType: KindBool},
		AttributeType{Path: "subject.organization_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.organization_name", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.employee_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.department", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.department_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.designation", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.job_level", Category: CategorySubject, DataType: KindNumber},
		AttributeType{Path: "subject.location", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.location_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.employment_status", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.employment_type", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "subject.date_of_joining", Category: CategorySubject, DataType: KindTime},
		AttributeType{Path: "subject.is_manager", Category: CategorySubject, DataType: KindBool},
		AttributeType{Path: "subject.manager_id", Category: CategorySubject, DataType: KindString},
		AttributeType{Path: "environment.current_time", Category: CategoryEnvironment, DataType: KindString},
		AttributeType{Path: "environment.current_date", Category: CategoryEnvironment, DataType: KindString},
		AttributeType{Path: "environment.current_datetime", Category: CategoryEnvironment, DataType: KindTime},
		AttributeType{Path: "environment.day_of_week", Category: CategoryEnvironment, DataType: KindString},
		AttributeType{Path: "environment.is_weekend", Category: CategoryEnvironment, DataType: KindBool},
		AttributeType{Path: "environment.hour", Category: CategoryEnvironment, DataType: KindNumber},
	)
}

// validOperators is the closed comparison set.
var validOperators = map[Operator]bool{
	OpEquals:     true,
	OpNotEquals:  true,
	OpIn:         true,
	OpNotIn:      true,
	OpGT:         true,
	OpGTE:        true,
	OpLT:         true,
	OpLTE:        true,
	OpContains:   true,
	OpStartsWith: true,
}

// ValidatePolicy checks structural invariants: a known effect and, for every
// rule, an operator from the closed set. It does not require rules — a policy
// with none matches unconditionally.
func ValidatePolicy(p *Policy) error {
	if p.ID == "" {
		return fmt.Errorf("abac: policy ID is required")
	}
	if p.Effect != EffectAllow && p.Effect != EffectDeny {
		return fmt.Errorf("%w: %q (policy %s)", ErrInvalidEffect, p.Effect, p.ID)
	}
	for _, r := range p.Rules {
		if !validOperators[r.Operator] {
			return fmt.Errorf("%w: %q (policy %s, rule %s)", ErrUnknownOperator, r.Operator, p.ID, r.ID)
		}
		if r.AttributePath == "" {
			return fmt.Errorf("abac: rule %s of policy %s has no attribute path", r.ID, p.ID)
		}
	}
	return nil
}

// ValidatePolicy additionally rejects rules whose paths are not registered in
// the catalog. Resource paths are exempt: their namespace belongs to callers.
func (c *Catalog) ValidatePolicy(p *Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	for _, r := range p.Rules {
		path := r.AttributePath
		if strings.HasPrefix(path, "resource.") {
			continue
		}
		if strings.HasPrefix(path, "env.") {
			path = "environment." + path[len("env."):]
		}
		if !strings.Contains(path, ".") {
			// bare paths search all snapshots; accept when any registered
			// path ends in the same name
			found := false
			for registered := range c.types {
				if strings.HasSuffix(registered, "."+path) {
					found = true
					break
				}
			}
			if found {
				continue
			}
			return fmt.Errorf("abac: unknown attribute path %q (policy %s, rule %s)", r.AttributePath, p.ID, r.ID)
		}
		if _, ok := c.types[path]; !ok {
			return fmt.Errorf("abac: unknown attribute path %q (policy %s, rule %s)", r.AttributePath, p.ID, r.ID)
		}
	}
	return nil
}

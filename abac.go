package abac

import (
	"context"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Tenant is the isolation boundary for all policy data. Every policy,
// assignment and audit record belongs to exactly one tenant.
type Tenant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Subject is the authenticated principal whose access is being checked.
type Subject struct {
	ID          string `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	IsSuperuser bool   `json:"is_superuser" yaml:"is_superuser"`
	IsOrgAdmin  bool   `json:"is_org_admin" yaml:"is_org_admin"`
	IsVerified  bool   `json:"is_verified" yaml:"is_verified"`
}

// EmployeeProfile holds the organizational attributes of a subject. All
// fields are optional; an empty string or zero time resolves to a null
// attribute rather than an error.
type EmployeeProfile struct {
	EmployeeID       string    `json:"employee_id"`
	Department       string    `json:"department"`
	DepartmentID     string    `json:"department_id"`
	Designation      string    `json:"designation"`
	JobLevel         *int      `json:"job_level"`
	Location         string    `json:"location"`
	LocationID       string    `json:"location_id"`
	EmploymentStatus string    `json:"employment_status"`
	EmploymentType   string    `json:"employment_type"`
	DateOfJoining    time.Time `json:"date_of_joining"`
	IsManager        bool      `json:"is_manager"`
	ManagerID        string    `json:"manager_id"`
}

// Effect is the outcome a policy contributes when it matches.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// GroupType names the subject attribute a GroupPolicy matches on.
// Membership is dynamic: it is recomputed on every check from the subject's
// current attribute value, never from a stored member list.
type GroupType string

const (
	GroupDepartment     GroupType = "department"
	GroupLocation       GroupType = "location"
	GroupJobLevel       GroupType = "job_level"
	GroupEmploymentType GroupType = "employment_type"
)

// Operator is one of the closed set of rule comparison operators.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpGT         Operator = "gt"
	OpGTE        Operator = "gte"
	OpLT         Operator = "lt"
	OpLTE        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
)

// PolicyRule is a single attribute comparison belonging to a policy. All
// active rules of a policy must hold for the policy to match (AND semantics);
// disjunction is expressed by creating separate policies.
type PolicyRule struct {
	ID            string   `json:"id" yaml:"id"`
	AttributePath string   `json:"attribute_path" yaml:"attribute_path"`
	Operator      Operator `json:"operator" yaml:"operator"`
	Value         any      `json:"value" yaml:"value"` // scalar, or a list for in/not_in
	IsActive      bool     `json:"is_active" yaml:"is_active"`
}

// Policy is a named ALLOW/DENY rule container with optional resource, action
// and resource-instance scoping. A policy with zero active rules matches
// unconditionally once its scoping filters pass.
type Policy struct {
	ID           string       `json:"id" yaml:"id"`
	TenantID     string       `json:"tenant_id" yaml:"tenant_id"`
	Name         string       `json:"name" yaml:"name"`
	Code         string       `json:"code" yaml:"code"`
	Effect       Effect       `json:"effect" yaml:"effect"`
	Priority     int          `json:"priority" yaml:"priority"` // higher sorts first
	ResourceType string       `json:"resource_type" yaml:"resource_type"` // "" matches any
	Actions      []string     `json:"actions" yaml:"actions"`             // nil matches any
	ResourceID   string       `json:"resource_id" yaml:"resource_id"`     // "" matches any instance
	IsActive     bool         `json:"is_active" yaml:"is_active"`
	ValidFrom    *time.Time   `json:"valid_from" yaml:"valid_from"`
	ValidUntil   *time.Time   `json:"valid_until" yaml:"valid_until"`
	Rules        []PolicyRule `json:"rules" yaml:"rules"`
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"updated_at"`
}

// IsValidAt reports whether now falls inside the policy's validity window.
// Either side of the window may be open.
func (p *Policy) IsValidAt(now time.Time) bool {
	return validAt(p.ValidFrom, p.ValidUntil, now)
}

// AllowsAction reports whether the policy's action filter admits action.
// A nil action set matches every action.
func (p *Policy) AllowsAction(action string) bool {
	if len(p.Actions) == 0 {
		return true
	}
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// UserPolicy is a direct assignment of a policy to a user within a tenant.
// The assignment is effective only while both it and the underlying policy
// are active and inside their respective validity windows.
type UserPolicy struct {
	ID         string     `json:"id" yaml:"id"`
	UserID     string     `json:"user_id" yaml:"user_id"`
	TenantID   string     `json:"tenant_id" yaml:"tenant_id"`
	PolicyID   string     `json:"policy_id" yaml:"policy_id"`
	Policy     *Policy    `json:"policy,omitempty" yaml:"-"` // populated by store reads
	IsActive   bool       `json:"is_active" yaml:"is_active"`
	ValidFrom  *time.Time `json:"valid_from" yaml:"valid_from"`
	ValidUntil *time.Time `json:"valid_until" yaml:"valid_until"`
	AssignedBy string     `json:"assigned_by" yaml:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at" yaml:"assigned_at"`
}

// IsValidAt reports whether now falls inside the assignment's validity window.
func (up *UserPolicy) IsValidAt(now time.Time) bool {
	return validAt(up.ValidFrom, up.ValidUntil, now)
}

// GroupPolicy attaches a set of policies to a dynamically-computed cohort: a
// subject belongs to the group at evaluation time when its attribute named by
// GroupType equals GroupValue exactly.
type GroupPolicy struct {
	ID         string    `json:"id" yaml:"id"`
	TenantID   string    `json:"tenant_id" yaml:"tenant_id"`
	GroupType  GroupType `json:"group_type" yaml:"group_type"`
	GroupValue string    `json:"group_value" yaml:"group_value"`
	IsActive   bool      `json:"is_active" yaml:"is_active"`
	PolicyIDs  []string  `json:"policy_ids" yaml:"policy_ids"`
	Policies   []*Policy `json:"policies,omitempty" yaml:"-"` // populated by store reads
}

// PolicyLog is the immutable audit record of one access decision, captured
// with the full attribute context for forensic replay. The engine only ever
// appends these; it never mutates or deletes them.
type PolicyLog struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	TenantID              string     `json:"tenant_id"`
	ResourceType          string     `json:"resource_type"`
	ResourceID            string     `json:"resource_id"`
	Action                string     `json:"action"`
	Result                bool       `json:"result"`
	SubjectAttributes     Attributes `json:"subject_attributes"`
	ResourceAttributes    Attributes `json:"resource_attributes"`
	EnvironmentAttributes Attributes `json:"environment_attributes"`
	PoliciesEvaluated     []string   `json:"policies_evaluated"`
	DecisionReason        string     `json:"decision_reason"`
	Timestamp             time.Time  `json:"timestamp"`
}

func validAt(from, until *time.Time, now time.Time) bool {
	if from != nil && now.Before(*from) {
		return false
	}
	if until != nil && now.After(*until) {
		return false
	}
	return true
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// PolicyStore is the read side the engine evaluates against. Both methods
// return rows already joined to their policies and rules, scoped to a tenant.
// Implementations must never leak rows across tenant boundaries.
type PolicyStore interface {
	ListActiveUserPolicies(ctx context.Context, userID, tenantID string) ([]*UserPolicy, error)
	ListActiveGroupPolicies(ctx context.Context, tenantID string) ([]*GroupPolicy, error)
}

// PolicyWriter is the administrative write side used by bootstrap and
// tenant-admin tooling. Saves are upserts keyed by ID.
type PolicyWriter interface {
	SavePolicy(ctx context.Context, p *Policy) error
	SaveGroupPolicy(ctx context.Context, gp *GroupPolicy) error
	AssignUserPolicy(ctx context.Context, up *UserPolicy) error
}

// AuditStore persists decision logs.
type AuditStore interface {
	InsertLog(ctx context.Context, entry *PolicyLog) error
	ListLogs(ctx context.Context, filter AuditFilter) ([]*PolicyLog, error)
}

// AuditFilter narrows ListLogs results. Zero-value fields are ignored.
type AuditFilter struct {
	UserID       string
	TenantID     string
	ResourceType string
	Action       string
	Start        time.Time
	End          time.Time
	Limit        int
}

// Directory looks up the employment profile backing a subject's
// organizational attributes. A subject without a profile yields (nil, nil).
type Directory interface {
	GetEmployeeProfile(ctx context.Context, userID string) (*EmployeeProfile, error)
}

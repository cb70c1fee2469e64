package abac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/abac/logger"
)

// ============================================================================
// DECISION ENGINE
// ============================================================================

// Decision is the outcome of one access check.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Reason            string    `json:"reason"`
	EvaluatedPolicies []string  `json:"evaluated_policies"`
	Timestamp         time.Time `json:"timestamp"`
}

// PolicyResult records how a single applicable policy fared during Explain.
type PolicyResult struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Effect   Effect `json:"effect"`
	Priority int    `json:"priority"`
	Matched  bool   `json:"matched"`
}

// DecisionContext is the full evaluation trace behind a decision: the three
// attribute snapshots and the per-policy match results, in evaluation order.
type DecisionContext struct {
	Decision              *Decision      `json:"decision"`
	SubjectAttributes     Attributes     `json:"subject_attributes"`
	ResourceAttributes    Attributes     `json:"resource_attributes"`
	EnvironmentAttributes Attributes     `json:"environment_attributes"`
	Applicable            []PolicyResult `json:"applicable"`
}

// Engine evaluates access checks for one subject within one tenant. It holds
// no caches and no mutable state, so a single instance is safe for concurrent
// checks; cancellation is the caller's responsibility via ctx.
type Engine struct {
	subject      *Subject
	tenant       *Tenant
	store        PolicyStore
	directory    Directory
	audit        AuditSink
	log          logger.Logger
	logDecisions bool
	now          func() time.Time
}

// Option configures an Engine during construction.
type Option func(*Engine) error

// WithDirectory installs the employment directory used to build the subject
// snapshot. Without one, subjects evaluate with identity attributes only.
func WithDirectory(d Directory) Option {
	return func(e *Engine) error {
		e.directory = d
		return nil
	}
}

// WithAuditSink installs the sink that receives one PolicyLog per check.
func WithAuditSink(s AuditSink) Option {
	return func(e *Engine) error {
		e.audit = s
		return nil
	}
}

// WithLogger installs the operational logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithDecisionLogging toggles audit-record emission. Decisions themselves are
// unaffected.
func WithDecisionLogging(enabled bool) Option {
	return func(e *Engine) error {
		e.logDecisions = enabled
		return nil
	}
}

// WithClock overrides the time source; evaluation is deterministic given a
// fixed clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

// New constructs an engine bound to subject and tenant. Construction fails
// with ErrMissingTenant when a non-superuser subject has no tenant; there is
// deliberately no way to evaluate a check without a definite tenant.
func New(subject *Subject, tenant *Tenant, store PolicyStore, opts ...Option) (*Engine, error) {
	if subject == nil {
		return nil, fmt.Errorf("abac: subject is required")
	}
	if tenant == nil && !subject.IsSuperuser {
		return nil, ErrMissingTenant
	}
	if store == nil {
		return nil, fmt.Errorf("abac: policy store is required")
	}
	e := &Engine{
		subject:      subject,
		tenant:       tenant,
		store:        store,
		log:          logger.NewPhusluLogger(),
		logDecisions: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// CheckAccess decides whether the bound subject may perform action on the
// given resource type (and optionally a specific resource instance).
// resourceAttrs is the caller-supplied resource snapshot and may be nil.
//
// Conflict resolution is deny-overrides-allow across the entire matched set:
// priority orders the evaluated-policy list and the reason phrasing but never
// short-circuits a deny. A nil error guarantees a definite decision;
// repository failures surface as errors, never as a default outcome.
func (e *Engine) CheckAccess(ctx context.Context, resourceType, action string, resourceAttrs map[string]any, resourceID string) (*Decision, error) {
	dc, err := e.evaluate(ctx, resourceType, action, resourceAttrs, resourceID)
	if err != nil {
		return nil, err
	}
	return dc.Decision, nil
}

// Explain runs the same evaluation as CheckAccess and returns the full
// decision context for debugging and admin tooling.
func (e *Engine) Explain(ctx context.Context, resourceType, action string, resourceAttrs map[string]any, resourceID string) (*DecisionContext, error) {
	return e.evaluate(ctx, resourceType, action, resourceAttrs, resourceID)
}

func (e *Engine) evaluate(ctx context.Context, resourceType, action string, resourceAttrs map[string]any, resourceID string) (*DecisionContext, error) {
	now := e.now()

	// Superuser bypass: evaluated before any attribute or policy resolution.
	if e.subject.IsSuperuser {
		return &DecisionContext{
			Decision: &Decision{Allowed: true, Reason: "Superuser bypass", Timestamp: now},
		}, nil
	}

	subjectAttrs, err := e.subjectSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve subject attributes: %w", err)
	}

	// Org admins bypass policies within their own tenant scope; construction
	// already guaranteed the engine is bound to that scope.
	if e.subject.IsOrgAdmin {
		return &DecisionContext{
			Decision:          &Decision{Allowed: true, Reason: "Organization admin bypass", Timestamp: now},
			SubjectAttributes: subjectAttrs,
		}, nil
	}

	resAttrs := ResourceAttributes(resourceAttrs)
	envAttrs := EnvironmentAttributes(now)

	applicable, err := e.applicablePolicies(ctx, subjectAttrs, resourceType, action, resourceID, now)
	if err != nil {
		return nil, err
	}

	decision, results := decide(applicable, subjectAttrs, resAttrs, envAttrs)
	decision.Timestamp = now

	dc := &DecisionContext{
		Decision:              decision,
		SubjectAttributes:     subjectAttrs,
		ResourceAttributes:    resAttrs,
		EnvironmentAttributes: envAttrs,
		Applicable:            results,
	}

	e.log.Debug("access decision",
		"tenant", e.tenant.ID,
		"subject", e.subject.ID,
		"resource_type", resourceType,
		"action", action,
		"allowed", decision.Allowed,
		"reason", decision.Reason,
	)

	if e.logDecisions && e.audit != nil {
		e.recordDecision(ctx, resourceType, resourceID, action, dc)
	}
	return dc, nil
}

func (e *Engine) subjectSnapshot(ctx context.Context) (Attributes, error) {
	var profile *EmployeeProfile
	if e.directory != nil {
		p, err := e.directory.GetEmployeeProfile(ctx, e.subject.ID)
		if err != nil {
			return nil, err
		}
		profile = p
	}
	return SubjectAttributes(e.subject, e.tenant, profile), nil
}

// applicablePolicies combines valid direct assignments with dynamic group
// matches, deduplicates by policy identity, applies the resource/action/
// resource-id scoping filters, and orders by priority descending. Repository
// failures propagate: a check that cannot read its policy set fails loudly.
func (e *Engine) applicablePolicies(ctx context.Context, subjectAttrs Attributes, resourceType, action, resourceID string, now time.Time) ([]*Policy, error) {
	userPolicies, err := e.store.ListActiveUserPolicies(ctx, e.subject.ID, e.tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve user policies: %w", err)
	}
	groupPolicies, err := e.store.ListActiveGroupPolicies(ctx, e.tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve group policies: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []*Policy

	for _, up := range userPolicies {
		if !up.IsActive || !up.IsValidAt(now) {
			continue
		}
		p := up.Policy
		if p == nil || !p.IsActive || !p.IsValidAt(now) {
			continue
		}
		// stores already scope the join by tenant; a policy row belonging to
		// another tenant must never apply here regardless
		if p.TenantID != e.tenant.ID {
			continue
		}
		if !seen[p.ID] {
			seen[p.ID] = true
			candidates = append(candidates, p)
		}
	}

	for _, gp := range groupPolicies {
		if !gp.IsActive {
			continue
		}
		attr, _ := subjectAttrs.Get(string(gp.GroupType))
		if !matchesGroupValue(attr, gp.GroupValue) {
			continue
		}
		for _, p := range gp.Policies {
			if p == nil || !p.IsActive || p.TenantID != e.tenant.ID {
				continue
			}
			if !seen[p.ID] {
				seen[p.ID] = true
				candidates = append(candidates, p)
			}
		}
	}

	applicable := candidates[:0]
	for _, p := range candidates {
		if p.ResourceType != "" && p.ResourceType != resourceType {
			continue
		}
		if !p.AllowsAction(action) {
			continue
		}
		if p.ResourceID != "" && resourceID != "" && p.ResourceID != resourceID {
			continue
		}
		applicable = append(applicable, p)
	}

	// Priority affects only evaluation order in the audit trail and the
	// reason phrasing; the name tie-break keeps trails reproducible.
	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority > applicable[j].Priority
		}
		return applicable[i].Name < applicable[j].Name
	})
	return applicable, nil
}

// decide partitions the matched policies by effect and applies
// deny-overrides-allow over the whole set. An empty applicable set and a
// no-rules-matched set both deny, with distinct reasons.
func decide(applicable []*Policy, subject, resource, environment Attributes) (*Decision, []PolicyResult) {
	if len(applicable) == 0 {
		return &Decision{Allowed: false, Reason: "No applicable policies found", EvaluatedPolicies: []string{}}, nil
	}

	evaluated := make([]string, 0, len(applicable))
	results := make([]PolicyResult, 0, len(applicable))
	var denyNames, allowNames []string

	for _, p := range applicable {
		evaluated = append(evaluated, p.ID)
		matched := PolicyMatches(p, subject, resource, environment)
		results = append(results, PolicyResult{
			PolicyID: p.ID,
			Name:     p.Name,
			Effect:   p.Effect,
			Priority: p.Priority,
			Matched:  matched,
		})
		if !matched {
			continue
		}
		if p.Effect == EffectDeny {
			denyNames = append(denyNames, p.Name)
		} else {
			allowNames = append(allowNames, p.Name)
		}
	}

	switch {
	case len(denyNames) > 0:
		return &Decision{
			Allowed:           false,
			Reason:            "Denied by policy: " + strings.Join(denyNames, ", "),
			EvaluatedPolicies: evaluated,
		}, results
	case len(allowNames) > 0:
		return &Decision{
			Allowed:           true,
			Reason:            "Allowed by policy: " + strings.Join(allowNames, ", "),
			EvaluatedPolicies: evaluated,
		}, results
	default:
		return &Decision{
			Allowed:           false,
			Reason:            "No matching policy rules",
			EvaluatedPolicies: evaluated,
		}, results
	}
}

// recordDecision hands the decision context to the audit sink. Sink failures
// are logged and absorbed; they must never alter or delay the decision.
func (e *Engine) recordDecision(ctx context.Context, resourceType, resourceID, action string, dc *DecisionContext) {
	entry := &PolicyLog{
		ID:                    uuid.NewString(),
		UserID:                e.subject.ID,
		TenantID:              e.tenant.ID,
		ResourceType:          resourceType,
		ResourceID:            resourceID,
		Action:                action,
		Result:                dc.Decision.Allowed,
		SubjectAttributes:     dc.SubjectAttributes,
		ResourceAttributes:    dc.ResourceAttributes,
		EnvironmentAttributes: dc.EnvironmentAttributes,
		PoliciesEvaluated:     dc.Decision.EvaluatedPolicies,
		DecisionReason:        dc.Decision.Reason,
		Timestamp:             dc.Decision.Timestamp,
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.log.Error("audit log write failed",
			"tenant", e.tenant.ID,
			"subject", e.subject.ID,
			"error", err.Error(),
		)
	}
}

package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/abac"
)

// SQLPolicyStore persists policies, group policies and user assignments in
// SQL (squealx). It implements both abac.PolicyStore and abac.PolicyWriter.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) SavePolicy(ctx context.Context, p *abac.Policy) error {
	if err := abac.ValidatePolicy(p); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	actions, _ := json.Marshal(p.Actions)
	q := `INSERT OR REPLACE INTO policies(id, tenant_id, name, code, effect, priority, resource_type, actions_json, resource_id, is_active, valid_from, valid_until, created_at, updated_at) VALUES(:id, :tenant_id, :name, :code, :effect, :priority, :resource_type, :actions_json, :resource_id, :is_active, :valid_from, :valid_until, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            p.ID,
		"tenant_id":     p.TenantID,
		"name":          p.Name,
		"code":          p.Code,
		"effect":        string(p.Effect),
		"priority":      p.Priority,
		"resource_type": p.ResourceType,
		"actions_json":  string(actions),
		"resource_id":   p.ResourceID,
		"is_active":     boolToInt(p.IsActive),
		"valid_from":    timeOrNil(p.ValidFrom),
		"valid_until":   timeOrNil(p.ValidUntil),
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	})
	if err != nil {
		return err
	}
	// rules are replaced wholesale on every save
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM policy_rules WHERE policy_id = :policy_id`, map[string]any{"policy_id": p.ID}); err != nil {
		return err
	}
	for _, r := range p.Rules {
		valueJSON, _ := json.Marshal(r.Value)
		rq := `INSERT INTO policy_rules(id, policy_id, attribute_path, operator, value_json, is_active) VALUES(:id, :policy_id, :attribute_path, :operator, :value_json, :is_active)`
		_, err := s.db.NamedExecContext(ctx, rq, map[string]any{
			"id":             r.ID,
			"policy_id":      p.ID,
			"attribute_path": r.AttributePath,
			"operator":       string(r.Operator),
			"value_json":     string(valueJSON),
			"is_active":      boolToInt(r.IsActive),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLPolicyStore) SaveGroupPolicy(ctx context.Context, gp *abac.GroupPolicy) error {
	q := `INSERT OR REPLACE INTO group_policies(id, tenant_id, group_type, group_value, is_active) VALUES(:id, :tenant_id, :group_type, :group_value, :is_active)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          gp.ID,
		"tenant_id":   gp.TenantID,
		"group_type":  string(gp.GroupType),
		"group_value": gp.GroupValue,
		"is_active":   boolToInt(gp.IsActive),
	})
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM group_policy_policies WHERE group_policy_id = :group_policy_id`, map[string]any{"group_policy_id": gp.ID}); err != nil {
		return err
	}
	for _, pid := range gp.PolicyIDs {
		mq := `INSERT INTO group_policy_policies(group_policy_id, policy_id) VALUES(:group_policy_id, :policy_id)`
		if _, err := s.db.NamedExecContext(ctx, mq, map[string]any{"group_policy_id": gp.ID, "policy_id": pid}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLPolicyStore) AssignUserPolicy(ctx context.Context, up *abac.UserPolicy) error {
	if up.AssignedAt.IsZero() {
		up.AssignedAt = time.Now()
	}
	q := `INSERT OR REPLACE INTO user_policies(id, user_id, tenant_id, policy_id, is_active, valid_from, valid_until, assigned_by, assigned_at) VALUES(:id, :user_id, :tenant_id, :policy_id, :is_active, :valid_from, :valid_until, :assigned_by, :assigned_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          up.ID,
		"user_id":     up.UserID,
		"tenant_id":   up.TenantID,
		"policy_id":   up.PolicyID,
		"is_active":   boolToInt(up.IsActive),
		"valid_from":  timeOrNil(up.ValidFrom),
		"valid_until": timeOrNil(up.ValidUntil),
		"assigned_by": up.AssignedBy,
		"assigned_at": up.AssignedAt,
	})
	return err
}

func (s *SQLPolicyStore) ListActiveUserPolicies(ctx context.Context, userID, tenantID string) ([]*abac.UserPolicy, error) {
	q := `SELECT id, user_id, tenant_id, policy_id, is_active, valid_from, valid_until, assigned_by, assigned_at FROM user_policies WHERE user_id = :user_id AND tenant_id = :tenant_id AND is_active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.UserPolicy, 0)
	for r.Next() {
		var id, uid, tid, pid, assignedBy string
		var activeInt int
		var fromRaw, untilRaw, assignedRaw any
		if err := r.Scan(&id, &uid, &tid, &pid, &activeInt, &fromRaw, &untilRaw, &assignedBy, &assignedRaw); err != nil {
			return nil, err
		}
		up := &abac.UserPolicy{
			ID:         id,
			UserID:     uid,
			TenantID:   tid,
			PolicyID:   pid,
			IsActive:   activeInt != 0,
			ValidFrom:  scanTime(fromRaw),
			ValidUntil: scanTime(untilRaw),
			AssignedBy: assignedBy,
			AssignedAt: derefTime(scanTime(assignedRaw)),
		}
		out = append(out, up)
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	for _, up := range out {
		p, err := s.getPolicy(ctx, up.PolicyID, tenantID)
		if err != nil {
			return nil, err
		}
		up.Policy = p
	}
	return out, nil
}

func (s *SQLPolicyStore) ListActiveGroupPolicies(ctx context.Context, tenantID string) ([]*abac.GroupPolicy, error) {
	q := `SELECT id, tenant_id, group_type, group_value, is_active FROM group_policies WHERE tenant_id = :tenant_id AND is_active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.GroupPolicy, 0)
	for r.Next() {
		var id, tid, gtype, gvalue string
		var activeInt int
		if err := r.Scan(&id, &tid, &gtype, &gvalue, &activeInt); err != nil {
			return nil, err
		}
		out = append(out, &abac.GroupPolicy{
			ID:         id,
			TenantID:   tid,
			GroupType:  abac.GroupType(gtype),
			GroupValue: gvalue,
			IsActive:   activeInt != 0,
		})
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	for _, gp := range out {
		ids, err := s.listGroupPolicyIDs(ctx, gp.ID)
		if err != nil {
			return nil, err
		}
		gp.PolicyIDs = ids
		for _, pid := range ids {
			p, err := s.getPolicy(ctx, pid, tenantID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				gp.Policies = append(gp.Policies, p)
			}
		}
	}
	return out, nil
}

func (s *SQLPolicyStore) listGroupPolicyIDs(ctx context.Context, groupPolicyID string) ([]string, error) {
	q := `SELECT policy_id FROM group_policy_policies WHERE group_policy_id = :group_policy_id ORDER BY policy_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"group_policy_id": groupPolicyID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var pid string
		if err := r.Scan(&pid); err != nil {
			return nil, err
		}
		out = append(out, pid)
	}
	return out, nil
}

// getPolicy returns nil without error when the id does not exist in the given
// tenant, so dangling or cross-tenant references degrade to skipped policies
// rather than failed checks.
func (s *SQLPolicyStore) getPolicy(ctx context.Context, id, tenantID string) (*abac.Policy, error) {
	q := `SELECT id, tenant_id, name, code, effect, priority, resource_type, actions_json, resource_id, is_active, valid_from, valid_until, created_at, updated_at FROM policies WHERE id = :id AND tenant_id = :tenant_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id, "tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var idv, tenant, name, code, effect, resourceType, actionsJSON, resourceID string
	var priority, activeInt int
	var fromRaw, untilRaw, createdRaw, updatedRaw any
	if err := r.Scan(&idv, &tenant, &name, &code, &effect, &priority, &resourceType, &actionsJSON, &resourceID, &activeInt, &fromRaw, &untilRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &abac.Policy{
		ID:           idv,
		TenantID:     tenant,
		Name:         name,
		Code:         code,
		Effect:       abac.Effect(effect),
		Priority:     priority,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IsActive:     activeInt != 0,
		ValidFrom:    scanTime(fromRaw),
		ValidUntil:   scanTime(untilRaw),
		CreatedAt:    derefTime(scanTime(createdRaw)),
		UpdatedAt:    derefTime(scanTime(updatedRaw)),
	}
	_ = json.Unmarshal([]byte(actionsJSON), &p.Actions)
	if err := r.Close(); err != nil {
		return nil, err
	}
	rules, err := s.listRules(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Rules = rules
	return p, nil
}

func (s *SQLPolicyStore) listRules(ctx context.Context, policyID string) ([]abac.PolicyRule, error) {
	q := `SELECT id, attribute_path, operator, value_json, is_active FROM policy_rules WHERE policy_id = :policy_id ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"policy_id": policyID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]abac.PolicyRule, 0)
	for r.Next() {
		var id, path, op, valueJSON string
		var activeInt int
		if err := r.Scan(&id, &path, &op, &valueJSON, &activeInt); err != nil {
			return nil, err
		}
		rule := abac.PolicyRule{
			ID:            id,
			AttributePath: path,
			Operator:      abac.Operator(op),
			IsActive:      activeInt != 0,
		}
		_ = json.Unmarshal([]byte(valueJSON), &rule.Value)
		out = append(out, rule)
	}
	return out, nil
}

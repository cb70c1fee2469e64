package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/abac"
)

// SQLAuditStore persists decision logs in SQL.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) InsertLog(ctx context.Context, entry *abac.PolicyLog) error {
	subjB, _ := json.Marshal(entry.SubjectAttributes)
	resB, _ := json.Marshal(entry.ResourceAttributes)
	envB, _ := json.Marshal(entry.EnvironmentAttributes)
	polB, _ := json.Marshal(entry.PoliciesEvaluated)
	q := `INSERT INTO policy_logs(id, user_id, tenant_id, resource_type, resource_id, action, result, subject_json, resource_json, environment_json, policies_json, reason, timestamp) VALUES(:id, :user_id, :tenant_id, :resource_type, :resource_id, :action, :result, :subject_json, :resource_json, :environment_json, :policies_json, :reason, :timestamp)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               entry.ID,
		"user_id":          entry.UserID,
		"tenant_id":        entry.TenantID,
		"resource_type":    entry.ResourceType,
		"resource_id":      entry.ResourceID,
		"action":           entry.Action,
		"result":           boolToInt(entry.Result),
		"subject_json":     string(subjB),
		"resource_json":    string(resB),
		"environment_json": string(envB),
		"policies_json":    string(polB),
		"reason":           entry.DecisionReason,
		"timestamp":        entry.Timestamp,
	})
	return err
}

func (s *SQLAuditStore) ListLogs(ctx context.Context, filter abac.AuditFilter) ([]*abac.PolicyLog, error) {
	q := `SELECT id, user_id, tenant_id, resource_type, resource_id, action, result, subject_json, resource_json, environment_json, policies_json, reason, timestamp FROM policy_logs WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if filter.ResourceType != "" {
		q += " AND resource_type = :resource_type"
		params["resource_type"] = filter.ResourceType
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if !filter.Start.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.Start
	}
	if !filter.End.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.End
	}
	q += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.PolicyLog, 0)
	for r.Next() {
		var id, userID, tenantID, resourceType, resourceID, action, subjJSON, resJSON, envJSON, polJSON, reason string
		var resultInt int
		var tsRaw any
		if err := r.Scan(&id, &userID, &tenantID, &resourceType, &resourceID, &action, &resultInt, &subjJSON, &resJSON, &envJSON, &polJSON, &reason, &tsRaw); err != nil {
			return nil, err
		}
		entry := &abac.PolicyLog{
			ID:             id,
			UserID:         userID,
			TenantID:       tenantID,
			ResourceType:   resourceType,
			ResourceID:     resourceID,
			Action:         action,
			Result:         resultInt != 0,
			DecisionReason: reason,
			Timestamp:      derefTime(scanTime(tsRaw)),
		}
		_ = json.Unmarshal([]byte(subjJSON), &entry.SubjectAttributes)
		_ = json.Unmarshal([]byte(resJSON), &entry.ResourceAttributes)
		_ = json.Unmarshal([]byte(envJSON), &entry.EnvironmentAttributes)
		_ = json.Unmarshal([]byte(polJSON), &entry.PoliciesEvaluated)
		out = append(out, entry)
	}
	return out, nil
}

package abac

import (
	"context"
	"sync"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// MemoryPolicyStore keeps policies, assignments and group policies in maps.
// It implements both PolicyStore and PolicyWriter and is the store used by
// the engine tests; production deployments use the SQL stores.
type MemoryPolicyStore struct {
	mu            sync.RWMutex
	policies      map[string]*Policy
	userPolicies  []*UserPolicy
	groupPolicies []*GroupPolicy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*Policy)}
}

func (s *MemoryPolicyStore) SavePolicy(_ context.Context, p *Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) AssignUserPolicy(_ context.Context, up *UserPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.userPolicies {
		if existing.ID == up.ID {
			s.userPolicies[i] = up
			return nil
		}
	}
	s.userPolicies = append(s.userPolicies, up)
	return nil
}

func (s *MemoryPolicyStore) SaveGroupPolicy(_ context.Context, gp *GroupPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.groupPolicies {
		if existing.ID == gp.ID {
			s.groupPolicies[i] = gp
			return nil
		}
	}
	s.groupPolicies = append(s.groupPolicies, gp)
	return nil
}

func (s *MemoryPolicyStore) ListActiveUserPolicies(_ context.Context, userID, tenantID string) ([]*UserPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*UserPolicy, 0)
	for _, up := range s.userPolicies {
		if up.UserID != userID || up.TenantID != tenantID || !up.IsActive {
			continue
		}
		dup := *up
		if p, ok := s.policies[up.PolicyID]; ok && p.TenantID == tenantID {
			dup.Policy = p
		}
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryPolicyStore) ListActiveGroupPolicies(_ context.Context, tenantID string) ([]*GroupPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*GroupPolicy, 0)
	for _, gp := range s.groupPolicies {
		if gp.TenantID != tenantID || !gp.IsActive {
			continue
		}
		dup := *gp
		dup.Policies = make([]*Policy, 0, len(gp.PolicyIDs))
		for _, id := range gp.PolicyIDs {
			if p, ok := s.policies[id]; ok && p.TenantID == tenantID {
				dup.Policies = append(dup.Policies, p)
			}
		}
		out = append(out, &dup)
	}
	return out, nil
}

// MemoryAuditStore appends decision logs to a slice.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*PolicyLog
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*PolicyLog, 0)}
}

func (s *MemoryAuditStore) InsertLog(_ context.Context, entry *PolicyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) ListLogs(_ context.Context, filter AuditFilter) ([]*PolicyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PolicyLog, 0)
	for _, entry := range s.entries {
		if !matchesAuditFilter(entry, filter) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func matchesAuditFilter(entry *PolicyLog, filter AuditFilter) bool {
	if filter.UserID != "" && entry.UserID != filter.UserID {
		return false
	}
	if filter.TenantID != "" && entry.TenantID != filter.TenantID {
		return false
	}
	if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && entry.Timestamp.After(filter.End) {
		return false
	}
	return true
}

// MemoryDirectory is an in-memory employee directory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]*EmployeeProfile
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{profiles: make(map[string]*EmployeeProfile)}
}

func (d *MemoryDirectory) SetProfile(userID string, profile *EmployeeProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[userID] = profile
}

func (d *MemoryDirectory) GetEmployeeProfile(_ context.Context, userID string) (*EmployeeProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profiles[userID], nil
}

package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/abac"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// in-memory sqlite is per-connection
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLPolicyStoreUserPolicyRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &abac.Policy{
		ID:           "p1",
		TenantID:     "tenant-1",
		Name:         "Payroll Readers",
		Code:         "PAYROLL_READ",
		Effect:       abac.EffectAllow,
		Priority:     5,
		ResourceType: "payroll",
		Actions:      []string{"read", "list"},
		IsActive:     true,
		ValidUntil:   &until,
		Rules: []abac.PolicyRule{
			{ID: "r1", AttributePath: "subject.department", Operator: abac.OpEquals, Value: "Finance", IsActive: true},
			{ID: "r2", AttributePath: "subject.job_level", Operator: abac.OpGTE, Value: float64(3), IsActive: true},
		},
	}
	if err := store.SavePolicy(ctx, p); err != nil {
		t.Fatalf("save policy: %v", err)
	}
	if err := store.AssignUserPolicy(ctx, &abac.UserPolicy{
		ID: "up1", UserID: "u1", TenantID: "tenant-1", PolicyID: "p1", IsActive: true, AssignedBy: "admin",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	ups, err := store.ListActiveUserPolicies(ctx, "u1", "tenant-1")
	if err != nil {
		t.Fatalf("list user policies: %v", err)
	}
	if len(ups) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(ups))
	}
	got := ups[0]
	if got.Policy == nil {
		t.Fatalf("assignment must come back joined to its policy")
	}
	if got.Policy.Name != "Payroll Readers" || got.Policy.Effect != abac.EffectAllow || got.Policy.Priority != 5 {
		t.Fatalf("policy fields lost: %+v", got.Policy)
	}
	if len(got.Policy.Actions) != 2 || got.Policy.Actions[0] != "read" {
		t.Fatalf("actions lost: %v", got.Policy.Actions)
	}
	if got.Policy.ValidUntil == nil || !got.Policy.ValidUntil.Equal(until) {
		t.Fatalf("validity window lost: %v", got.Policy.ValidUntil)
	}
	if len(got.Policy.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got.Policy.Rules))
	}
	r := got.Policy.Rules[0]
	if r.AttributePath != "subject.department" || r.Operator != abac.OpEquals || r.Value != "Finance" {
		t.Fatalf("rule lost fidelity: %+v", r)
	}

	// other users and other tenants see nothing
	if ups, _ := store.ListActiveUserPolicies(ctx, "u2", "tenant-1"); len(ups) != 0 {
		t.Fatalf("assignment leaked to another user")
	}
	if ups, _ := store.ListActiveUserPolicies(ctx, "u1", "tenant-2"); len(ups) != 0 {
		t.Fatalf("assignment leaked to another tenant")
	}
}

func TestSQLPolicyStoreSaveReplacesRules(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	p := &abac.Policy{
		ID: "p1", TenantID: "tenant-1", Effect: abac.EffectAllow, IsActive: true,
		Rules: []abac.PolicyRule{
			{ID: "r1", AttributePath: "subject.department", Operator: abac.OpEquals, Value: "Finance", IsActive: true},
		},
	}
	if err := store.SavePolicy(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.Rules = []abac.PolicyRule{
		{ID: "r2", AttributePath: "subject.location", Operator: abac.OpEquals, Value: "Kathmandu", IsActive: true},
	}
	if err := store.SavePolicy(ctx, p); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := store.getPolicy(ctx, "p1", "tenant-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Rules) != 1 || got.Rules[0].ID != "r2" {
		t.Fatalf("rules must be replaced on save, got %+v", got.Rules)
	}
}

func TestSQLPolicyStoreGroupPolicies(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		p := &abac.Policy{ID: id, TenantID: "tenant-1", Effect: abac.EffectAllow, IsActive: true}
		if err := store.SavePolicy(ctx, p); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.SaveGroupPolicy(ctx, &abac.GroupPolicy{
		ID: "g1", TenantID: "tenant-1", GroupType: abac.GroupDepartment, GroupValue: "Engineering",
		IsActive: true, PolicyIDs: []string{"p1", "p2"},
	}); err != nil {
		t.Fatalf("save group: %v", err)
	}
	if err := store.SaveGroupPolicy(ctx, &abac.GroupPolicy{
		ID: "g2", TenantID: "tenant-1", GroupType: abac.GroupLocation, GroupValue: "Pokhara",
		IsActive: false, PolicyIDs: []string{"p1"},
	}); err != nil {
		t.Fatalf("save inactive group: %v", err)
	}

	gps, err := store.ListActiveGroupPolicies(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(gps) != 1 {
		t.Fatalf("inactive groups must be excluded, got %d", len(gps))
	}
	gp := gps[0]
	if gp.GroupType != abac.GroupDepartment || gp.GroupValue != "Engineering" {
		t.Fatalf("group fields lost: %+v", gp)
	}
	if len(gp.Policies) != 2 {
		t.Fatalf("group must come back joined to its policies, got %d", len(gp.Policies))
	}

	if gps, _ := store.ListActiveGroupPolicies(ctx, "tenant-2"); len(gps) != 0 {
		t.Fatalf("group leaked to another tenant")
	}
}

func TestSQLPolicyStoreCrossTenantReferenceNotJoined(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	foreign := &abac.Policy{ID: "pB", TenantID: "tenant-2", Effect: abac.EffectAllow, IsActive: true}
	if err := store.SavePolicy(ctx, foreign); err != nil {
		t.Fatalf("save foreign policy: %v", err)
	}
	if err := store.AssignUserPolicy(ctx, &abac.UserPolicy{
		ID: "up1", UserID: "u1", TenantID: "tenant-1", PolicyID: "pB", IsActive: true,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := store.SaveGroupPolicy(ctx, &abac.GroupPolicy{
		ID: "g1", TenantID: "tenant-1", GroupType: abac.GroupDepartment, GroupValue: "Engineering",
		IsActive: true, PolicyIDs: []string{"pB"},
	}); err != nil {
		t.Fatalf("save group: %v", err)
	}

	ups, err := store.ListActiveUserPolicies(ctx, "u1", "tenant-1")
	if err != nil {
		t.Fatalf("list user policies: %v", err)
	}
	if len(ups) != 1 || ups[0].Policy != nil {
		t.Fatalf("a policy from another tenant must not join into the assignment: %+v", ups)
	}

	gps, err := store.ListActiveGroupPolicies(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(gps) != 1 || len(gps[0].Policies) != 0 {
		t.Fatalf("a policy from another tenant must not join into the group: %+v", gps)
	}
}

func TestSQLAuditStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLAuditStore(db)
	ctx := context.Background()

	entry := &abac.PolicyLog{
		ID:           "log-1",
		UserID:       "u1",
		TenantID:     "tenant-1",
		ResourceType: "payroll",
		ResourceID:   "rec-9",
		Action:       "read",
		Result:       true,
		SubjectAttributes: abac.Attributes{
			"department": abac.String("Finance"),
			"job_level":  abac.Number(5),
		},
		ResourceAttributes:    abac.Attributes{"owner_id": abac.String("u1")},
		EnvironmentAttributes: abac.Attributes{"is_weekend": abac.Bool(false)},
		PoliciesEvaluated:     []string{"p1", "p2"},
		DecisionReason:        "Allowed by policy: Payroll Readers",
		Timestamp:             time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC),
	}
	if err := store.InsertLog(ctx, entry); err != nil {
		t.Fatalf("insert log: %v", err)
	}

	logs, err := store.ListLogs(ctx, abac.AuditFilter{UserID: "u1", TenantID: "tenant-1", Limit: 10})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if !got.Result || got.ResourceType != "payroll" || got.Action != "read" || got.DecisionReason != entry.DecisionReason {
		t.Fatalf("log lost fidelity: %+v", got)
	}
	if v, ok := got.SubjectAttributes.Get("department"); !ok || v.String() != "Finance" {
		t.Fatalf("subject snapshot lost: %v", got.SubjectAttributes)
	}
	if len(got.PoliciesEvaluated) != 2 {
		t.Fatalf("evaluated list lost: %v", got.PoliciesEvaluated)
	}

	// filters
	if logs, _ := store.ListLogs(ctx, abac.AuditFilter{UserID: "u2"}); len(logs) != 0 {
		t.Fatalf("user filter failed")
	}
	if logs, _ := store.ListLogs(ctx, abac.AuditFilter{Action: "delete"}); len(logs) != 0 {
		t.Fatalf("action filter failed")
	}
	if logs, _ := store.ListLogs(ctx, abac.AuditFilter{Start: entry.Timestamp.Add(time.Hour)}); len(logs) != 0 {
		t.Fatalf("start filter failed")
	}
}

func TestSQLDirectoryRoundtrip(t *testing.T) {
	db := newTestDB(t)
	dir := NewSQLDirectory(db)
	ctx := context.Background()

	lvl := 6
	doj := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	in := &abac.EmployeeProfile{
		EmployeeID: "E-100", Department: "Finance", DepartmentID: "d-1",
		Designation: "Accountant", JobLevel: &lvl, Location: "Kathmandu",
		EmploymentStatus: "active", EmploymentType: "full_time",
		DateOfJoining: doj, IsManager: true, ManagerID: "u9",
	}
	if err := dir.SaveEmployeeProfile(ctx, "u1", in); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	got, err := dir.GetEmployeeProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got == nil {
		t.Fatalf("profile not found after save")
	}
	if got.Department != "Finance" || got.Designation != "Accountant" || !got.IsManager || got.ManagerID != "u9" {
		t.Fatalf("profile lost fidelity: %+v", got)
	}
	if got.JobLevel == nil || *got.JobLevel != 6 {
		t.Fatalf("job level lost: %v", got.JobLevel)
	}
	if !got.DateOfJoining.Equal(doj) {
		t.Fatalf("date of joining lost: %v", got.DateOfJoining)
	}

	missing, err := dir.GetEmployeeProfile(ctx, "ghost")
	if err != nil || missing != nil {
		t.Fatalf("missing profile should be (nil, nil), got %+v, %v", missing, err)
	}
}

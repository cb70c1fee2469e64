package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/abac"
)

// SQLDirectory serves employee profiles from the employees table. A missing
// row is (nil, nil): the subject simply has null organizational attributes.
type SQLDirectory struct {
	db *squealx.DB
}

func NewSQLDirectory(db *squealx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) SaveEmployeeProfile(ctx context.Context, userID string, p *abac.EmployeeProfile) error {
	q := `INSERT OR REPLACE INTO employees(user_id, employee_id, department, department_id, designation, job_level, location, location_id, employment_status, employment_type, date_of_joining, is_manager, manager_id) VALUES(:user_id, :employee_id, :department, :department_id, :designation, :job_level, :location, :location_id, :employment_status, :employment_type, :date_of_joining, :is_manager, :manager_id)`
	var jobLevel any
	if p.JobLevel != nil {
		jobLevel = *p.JobLevel
	}
	var doj any
	if !p.DateOfJoining.IsZero() {
		doj = p.DateOfJoining
	}
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":           userID,
		"employee_id":       p.EmployeeID,
		"department":        p.Department,
		"department_id":     p.DepartmentID,
		"designation":       p.Designation,
		"job_level":         jobLevel,
		"location":          p.Location,
		"location_id":       p.LocationID,
		"employment_status": p.EmploymentStatus,
		"employment_type":   p.EmploymentType,
		"date_of_joining":   doj,
		"is_manager":        boolToInt(p.IsManager),
		"manager_id":        p.ManagerID,
	})
	return err
}

func (d *SQLDirectory) GetEmployeeProfile(ctx context.Context, userID string) (*abac.EmployeeProfile, error) {
	q := `SELECT employee_id, department, department_id, designation, job_level, location, location_id, employment_status, employment_type, date_of_joining, is_manager, manager_id FROM employees WHERE user_id = :user_id`
	r, err := d.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var employeeID, department, departmentID, designation, location, locationID, status, empType, managerID string
	var jobLevelRaw, dojRaw any
	var managerInt int
	if err := r.Scan(&employeeID, &department, &departmentID, &designation, &jobLevelRaw, &location, &locationID, &status, &empType, &dojRaw, &managerInt, &managerID); err != nil {
		return nil, err
	}
	p := &abac.EmployeeProfile{
		EmployeeID:       employeeID,
		Department:       department,
		DepartmentID:     departmentID,
		Designation:      designation,
		Location:         location,
		LocationID:       locationID,
		EmploymentStatus: status,
		EmploymentType:   empType,
		DateOfJoining:    derefTime(scanTime(dojRaw)),
		IsManager:        managerInt != 0,
		ManagerID:        managerID,
	}
	switch v := jobLevelRaw.(type) {
	case int64:
		lvl := int(v)
		p.JobLevel = &lvl
	case int:
		lvl := v
		p.JobLevel = &lvl
	case float64:
		lvl := int(v)
		p.JobLevel = &lvl
	}
	return p, nil
}

package store

import (
	"context"
	"database/sql"

	"printflow/internal/domain"
)

func (r *SQLiteRepo) CreateDepartment(ctx context.Context, d domain.Department) (domain.Department, error) {
	if d.ID == "" {
		d.ID = newID("dep")
	}
	d.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO departments (id,name,ord,description,created_at) VALUES (?,?,?,?,?)`,
		d.ID, d.Name, d.Order, d.Description, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Department{}, &domain.ValidationError{Field: "name", Msg: "department " + d.Name + " already exists"}
		}
		return domain.Department{}, domain.StoreErr("create department", err)
	}
	return d, nil
}

func (r *SQLiteRepo) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,name,ord,description,created_at FROM departments WHERE id=?`, id)
	var d domain.Department
	if err := row.Scan(&d.ID, &d.Name, &d.Order, &d.Description, &d.CreatedAt); err != nil {
		return domain.Department{}, wrap("get department", "department", id, err)
	}
	return d, nil
}

// ListDepartments returns every department in workflow order.
func (r *SQLiteRepo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,name,ord,description,created_at FROM departments ORDER BY ord, name`)
	if err != nil {
		return nil, domain.StoreErr("list departments", err)
	}
	defer rows.Close()

	var out []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Order, &d.Description, &d.CreatedAt); err != nil {
			return nil, domain.StoreErr("list departments", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CreateEmployee(ctx context.Context, e domain.Employee) (domain.Employee, error) {
	if e.ID == "" {
		e.ID = newID("emp")
	}
	if e.Role == "" {
		e.Role = domain.RoleStaff
	}
	e.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO employees (id,name,email,department_id,role,role_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.Name, e.Email, nullString(e.DepartmentID), string(e.Role), e.RoleID, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Employee{}, &domain.ValidationError{Field: "email", Msg: "email already registered"}
		}
		return domain.Employee{}, domain.StoreErr("create employee", err)
	}
	return e, nil
}

const employeeCols = `id,name,email,department_id,role,role_id,created_at`

func scanEmployee(s scanner) (domain.Employee, error) {
	var (
		e    domain.Employee
		dept sql.NullString
		role string
	)
	if err := s.Scan(&e.ID, &e.Name, &e.Email, &dept, &role, &e.RoleID, &e.CreatedAt); err != nil {
		return domain.Employee{}, err
	}
	e.DepartmentID = fromNull(dept)
	e.Role = domain.Role(role)
	return e, nil
}

func (r *SQLiteRepo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id)
	e, err := scanEmployee(row)
	if err != nil {
		return domain.Employee{}, wrap("get employee", "employee", id, err)
	}
	return e, nil
}

// ListEmployees returns employees in insertion order.
func (r *SQLiteRepo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+employeeCols+` FROM employees ORDER BY rowid`)
	if err != nil {
		return nil, domain.StoreErr("list employees", err)
	}
	defer rows.Close()

	var out []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, domain.StoreErr("list employees", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

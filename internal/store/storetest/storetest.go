// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"printflow/internal/domain"
	"printflow/internal/store"
)

// Open returns a repository over a fresh in-memory database that is closed
// when the test ends.
func Open(t testing.TB) *store.SQLiteRepo {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection: every new connection to :memory: is a new database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store.NewSQLiteRepo(db)
}

// Departments creates one department per name, with order = position + 1.
func Departments(t testing.TB, repo *store.SQLiteRepo, names ...string) []domain.Department {
	t.Helper()
	out := make([]domain.Department, 0, len(names))
	for i, n := range names {
		d, err := repo.CreateDepartment(context.Background(), domain.Department{Name: n, Order: i + 1})
		if err != nil {
			t.Fatalf("create department %s: %v", n, err)
		}
		out = append(out, d)
	}
	return out
}

// Employee creates a staff employee, optionally in a department.
func Employee(t testing.TB, repo *store.SQLiteRepo, name, deptID string) domain.Employee {
	t.Helper()
	e := domain.Employee{Name: name, Email: name + "@example.com", Role: domain.RoleStaff}
	if deptID != "" {
		e.DepartmentID = &deptID
	}
	e, err := repo.CreateEmployee(context.Background(), e)
	if err != nil {
		t.Fatalf("create employee %s: %v", name, err)
	}
	return e
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"printflow/internal/auth"
	"printflow/internal/domain"
)

type createDepartmentReq struct {
	Name        string `json:"name"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

func (s *Server) createDepartment(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleDepartments, auth.ActionCreate); err != nil {
		writeError(w, err)
		return
	}
	var req createDepartmentReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, &domain.ValidationError{Field: "name", Msg: "name is required"})
		return
	}
	if req.Order < 1 {
		writeError(w, &domain.ValidationError{Field: "order", Msg: "order must be at least 1"})
		return
	}
	d, err := s.dir.CreateDepartment(r.Context(), domain.Department{Name: req.Name, Order: req.Order, Description: req.Description})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleDepartments, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	depts, err := s.dir.ListDepartments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if depts == nil {
		depts = []domain.Department{}
	}
	writeJSON(w, http.StatusOK, depts)
}

type createEmployeeReq struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	DepartmentID *string `json:"departmentId"`
	Role         string  `json:"role"`
	RoleID       string  `json:"roleId"`
}

func (s *Server) createEmployee(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleEmployees, auth.ActionCreate); err != nil {
		writeError(w, err)
		return
	}
	var req createEmployeeReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	emp := domain.Employee{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
		Role:   domain.Role(req.Role),
		RoleID: strings.TrimSpace(req.RoleID),
	}
	if emp.Role == "" {
		emp.Role = domain.RoleStaff
	}
	switch {
	case emp.Name == "":
		writeError(w, &domain.ValidationError{Field: "name", Msg: "name is required"})
		return
	case emp.Email == "":
		writeError(w, &domain.ValidationError{Field: "email", Msg: "email is required"})
		return
	case !emp.Role.Valid():
		writeError(w, &domain.ValidationError{Field: "role", Msg: "role must be admin or staff"})
		return
	}
	if req.DepartmentID != nil && *req.DepartmentID != "" {
		if _, err := s.dir.GetDepartment(r.Context(), *req.DepartmentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				err = &domain.ValidationError{Field: "departmentId", Msg: "unknown department"}
			}
			writeError(w, err)
			return
		}
		emp.DepartmentID = req.DepartmentID
	}
	created, err := s.dir.CreateEmployee(r.Context(), emp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listEmployees(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleEmployees, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	emps, err := s.dir.ListEmployees(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if emps == nil {
		emps = []domain.Employee{}
	}
	writeJSON(w, http.StatusOK, emps)
}

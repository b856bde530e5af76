package domain

import "time"

type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Order       int       `json:"order"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Role is the coarse account role. Admins bypass the permission gate.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleStaff }

type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	DepartmentID *string   `json:"departmentId"`
	Role         Role      `json:"role"`
	RoleID       string    `json:"roleId,omitempty"` // named grant set from the roles file
	CreatedAt    time.Time `json:"createdAt"`
}

type Job struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ClientName string    `json:"clientName,omitempty"`
	Deadline   time.Time `json:"deadline"`
	ArtworkURL string    `json:"artworkUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Task struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	DepartmentID string    `json:"departmentId"`
	Order        int       `json:"order"`
	Deadline     time.Time `json:"deadline"`
	Status       Status    `json:"status"`
	EmployeeID   *string   `json:"employeeId"`
	Remarks      *string   `json:"remarks"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TaskFilter narrows a task listing. Zero fields match everything.
type TaskFilter struct {
	JobID      string
	EmployeeID string
	Status     Status
	OpenOnly   bool // exclude completed and delayed tasks
}

// TaskPatch carries the mutable task fields. A nil field is left unchanged.
type TaskPatch struct {
	Status     *Status
	EmployeeID *string
	Remarks    *string
}

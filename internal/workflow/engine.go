// Package workflow turns a job into an ordered chain of per-department tasks
// and moves those tasks through their statuses.
package workflow

import (
	"context"
	"time"

	"printflow/internal/domain"
	"printflow/internal/metrics"
)

// Registry is the read-only view of departments and employees.
type Registry interface {
	ListDepartments(ctx context.Context) ([]domain.Department, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (domain.Employee, error)
}

// TaskStore persists jobs and tasks.
type TaskStore interface {
	CreateJob(ctx context.Context, j domain.Job, tasks []domain.Task) (domain.Job, []domain.Task, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task, unblockNext bool) (*domain.Task, error)
}

type Engine struct {
	registry Registry
	tasks    TaskStore
	metrics  *metrics.Metrics
	locks    *jobLocks
	now      func() time.Time
}

type Option func(*Engine)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(registry Registry, tasks TaskStore, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		tasks:    tasks,
		locks:    newJobLocks(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.tasks.GetTask(ctx, id)
}

func (e *Engine) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	return e.tasks.ListTasks(ctx, f)
}

// GetJob returns the job and its tasks in stage order.
func (e *Engine) GetJob(ctx context.Context, id string) (domain.Job, []domain.Task, error) {
	j, err := e.tasks.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, nil, err
	}
	tasks, err := e.tasks.ListTasks(ctx, domain.TaskFilter{JobID: id})
	if err != nil {
		return domain.Job{}, nil, err
	}
	return j, tasks, nil
}

package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"printflow/internal/domain"
)

// NewJob is the input for job creation.
type NewJob struct {
	Title          string
	ClientName     string
	Deadline       time.Time
	StageDeadlines map[string]time.Time // department id -> deadline
}

// GenerateTasks builds the task chain for the allocated stages. The first task
// is pending and the rest are in-queue. Each task is assigned the first
// employee, in the given order, that belongs to its department.
func GenerateTasks(stages []StageDeadline, employees []domain.Employee) []domain.Task {
	firstInDept := make(map[string]string, len(stages))
	for _, emp := range employees {
		if emp.DepartmentID == nil {
			continue
		}
		if _, seen := firstInDept[*emp.DepartmentID]; !seen {
			firstInDept[*emp.DepartmentID] = emp.ID
		}
	}

	tasks := make([]domain.Task, len(stages))
	for i, s := range stages {
		t := domain.Task{
			DepartmentID: s.Department.ID,
			Order:        i + 1,
			Deadline:     s.Deadline,
			Status:       domain.StatusInQueue,
		}
		if i == 0 {
			t.Status = domain.StatusPending
		}
		if id, ok := firstInDept[s.Department.ID]; ok {
			t.EmployeeID = &id
		}
		tasks[i] = t
	}
	return tasks
}

// CreateJob validates the job, allocates stage deadlines and persists the job
// with its full task chain. Nothing is written if a supplied stage deadline
// is after the job deadline; computed ones are capped to it.
func (e *Engine) CreateJob(ctx context.Context, in NewJob) (domain.Job, []domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Job{}, nil, &domain.ValidationError{Field: "title", Msg: "title is required"}
	}
	if in.Deadline.IsZero() {
		return domain.Job{}, nil, &domain.ValidationError{Field: "deadline", Msg: "deadline is required"}
	}

	depts, err := e.registry.ListDepartments(ctx)
	if err != nil {
		return domain.Job{}, nil, err
	}
	known := make(map[string]bool, len(depts))
	for _, d := range depts {
		known[d.ID] = true
	}
	for id, dl := range in.StageDeadlines {
		if !known[id] {
			return domain.Job{}, nil, &domain.ValidationError{Field: "stageDeadlines." + id, Msg: "unknown department"}
		}
		if dl.IsZero() {
			return domain.Job{}, nil, &domain.ValidationError{Field: "stageDeadlines." + id, Msg: "stage deadline is required"}
		}
	}

	stages := AllocateDeadlines(depts, in.Deadline, in.StageDeadlines, e.now())
	if err := CheckBound(stages, in.Deadline); err != nil {
		return domain.Job{}, nil, err
	}
	CapComputed(stages, in.Deadline)

	employees, err := e.registry.ListEmployees(ctx)
	if err != nil {
		return domain.Job{}, nil, err
	}

	job, tasks, err := e.tasks.CreateJob(ctx, domain.Job{
		Title:      in.Title,
		ClientName: strings.TrimSpace(in.ClientName),
		Deadline:   in.Deadline,
	}, GenerateTasks(stages, employees))
	if err != nil {
		log.Error().Err(err).Str("title", in.Title).Msg("failed to create job")
		return domain.Job{}, nil, err
	}

	e.metrics.JobsCreated.Inc()
	e.metrics.TasksGenerated.Add(float64(len(tasks)))
	log.Info().
		Str("job_id", job.ID).
		Int("tasks", len(tasks)).
		Time("deadline", job.Deadline).
		Msg("job created")
	return job, tasks, nil
}

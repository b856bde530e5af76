// Package report provides read-only projections over tasks.
package report

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"printflow/internal/domain"
	"printflow/internal/metrics"
)

type TaskLister interface {
	ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error)
}

// Overdue returns open tasks whose deadline is before now.
func Overdue(ctx context.Context, tasks TaskLister, now time.Time) ([]domain.Task, error) {
	open, err := tasks.ListTasks(ctx, domain.TaskFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(open))
	for _, t := range open {
		if t.Deadline.Before(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Sweeper periodically logs overdue tasks and publishes their count.
// It never changes task state.
type Sweeper struct {
	tasks   TaskLister
	expr    string
	cron    *cron.Cron
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSweeper(tasks TaskLister, expr string, m *metrics.Metrics) (*Sweeper, error) {
	if err := ValidateCronExpression(expr); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Sweeper{
		tasks:   tasks,
		expr:    expr,
		cron:    cron.New(),
		metrics: m,
		now:     time.Now,
	}, nil
}

// Start runs the sweep on schedule until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expr, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("overdue sweep failed")
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	next, _ := NextRunTime(s.expr, s.now())
	log.Info().Str("cron", s.expr).Time("next_run", next).Msg("overdue sweep started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce performs a single sweep and returns the overdue count.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := Overdue(ctx, s.tasks, now)
	if err != nil {
		return 0, err
	}
	for _, t := range overdue {
		log.Warn().
			Str("task_id", t.ID).
			Str("job_id", t.JobID).
			Str("department_id", t.DepartmentID).
			Str("status", string(t.Status)).
			Dur("late_by", now.Sub(t.Deadline)).
			Msg("task overdue")
	}
	s.metrics.OverdueTasks.Set(float64(len(overdue)))
	return len(overdue), nil
}

// ValidateCronExpression validates a standard five-field cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

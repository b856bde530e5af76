package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"printflow/internal/domain"
)

// UpdateTask applies p to the task with the given id. Tasks waiting in-queue
// cannot be edited. Completing a task moves the next task of the same job
// from in-queue to pending; that task is returned as unblocked.
//
// Mutations of one job are serialized, and the store applies the update and
// the unblock atomically, so concurrent completions cannot unblock twice.
func (e *Engine) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (updated domain.Task, unblocked *domain.Task, err error) {
	cur, err := e.tasks.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, nil, err
	}
	release := e.locks.lock(cur.JobID)
	defer release()

	// Re-read under the job lock; a cascade may have changed it.
	if cur, err = e.tasks.GetTask(ctx, id); err != nil {
		return domain.Task{}, nil, err
	}
	if cur.Status == domain.StatusInQueue {
		return domain.Task{}, nil, domain.ErrQueued
	}

	next := cur
	if p.Status != nil {
		if !domain.CanTransition(cur.Status, *p.Status) {
			return domain.Task{}, nil, fmt.Errorf("%w: cannot move task from %s to %s", domain.ErrPrecondition, cur.Status, *p.Status)
		}
		next.Status = *p.Status
	}
	if p.EmployeeID != nil {
		if *p.EmployeeID == "" {
			next.EmployeeID = nil
		} else {
			if _, err := e.registry.GetEmployee(ctx, *p.EmployeeID); err != nil {
				return domain.Task{}, nil, err
			}
			emp := *p.EmployeeID
			next.EmployeeID = &emp
		}
	}
	if p.Remarks != nil {
		if *p.Remarks == "" {
			next.Remarks = nil
		} else {
			r := *p.Remarks
			next.Remarks = &r
		}
	}

	cascade := next.Status == domain.StatusCompleted
	unblocked, err = e.tasks.UpdateTask(ctx, next, cascade)
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Str("job_id", cur.JobID).Msg("failed to update task")
		return domain.Task{}, nil, err
	}

	if cur.Status != next.Status {
		e.metrics.Transitions.WithLabelValues(string(cur.Status), string(next.Status)).Inc()
		log.Debug().
			Str("task_id", id).
			Str("from", string(cur.Status)).
			Str("to", string(next.Status)).
			Msg("task transition")
	}
	if unblocked != nil {
		e.metrics.CascadeUnblocks.Inc()
		e.metrics.Transitions.WithLabelValues(string(domain.StatusInQueue), string(domain.StatusPending)).Inc()
		log.Info().
			Str("job_id", cur.JobID).
			Str("completed_task_id", id).
			Str("task_id", unblocked.ID).
			Int("order", unblocked.Order).
			Msg("next stage unblocked")
	} else if cascade && cur.Status != domain.StatusCompleted {
		log.Debug().Str("job_id", cur.JobID).Int("order", cur.Order).Msg("no queued stage after completed task")
	}

	updated, err = e.tasks.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, nil, err
	}
	return updated, unblocked, nil
}

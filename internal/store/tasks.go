package store

import (
	"context"
	"database/sql"
	"strings"

	"printflow/internal/domain"
)

// CreateJob writes the job row and its whole task chain in one transaction,
// so a failed insert never leaves a job with a partial chain.
func (r *SQLiteRepo) CreateJob(ctx context.Context, j domain.Job, tasks []domain.Task) (domain.Job, []domain.Task, error) {
	now := r.now()
	if j.ID == "" {
		j.ID = newID("job")
	}
	j.CreatedAt, j.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, nil, domain.StoreErr("create job", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO jobs (id,title,client_name,deadline,artwork_url,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		j.ID, j.Title, j.ClientName, j.Deadline.UTC(), j.ArtworkURL, j.CreatedAt, j.UpdatedAt); err != nil {
		return domain.Job{}, nil, domain.StoreErr("create job", err)
	}

	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			t.ID = newID("tsk")
		}
		t.JobID = j.ID
		t.CreatedAt, t.UpdatedAt = now, now
		if _, err := tx.ExecContext(ctx, `
INSERT INTO tasks (id,job_id,department_id,ord,deadline,status,employee_id,remarks,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.JobID, t.DepartmentID, t.Order, t.Deadline.UTC(), string(t.Status),
			nullString(t.EmployeeID), nullString(t.Remarks), t.CreatedAt, t.UpdatedAt); err != nil {
			return domain.Job{}, nil, domain.StoreErr("create task", err)
		}
		out[i] = t
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, nil, domain.StoreErr("create job", err)
	}
	return j, out, nil
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,title,client_name,deadline,artwork_url,created_at,updated_at FROM jobs WHERE id=?`, id)
	var j domain.Job
	if err := row.Scan(&j.ID, &j.Title, &j.ClientName, &j.Deadline, &j.ArtworkURL, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return domain.Job{}, wrap("get job", "job", id, err)
	}
	return j, nil
}

func (r *SQLiteRepo) SetJobArtwork(ctx context.Context, id, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE jobs SET artwork_url=?, updated_at=? WHERE id=?`, url, r.now(), id)
	if err != nil {
		return domain.StoreErr("set artwork", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("job", id)
	}
	return nil
}

const taskCols = `id,job_id,department_id,ord,deadline,status,employee_id,remarks,created_at,updated_at`

func scanTask(s scanner) (domain.Task, error) {
	var (
		t       domain.Task
		status  string
		emp     sql.NullString
		remarks sql.NullString
	)
	if err := s.Scan(&t.ID, &t.JobID, &t.DepartmentID, &t.Order, &t.Deadline, &status, &emp, &remarks, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.EmployeeID = fromNull(emp)
	t.Remarks = fromNull(remarks)
	return t, nil
}

func (r *SQLiteRepo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, wrap("get task", "task", id, err)
	}
	return t, nil
}

// ListTasks returns matching tasks ordered by job, then stage order.
func (r *SQLiteRepo) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.JobID != "" {
		where = append(where, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	if f.OpenOnly {
		where = append(where, "status NOT IN ('completed','delayed')")
	}
	q := `SELECT ` + taskCols + ` FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY job_id, ord"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, domain.StoreErr("list tasks", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.StoreErr("list tasks", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask persists status, employee and remarks of t. The write is
// refused for a task that is currently in-queue. When unblockNext is set
// the task with the following order in the same job is moved from in-queue
// to pending inside the same transaction; the unblocked task is returned,
// or nil if there was none to unblock.
func (r *SQLiteRepo) UpdateTask(ctx context.Context, t domain.Task, unblockNext bool) (*domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.StoreErr("update task", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now()
	res, err := tx.ExecContext(ctx, `
UPDATE tasks SET status=?, employee_id=?, remarks=?, updated_at=?
WHERE id=? AND status<>'in-queue'`,
		string(t.Status), nullString(t.EmployeeID), nullString(t.Remarks), now, t.ID)
	if err != nil {
		return nil, domain.StoreErr("update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id=?`, t.ID).Scan(&status)
		if err != nil {
			return nil, wrap("update task", "task", t.ID, err)
		}
		return nil, domain.ErrQueued
	}

	var unblocked *domain.Task
	if unblockNext {
		res, err := tx.ExecContext(ctx, `
UPDATE tasks SET status='pending', updated_at=?
WHERE job_id=? AND ord=? AND status='in-queue'`, now, t.JobID, t.Order+1)
		if err != nil {
			return nil, domain.StoreErr("unblock next task", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE job_id=? AND ord=?`, t.JobID, t.Order+1)
			next, err := scanTask(row)
			if err != nil {
				return nil, domain.StoreErr("unblock next task", err)
			}
			unblocked = &next
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.StoreErr("update task", err)
	}
	return unblocked, nil
}

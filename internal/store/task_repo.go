package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, task *Task) error {
	if task.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		task.ID = id
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (id, text, type, status, required_submissions, created_at, attempts, max_attempts, error_message)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, '')
`, task.ID, task.Text, task.Type, TaskQueued, task.RequiredSubmissions, formatTimestamp(task.CreatedAt), task.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.Status = TaskQueued
	task.Attempts = 0
	return nil
}

func (r *TaskRepo) scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	var finalLabel, reservedBy, leaseExpiresAt sql.NullString
	var createdAtRaw string

	if err := scan(&t.ID, &t.Text, &t.Type, &t.Status, &finalLabel, &t.RequiredSubmissions,
		&createdAtRaw, &reservedBy, &leaseExpiresAt, &t.Attempts, &t.MaxAttempts, &t.ErrorMessage); err != nil {
		return nil, err
	}

	var err error
	t.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	t.FinalLabel = finalLabel
	t.ReservedBy = reservedBy
	t.LeaseExpiresAt, err = sqlToNullTime(leaseExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const taskColumns = `id, text, type, status, final_label, required_submissions, created_at, reserved_by, lease_expires_at, attempts, max_attempts, error_message`

func (r *TaskRepo) Get(ctx context.Context, id string) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := r.scanTask(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task %q: %w", id, err)
	}
	return t, nil
}

// List returns tasks ordered FIFO by (created_at, id), optionally filtered
// by status.
func (r *TaskRepo) List(ctx context.Context, status string) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := r.scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating tasks: %w", err)
	}
	return tasks, nil
}

// ListDispatchCandidates returns tasks eligible for dispatch consideration
// (status queued or assigned), FIFO ordered by (created_at, id).
func (r *TaskRepo) ListDispatchCandidates(ctx context.Context) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE status IN (?, ?)
ORDER BY created_at ASC, id ASC
`, TaskQueued, TaskAssigned)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch candidates: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := r.scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating dispatch candidates: %w", err)
	}
	return tasks, nil
}

// ListAssigned returns every task currently leased, for the reaper's
// requeue sweep.
func (r *TaskRepo) ListAssigned(ctx context.Context) ([]*Task, error) {
	return r.List(ctx, TaskAssigned)
}

// Claim attempts to atomically move a task from queued (or assigned with an
// expired lease) to assigned for workerID. It reports false, not an error,
// when another claimant already won the race.
func (r *TaskRepo) Claim(ctx context.Context, id string, workerID string, leaseExpiresAt time.Time, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, reserved_by = ?, lease_expires_at = ?, attempts = attempts + 1
WHERE id = ?
  AND status IN (?, ?)
  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
`, TaskAssigned, workerID, formatTimestamp(leaseExpiresAt), id, TaskQueued, TaskAssigned, formatTimestamp(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim task %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for task %q: %w", id, err)
	}
	return affected > 0, nil
}

// ExtendLeasesForWorker pushes out lease_expires_at for every task the
// worker currently holds, so a heartbeat keeps its in-flight assignments
// alive without waiting for the next dispatch call.
func (r *TaskRepo) ExtendLeasesForWorker(ctx context.Context, workerID string, leaseExpiresAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET lease_expires_at = ?
WHERE reserved_by = ? AND status = ?
`, formatTimestamp(leaseExpiresAt), workerID, TaskAssigned)
	if err != nil {
		return 0, fmt.Errorf("failed to extend leases for worker %q: %w", workerID, err)
	}
	return res.RowsAffected()
}

// Requeue clears a task's lease and returns it to queued. Used by the
// reaper when a leased task's worker has gone stale or the lease expired,
// and the attempt budget is not yet exhausted.
func (r *TaskRepo) Requeue(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE tasks SET status = ?, reserved_by = NULL, lease_expires_at = NULL
WHERE id = ?
`, TaskQueued, id)
	if err != nil {
		return fmt.Errorf("failed to requeue task %q: %w", id, err)
	}
	return nil
}

// Fail transitions a task to failed, preserving any prior error_message
// when message is empty.
func (r *TaskRepo) Fail(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, reserved_by = NULL, lease_expires_at = NULL,
    error_message = CASE WHEN ? = '' THEN error_message ELSE ? END
WHERE id = ?
`, TaskFailed, message, message, id)
	if err != nil {
		return fmt.Errorf("failed to fail task %q: %w", id, err)
	}
	return nil
}

// Finalize sets the final label and marks the task finalized, but only if
// it is not already finalized and has not failed — this is the guard that
// makes finalization fire exactly once per task and keeps failed tasks
// terminal.
func (r *TaskRepo) Finalize(ctx context.Context, id string, label string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, final_label = ?, reserved_by = NULL, lease_expires_at = NULL
WHERE id = ? AND final_label IS NULL AND status != ?
`, TaskFinalized, label, id, TaskFailed)
	if err != nil {
		return false, fmt.Errorf("failed to finalize task %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read finalize result for task %q: %w", id, err)
	}
	return affected > 0, nil
}

func (r *TaskRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of tasks in each status present.
func (r *TaskRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating task status counts: %w", err)
	}
	return counts, nil
}

func (r *TaskRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

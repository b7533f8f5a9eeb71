package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SubmissionRepo struct {
	db *sql.DB
}

func NewSubmissionRepo(db *sql.DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

func (r *SubmissionRepo) Create(ctx context.Context, sub *Submission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO submissions (task_id, worker_id, label, confidence, created_at)
VALUES (?, ?, ?, ?, ?)
`, sub.TaskID, sub.WorkerID, sub.Label, sub.Confidence, formatTimestamp(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create submission for task %q worker %q: %w", sub.TaskID, sub.WorkerID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read submission id: %w", err)
	}
	sub.ID = id
	return nil
}

func (r *SubmissionRepo) scanSubmission(scan func(dest ...any) error) (*Submission, error) {
	var s Submission
	var createdAtRaw string
	if err := scan(&s.ID, &s.TaskID, &s.WorkerID, &s.Label, &s.Confidence, &createdAtRaw); err != nil {
		return nil, err
	}
	var err error
	s.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const submissionColumns = `id, task_id, worker_id, label, confidence, created_at`

// Get returns the submission for (taskID, workerID), or (nil, nil) if the
// worker has not yet submitted for this task — the dedup lookup used by
// the Aggregator and the Dispatcher's per-worker skip rule.
func (r *SubmissionRepo) Get(ctx context.Context, taskID, workerID string) (*Submission, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+submissionColumns+` FROM submissions WHERE task_id = ? AND worker_id = ?
`, taskID, workerID)
	s, err := r.scanSubmission(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission for task %q worker %q: %w", taskID, workerID, err)
	}
	return s, nil
}

// ListByTask returns a task's submissions oldest-first.
func (r *SubmissionRepo) ListByTask(ctx context.Context, taskID string) ([]*Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+submissionColumns+` FROM submissions WHERE task_id = ? ORDER BY created_at ASC, id ASC
`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for task %q: %w", taskID, err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		s, err := r.scanSubmission(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating submissions: %w", err)
	}
	return subs, nil
}

func (r *SubmissionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}

func (r *SubmissionRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM submissions`); err != nil {
		return fmt.Errorf("failed to delete submissions: %w", err)
	}
	return nil
}

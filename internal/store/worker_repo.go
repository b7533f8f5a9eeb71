package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type WorkerRepo struct {
	db *sql.DB
}

func NewWorkerRepo(db *sql.DB) *WorkerRepo {
	return &WorkerRepo{db: db}
}

func (r *WorkerRepo) scanWorker(scan func(dest ...any) error) (*Worker, error) {
	var w Worker
	var lastSeen sql.NullString
	var createdAtRaw, capabilitiesRaw string

	if err := scan(&w.WorkerID, &w.Status, &lastSeen, &createdAtRaw, &capabilitiesRaw); err != nil {
		return nil, err
	}

	var err error
	w.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	w.LastSeen, err = sqlToNullTime(lastSeen)
	if err != nil {
		return nil, err
	}
	w.Capabilities, err = decodeStringSlice(capabilitiesRaw)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const workerColumns = `worker_id, status, last_seen, created_at, capabilities`

func (r *WorkerRepo) Get(ctx context.Context, workerID string) (*Worker, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE worker_id = ?`, workerID)
	w, err := r.scanWorker(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get worker %q: %w", workerID, err)
	}
	return w, nil
}

func (r *WorkerRepo) List(ctx context.Context) ([]*Worker, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY worker_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []*Worker
	for rows.Next() {
		w, err := r.scanWorker(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating workers: %w", err)
	}
	return workers, nil
}

// Register upserts a worker: creates it active with last_seen=now if
// absent, otherwise marks it active and bumps last_seen. capabilities
// replace the stored set only when provided (hasCapabilities=true) — a
// bare heartbeat passes hasCapabilities=false to leave them untouched.
func (r *WorkerRepo) Register(ctx context.Context, workerID string, capabilities []string, hasCapabilities bool, now time.Time) error {
	existing, err := r.Get(ctx, workerID)
	if err != nil {
		return err
	}

	if existing == nil {
		caps := capabilities
		if !hasCapabilities {
			caps = nil
		}
		capRaw, err := encodeStringSlice(caps)
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, `
INSERT INTO workers (worker_id, status, last_seen, created_at, capabilities)
VALUES (?, ?, ?, ?, ?)
`, workerID, WorkerActive, formatTimestamp(now), formatTimestamp(now), capRaw)
		if err != nil {
			return fmt.Errorf("failed to register worker %q: %w", workerID, err)
		}
		return nil
	}

	if hasCapabilities {
		capRaw, err := encodeStringSlice(capabilities)
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, `
UPDATE workers SET status = ?, last_seen = ?, capabilities = ? WHERE worker_id = ?
`, WorkerActive, formatTimestamp(now), capRaw, workerID)
		if err != nil {
			return fmt.Errorf("failed to update worker %q: %w", workerID, err)
		}
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
UPDATE workers SET status = ?, last_seen = ? WHERE worker_id = ?
`, WorkerActive, formatTimestamp(now), workerID)
	if err != nil {
		return fmt.Errorf("failed to update worker %q: %w", workerID, err)
	}
	return nil
}

// MarkStale transitions every worker whose last_seen predates cutoff (and
// is not already stale) to stale. It returns the number of rows touched.
func (r *WorkerRepo) MarkStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE workers SET status = ?
WHERE status != ? AND last_seen IS NOT NULL AND last_seen < ?
`, WorkerStale, WorkerStale, formatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale workers: %w", err)
	}
	return res.RowsAffected()
}

func (r *WorkerRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count workers: %w", err)
	}
	return n, nil
}

// CountStaleSince counts workers whose last_seen predates cutoff,
// regardless of their current status field — the Stats snapshot's
// definition of staleness.
func (r *WorkerRepo) CountStaleSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM workers WHERE last_seen IS NULL OR last_seen < ?
`, formatTimestamp(cutoff)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale workers: %w", err)
	}
	return n, nil
}

func (r *WorkerRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workers`); err != nil {
		return fmt.Errorf("failed to delete workers: %w", err)
	}
	return nil
}

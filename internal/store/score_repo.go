package store

import (
	"context"
	"database/sql"
	"fmt"
)

type ScoreRepo struct {
	db *sql.DB
}

func NewScoreRepo(db *sql.DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

// Award increments worker_id's points by delta, upserting to delta on
// first award. Called once per finalization per distinct winning worker.
func (r *ScoreRepo) Award(ctx context.Context, workerID string, delta int) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO worker_scores (worker_id, points) VALUES (?, ?)
ON CONFLICT(worker_id) DO UPDATE SET points = points + excluded.points
`, workerID, delta)
	if err != nil {
		return fmt.Errorf("failed to award points to worker %q: %w", workerID, err)
	}
	return nil
}

// Leaderboard returns every worker's score, sorted by points descending,
// worker_id ascending as a deterministic tiebreak.
func (r *ScoreRepo) Leaderboard(ctx context.Context) ([]*WorkerScore, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT worker_id, points FROM worker_scores ORDER BY points DESC, worker_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	defer rows.Close()

	var scores []*WorkerScore
	for rows.Next() {
		var s WorkerScore
		if err := rows.Scan(&s.WorkerID, &s.Points); err != nil {
			return nil, fmt.Errorf("failed to scan worker score: %w", err)
		}
		scores = append(scores, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating leaderboard: %w", err)
	}
	return scores, nil
}

func (r *ScoreRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM worker_scores`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count worker scores: %w", err)
	}
	return n, nil
}

func (r *ScoreRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM worker_scores`); err != nil {
		return fmt.Errorf("failed to delete worker scores: %w", err)
	}
	return nil
}

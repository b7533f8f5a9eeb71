package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

type migration struct {
	version int
	name    string
	sql     string
}

// Migrations are versioned through the _meta schema_version row: each runs
// once, in order, and every statement is CREATE ... IF NOT EXISTS, so
// re-running is harmless. Each table is created whole with its column
// defaults (attempts=0, max_attempts=5, type and error_message ''); a table
// that already exists is left as it is, so no column is added to an
// existing table.
var migrations = []migration{
	{
		version: 1,
		name:    "create core tables",
		sql: `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'queued',
	final_label TEXT,
	required_submissions INTEGER NOT NULL DEFAULT 3,
	created_at TEXT NOT NULL,
	reserved_by TEXT,
	lease_expires_at TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_reserved_by ON tasks(reserved_by);
CREATE INDEX IF NOT EXISTS idx_tasks_lease_expires_at ON tasks(lease_expires_at);
CREATE INDEX IF NOT EXISTS idx_tasks_attempts ON tasks(attempts);
CREATE INDEX IF NOT EXISTS idx_tasks_max_attempts ON tasks(max_attempts);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at_id ON tasks(created_at, id);

CREATE TABLE IF NOT EXISTS submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	label TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_task_worker ON submissions(task_id, worker_id);
CREATE INDEX IF NOT EXISTS idx_submissions_task_id ON submissions(task_id);
CREATE INDEX IF NOT EXISTS idx_submissions_worker_id ON submissions(worker_id);

CREATE TABLE IF NOT EXISTS worker_scores (
	worker_id TEXT PRIMARY KEY,
	points INTEGER NOT NULL DEFAULT 0
);
`,
	},
	{
		version: 2,
		name:    "create workers",
		sql: `
CREATE TABLE IF NOT EXISTS workers (
	worker_id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	last_seen TEXT,
	created_at TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);
CREATE INDEX IF NOT EXISTS idx_workers_last_seen ON workers(last_seen);
`,
	},
}

func RunMigrations(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS _meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`); err != nil {
		return fmt.Errorf("failed to ensure _meta table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO _meta (key, value) VALUES ('schema_version', '0')`); err != nil {
		return fmt.Errorf("failed to initialize schema version: %w", err)
	}

	var currentRaw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = 'schema_version'`).Scan(&currentRaw); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	currentVersion, err := strconv.Atoi(currentRaw)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", currentRaw, err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("failed migration %03d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE _meta SET value = ? WHERE key = 'schema_version'`, strconv.Itoa(m.version)); err != nil {
			return fmt.Errorf("failed to set schema version %03d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}

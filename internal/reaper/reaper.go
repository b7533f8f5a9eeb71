// Package reaper runs the periodic sweep that reclaims tasks abandoned by
// stale or unresponsive workers, following the teacher's ticker-driven
// background-loop shape (internal/session.Monitor.Run).
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/store"
)

type Reaper struct {
	tasks   *store.TaskRepo
	workers *store.WorkerRepo
	clock   clock.Clock
	logger  *slog.Logger

	heartbeatTTL time.Duration
	sweepEvery   time.Duration
}

func New(tasks *store.TaskRepo, workers *store.WorkerRepo, c clock.Clock, logger *slog.Logger, heartbeatTTL, sweepEvery time.Duration) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		tasks:        tasks,
		workers:      workers,
		clock:        c,
		logger:       logger,
		heartbeatTTL: heartbeatTTL,
		sweepEvery:   sweepEvery,
	}
}

// Run blocks, sweeping every sweepEvery until ctx is cancelled. Sweep
// errors are logged and never stop the loop.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reaper sweep failed", "error", err)
			}
		}
	}
}

// HeartbeatCutoff returns the current threshold below which a worker's
// last_seen counts as stale — used by the admin Stats snapshot.
func (r *Reaper) HeartbeatCutoff() time.Time {
	return r.clock.Now().Add(-r.heartbeatTTL)
}

// SweepResult reports what the sweep touched.
type SweepResult struct {
	WorkersMarkedStale int64
	TasksRequeued      int
	TasksFailed        int
}

// Sweep runs one iteration of the two-phase reclaim and is also the entry
// point for the admin manual-requeue operation.
func (r *Reaper) Sweep(ctx context.Context) (*SweepResult, error) {
	now := r.clock.Now()
	result := &SweepResult{}

	cutoff := now.Add(-r.heartbeatTTL)
	markedStale, err := r.workers.MarkStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	result.WorkersMarkedStale = markedStale

	assigned, err := r.tasks.ListAssigned(ctx)
	if err != nil {
		return nil, err
	}

	for _, task := range assigned {
		abandoned, err := r.isAbandoned(ctx, task, now, cutoff)
		if err != nil {
			r.logger.Error("reaper failed to evaluate task", "task_id", task.ID, "error", err)
			continue
		}
		if !abandoned {
			continue
		}

		if task.Attempts >= task.MaxAttempts {
			if err := r.tasks.Fail(ctx, task.ID, "max attempts reached"); err != nil {
				r.logger.Error("reaper failed to fail task", "task_id", task.ID, "error", err)
				continue
			}
			result.TasksFailed++
			continue
		}

		if err := r.tasks.Requeue(ctx, task.ID); err != nil {
			r.logger.Error("reaper failed to requeue task", "task_id", task.ID, "error", err)
			continue
		}
		result.TasksRequeued++
	}

	return result, nil
}

func (r *Reaper) isAbandoned(ctx context.Context, task *store.Task, now, cutoff time.Time) (bool, error) {
	leaseExpired := !task.LeaseExpiresAt.Valid || !task.LeaseExpiresAt.Time.After(now)

	workerStale := false
	if task.ReservedBy.Valid {
		worker, err := r.workers.Get(ctx, task.ReservedBy.String)
		if err != nil {
			return false, err
		}
		if worker != nil {
			workerStale = !worker.LastSeen.Valid || worker.LastSeen.Time.Before(cutoff) || worker.Status == store.WorkerStale
		}
		// An unknown reserved_by worker is not treated as abandoned on
		// that basis alone — avoids spurious requeues after a store reset.
	}

	return leaseExpired || workerStale, nil
}

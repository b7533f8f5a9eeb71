// Package workers implements worker registration and heartbeat handling,
// including the coupling between a heartbeat and lease extension: a worker
// that calls in regularly keeps every task it is holding alive without
// needing to re-dispatch.
package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/store"
)

type Service struct {
	workers *store.WorkerRepo
	tasks   *store.TaskRepo
	clock   clock.Clock
	lease   time.Duration
}

func NewService(workers *store.WorkerRepo, tasks *store.TaskRepo, c clock.Clock, lease time.Duration) *Service {
	return &Service{workers: workers, tasks: tasks, clock: c, lease: lease}
}

// Register creates or reactivates a worker. Passing a nil capabilities
// slice leaves any previously stored capabilities untouched.
func (s *Service) Register(ctx context.Context, workerID string, capabilities []string) (*store.Worker, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, fmt.Errorf("worker_id is required")
	}
	now := s.clock.Now()
	if err := s.workers.Register(ctx, workerID, capabilities, capabilities != nil, now); err != nil {
		return nil, fmt.Errorf("register worker %s: %w", workerID, err)
	}
	return s.workers.Get(ctx, workerID)
}

// HeartbeatResult reports the heartbeat timestamp and how many in-flight
// leases were extended as a result.
type HeartbeatResult struct {
	Timestamp      time.Time
	LeasesExtended int64
}

func (s *Service) Heartbeat(ctx context.Context, workerID string) (*HeartbeatResult, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, fmt.Errorf("worker_id is required")
	}
	now := s.clock.Now()
	if err := s.workers.Register(ctx, workerID, nil, false, now); err != nil {
		return nil, fmt.Errorf("heartbeat worker %s: %w", workerID, err)
	}
	extended, err := s.tasks.ExtendLeasesForWorker(ctx, workerID, now.Add(s.lease))
	if err != nil {
		return nil, fmt.Errorf("extend leases for worker %s: %w", workerID, err)
	}
	return &HeartbeatResult{Timestamp: now, LeasesExtended: extended}, nil
}

func (s *Service) Get(ctx context.Context, workerID string) (*store.Worker, error) {
	w, err := s.workers.Get(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("get worker %s: %w", workerID, err)
	}
	if w == nil {
		return nil, store.ErrNotFound
	}
	return w, nil
}

func (s *Service) List(ctx context.Context) ([]*store.Worker, error) {
	items, err := s.workers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return items, nil
}

// MarkStaleSince transitions every worker whose last_seen predates cutoff
// to stale. The reaper does not call it: its sweep uses
// store.WorkerRepo.MarkStale directly.
func (s *Service) MarkStaleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.workers.MarkStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale workers: %w", err)
	}
	return n, nil
}

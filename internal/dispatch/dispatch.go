// Package dispatch implements worker-facing task assignment: the
// capability-filtered, lease-guarded atomic claim that hands a single task
// to a single worker at a time.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/store"
)

type Service struct {
	tasks   *store.TaskRepo
	workers *store.WorkerRepo
	subs    *store.SubmissionRepo
	clock   clock.Clock
	lease   time.Duration
}

func NewService(tasks *store.TaskRepo, workers *store.WorkerRepo, subs *store.SubmissionRepo, c clock.Clock, lease time.Duration) *Service {
	return &Service{tasks: tasks, workers: workers, subs: subs, clock: c, lease: lease}
}

// Assignment is what NextTask hands back to a worker.
type Assignment struct {
	TaskID string
	Text   string
}

// NextTask returns the next eligible task for workerID, or nil if none is
// available right now.
func (s *Service) NextTask(ctx context.Context, workerID string) (*Assignment, error) {
	worker, err := s.workers.Get(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("load worker %s: %w", workerID, err)
	}

	candidates, err := s.tasks.ListDispatchCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dispatch candidates: %w", err)
	}

	now := s.clock.Now()

	for _, candidate := range candidates {
		skip, err := s.skip(ctx, candidate, worker, workerID, now)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}

		claimed, err := s.tasks.Claim(ctx, candidate.ID, workerID, now.Add(s.lease), now)
		if err != nil {
			return nil, fmt.Errorf("claim task %s for worker %s: %w", candidate.ID, workerID, err)
		}
		if !claimed {
			// Lost the race to another dispatcher call; move on.
			continue
		}
		return &Assignment{TaskID: candidate.ID, Text: candidate.Text}, nil
	}

	return nil, nil
}

// skip reports whether candidate must be passed over for workerID: a
// capability mismatch, a lease still held by someone else, or a submission
// this worker already made for it.
func (s *Service) skip(ctx context.Context, candidate *store.Task, worker *store.Worker, workerID string, now time.Time) (bool, error) {
	if candidate.Type != "" && worker != nil && len(worker.Capabilities) > 0 {
		if !containsString(worker.Capabilities, candidate.Type) {
			return true, nil
		}
	}

	if candidate.Status == store.TaskAssigned {
		if candidate.LeaseExpiresAt.Valid && candidate.LeaseExpiresAt.Time.After(now) {
			return true, nil
		}
	}

	existing, err := s.subs.Get(ctx, candidate.ID, workerID)
	if err != nil {
		return false, fmt.Errorf("check prior submission for task %s worker %s: %w", candidate.ID, workerID, err)
	}
	return existing != nil, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

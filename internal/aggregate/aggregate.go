// Package aggregate implements submission intake and quorum finalization:
// the plurality vote over a task's submissions, with a confidence-based
// tiebreak, that decides a task's final_label.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/store"
)

type Service struct {
	tasks  *store.TaskRepo
	subs   *store.SubmissionRepo
	scores *store.ScoreRepo
	clock  clock.Clock
}

func NewService(tasks *store.TaskRepo, subs *store.SubmissionRepo, scores *store.ScoreRepo, c clock.Clock) *Service {
	return &Service{tasks: tasks, subs: subs, scores: scores, clock: c}
}

// Result reports the outcome of a submission.
type Result struct {
	Duplicate  bool
	Finalized  bool
	FinalLabel string
}

func (s *Service) Submit(ctx context.Context, workerID, taskID, label string, confidence float64) (*Result, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if task == nil {
		return nil, store.ErrNotFound
	}

	existing, err := s.subs.Get(ctx, taskID, workerID)
	if err != nil {
		return nil, fmt.Errorf("check prior submission for task %s worker %s: %w", taskID, workerID, err)
	}
	if existing != nil {
		return &Result{Duplicate: true}, nil
	}

	sub := &store.Submission{
		TaskID:     taskID,
		WorkerID:   workerID,
		Label:      label,
		Confidence: confidence,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission for task %s worker %s: %w", taskID, workerID, err)
	}

	all, err := s.subs.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list submissions for task %s: %w", taskID, err)
	}

	if task.FinalLabel.Valid || len(all) < task.RequiredSubmissions {
		return &Result{Duplicate: false}, nil
	}

	bestLabel := plurality(all)
	finalized, err := s.tasks.Finalize(ctx, taskID, bestLabel)
	if err != nil {
		return nil, fmt.Errorf("finalize task %s: %w", taskID, err)
	}
	if !finalized {
		// Another submission already pushed this task over quorum and
		// finalized it first, or the task has failed; this submission
		// still counts but awards no reputation.
		return &Result{Duplicate: false}, nil
	}

	if err := s.awardWinners(ctx, all, bestLabel); err != nil {
		return nil, err
	}

	return &Result{Duplicate: false, Finalized: true, FinalLabel: bestLabel}, nil
}

// plurality picks the best label: highest submission count, ties broken by
// higher mean confidence, final ties broken by ascending label — a
// deterministic contract rather than the implementation-order artifact of
// earlier prototypes.
func plurality(submissions []*store.Submission) string {
	type bucket struct {
		label        string
		count        int
		confidenceSum float64
	}

	buckets := map[string]*bucket{}
	var order []string
	for _, sub := range submissions {
		b, ok := buckets[sub.Label]
		if !ok {
			b = &bucket{label: sub.Label}
			buckets[sub.Label] = b
			order = append(order, sub.Label)
		}
		b.count++
		b.confidenceSum += sub.Confidence
	}

	sort.Strings(order)

	var best *bucket
	for _, label := range order {
		b := buckets[label]
		if best == nil {
			best = b
			continue
		}
		if b.count > best.count {
			best = b
			continue
		}
		if b.count == best.count {
			meanB := b.confidenceSum / float64(b.count)
			meanBest := best.confidenceSum / float64(best.count)
			if meanB > meanBest {
				best = b
			}
			// equal count and equal mean confidence: order is already
			// ascending by label, so best (seen first) wins.
		}
	}
	return best.label
}

// awardWinners increments the WorkerScore of every distinct worker whose
// submission matches bestLabel by exactly 1.
func (s *Service) awardWinners(ctx context.Context, submissions []*store.Submission, bestLabel string) error {
	seen := map[string]bool{}
	for _, sub := range submissions {
		if sub.Label != bestLabel || seen[sub.WorkerID] {
			continue
		}
		seen[sub.WorkerID] = true
		if err := s.scores.Award(ctx, sub.WorkerID, 1); err != nil {
			return fmt.Errorf("award worker %s: %w", sub.WorkerID, err)
		}
	}
	return nil
}

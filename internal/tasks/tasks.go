// Package tasks implements task creation and lookup: the part of the task
// market that operators and external systems talk to directly, as opposed
// to the worker-facing dispatch/submission path in internal/dispatch and
// internal/aggregate.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/policy"
	"github.com/user/taskmarket/internal/store"
)

// Service creates and lists tasks, applying per-type policy defaults.
type Service struct {
	repo     *store.TaskRepo
	subs     *store.SubmissionRepo
	policies *policy.Registry
	clock    clock.Clock

	defaultRequiredSubmissions int
	defaultMaxAttempts         int
}

func NewService(repo *store.TaskRepo, subs *store.SubmissionRepo, policies *policy.Registry, c clock.Clock, defaultRequiredSubmissions, defaultMaxAttempts int) *Service {
	return &Service{
		repo:                       repo,
		subs:                       subs,
		policies:                   policies,
		clock:                      c,
		defaultRequiredSubmissions: defaultRequiredSubmissions,
		defaultMaxAttempts:         defaultMaxAttempts,
	}
}

// CreateInput carries the caller-supplied fields for a new task. Zero values
// mean "use the type policy or global default."
type CreateInput struct {
	Text                string
	Type                string
	RequiredSubmissions int
	MaxAttempts         int
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Task, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("task text is required")
	}

	required := in.RequiredSubmissions
	maxAttempts := in.MaxAttempts

	if in.Type != "" && s.policies != nil {
		if p := s.policies.Get(in.Type); p != nil {
			if required == 0 && p.RequiredSubmissions != 0 {
				required = p.RequiredSubmissions
			}
			if maxAttempts == 0 && p.MaxAttempts != 0 {
				maxAttempts = p.MaxAttempts
			}
		}
	}
	if required == 0 {
		required = s.defaultRequiredSubmissions
	}
	if maxAttempts == 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	if required < 1 {
		return nil, fmt.Errorf("required_submissions must be at least 1")
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be at least 1")
	}

	task := &store.Task{
		Text:                text,
		Type:                in.Type,
		Status:              store.TaskQueued,
		RequiredSubmissions: required,
		MaxAttempts:         maxAttempts,
		CreatedAt:           s.clock.Now(),
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// List returns tasks, optionally filtered by status, in FIFO order.
func (s *Service) List(ctx context.Context, status string) ([]*store.Task, error) {
	items, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return items, nil
}

// Detail is a task plus its submissions, oldest first.
type Detail struct {
	Task        *store.Task
	Submissions []*store.Submission
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, store.ErrNotFound
	}
	subs, err := s.subs.ListByTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list submissions for task %s: %w", id, err)
	}
	return &Detail{Task: task, Submissions: subs}, nil
}

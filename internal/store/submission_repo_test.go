package store

import (
	"context"
	"testing"
)

func TestSubmissionDedupGetAndList(t *testing.T) {
	s := openTestStore(t)
	taskRepo := NewTaskRepo(s.SQL())
	subRepo := NewSubmissionRepo(s.SQL())
	ctx := context.Background()

	task := &Task{Text: "t", RequiredSubmissions: 3, MaxAttempts: 5}
	if err := taskRepo.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	existing, err := subRepo.Get(ctx, task.ID, "w1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if existing != nil {
		t.Fatal("expected no submission before Create")
	}

	sub := &Submission{TaskID: task.ID, WorkerID: "w1", Label: "positive", Confidence: 0.9}
	if err := subRepo.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sub.ID == 0 {
		t.Fatal("expected an assigned submission id")
	}

	existing, err = subRepo.Get(ctx, task.ID, "w1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if existing == nil || existing.Label != "positive" {
		t.Fatalf("Get() = %+v, want the persisted submission", existing)
	}

	if err := subRepo.Create(ctx, &Submission{TaskID: task.ID, WorkerID: "w2", Label: "negative", Confidence: 0.6}); err != nil {
		t.Fatalf("Create() second submission error = %v", err)
	}

	list, err := subRepo.ListByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListByTask() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListByTask()) = %d, want 2", len(list))
	}
	if list[0].WorkerID != "w1" || list[1].WorkerID != "w2" {
		t.Fatalf("ListByTask() order = %v, want oldest-first", list)
	}
}

func TestSubmissionUniqueConstraintRejectsDuplicatePair(t *testing.T) {
	s := openTestStore(t)
	taskRepo := NewTaskRepo(s.SQL())
	subRepo := NewSubmissionRepo(s.SQL())
	ctx := context.Background()

	task := &Task{Text: "t", RequiredSubmissions: 3, MaxAttempts: 5}
	if err := taskRepo.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := subRepo.Create(ctx, &Submission{TaskID: task.ID, WorkerID: "w1", Label: "positive", Confidence: 0.9}); err != nil {
		t.Fatalf("Create() first submission error = %v", err)
	}
	if err := subRepo.Create(ctx, &Submission{TaskID: task.ID, WorkerID: "w1", Label: "negative", Confidence: 0.5}); err == nil {
		t.Fatal("expected unique index violation for duplicate (task_id, worker_id)")
	}
}

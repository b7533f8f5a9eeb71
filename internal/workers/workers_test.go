package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.TaskRepo, *clock.Fake) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "workers.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	taskRepo := store.NewTaskRepo(st.SQL())
	svc := NewService(store.NewWorkerRepo(st.SQL()), taskRepo, fake, 50*time.Second)
	return svc, taskRepo, fake
}

func TestRegisterCreatesWorkerWithCapabilities(t *testing.T) {
	svc, _, _ := newTestService(t)
	w, err := svc.Register(context.Background(), "w1", []string{"vision"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if w.Status != store.WorkerActive {
		t.Fatalf("w.Status = %q, want active", w.Status)
	}
	if len(w.Capabilities) != 1 || w.Capabilities[0] != "vision" {
		t.Fatalf("w.Capabilities = %v, want [vision]", w.Capabilities)
	}
}

func TestRegisterRejectsBlankWorkerID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected an error for blank worker_id")
	}
}

func TestHeartbeatExtendsLeasesForAssignedTasks(t *testing.T) {
	svc, taskRepo, fake := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "w1", nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	task := &store.Task{Text: "do it", RequiredSubmissions: 3, MaxAttempts: 5}
	if err := taskRepo.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	claimed, err := taskRepo.Claim(ctx, task.ID, "w1", fake.Now().Add(10*time.Second), fake.Now())
	if err != nil || !claimed {
		t.Fatalf("Claim() = %v, %v, want true, nil", claimed, err)
	}

	fake.Advance(5 * time.Second)
	result, err := svc.Heartbeat(ctx, "w1")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if result.LeasesExtended != 1 {
		t.Fatalf("result.LeasesExtended = %d, want 1", result.LeasesExtended)
	}

	got, err := taskRepo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	wantExpiry := fake.Now().Add(50 * time.Second)
	if !got.LeaseExpiresAt.Valid || got.LeaseExpiresAt.Time.Sub(wantExpiry).Abs() > time.Millisecond {
		t.Fatalf("lease_expires_at = %v, want close to %v", got.LeaseExpiresAt, wantExpiry)
	}
}

func TestHeartbeatUnknownWorkerStillRegisters(t *testing.T) {
	svc, _, _ := newTestService(t)
	result, err := svc.Heartbeat(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if result.LeasesExtended != 0 {
		t.Fatalf("result.LeasesExtended = %d, want 0", result.LeasesExtended)
	}
	w, err := svc.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if w.Status != store.WorkerActive {
		t.Fatalf("w.Status = %q, want active", w.Status)
	}
}

func TestGetUnknownWorkerReturnsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "missing"); err != store.ErrNotFound {
		t.Fatalf("Get() error = %v, want store.ErrNotFound", err)
	}
}

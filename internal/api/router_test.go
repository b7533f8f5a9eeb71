package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/taskmarket/internal/aggregate"
	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/dispatch"
	"github.com/user/taskmarket/internal/hub"
	"github.com/user/taskmarket/internal/policy"
	"github.com/user/taskmarket/internal/reaper"
	"github.com/user/taskmarket/internal/store"
	"github.com/user/taskmarket/internal/tasks"
	"github.com/user/taskmarket/internal/workers"
)

type testServer struct {
	handler http.Handler
	fake    *clock.Fake
}

func newTestServer(t *testing.T, adminToken string) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg, err := policy.NewRegistry(filepath.Join(t.TempDir(), "policies"))
	if err != nil {
		t.Fatalf("policy.NewRegistry() error = %v", err)
	}

	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	taskRepo := store.NewTaskRepo(st.SQL())
	subRepo := store.NewSubmissionRepo(st.SQL())
	workerRepo := store.NewWorkerRepo(st.SQL())
	scoreRepo := store.NewScoreRepo(st.SQL())

	taskSvc := tasks.NewService(taskRepo, subRepo, reg, fake, 3, 5)
	workerSvc := workers.NewService(workerRepo, taskRepo, fake, 50*time.Second)
	dispatchSvc := dispatch.NewService(taskRepo, workerRepo, subRepo, fake, 50*time.Second)
	aggregateSvc := aggregate.NewService(taskRepo, subRepo, scoreRepo, fake)
	reaperSvc := reaper.New(taskRepo, workerRepo, fake, nil, 75*time.Second, 10*time.Second)
	eventHub := hub.New(nil)

	h := NewRouter(Deps{
		Tasks:      taskSvc,
		Workers:    workerSvc,
		Dispatch:   dispatchSvc,
		Aggregate:  aggregateSvc,
		Reaper:     reaperSvc,
		Scores:     scoreRepo,
		TaskRepo:   taskRepo,
		SubRepo:    subRepo,
		WorkerRepo: workerRepo,
		Hub:        eventHub,
		AdminToken: adminToken,
	})

	return &testServer{handler: h, fake: fake}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, "GET", "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateAndGetTaskEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	createRec := s.do(t, "POST", "/tasks", createTaskRequest{Text: "classify this"}, nil)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", createRec.Code, createRec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	taskID := created["task_id"]
	if taskID == "" {
		t.Fatal("expected a non-empty task_id")
	}

	getRec := s.do(t, "GET", "/tasks/"+taskID, nil, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}
}

func TestGetUnknownTaskReturns404(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, "GET", "/tasks/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFullDispatchSubmitQuorumFlow(t *testing.T) {
	s := newTestServer(t, "")

	createRec := s.do(t, "POST", "/tasks", createTaskRequest{Text: "is it a cat", RequiredSubmissions: 2}, nil)
	var created map[string]string
	json.Unmarshal(createRec.Body.Bytes(), &created)
	taskID := created["task_id"]

	s.do(t, "POST", "/workers/register", registerWorkerRequest{WorkerID: "w1"}, nil)
	s.do(t, "POST", "/workers/register", registerWorkerRequest{WorkerID: "w2"}, nil)

	nextRec := s.do(t, "POST", "/tasks/next", nextTaskRequest{WorkerID: "w1"}, nil)
	var next map[string]any
	json.Unmarshal(nextRec.Body.Bytes(), &next)
	if next["task_id"] != taskID {
		t.Fatalf("next = %v, want task_id %s", next, taskID)
	}

	submitRec := s.do(t, "POST", "/workers/submit", submitRequest{WorkerID: "w1", TaskID: taskID, Label: "cat", Confidence: 0.9}, nil)
	if submitRec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", submitRec.Code)
	}

	s.do(t, "POST", "/tasks/next", nextTaskRequest{WorkerID: "w2"}, nil)
	finalSubmitRec := s.do(t, "POST", "/workers/submit", submitRequest{WorkerID: "w2", TaskID: taskID, Label: "cat", Confidence: 0.8}, nil)
	var finalResult map[string]any
	json.Unmarshal(finalSubmitRec.Body.Bytes(), &finalResult)
	if finalResult["ok"] != true {
		t.Fatalf("finalResult = %v, want ok=true", finalResult)
	}

	getRec := s.do(t, "GET", "/tasks/"+taskID, nil, nil)
	var detail map[string]any
	json.Unmarshal(getRec.Body.Bytes(), &detail)
	taskBody := detail["task"].(map[string]any)
	if taskBody["status"] != "finalized" || taskBody["final_label"] != "cat" {
		t.Fatalf("task = %v, want finalized/cat", taskBody)
	}
}

func TestOpsEndpointsRequireAdminTokenWhenConfigured(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := s.do(t, "POST", "/ops/reset", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	rec = s.do(t, "POST", "/ops/reset", nil, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", rec.Code)
	}

	rec = s.do(t, "POST", "/ops/reset", nil, map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with correct token = %d, want 200", rec.Code)
	}
}

func TestLeaderboardEndpointReturnsEmptyList(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, "GET", "/leaderboard", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	s.do(t, "POST", "/tasks", createTaskRequest{Text: "a task"}, nil)
	rec := s.do(t, "GET", "/db/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snapshot statsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if snapshot.TotalTasks != 1 {
		t.Fatalf("snapshot.TotalTasks = %d, want 1", snapshot.TotalTasks)
	}
}

// Package api translates the coordinator's JSON/HTTP boundary onto the
// task, worker, dispatch, aggregate, and reaper services, following the
// teacher's http.ServeMux "METHOD /path" router shape
// (internal/api/router.go) and admin bearer-token gate (authMiddleware).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/taskmarket/internal/aggregate"
	"github.com/user/taskmarket/internal/dispatch"
	"github.com/user/taskmarket/internal/hub"
	"github.com/user/taskmarket/internal/reaper"
	"github.com/user/taskmarket/internal/store"
	"github.com/user/taskmarket/internal/tasks"
	"github.com/user/taskmarket/internal/workers"
)

type handler struct {
	tasks     *tasks.Service
	workers   *workers.Service
	dispatch  *dispatch.Service
	aggregate *aggregate.Service
	reaper    *reaper.Reaper
	scores    *store.ScoreRepo
	taskRepo  *store.TaskRepo
	subRepo   *store.SubmissionRepo
	workerRepo *store.WorkerRepo
	hub       *hub.Hub
}

// Deps carries every service the router dispatches to.
type Deps struct {
	Tasks      *tasks.Service
	Workers    *workers.Service
	Dispatch   *dispatch.Service
	Aggregate  *aggregate.Service
	Reaper     *reaper.Reaper
	Scores     *store.ScoreRepo
	TaskRepo   *store.TaskRepo
	SubRepo    *store.SubmissionRepo
	WorkerRepo *store.WorkerRepo
	Hub        *hub.Hub
	AdminToken string
}

func NewRouter(deps Deps) http.Handler {
	h := &handler{
		tasks:      deps.Tasks,
		workers:    deps.Workers,
		dispatch:   deps.Dispatch,
		aggregate:  deps.Aggregate,
		reaper:     deps.Reaper,
		scores:     deps.Scores,
		taskRepo:   deps.TaskRepo,
		subRepo:    deps.SubRepo,
		workerRepo: deps.WorkerRepo,
		hub:        deps.Hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /workers/register", h.registerWorker)
	mux.HandleFunc("POST /workers/heartbeat", h.heartbeat)
	mux.HandleFunc("POST /workers/submit", h.submit)

	mux.HandleFunc("POST /tasks", h.createTask)
	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("GET /tasks/{id}", h.getTask)
	mux.HandleFunc("POST /tasks/next", h.nextTask)

	mux.HandleFunc("POST /ops/requeue-stale", adminGuard(deps.AdminToken, h.requeueStale))
	mux.HandleFunc("POST /ops/reset", adminGuard(deps.AdminToken, h.reset))
	mux.HandleFunc("GET /ops/workers", adminGuard(deps.AdminToken, h.listWorkers))

	mux.HandleFunc("GET /leaderboard", h.leaderboard)
	mux.HandleFunc("GET /db/stats", h.stats)

	mux.HandleFunc("GET /events/stream", h.events)

	return loggingMiddleware(jsonMiddleware(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// adminGuard wraps an /ops handler so it requires a bearer token matching
// adminToken when one is configured; an empty adminToken leaves the
// endpoint open, matching the teacher's authMiddleware no-op behavior.
func adminGuard(adminToken string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminToken == "" {
			next(w, r)
			return
		}
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") &&
			strings.TrimSpace(authHeader[len("bearer "):]) == adminToken {
			next(w, r)
			return
		}
		jsonError(w, http.StatusUnauthorized, "unauthorized")
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (h *handler) resetStore(ctx context.Context) error {
	if err := h.subRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset submissions: %w", err)
	}
	if err := h.taskRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset tasks: %w", err)
	}
	if err := h.scores.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset worker scores: %w", err)
	}
	if err := h.workerRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset workers: %w", err)
	}
	return nil
}

type statsSnapshot struct {
	TotalTasks       int            `json:"total_tasks"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	TotalSubmissions int            `json:"total_submissions"`
	TotalWorkers     int            `json:"total_workers"`
	StaleWorkers     int            `json:"stale_workers"`
}

func (h *handler) buildStats(ctx context.Context) (*statsSnapshot, error) {
	total, err := h.taskRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := h.taskRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	totalSubs, err := h.subRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalWorkers, err := h.workerRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := h.workerRepo.CountStaleSince(ctx, h.reaper.HeartbeatCutoff())
	if err != nil {
		return nil, err
	}
	return &statsSnapshot{
		TotalTasks:       total,
		TasksByStatus:    byStatus,
		TotalSubmissions: totalSubs,
		TotalWorkers:     totalWorkers,
		StaleWorkers:     stale,
	}, nil
}

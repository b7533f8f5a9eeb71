// Command coordinatord runs the task-market coordinator: it serves the
// worker-facing HTTP API, sweeps abandoned tasks on a ticker, and fans out
// lifecycle events over a websocket stream, following the teacher's
// cmd/agenterm/main.go wiring shape (flags -> store -> services -> server).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/taskmarket/internal/aggregate"
	"github.com/user/taskmarket/internal/api"
	"github.com/user/taskmarket/internal/clock"
	"github.com/user/taskmarket/internal/config"
	"github.com/user/taskmarket/internal/dispatch"
	"github.com/user/taskmarket/internal/hub"
	"github.com/user/taskmarket/internal/policy"
	"github.com/user/taskmarket/internal/reaper"
	"github.com/user/taskmarket/internal/server"
	"github.com/user/taskmarket/internal/store"
	"github.com/user/taskmarket/internal/tasks"
	"github.com/user/taskmarket/internal/workers"
)

var version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("coordinatord v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	policies, err := policy.NewRegistry(cfg.PolicyDir)
	if err != nil {
		slog.Error("failed to initialize policy registry", "dir", cfg.PolicyDir, "error", err)
		os.Exit(1)
	}

	taskRepo := store.NewTaskRepo(st.SQL())
	subRepo := store.NewSubmissionRepo(st.SQL())
	workerRepo := store.NewWorkerRepo(st.SQL())
	scoreRepo := store.NewScoreRepo(st.SQL())

	sysClock := clock.Real()

	taskSvc := tasks.NewService(taskRepo, subRepo, policies, sysClock, cfg.RequiredSubmissionsDefault, cfg.MaxAttemptsDefault)
	workerSvc := workers.NewService(workerRepo, taskRepo, sysClock, cfg.LeaseSeconds)
	dispatchSvc := dispatch.NewService(taskRepo, workerRepo, subRepo, sysClock, cfg.LeaseSeconds)
	aggregateSvc := aggregate.NewService(taskRepo, subRepo, scoreRepo, sysClock)
	reaperSvc := reaper.New(taskRepo, workerRepo, sysClock, slog.Default(), cfg.HeartbeatTTL, cfg.RequeueSweepSeconds)
	eventHub := hub.New(slog.Default())

	router := api.NewRouter(api.Deps{
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
		AdminToken: cfg.AdminToken,
	})

	go eventHub.Run(ctx)
	go reaperSvc.Run(ctx)

	srv := server.New(cfg.Port, router)

	fmt.Printf("\ncoordinatord v%s\n", version)
	fmt.Printf("  listening on: http://0.0.0.0:%d\n", cfg.Port)
	fmt.Printf("  db path:      %s\n", cfg.DBPath)
	if cfg.AdminToken == "" {
		fmt.Println("  admin token:  none (ops endpoints open)")
	} else {
		fmt.Println("  admin token:  set")
	}
	fmt.Println("\nCtrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("coordinatord stopped")
}

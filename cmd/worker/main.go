package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/taskeasy/internal/database"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tasks"
	"github.com/hugh/taskeasy/pkg/config"
	"github.com/hugh/taskeasy/pkg/queue"
	"github.com/hugh/taskeasy/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting TaskEasy worker", "concurrency", cfg.Worker.Concurrency)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(context.Background(), &cfg.Storage)
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	handler := tasks.NewHandler(db, logger, store)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic orphan sweep
	var scheduler *asynq.Scheduler
	if spec := cfg.Worker.OrphanSweepCron; spec != "" {
		scheduler = queue.NewScheduler(&cfg.Redis)
		entryID, err := scheduler.Register(spec, tasks.NewOrphanSweepTask(), asynq.Queue("low"))
		if err != nil {
			logger.Error("failed to register orphan sweep", "cron", spec, "error", err)
			os.Exit(1)
		}
		next, _ := util.NextCronTime(spec, time.Now())
		logger.Info("orphan sweep scheduled", "cron", spec, "entry_id", entryID, "next_run", next)

		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		if scheduler != nil {
			scheduler.Shutdown()
		}
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	if err := database.Close(db); err != nil {
		logger.Error("closing database", "error", err)
	}

	logger.Info("worker stopped")
}

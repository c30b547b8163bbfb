// Package main is the entrypoint for the Columbus scan worker. One process
// runs the scheduler, the job dispatcher, the queue consumers, and the
// dashboard API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/columbushq/columbus/internal/ai"
	"github.com/columbushq/columbus/internal/api"
	"github.com/columbushq/columbus/internal/api/handler"
	mw "github.com/columbushq/columbus/internal/api/middleware"
	"github.com/columbushq/columbus/internal/cache"
	"github.com/columbushq/columbus/internal/config"
	"github.com/columbushq/columbus/internal/dispatch"
	"github.com/columbushq/columbus/internal/queue"
	"github.com/columbushq/columbus/internal/ratelimit"
	"github.com/columbushq/columbus/internal/scheduler"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and apply migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. One Redis client shared by cache, rate limiter, and queues
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	redisCache := cache.NewRedisCache(redisClient)
	limiter := ratelimit.New(redisClient)
	queues := queue.NewManager(redisClient)
	pgStore := store.NewPostgresStore(pool)

	// 4. Assistant clients and job handlers
	clients := ai.NewClients(cfg.AI)
	workers := worker.New(pgStore, redisCache, limiter, clients, queues, cfg.Worker.PromptDelay)

	handlers := map[string]queue.Handler{
		queue.VisibilityScan:     workers.HandleVisibilityScan,
		queue.CompetitorAnalysis: workers.HandleCompetitorAnalysis,
		queue.WebsiteAnalysis:    workers.HandleWebsiteAnalysis,
		queue.FreshnessCheck:     workers.HandleFreshnessCheck,
		queue.ReportGeneration:   workers.HandleReportGeneration,
		// email-notifications has no handler here: the notifier process
		// drains it.
	}
	for name, h := range handlers {
		if err := queues.Register(name, h); err != nil {
			return fmt.Errorf("register %s handler: %w", name, err)
		}
	}

	// 5. Background loops
	queues.Start(ctx)
	defer queues.Stop()

	dispatcher := dispatch.New(pgStore, queues, cfg.Dispatch.PollInterval, cfg.Dispatch.BatchSize)
	sched := scheduler.New(pgStore, redisCache, cfg.Scheduler.Interval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// 6. Dashboard API
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler:    handler.NewHealthHandler(pgStore, redisCache),
		CreateJobHandler: handler.NewCreateJobHandler(pgStore),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),
		GetJobHandler:    handler.NewGetJobHandler(pgStore),
		ScanNowHandler:   handler.NewScanNowHandler(pgStore),
		CostsHandler:     handler.NewCostsHandler(limiter, redisCache),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	wg.Wait()
	slog.Info("worker stopped gracefully")
	return nil
}

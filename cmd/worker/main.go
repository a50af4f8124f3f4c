package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/settlement/internal/app"
	jobmetrics "github.com/odyssey-erp/settlement/internal/jobs"
	"github.com/odyssey-erp/settlement/internal/observability"
	"github.com/odyssey-erp/settlement/internal/platform/cache"
	"github.com/odyssey-erp/settlement/internal/settlement"
	"github.com/odyssey-erp/settlement/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	backend, err := app.OpenSettlementBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open settlement backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 5*time.Second)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	settlementCache := settlement.NewCache(redisClient, cfg.SettlementCacheTTL)
	settlementMetrics := observability.NewSettlementMetrics(nil)
	aggregator := settlement.NewAggregator(backend.Backend,
		settlement.WithCache(settlementCache),
		settlement.WithRecorder(settlementMetrics),
		settlement.WithFanOutLimit(cfg.SettlementFanOutLimit),
		settlement.WithMaxDailySpan(cfg.SettlementMaxDailySpan),
		settlement.WithLoadTimeout(cfg.SettlementBackendTimeout),
		settlement.WithLogger(logger),
	)

	metrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewSettlementWarmupJob(aggregator, backend.Sellers, cfg.DashboardDefaultPageSize, logger, metrics)
	bumpJob := jobs.NewCacheBumpJob(settlementCache, logger, metrics)

	warmupTask, err := jobs.NewSettlementWarmupTask(jobs.DefaultActiveDays)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSettlementWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskSettlementCacheBump, Handler: bumpJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(10 * time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

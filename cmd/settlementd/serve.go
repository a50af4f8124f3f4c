package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/odyssey-erp/settlement/internal/app"
	"github.com/odyssey-erp/settlement/internal/drilldown"
	"github.com/odyssey-erp/settlement/internal/observability"
	"github.com/odyssey-erp/settlement/internal/platform/cache"
	"github.com/odyssey-erp/settlement/internal/settlement"
	settlementhttp "github.com/odyssey-erp/settlement/internal/settlement/http"
	"github.com/odyssey-erp/settlement/jobs"
)

func serve(c *cli.Context) error {
	cfg, err := configFrom(c)
	if err != nil {
		return err
	}
	ctx, stop := context.WithCancel(c.Context)
	defer stop()

	logger := app.NewLogger(cfg)

	backend, err := app.OpenSettlementBackend(ctx, cfg, logger)
	if err != nil {
		return err
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
	if err := settlementCache.ListenForInvalidation(ctx, time.Minute); err != nil {
		logger.Warn("settlement cache invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	settlementMetrics := observability.NewSettlementMetrics(metrics.Registerer())

	aggregator := settlement.NewAggregator(backend.Backend,
		settlement.WithCache(settlementCache),
		settlement.WithRecorder(settlementMetrics),
		settlement.WithFanOutLimit(cfg.SettlementFanOutLimit),
		settlement.WithMaxDailySpan(cfg.SettlementMaxDailySpan),
		settlement.WithLoadTimeout(cfg.SettlementBackendTimeout),
		settlement.WithLogger(logger),
	)

	registry := drilldown.NewRegistry(func(sellerID int64) *drilldown.Controller {
		return drilldown.NewController(sellerID, aggregator,
			drilldown.WithLogger(logger.With(slog.Int64("seller_id", sellerID))),
			drilldown.WithPageSize(cfg.DashboardDefaultPageSize),
			drilldown.WithMaxDailySpan(cfg.SettlementMaxDailySpan),
		)
	}, cfg.DashboardSessionTTL, logger)
	registry.OnSweep(settlementMetrics.SetSessions)
	go registry.Run(ctx, time.Minute)

	settlementHandler := settlementhttp.NewHandler(logger, aggregator, registry, settlementMetrics)
	settlementHandler.WithMaxDailySpan(cfg.SettlementMaxDailySpan)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SettlementHandler: settlementHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.SettlementBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

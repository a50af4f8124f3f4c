package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/settlement/internal/jobs"
)

// Bumper invalidates cached settlement views.
type Bumper interface {
	Bump(ctx context.Context) (int64, error)
}

// CacheBumpJob advances the settlement cache version, typically after the
// settlement backend finished a batch.
type CacheBumpJob struct {
	Cache   Bumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheBumpJob wires dependencies for the cache bump handler.
func NewCacheBumpJob(cache Bumper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheBumpJob {
	return &CacheBumpJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes cache bump tasks.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("settlement cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskSettlementCacheBump)

	version, err := j.Cache.Bump(ctx)
	if err != nil {
		j.logger().Error("bump settlement cache", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("settlement cache invalidated", slog.Int64("version", version), slog.String("reason", payload.Reason))
	return tracker.End(nil)
}

func (j *CacheBumpJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSettlementCacheBump))
	}
	return slog.Default().With(slog.String("job", TaskSettlementCacheBump))
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/settlement/internal/jobs"
	"github.com/odyssey-erp/settlement/internal/settlement"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SellerSource lists sellers with recent settlement activity.
type SellerSource interface {
	ActiveSellers(ctx context.Context, since time.Time) ([]int64, error)
}

// Fetcher loads one settlement view. The aggregator caches what it loads.
type Fetcher interface {
	Fetch(ctx context.Context, p settlement.FetchParams) (settlement.FetchResult, error)
}

// SettlementWarmupJob pre-populates the settlement cache for active sellers.
// PageSize must match the dashboards' page size or the warmed keys never hit.
type SettlementWarmupJob struct {
	Fetcher  Fetcher
	Sellers  SellerSource
	PageSize int
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSettlementWarmupJob wires dependencies for the warmup handler.
func NewSettlementWarmupJob(fetcher Fetcher, sellers SellerSource, pageSize int, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementWarmupJob {
	return &SettlementWarmupJob{
		Fetcher:  fetcher,
		Sellers:  sellers,
		PageSize: pageSize,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes settlement warmup tasks.
func (j *SettlementWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Fetcher == nil {
		return errors.New("settlement warmup: handler not configured")
	}
	var payload SettlementWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ActiveDays <= 0 {
		payload.ActiveDays = DefaultActiveDays
	}

	tracker := j.metrics().Track(TaskSettlementWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("active_days", payload.ActiveDays))
	logger.Info("starting settlement warmup")

	now := j.now()
	sellers := payload.SellerIDs
	if len(sellers) == 0 {
		if j.Sellers == nil {
			resultErr = errors.New("settlement warmup: no seller source configured")
			return resultErr
		}
		var err error
		sellers, err = j.Sellers.ActiveSellers(ctx, now.AddDate(0, 0, -payload.ActiveDays))
		if err != nil {
			resultErr = err
			logger.Error("load active sellers", slog.Any("error", err))
			return resultErr
		}
	}
	if len(sellers) == 0 {
		logger.Info("no sellers discovered for warmup")
		return resultErr
	}

	for _, sellerID := range sellers {
		if err := j.warmSeller(ctx, sellerID, now); err != nil {
			resultErr = err
			logger.Error("warm seller", slog.Int64("seller_id", sellerID), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed settlement warmup", slog.Int("sellers", len(sellers)), slog.Duration("duration", time.Since(now)))
	return resultErr
}

// warmSeller loads the views a dashboard opens with: the rolling window,
// yesterday, and the current month by week.
func (j *SettlementWarmupJob) warmSeller(ctx context.Context, sellerID int64, now time.Time) error {
	sellerCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	yesterday := settlement.StartOfDay(now).AddDate(0, 0, -1)
	views := []settlement.FetchParams{
		{SellerID: sellerID, Period: settlement.GranularityAll, Range: settlement.DefaultAllRange(now)},
		{SellerID: sellerID, Period: settlement.GranularityDaily, Range: settlement.ComputeRange(settlement.GranularityDaily, yesterday)},
		{SellerID: sellerID, Period: settlement.GranularityWeekly, Range: settlement.MonthRange(now.Year(), now.Month(), now.Location())},
	}
	for _, p := range views {
		p.Size = j.pageSize()
		if _, err := j.Fetcher.Fetch(sellerCtx, p); err != nil {
			return err
		}
		j.metrics().AddWarmed(string(p.Period), 1)
	}
	return nil
}

func (j *SettlementWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSettlementWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSettlementWarmup))
}

func (j *SettlementWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SettlementWarmupJob) pageSize() int {
	if j.PageSize > 0 {
		return j.PageSize
	}
	return settlement.DefaultPageSize
}

func (j *SettlementWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

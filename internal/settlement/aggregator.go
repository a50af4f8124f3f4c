package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPageSize applies when a caller does not supply one.
	DefaultPageSize = 10
	// DefaultMaxDailySpanDays caps how many days one daily view may cover.
	DefaultMaxDailySpanDays = 93
	// DefaultLoadTimeout bounds a shared backend load once its callers are detached.
	DefaultLoadTimeout = 30 * time.Second
)

// Query is one request against the settlement backend.
type Query struct {
	SellerID    int64
	Granularity Granularity
	From        time.Time
	To          time.Time
	Page        int
	Size        int
	Status      StatusFilter
}

// Backend answers settlement queries for a single bucket size.
type Backend interface {
	QuerySettlements(ctx context.Context, q Query) (Response, error)
}

// CallRecorder observes backend traffic produced by the aggregator.
type CallRecorder interface {
	ObserveCall(granularity string, err error, elapsed time.Duration)
	ObserveFanOut(days int)
}

// FetchParams selects the rows of one dashboard view.
type FetchParams struct {
	SellerID int64
	Period   Granularity
	Range    DateRange
	Page     int
	Size     int
	Status   StatusFilter
}

// FetchResult holds the normalized rows of one view.
type FetchResult struct {
	Records  []Record  `json:"records"`
	PageMeta *PageMeta `json:"pageMeta"`
}

// Aggregator chooses the fetch strategy per granularity and normalizes the result.
type Aggregator struct {
	backend     Backend
	cache       *Cache
	recorder    CallRecorder
	logger      *slog.Logger
	fanOutLimit  int
	maxDailySpan int
	loadTimeout  time.Duration
	flight       singleflight.Group
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCache stores normalized query results in the supplied cache.
func WithCache(cache *Cache) AggregatorOption {
	return func(a *Aggregator) { a.cache = cache }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec CallRecorder) AggregatorOption {
	return func(a *Aggregator) { a.recorder = rec }
}

// WithLogger sets the logger used for degraded-cache warnings.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = logger }
}

// WithFanOutLimit bounds concurrent day queries. Zero or less means unbounded.
func WithFanOutLimit(limit int) AggregatorOption {
	return func(a *Aggregator) { a.fanOutLimit = limit }
}

// WithMaxDailySpan caps the days a multi-day daily view may cover.
func WithMaxDailySpan(days int) AggregatorOption {
	return func(a *Aggregator) {
		if days > 0 {
			a.maxDailySpan = days
		}
	}
}

// WithLoadTimeout bounds each shared backend load.
func WithLoadTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.loadTimeout = d
		}
	}
}

// NewAggregator wires a Backend with optional cache and metrics.
func NewAggregator(backend Backend, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		backend:      backend,
		maxDailySpan: DefaultMaxDailySpanDays,
		loadTimeout:  DefaultLoadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Fetch loads and normalizes the rows for p.
func (a *Aggregator) Fetch(ctx context.Context, p FetchParams) (FetchResult, error) {
	if a == nil || a.backend == nil {
		return FetchResult{}, ErrBackendMissing
	}
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	rng := p.Range.Normalized()

	switch p.Period {
	case GranularityDaily:
		if rng.SingleDay() {
			rec, err := a.fetchDay(ctx, p, rng.From)
			if err != nil {
				return FetchResult{}, err
			}
			return FetchResult{Records: []Record{rec}}, nil
		}
		if span := rng.SpanDays(); a.maxDailySpan > 0 && span > a.maxDailySpan {
			return FetchResult{}, fmt.Errorf("%w: %d days, at most %d", ErrRangeTooLong, span, a.maxDailySpan)
		}
		return a.fetchDays(ctx, p, rng)
	case GranularityAll, GranularityWeekly, GranularityMonthly, GranularityYearly:
		return a.fetchRange(ctx, p, rng)
	}
	return FetchResult{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, p.Period)
}

func (a *Aggregator) fetchRange(ctx context.Context, p FetchParams, rng DateRange) (FetchResult, error) {
	q := Query{
		SellerID:    p.SellerID,
		Granularity: p.Period,
		From:        rng.From,
		To:          rng.To,
		Page:        p.Page,
		Size:        p.Size,
		Status:      p.Status,
	}
	res, err := a.run(ctx, q, func(resp Response) FetchResult {
		return collapse(resp, p.Period)
	})
	if err != nil {
		return FetchResult{}, &FetchError{Granularity: p.Period, Err: err}
	}
	return res, nil
}

// fetchDays issues one query per day and assembles the rows in calendar order.
func (a *Aggregator) fetchDays(ctx context.Context, p FetchParams, rng DateRange) (FetchResult, error) {
	days := Days(rng)
	if a.recorder != nil {
		a.recorder.ObserveFanOut(len(days))
	}
	records := make([]Record, len(days))
	g, gctx := errgroup.WithContext(ctx)
	if a.fanOutLimit > 0 {
		g.SetLimit(a.fanOutLimit)
	}
	for i, day := range days {
		g.Go(func() error {
			rec, err := a.fetchDay(gctx, p, day)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Records: records}, nil
}

func (a *Aggregator) fetchDay(ctx context.Context, p FetchParams, day time.Time) (Record, error) {
	label := FormatDay(day)
	q := Query{
		SellerID:    p.SellerID,
		Granularity: GranularityDaily,
		From:        StartOfDay(day),
		To:          EndOfDay(day),
		Page:        0,
		Size:        1,
		Status:      p.Status,
	}
	res, err := a.run(ctx, q, func(resp Response) FetchResult {
		var raw RawRecord
		if len(resp.Records) > 0 {
			raw = resp.Records[0]
		}
		return FetchResult{Records: []Record{NormalizeDay(raw, label)}}
	})
	if err != nil {
		return Record{}, &FetchError{Granularity: GranularityDaily, Day: label, Err: err}
	}
	if len(res.Records) == 0 {
		return NormalizeDay(nil, label), nil
	}
	return res.Records[0], nil
}

// run de-duplicates identical in-flight queries before going to the cache.
// The shared load is detached from the caller that started it; a cancelled
// caller only stops waiting for its own result.
func (a *Aggregator) run(ctx context.Context, q Query, shape func(Response) FetchResult) (FetchResult, error) {
	key := queryKey(q)
	resultChan := a.flight.DoChan(key, func() (interface{}, error) {
		timeout := a.loadTimeout
		if timeout <= 0 {
			timeout = DefaultLoadTimeout
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return a.load(loadCtx, key, q, shape)
	})
	select {
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return FetchResult{}, res.Err
		}
		return res.Val.(FetchResult), nil
	}
}

func (a *Aggregator) load(ctx context.Context, key string, q Query, shape func(Response) FetchResult) (FetchResult, error) {
	var (
		loaded  *FetchResult
		loadErr error
	)
	loader := func(ctx context.Context) (any, error) {
		start := time.Now()
		resp, err := a.backend.QuerySettlements(ctx, q)
		if a.recorder != nil {
			a.recorder.ObserveCall(string(q.Granularity), err, time.Since(start))
		}
		if err != nil {
			loadErr = err
			return nil, err
		}
		res := shape(resp)
		loaded = &res
		return res, nil
	}

	if a.cache == nil {
		if _, err := loader(ctx); err != nil {
			return FetchResult{}, err
		}
		return *loaded, nil
	}

	cacheKey, err := a.cache.BuildKey(ctx, key)
	if err == nil {
		var out FetchResult
		if err = a.cache.FetchJSON(ctx, cacheKey, &out, loader); err == nil {
			return out, nil
		}
	}
	if loadErr != nil {
		return FetchResult{}, loadErr
	}
	a.warn("settlement cache unavailable", err)
	if loaded != nil {
		return *loaded, nil
	}
	if _, err := loader(ctx); err != nil {
		return FetchResult{}, err
	}
	return *loaded, nil
}

func (a *Aggregator) warn(msg string, err error) {
	if a.logger != nil {
		a.logger.Warn(msg, slog.Any("error", err))
	}
}

// collapse turns any tolerated response shape into normalized rows.
func collapse(resp Response, period Granularity) FetchResult {
	records := make([]Record, 0, len(resp.Records))
	for _, raw := range resp.Records {
		records = append(records, Normalize(raw, period))
	}
	var meta *PageMeta
	if resp.Kind == ResponsePaged && resp.Page != nil {
		m := *resp.Page
		meta = &m
	}
	return FetchResult{Records: records, PageMeta: meta}
}

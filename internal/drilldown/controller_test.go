package drilldown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

type stubFetcher struct {
	mu     sync.Mutex
	params []settlement.FetchParams
	fn     func(ctx context.Context, p settlement.FetchParams) (settlement.FetchResult, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, p settlement.FetchParams) (settlement.FetchResult, error) {
	s.mu.Lock()
	s.params = append(s.params, p)
	s.mu.Unlock()
	if s.fn == nil {
		return settlement.FetchResult{Records: []settlement.Record{}}, nil
	}
	return s.fn(ctx, p)
}

func (s *stubFetcher) calls() []settlement.FetchParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]settlement.FetchParams(nil), s.params...)
}

func (s *stubFetcher) last() settlement.FetchParams {
	calls := s.calls()
	return calls[len(calls)-1]
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rows(sales ...int64) []settlement.Record {
	out := make([]settlement.Record, 0, len(sales))
	for _, s := range sales {
		out = append(out, settlement.Record{TotalSales: decimal.NewFromInt(s), TotalCount: 1})
	}
	return out
}

func newTestController(f Fetcher) *Controller {
	return NewController(42, f, WithClock(func() time.Time {
		return time.Date(2025, time.June, 15, 13, 30, 0, 0, time.UTC)
	}))
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl := newTestController(&stubFetcher{})
	view := ctrl.View()

	assert.Equal(t, settlement.GranularityAll, view.Period)
	assert.Equal(t, settlement.DefaultPageSize, view.PageSize)
	assert.Equal(t, LevelBase, view.DrillDown.Level)
	assert.Nil(t, view.DrillDown.SelectedPeriod)
	assert.Equal(t, day(2025, time.May, 17), view.DateRange.From)
	assert.Equal(t, settlement.EndOfDay(day(2025, time.June, 15)), view.DateRange.To)
	assert.True(t, view.Summary.TotalSales.IsZero())
	assert.False(t, view.HasSnapshot)
}

func TestDrillIntoMonthAndBack(t *testing.T) {
	fetcher := &stubFetcher{
		fn: func(_ context.Context, p settlement.FetchParams) (settlement.FetchResult, error) {
			if p.Period == settlement.GranularityWeekly {
				return settlement.FetchResult{Records: rows(100, 200, 300, 400)}, nil
			}
			return settlement.FetchResult{Records: rows(5), PageMeta: &settlement.PageMeta{TotalPages: 4, TotalElements: 31}}, nil
		},
	}
	ctrl := newTestController(fetcher)
	ctx := context.Background()

	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityMonthly))
	require.NoError(t, ctrl.SetStatus(ctx, "SETTLED"))
	require.NoError(t, ctrl.SetPageSize(ctx, 25))
	require.NoError(t, ctrl.SetPageIndex(ctx, 2))
	before := ctrl.View()
	require.Equal(t, 25, before.PageSize)
	require.Equal(t, settlement.StatusFilter("SETTLED"), before.Status)

	require.NoError(t, ctrl.DrillInto(ctx, "2025-03"))
	view := ctrl.View()
	assert.Equal(t, settlement.GranularityWeekly, view.Period)
	assert.Equal(t, day(2025, time.March, 1), view.DateRange.From)
	assert.Equal(t, settlement.EndOfDay(day(2025, time.March, 31)), view.DateRange.To)
	assert.Equal(t, 0, view.PageIndex)
	assert.Equal(t, LevelDrilled, view.DrillDown.Level)
	require.NotNil(t, view.DrillDown.SelectedPeriod)
	assert.Equal(t, "2025-03", *view.DrillDown.SelectedPeriod)
	assert.Len(t, view.CurrentRecords, 4)
	assert.Equal(t, int64(1000), view.Summary.TotalSales.IntPart())
	assert.Equal(t, int64(4), view.Summary.TotalCount)

	snap, ok := ctrl.Snapshot()
	require.True(t, ok)
	assert.Equal(t, settlement.GranularityMonthly, snap.Period)
	assert.Equal(t, 2, snap.PageIndex)
	assert.Equal(t, 25, snap.PageSize)
	assert.Equal(t, settlement.StatusFilter("SETTLED"), snap.Status)
	assert.Equal(t, before.DateRange, snap.DateRange)

	drill := fetcher.last()
	assert.Equal(t, settlement.GranularityWeekly, drill.Period)
	assert.Equal(t, 0, drill.Page)
	assert.Equal(t, 25, drill.Size)
	assert.Equal(t, int64(42), drill.SellerID)

	require.NoError(t, ctrl.BackToBase(ctx))
	after := ctrl.View()
	assert.Equal(t, before.Period, after.Period)
	assert.Equal(t, before.DateRange, after.DateRange)
	assert.Equal(t, before.PageIndex, after.PageIndex)
	assert.Equal(t, 25, after.PageSize)
	assert.Equal(t, settlement.StatusFilter("SETTLED"), after.Status)
	assert.Equal(t, LevelBase, after.DrillDown.Level)
	assert.Nil(t, after.DrillDown.SelectedPeriod)
	assert.False(t, after.HasSnapshot)
	back := fetcher.last()
	assert.Equal(t, 2, back.Page)
	assert.Equal(t, 25, back.Size)
	assert.Equal(t, settlement.StatusFilter("SETTLED"), back.Status)

	calls := len(fetcher.calls())
	require.NoError(t, ctrl.BackToBase(ctx))
	assert.Len(t, fetcher.calls(), calls, "back at base level must not fetch")
	assert.Equal(t, after.Period, ctrl.View().Period)
}

func TestDrillIntoWeekFetchesDays(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	ctx := context.Background()
	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityWeekly))

	require.NoError(t, ctrl.DrillInto(ctx, `{"start":"2025-03-03","end":"2025-03-09"}`))
	view := ctrl.View()
	assert.Equal(t, settlement.GranularityDaily, view.Period)
	assert.Equal(t, day(2025, time.March, 3), view.DateRange.From)
	assert.Equal(t, settlement.EndOfDay(day(2025, time.March, 9)), view.DateRange.To)

	p := fetcher.last()
	assert.Equal(t, settlement.GranularityDaily, p.Period)
	assert.Equal(t, view.DateRange, p.Range)

	snap, ok := ctrl.Snapshot()
	require.True(t, ok)
	assert.Equal(t, settlement.GranularityWeekly, snap.Period)
}

func TestDrillIntoMonthSortsWeeksByStart(t *testing.T) {
	s1, s2 := "2025-03-03", "2025-03-10"
	fetcher := &stubFetcher{
		fn: func(context.Context, settlement.FetchParams) (settlement.FetchResult, error) {
			return settlement.FetchResult{Records: []settlement.Record{
				{StartDate: &s2, TotalSales: decimal.NewFromInt(2)},
				{TotalSales: decimal.NewFromInt(9)},
				{StartDate: &s1, TotalSales: decimal.NewFromInt(1)},
			}}, nil
		},
	}
	ctrl := newTestController(fetcher)
	require.NoError(t, ctrl.DrillInto(context.Background(), "2025-03"))

	recs := ctrl.View().CurrentRecords
	require.Len(t, recs, 3)
	assert.Equal(t, s1, *recs[0].StartDate)
	assert.Equal(t, s2, *recs[1].StartDate)
	assert.Nil(t, recs[2].StartDate)
}

func TestFailedDrillKeepsPreviousView(t *testing.T) {
	fail := false
	fetcher := &stubFetcher{
		fn: func(context.Context, settlement.FetchParams) (settlement.FetchResult, error) {
			if fail {
				return settlement.FetchResult{}, &settlement.FetchError{Granularity: settlement.GranularityWeekly, Err: errors.New("timeout")}
			}
			return settlement.FetchResult{Records: rows(7, 8)}, nil
		},
	}
	ctrl := newTestController(fetcher)
	ctx := context.Background()
	require.NoError(t, ctrl.Load(ctx))
	before := ctrl.View()

	fail = true
	err := ctrl.DrillInto(ctx, "2025-03")
	require.Error(t, err)
	assert.ErrorIs(t, err, settlement.ErrFetchFailure)

	view := ctrl.View()
	assert.Equal(t, before.CurrentRecords, view.CurrentRecords)
	assert.Equal(t, before.Period, view.Period)
	assert.Equal(t, LevelBase, view.DrillDown.Level)
	assert.False(t, view.HasSnapshot)
	assert.False(t, view.Loading)
	require.NotNil(t, view.Error)
	assert.NotEmpty(t, *view.Error)

	fail = false
	require.NoError(t, ctrl.Load(ctx))
	assert.Nil(t, ctrl.View().Error)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	fetcher := &stubFetcher{
		fn: func(_ context.Context, p settlement.FetchParams) (settlement.FetchResult, error) {
			if p.Status == "PENDING" {
				close(started)
				<-gate
				return settlement.FetchResult{Records: rows(1)}, nil
			}
			return settlement.FetchResult{Records: rows(2, 3)}, nil
		},
	}
	ctrl := newTestController(fetcher)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.SetStatus(ctx, "PENDING") }()
	<-started
	assert.True(t, ctrl.View().Loading)

	require.NoError(t, ctrl.SetStatus(ctx, "COMPLETED"))
	close(gate)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	view := ctrl.View()
	assert.Equal(t, settlement.StatusFilter("COMPLETED"), view.Status)
	assert.Len(t, view.CurrentRecords, 2)
	assert.False(t, view.Loading)
}

func TestSetPeriodWhileDrilled(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	ctx := context.Background()
	require.NoError(t, ctrl.DrillInto(ctx, "2025-03"))
	calls := len(fetcher.calls())

	assert.ErrorIs(t, ctrl.SetPeriod(ctx, settlement.GranularityYearly), ErrNotAtBase)
	assert.Len(t, fetcher.calls(), calls)
	assert.Equal(t, settlement.GranularityWeekly, ctrl.View().Period)
}

func TestSetPeriodAnchorsOnToday(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	ctx := context.Background()

	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityWeekly))
	view := ctrl.View()
	assert.Equal(t, day(2025, time.June, 9), view.DateRange.From)
	assert.Equal(t, settlement.EndOfDay(day(2025, time.June, 15)), view.DateRange.To)

	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityDaily))
	view = ctrl.View()
	assert.Equal(t, day(2025, time.June, 15), view.DateRange.From)
	assert.Equal(t, view.DateRange, fetcher.last().Range)
}

func TestFilterChangesResetPage(t *testing.T) {
	ctrl := newTestController(&stubFetcher{})
	ctx := context.Background()

	require.NoError(t, ctrl.SetPageIndex(ctx, 3))
	require.NoError(t, ctrl.SetStatus(ctx, "SETTLED"))
	assert.Equal(t, 0, ctrl.View().PageIndex)

	require.NoError(t, ctrl.SetPageIndex(ctx, 3))
	require.NoError(t, ctrl.SetPageSize(ctx, 25))
	view := ctrl.View()
	assert.Equal(t, 0, view.PageIndex)
	assert.Equal(t, 25, view.PageSize)

	require.NoError(t, ctrl.SetPageIndex(ctx, 3))
	require.NoError(t, ctrl.SetDateRange(ctx, settlement.DateRange{From: day(2025, time.January, 1), To: day(2025, time.January, 31)}))
	view = ctrl.View()
	assert.Equal(t, 0, view.PageIndex)
	assert.Equal(t, settlement.EndOfDay(day(2025, time.January, 31)), view.DateRange.To)
}

func TestInvalidTransitionsDoNotFetch(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	ctx := context.Background()

	assert.ErrorIs(t, ctrl.SetPageSize(ctx, 0), ErrInvalidPageSize)
	assert.ErrorIs(t, ctrl.SetPageIndex(ctx, -1), ErrInvalidPageIndex)
	assert.ErrorIs(t, ctrl.SetDateRange(ctx, settlement.DateRange{From: day(2025, time.March, 2), To: day(2025, time.March, 1)}), ErrInvalidRange)
	assert.ErrorIs(t, ctrl.DrillInto(ctx, "March"), ErrInvalidDrillToken)
	assert.ErrorIs(t, ctrl.DrillInto(ctx, "2025-13"), ErrInvalidDrillToken)
	assert.ErrorIs(t, ctrl.DrillInto(ctx, `{"start":"2025-03-03"}`), ErrInvalidDrillToken)
	assert.Empty(t, fetcher.calls())
	assert.Equal(t, LevelBase, ctrl.View().DrillDown.Level)
}

func TestBackWithoutSnapshotResetsPage(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	token := "2025-03"
	ctrl.state.Period = settlement.GranularityWeekly
	ctrl.state.PageIndex = 4
	ctrl.state.DrillDown = DrillDownState{Level: LevelDrilled, SelectedPeriod: &token}

	require.NoError(t, ctrl.BackToBase(context.Background()))
	view := ctrl.View()
	assert.Equal(t, 0, view.PageIndex)
	assert.Equal(t, settlement.GranularityWeekly, view.Period)
	assert.Len(t, fetcher.calls(), 1)
}

func TestSecondDrillOverwritesSnapshot(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := newTestController(fetcher)
	ctx := context.Background()

	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityMonthly))
	require.NoError(t, ctrl.DrillInto(ctx, "2025-03"))
	month := ctrl.View()
	require.Equal(t, settlement.GranularityWeekly, month.Period)

	require.NoError(t, ctrl.DrillInto(ctx, `{"start":"2025-03-03","end":"2025-03-09"}`))
	snap, ok := ctrl.Snapshot()
	require.True(t, ok)
	assert.Equal(t, settlement.GranularityWeekly, snap.Period)
	assert.Equal(t, month.DateRange, snap.DateRange)

	require.NoError(t, ctrl.BackToBase(ctx))
	after := ctrl.View()
	assert.Equal(t, settlement.GranularityWeekly, after.Period)
	assert.Equal(t, month.DateRange, after.DateRange)
	assert.Equal(t, LevelBase, after.DrillDown.Level)
	assert.False(t, after.HasSnapshot)

	calls := len(fetcher.calls())
	require.NoError(t, ctrl.BackToBase(ctx))
	assert.Len(t, fetcher.calls(), calls)
	assert.Equal(t, settlement.GranularityWeekly, ctrl.View().Period, "the monthly base is gone once the slot is overwritten")
}

func TestDailyRangeSpanIsCapped(t *testing.T) {
	fetcher := &stubFetcher{}
	ctrl := NewController(42, fetcher,
		WithClock(func() time.Time { return time.Date(2025, time.June, 15, 13, 30, 0, 0, time.UTC) }),
		WithMaxDailySpan(31),
	)
	ctx := context.Background()
	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityDaily))
	calls := len(fetcher.calls())

	err := ctrl.SetDateRange(ctx, settlement.DateRange{From: day(2025, time.January, 1), To: day(2025, time.March, 31)})
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.Len(t, fetcher.calls(), calls)
	assert.Equal(t, day(2025, time.June, 15), ctrl.View().DateRange.From)

	require.NoError(t, ctrl.SetDateRange(ctx, settlement.DateRange{From: day(2025, time.May, 1), To: day(2025, time.May, 31)}))
	assert.Equal(t, day(2025, time.May, 1), fetcher.last().Range.From)

	require.NoError(t, ctrl.SetPeriod(ctx, settlement.GranularityMonthly))
	require.NoError(t, ctrl.SetDateRange(ctx, settlement.DateRange{From: day(2024, time.January, 1), To: day(2025, time.March, 31)}),
		"coarser periods are not capped")
}

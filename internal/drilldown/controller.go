// Package drilldown owns the per-session dashboard state: the current query,
// the drill level, and the single snapshot used to return from a drill-down.
package drilldown

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

// Fetcher loads the rows for one view.
type Fetcher interface {
	Fetch(ctx context.Context, p settlement.FetchParams) (settlement.FetchResult, error)
}

type snapshotOp int

const (
	keepSnapshot snapshotOp = iota
	captureSnapshot
	clearSnapshot
)

type transition struct {
	name        string
	next        State
	snapshot    snapshotOp
	sortByStart bool
	skip        bool
}

// Controller is the dashboard state machine for one seller session.
// It is safe for concurrent use; the newest transition always wins.
type Controller struct {
	sellerID int64
	fetcher  Fetcher
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	maxDaily int

	mu         sync.Mutex
	state      State
	snap       *ViewSnapshot
	generation uint64
	records    []settlement.Record
	summary    settlement.Record
	pageMeta   *settlement.PageMeta
	loading    bool
	errMsg     *string
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithClock overrides the clock used to anchor "today".
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the calendar location used for ranges and tokens.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithPageSize sets the initial page size.
func WithPageSize(size int) Option {
	return func(c *Controller) {
		if size > 0 {
			c.state.PageSize = size
		}
	}
}

// WithMaxDailySpan caps the days a daily view may cover.
func WithMaxDailySpan(days int) Option {
	return func(c *Controller) {
		if days > 0 {
			c.maxDaily = days
		}
	}
}

// NewController builds a controller on the all-time view of the last 30 days.
func NewController(sellerID int64, fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		sellerID: sellerID,
		fetcher:  fetcher,
		now:      time.Now,
		loc:      time.UTC,
		maxDaily: settlement.DefaultMaxDailySpanDays,
		state: State{
			Period:    settlement.GranularityAll,
			PageSize:  settlement.DefaultPageSize,
			DrillDown: DrillDownState{Level: LevelBase},
		},
		summary: settlement.ZeroRecord(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.state.DateRange = settlement.DefaultAllRange(c.today())
	return c
}

// SellerID returns the seller the controller reports on.
func (c *Controller) SellerID() int64 {
	return c.sellerID
}

// Load fetches the current state without changing it.
func (c *Controller) Load(ctx context.Context) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		return transition{name: "load", next: cur}, nil
	})
}

// SetPeriod switches granularity from the top-level buttons, anchored on today.
func (c *Controller) SetPeriod(ctx context.Context, period settlement.Granularity) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		if cur.DrillDown.Level != LevelBase {
			return transition{}, ErrNotAtBase
		}
		next := cur
		next.Period = period
		next.DateRange = c.rangeFor(period)
		next.PageIndex = 0
		return transition{name: "set_period", next: next}, nil
	})
}

// SetDateRange replaces the query window.
func (c *Controller) SetDateRange(ctx context.Context, r settlement.DateRange) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		from := settlement.StartOfDay(r.From.In(c.loc))
		to := settlement.EndOfDay(r.To.In(c.loc))
		if from.After(to) {
			return transition{}, ErrInvalidRange
		}
		rng := settlement.DateRange{From: from, To: to}
		if cur.Period == settlement.GranularityDaily && rng.SpanDays() > c.maxDaily {
			return transition{}, fmt.Errorf("%w: daily views cover at most %d days", ErrInvalidRange, c.maxDaily)
		}
		next := cur
		next.DateRange = rng
		next.PageIndex = 0
		return transition{name: "set_date_range", next: next}, nil
	})
}

// SetStatus filters rows by settlement status.
func (c *Controller) SetStatus(ctx context.Context, status settlement.StatusFilter) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		next := cur
		next.Status = status
		next.PageIndex = 0
		return transition{name: "set_status", next: next}, nil
	})
}

// SetPageIndex moves to another page of the current view.
func (c *Controller) SetPageIndex(ctx context.Context, index int) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		if index < 0 {
			return transition{}, ErrInvalidPageIndex
		}
		next := cur
		next.PageIndex = index
		return transition{name: "set_page_index", next: next}, nil
	})
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller) SetPageSize(ctx context.Context, size int) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		if size < 1 {
			return transition{}, ErrInvalidPageSize
		}
		next := cur
		next.PageSize = size
		next.PageIndex = 0
		return transition{name: "set_page_size", next: next}, nil
	})
}

// DrillInto zooms into a month (YYYY-MM, shown as weeks) or a week
// ({"start","end"}, shown as days). The pre-drill state is kept for BackToBase.
func (c *Controller) DrillInto(ctx context.Context, token string) error {
	return c.run(ctx, func(cur State, _ *ViewSnapshot) (transition, error) {
		token = strings.TrimSpace(token)
		selected := token
		next := cur
		next.PageIndex = 0
		next.DrillDown = DrillDownState{Level: LevelDrilled, SelectedPeriod: &selected}

		switch {
		case settlement.IsMonthToken(token):
			month, err := settlement.ParseMonthToken(token, c.loc)
			if err != nil {
				return transition{}, fmt.Errorf("%w: %v", ErrInvalidDrillToken, err)
			}
			next.Period = settlement.GranularityWeekly
			next.DateRange = month
			return transition{name: "drill_month", next: next, snapshot: captureSnapshot, sortByStart: true}, nil
		case strings.HasPrefix(token, "{"):
			week, err := settlement.ParseWeekToken(token, c.loc)
			if err != nil {
				return transition{}, fmt.Errorf("%w: %v", ErrInvalidDrillToken, err)
			}
			next.Period = settlement.GranularityDaily
			next.DateRange = week
			return transition{name: "drill_week", next: next, snapshot: captureSnapshot}, nil
		}
		return transition{}, fmt.Errorf("%w: %q", ErrInvalidDrillToken, token)
	})
}

// BackToBase restores the pre-drill state. It does nothing at base level.
func (c *Controller) BackToBase(ctx context.Context) error {
	return c.run(ctx, func(cur State, snap *ViewSnapshot) (transition, error) {
		if cur.DrillDown.Level == LevelBase {
			return transition{skip: true}, nil
		}
		if snap == nil {
			next := cur
			next.PageIndex = 0
			return transition{name: "back_without_snapshot", next: next}, nil
		}
		next := cur
		next.Period = snap.Period
		next.Status = snap.Status
		next.PageSize = snap.PageSize
		next.PageIndex = snap.PageIndex
		next.DateRange = snap.DateRange
		next.DrillDown = DrillDownState{Level: LevelBase}
		return transition{name: "back", next: next, snapshot: clearSnapshot}, nil
	})
}

// View returns a copy of what the dashboard should render.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		CurrentRecords: append([]settlement.Record{}, c.records...),
		Summary:        c.summary,
		DrillDown:      c.state.DrillDown,
		Loading:        c.loading,
		Period:         c.state.Period,
		DateRange:      c.state.DateRange,
		PageIndex:      c.state.PageIndex,
		PageSize:       c.state.PageSize,
		Status:         c.state.Status,
		HasSnapshot:    c.snap != nil,
	}
	if c.pageMeta != nil {
		meta := *c.pageMeta
		v.PageMeta = &meta
	}
	if c.errMsg != nil {
		msg := *c.errMsg
		v.Error = &msg
	}
	return v
}

// Snapshot returns the saved pre-drill state, if any.
func (c *Controller) Snapshot() (ViewSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return ViewSnapshot{}, false
	}
	return *c.snap, true
}

// run computes the next state under the lock, fetches without it, and commits
// only when no newer transition started in the meantime.
func (c *Controller) run(ctx context.Context, build func(cur State, snap *ViewSnapshot) (transition, error)) error {
	c.mu.Lock()
	t, err := build(c.state, c.snap)
	if err != nil || t.skip {
		c.mu.Unlock()
		return err
	}
	c.generation++
	gen := c.generation
	c.loading = true
	params := t.next.params(c.sellerID)
	c.mu.Unlock()

	res, fetchErr := c.fetcher.Fetch(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.log().Debug("discard stale settlement response", slog.String("transition", t.name), slog.Uint64("generation", gen))
		return ErrSuperseded
	}
	c.loading = false
	if fetchErr != nil {
		msg := settlement.UserMessage(fetchErr)
		c.errMsg = &msg
		c.log().Warn("settlement fetch failed",
			slog.String("transition", t.name),
			slog.Int64("seller_id", c.sellerID),
			slog.Any("error", fetchErr))
		return fetchErr
	}

	records := res.Records
	if records == nil {
		records = []settlement.Record{}
	}
	if t.sortByStart {
		sortByStartDate(records)
	}
	switch t.snapshot {
	case captureSnapshot:
		s := c.state.snapshot()
		c.snap = &s
	case clearSnapshot:
		c.snap = nil
	}
	c.state = t.next
	c.records = records
	c.pageMeta = res.PageMeta
	c.summary = settlement.Summarize(records, t.next.Period, t.next.DateRange)
	c.errMsg = nil
	return nil
}

func (c *Controller) today() time.Time {
	return c.now().In(c.loc)
}

func (c *Controller) rangeFor(period settlement.Granularity) settlement.DateRange {
	if period == settlement.GranularityAll {
		return settlement.DefaultAllRange(c.today())
	}
	return settlement.ComputeRange(period, c.today())
}

func (c *Controller) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// sortByStartDate orders weekly rows by their Monday; rows without one go last.
func sortByStartDate(records []settlement.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].StartDate, records[j].StartDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
}

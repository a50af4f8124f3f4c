package drilldown

import (
	"errors"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

// Level tells whether the dashboard shows a top-level or a zoomed-in view.
type Level string

const (
	LevelBase    Level = "base"
	LevelDrilled Level = "drilled"
)

var (
	// ErrInvalidDrillToken indicates a drill target that is neither a month nor a week.
	ErrInvalidDrillToken = errors.New("drilldown: invalid drill token")
	// ErrNotAtBase indicates a granularity change attempted while drilled.
	ErrNotAtBase = errors.New("drilldown: granularity can only change at base level")
	// ErrInvalidRange indicates a date range whose start is after its end, or a
	// daily range longer than the controller allows.
	ErrInvalidRange = errors.New("drilldown: invalid date range")
	// ErrInvalidPageSize indicates a page size below one.
	ErrInvalidPageSize = errors.New("drilldown: invalid page size")
	// ErrInvalidPageIndex indicates a negative page index.
	ErrInvalidPageIndex = errors.New("drilldown: invalid page index")
	// ErrSuperseded is returned when a newer transition started before this one finished.
	ErrSuperseded = errors.New("drilldown: superseded by a newer request")
)

// DrillDownState records the drill level and the token that produced it.
type DrillDownState struct {
	Level          Level   `json:"level"`
	SelectedPeriod *string `json:"selectedPeriod"`
}

// ViewSnapshot is the query state saved right before a drill-down.
type ViewSnapshot struct {
	Period    settlement.Granularity  `json:"period"`
	DateRange settlement.DateRange    `json:"dateRange"`
	PageIndex int                     `json:"pageIndex"`
	PageSize  int                     `json:"pageSize"`
	Status    settlement.StatusFilter `json:"status"`
}

// State is the query state owned by a Controller.
type State struct {
	Period    settlement.Granularity
	DateRange settlement.DateRange
	PageIndex int
	PageSize  int
	Status    settlement.StatusFilter
	DrillDown DrillDownState
}

func (s State) snapshot() ViewSnapshot {
	return ViewSnapshot{
		Period:    s.Period,
		DateRange: s.DateRange,
		PageIndex: s.PageIndex,
		PageSize:  s.PageSize,
		Status:    s.Status,
	}
}

func (s State) params(sellerID int64) settlement.FetchParams {
	return settlement.FetchParams{
		SellerID: sellerID,
		Period:   s.Period,
		Range:    s.DateRange,
		Page:     s.PageIndex,
		Size:     s.PageSize,
		Status:   s.Status,
	}
}

// View is everything the dashboard renders for one session.
type View struct {
	CurrentRecords []settlement.Record     `json:"currentRecords"`
	Summary        settlement.Record       `json:"summary"`
	PageMeta       *settlement.PageMeta    `json:"pageMeta"`
	DrillDown      DrillDownState          `json:"drillDown"`
	Loading        bool                    `json:"loading"`
	Error          *string                 `json:"error"`
	Period         settlement.Granularity  `json:"period"`
	DateRange      settlement.DateRange    `json:"dateRange"`
	PageIndex      int                     `json:"pageIndex"`
	PageSize       int                     `json:"pageSize"`
	Status         settlement.StatusFilter `json:"status"`
	HasSnapshot    bool                    `json:"hasSnapshot"`
}

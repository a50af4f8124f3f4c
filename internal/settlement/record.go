package settlement

import (
	"github.com/shopspring/decimal"
)

// StatusFilter narrows settlement rows by status. Empty selects every status.
type StatusFilter string

// RawRecord is one backend row as decoded from JSON.
type RawRecord map[string]any

// PageMeta carries pagination details when the backend returned a paged collection.
type PageMeta struct {
	Page          int   `json:"page"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
}

// Record is the normalized settlement row shared by every granularity.
type Record struct {
	Period Granularity `json:"period,omitempty"`

	TotalSales       decimal.Decimal `json:"totalSales"`
	TotalFee         decimal.Decimal `json:"totalFee"`
	TotalVat         decimal.Decimal `json:"totalVat"`
	TotalRefund      decimal.Decimal `json:"totalRefund"`
	TotalSettlement  decimal.Decimal `json:"totalSettlement"`
	TotalCount       int64           `json:"totalCount"`
	SettlementStatus *string         `json:"settlementStatus"`
	SettlementDate   *string         `json:"settlementDate"`
	CompletedRate    float64         `json:"completedRate"`
	GrowthRate       float64         `json:"growthRate"`

	// daily
	Date *string `json:"date,omitempty"`
	// weekly, monthly, yearly
	Year  *int `json:"year,omitempty"`
	Month *int `json:"month,omitempty"`
	Week  *int `json:"week,omitempty"`
	// weekly Monday to Sunday span
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
}

// ZeroRecord returns a record whose numeric fields are all zero.
func ZeroRecord() Record {
	return Record{
		TotalSales:      decimal.Zero,
		TotalFee:        decimal.Zero,
		TotalVat:        decimal.Zero,
		TotalRefund:     decimal.Zero,
		TotalSettlement: decimal.Zero,
	}
}

package settlement

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	dailyDateKeys  = []string{"orderedAt", "ordered_at", "settlementDate", "settlement_date", "date"}
	weekKeys       = []string{"week", "weekOfMonth", "week_of_month"}
	weekStartKeys  = []string{"startDate", "start_date", "weekStart", "week_start"}
	weekEndKeys    = []string{"endDate", "end_date", "weekEnd", "week_end"}
	statusKeys     = []string{"settlementStatus", "settlement_status", "status"}
	settleDateKeys = []string{"settlementDate", "settlement_date"}
)

// Normalize maps one backend row into a Record carrying exactly the extension
// fields of period. Missing or malformed values become zero or nil.
func Normalize(raw RawRecord, period Granularity) Record {
	rec := ZeroRecord()
	rec.Period = period
	if raw == nil {
		return rec
	}

	rec.TotalSales = raw.decimal("totalSales", "total_sales")
	rec.TotalFee = raw.decimal("totalFee", "total_fee")
	rec.TotalVat = raw.decimal("totalVat", "total_vat")
	rec.TotalRefund = raw.decimal("totalRefund", "total_refund")
	rec.TotalSettlement = raw.decimal("totalSettlement", "total_settlement")
	rec.TotalCount = raw.int64("totalCount", "total_count")
	rec.SettlementStatus = raw.str(statusKeys...)
	rec.SettlementDate = raw.str(settleDateKeys...)
	rec.CompletedRate = raw.float("completedRate", "completed_rate")
	rec.GrowthRate = raw.float("growthRate", "growth_rate")

	switch period {
	case GranularityDaily:
		if date := raw.str(dailyDateKeys...); date != nil {
			day := trimDay(*date)
			rec.Date = &day
		}
	case GranularityWeekly:
		rec.Year = raw.intPtr("year")
		rec.Month = raw.intPtr("month")
		rec.Week = raw.intPtr(weekKeys...)
		rec.StartDate = raw.str(weekStartKeys...)
		rec.EndDate = raw.str(weekEndKeys...)
	case GranularityMonthly:
		rec.Year = raw.intPtr("year")
		rec.Month = raw.intPtr("month")
	case GranularityYearly:
		rec.Year = raw.intPtr("year")
	}
	return rec
}

// NormalizeDay normalizes a daily row and pins its date to day.
func NormalizeDay(raw RawRecord, day string) Record {
	rec := Normalize(raw, GranularityDaily)
	rec.Date = &day
	return rec
}

// lookup returns the first non-null value among keys.
func (r RawRecord) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r RawRecord) decimal(keys ...string) decimal.Decimal {
	v, ok := r.lookup(keys...)
	if !ok {
		return decimal.Zero
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
			return d
		}
	case float64:
		if !math.IsNaN(val) && !math.IsInf(val, 0) {
			return decimal.NewFromFloat(val)
		}
	case float32:
		return decimal.NewFromFloat32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int32:
		return decimal.NewFromInt32(val)
	case int64:
		return decimal.NewFromInt(val)
	}
	return decimal.Zero
}

func (r RawRecord) float(keys ...string) float64 {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0
	}
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func (r RawRecord) int64(keys ...string) int64 {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0
	}
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func (r RawRecord) intPtr(keys ...string) *int {
	v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

func (r RawRecord) str(keys ...string) *string {
	v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return nil
	}
	return &s
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}

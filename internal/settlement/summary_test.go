package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSummarizeEmptyIsZero(t *testing.T) {
	sum := Summarize(nil, GranularityMonthly, ComputeRange(GranularityMonthly, date(2025, time.March, 1)))
	assert.True(t, sum.TotalSales.IsZero())
	assert.Zero(t, sum.TotalCount)
}

func TestSummarizeSingleDayPassesThrough(t *testing.T) {
	day := "2025-10-01"
	status := "COMPLETED"
	rec := Record{
		Period:           GranularityDaily,
		TotalSales:       money("150.25"),
		TotalSettlement:  money("140"),
		TotalCount:       3,
		SettlementStatus: &status,
		CompletedRate:    0.75,
		Date:             &day,
	}
	sum := Summarize([]Record{rec}, GranularityDaily, ComputeRange(GranularityDaily, date(2025, time.October, 1)))
	assert.Equal(t, rec, sum)
}

func TestSummarizeSumsWeeksOfMonth(t *testing.T) {
	weeks := []Record{
		{TotalSales: money("100.10"), TotalFee: money("1"), TotalCount: 1, CompletedRate: 0.5},
		{TotalSales: money("200.20"), TotalFee: money("2"), TotalCount: 2},
		{TotalSales: money("300.30"), TotalFee: money("3"), TotalCount: 3},
		{TotalSales: money("400.40"), TotalFee: money("4"), TotalCount: 4},
	}
	sum := Summarize(weeks, GranularityWeekly, MonthRange(2025, time.March, time.UTC))
	assert.True(t, money("1001.00").Equal(sum.TotalSales), sum.TotalSales.String())
	assert.True(t, money("10").Equal(sum.TotalFee))
	assert.Equal(t, int64(10), sum.TotalCount)
	assert.Zero(t, sum.CompletedRate)
	assert.Nil(t, sum.Year)
	assert.Nil(t, sum.StartDate)
}

func TestSummarizeSingleWeeklyRowPassesThrough(t *testing.T) {
	start := "2025-03-03"
	rec := Record{TotalSales: money("10"), GrowthRate: 0.2, StartDate: &start}
	sum := Summarize([]Record{rec}, GranularityWeekly, MonthRange(2025, time.March, time.UTC))
	assert.Equal(t, rec, sum)
}

func TestSummarizeMultiDaySums(t *testing.T) {
	r := DateRange{From: date(2025, time.October, 1), To: EndOfDay(date(2025, time.October, 2))}
	sum := Summarize([]Record{{TotalSales: money("1")}, {TotalSales: money("2")}}, GranularityDaily, r)
	assert.True(t, money("3").Equal(sum.TotalSales))

	single := Summarize([]Record{{TotalSales: money("5")}}, GranularityMonthly, r)
	assert.True(t, money("5").Equal(single.TotalSales))
	assert.Empty(t, single.Period)
}

package pgstore

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

const filterSQL = `FROM seller_settlement_daily
WHERE seller_id = $1
  AND settlement_day BETWEEN $2 AND $3
  AND ($4 = '' OR status = $4)`

// grouping describes how one granularity buckets the daily rollup.
type grouping struct {
	bucket    string
	status    string
	groupBy   string
	partition string
	orderBy   string
}

func groupingFor(g settlement.Granularity) grouping {
	single := "CASE WHEN COUNT(DISTINCT status) = 1 THEN MIN(status) END"
	switch g {
	case settlement.GranularityAll:
		return grouping{bucket: "settlement_day", status: "status", groupBy: "1, 2", partition: "PARTITION BY status ", orderBy: "1, 2"}
	case settlement.GranularityWeekly:
		return grouping{bucket: "date_trunc('week', settlement_day)::date", status: single, groupBy: "1", orderBy: "1"}
	case settlement.GranularityMonthly:
		return grouping{bucket: "date_trunc('month', settlement_day)::date", status: single, groupBy: "1", orderBy: "1"}
	case settlement.GranularityYearly:
		return grouping{bucket: "date_trunc('year', settlement_day)::date", status: single, groupBy: "1", orderBy: "1"}
	default:
		return grouping{bucket: "settlement_day", status: single, groupBy: "1", orderBy: "1"}
	}
}

func selectSQL(g settlement.Granularity) string {
	gr := groupingFor(g)
	return fmt.Sprintf(`SELECT %s AS bucket,
       %s AS status,
       SUM(total_sales)::text,
       SUM(total_fee)::text,
       SUM(total_vat)::text,
       SUM(total_refund)::text,
       SUM(total_settlement)::text,
       SUM(total_count)::bigint,
       COALESCE(SUM(completed_count)::float8 / NULLIF(SUM(total_count), 0), 0)::float8,
       COALESCE((SUM(total_sales) - LAG(SUM(total_sales)) OVER w) / NULLIF(LAG(SUM(total_sales)) OVER w, 0), 0)::float8,
       MAX(settlement_date),
       COUNT(*) OVER () AS total_rows
%s
GROUP BY %s
WINDOW w AS (%sORDER BY %s)
ORDER BY %s
LIMIT $5 OFFSET $6`, gr.bucket, gr.status, filterSQL, gr.groupBy, gr.partition, gr.bucket, gr.orderBy)
}

func countSQL(g settlement.Granularity) string {
	gr := groupingFor(g)
	return fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT %s, %s %s GROUP BY %s) buckets`,
		gr.bucket, statusColumn(g), filterSQL, gr.groupBy)
}

func statusColumn(g settlement.Granularity) string {
	if g == settlement.GranularityAll {
		return "status"
	}
	return "NULL"
}

type bucketRow struct {
	bucket          time.Time
	status          *string
	sales           string
	fee             string
	vat             string
	refund          string
	settlementTotal string
	count           int64
	completedRate   float64
	growthRate      float64
	settlementDate  *time.Time
	totalRows       int64
}

func scanRows(rows pgx.Rows, g settlement.Granularity) ([]settlement.RawRecord, int64, error) {
	defer rows.Close()
	out := make([]settlement.RawRecord, 0)
	var total int64
	for rows.Next() {
		var r bucketRow
		if err := rows.Scan(
			&r.bucket,
			&r.status,
			&r.sales,
			&r.fee,
			&r.vat,
			&r.refund,
			&r.settlementTotal,
			&r.count,
			&r.completedRate,
			&r.growthRate,
			&r.settlementDate,
			&r.totalRows,
		); err != nil {
			return nil, 0, err
		}
		total = r.totalRows
		out = append(out, r.raw(g))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// raw renders the row in the backend's JSON vocabulary so it goes through the
// same normalizer as remote payloads.
func (r bucketRow) raw(g settlement.Granularity) settlement.RawRecord {
	raw := settlement.RawRecord{
		"totalSales":      r.sales,
		"totalFee":        r.fee,
		"totalVat":        r.vat,
		"totalRefund":     r.refund,
		"totalSettlement": r.settlementTotal,
		"totalCount":      r.count,
		"completedRate":   r.completedRate,
		"growthRate":      r.growthRate,
	}
	if r.status != nil {
		raw["settlementStatus"] = *r.status
	}
	if r.settlementDate != nil {
		raw["settlementDate"] = settlement.FormatDay(*r.settlementDate)
	}

	day := settlement.FormatDay(r.bucket)
	switch g {
	case settlement.GranularityAll, settlement.GranularityDaily:
		raw["orderedAt"] = day
		raw["date"] = day
	case settlement.GranularityWeekly:
		year, week := r.bucket.ISOWeek()
		raw["year"] = year
		raw["month"] = int(r.bucket.Month())
		raw["week"] = week
		raw["startDate"] = day
		raw["endDate"] = settlement.FormatDay(r.bucket.AddDate(0, 0, 6))
	case settlement.GranularityMonthly:
		raw["year"] = r.bucket.Year()
		raw["month"] = int(r.bucket.Month())
	case settlement.GranularityYearly:
		raw["year"] = r.bucket.Year()
	}
	return raw
}

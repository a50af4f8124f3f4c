package settlement

// Summarize reduces the rows of one view into a single summary record.
//
// A single-bucket window (one day of DAILY, or a WEEKLY result with exactly one
// row) returns its only row untouched so non-additive fields such as rates
// survive. Every other window sums the six numeric base fields and drops the rest.
func Summarize(records []Record, period Granularity, r DateRange) Record {
	if len(records) == 0 {
		return ZeroRecord()
	}
	if singleBucket(records, period, r) {
		return records[0]
	}
	sum := ZeroRecord()
	for _, rec := range records {
		sum.TotalSales = sum.TotalSales.Add(rec.TotalSales)
		sum.TotalFee = sum.TotalFee.Add(rec.TotalFee)
		sum.TotalVat = sum.TotalVat.Add(rec.TotalVat)
		sum.TotalRefund = sum.TotalRefund.Add(rec.TotalRefund)
		sum.TotalSettlement = sum.TotalSettlement.Add(rec.TotalSettlement)
		sum.TotalCount += rec.TotalCount
	}
	return sum
}

// singleBucket keeps the historical rule that a lone weekly row counts as one
// bucket even when the user asked for a wider range.
func singleBucket(records []Record, period Granularity, r DateRange) bool {
	switch period {
	case GranularityDaily:
		return r.SingleDay()
	case GranularityWeekly:
		return len(records) == 1
	}
	return false
}

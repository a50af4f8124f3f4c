package settlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Granularity is the bucket size used for settlement reporting.
type Granularity string

const (
	GranularityAll     Granularity = "all"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

// DefaultAllWindowDays is the length of the rolling window used for the all-time view.
const DefaultAllWindowDays = 30

const dayLayout = "2006-01-02"

var monthTokenRegex = regexp.MustCompile(`^\d{4}-\d{2}$`)

var (
	// ErrInvalidGranularity indicates an unknown granularity value.
	ErrInvalidGranularity = errors.New("settlement: invalid granularity")
	// ErrInvalidPeriodToken indicates a drill token that is neither a month nor a week span.
	ErrInvalidPeriodToken = errors.New("settlement: invalid period token")
)

// ParseGranularity resolves user input into a Granularity.
func ParseGranularity(value string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(value))); g {
	case GranularityAll, GranularityDaily, GranularityWeekly, GranularityMonthly, GranularityYearly:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, value)
}

// DateRange is inclusive on both ends at day granularity.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Normalized returns the range with From at start of day and To at end of day.
func (r DateRange) Normalized() DateRange {
	return DateRange{From: StartOfDay(r.From), To: EndOfDay(r.To)}
}

// SingleDay reports whether the range starts and ends on the same calendar day.
func (r DateRange) SingleDay() bool {
	return SameDay(r.From, r.To)
}

// SpanDays counts the calendar days the range covers, both ends included.
func (r DateRange) SpanDays() int {
	from := StartOfDay(r.From)
	to := StartOfDay(r.To)
	if to.Before(from) {
		return 0
	}
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a)/(24*time.Hour)) + 1
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ComputeRange returns the canonical calendar range containing anchor.
// GranularityAll is caller-supplied (see DefaultAllRange); it falls back to the anchor day.
func ComputeRange(period Granularity, anchor time.Time) DateRange {
	day := StartOfDay(anchor)
	switch period {
	case GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		from := day.AddDate(0, 0, -offset)
		return DateRange{From: from, To: EndOfDay(from.AddDate(0, 0, 6))}
	case GranularityMonthly:
		return MonthRange(day.Year(), day.Month(), day.Location())
	case GranularityYearly:
		from := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
		return DateRange{From: from, To: EndOfDay(from.AddDate(1, 0, -1))}
	default:
		return DateRange{From: day, To: day}
	}
}

// DefaultAllRange is the rolling window ending on now's day.
func DefaultAllRange(now time.Time) DateRange {
	today := StartOfDay(now)
	return DateRange{From: today.AddDate(0, 0, -(DefaultAllWindowDays - 1)), To: EndOfDay(today)}
}

// MonthRange spans the first to the last calendar day of the month.
func MonthRange(year int, month time.Month, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return DateRange{From: from, To: EndOfDay(from.AddDate(0, 1, -1))}
}

// Days enumerates every calendar day in r in ascending order.
func Days(r DateRange) []time.Time {
	from := StartOfDay(r.From)
	to := StartOfDay(r.To)
	if to.Before(from) {
		return nil
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// ParseDay parses a YYYY-MM-DD value in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dayLayout, strings.TrimSpace(value), loc)
}

// WeekSpan is the decoded form of a week drill token.
type WeekSpan struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IsMonthToken reports whether token looks like YYYY-MM.
func IsMonthToken(token string) bool {
	return monthTokenRegex.MatchString(strings.TrimSpace(token))
}

// ParseMonthToken turns a YYYY-MM token into the month's range.
func ParseMonthToken(token string, loc *time.Location) (DateRange, error) {
	token = strings.TrimSpace(token)
	if !monthTokenRegex.MatchString(token) {
		return DateRange{}, fmt.Errorf("%w: %q", ErrInvalidPeriodToken, token)
	}
	month, err := time.Parse("2006-01", token)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: %q", ErrInvalidPeriodToken, token)
	}
	return MonthRange(month.Year(), month.Month(), loc), nil
}

// ParseWeekToken decodes a {"start","end"} JSON token into a day range.
func ParseWeekToken(token string, loc *time.Location) (DateRange, error) {
	var span WeekSpan
	if err := json.Unmarshal([]byte(strings.TrimSpace(token)), &span); err != nil {
		return DateRange{}, fmt.Errorf("%w: %v", ErrInvalidPeriodToken, err)
	}
	start, err := ParseDay(trimDay(span.Start), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidPeriodToken, span.Start)
	}
	end, err := ParseDay(trimDay(span.End), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidPeriodToken, span.End)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: end before start", ErrInvalidPeriodToken)
	}
	return DateRange{From: StartOfDay(start), To: EndOfDay(end)}, nil
}

// trimDay keeps the date part of a date-time string.
func trimDay(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > len(dayLayout) {
		return value[:len(dayLayout)]
	}
	return value
}

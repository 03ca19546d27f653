/*
period.go - Billing period arithmetic

PURPOSE:
  Pure functions mapping wall-clock time to fixed two-week billing periods.
  Periods are contiguous, non-overlapping, exactly PeriodDays long, and
  anchored to the Config epoch. Period number N always maps to exactly one
  (start, end) pair and back.

TIMEZONE DISCIPLINE:
  All boundaries are computed in UTC at whole-day granularity. Financial
  period membership must not depend on viewer locale, and day counting at
  midnight UTC sidesteps DST drift entirely.

BOUNDARY CONVENTION:
  End is inclusive: one second before the next period's start. A date d is
  in period p iff start <= d <= end.

SEE ALSO:
  - selector.go: Uses Contains() for eligibility bucketing
  - cashback.go: Groups unprocessed inspections by PeriodForDate
*/
package settlement

import "time"

// BillingPeriod is derived, never persisted as its own record. Number is
// 1-based from the epoch.
type BillingPeriod struct {
	Number int
	Start  time.Time
	End    time.Time
}

// Contains reports whether t falls within [Start, End]. Membership is
// decided at UTC day granularity, so any instant on a period's final day
// belongs to it, fractional seconds included.
func (p BillingPeriod) Contains(t time.Time) bool {
	day := startOfDayUTC(t)
	return !day.Before(p.Start) && !day.After(p.End)
}

// startOfDayUTC truncates t to UTC midnight. Period membership is decided at
// day granularity so an inspection completed at 23:59 local time cannot slip
// into the neighboring period.
func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysSinceEpoch counts whole days between the epoch and t.
func (c Config) daysSinceEpoch(t time.Time) int {
	return int(startOfDayUTC(t).Sub(startOfDayUTC(c.Epoch)).Hours() / 24)
}

// PeriodByNumber returns the period with the given 1-based number.
// Numbers below 1 are clamped to 1.
func (c Config) PeriodByNumber(n int) BillingPeriod {
	if n < 1 {
		n = 1
	}
	start := startOfDayUTC(c.Epoch).AddDate(0, 0, (n-1)*c.PeriodDays)
	end := start.AddDate(0, 0, c.PeriodDays).Add(-time.Second)
	return BillingPeriod{Number: n, Start: start, End: end}
}

// PeriodForDate returns the period containing the given date. Dates before
// the epoch map to period 1.
func (c Config) PeriodForDate(d time.Time) BillingPeriod {
	days := c.daysSinceEpoch(d)
	if days < 0 {
		return c.PeriodByNumber(1)
	}
	return c.PeriodByNumber(days/c.PeriodDays + 1)
}

// CurrentPeriod returns the period containing now.
func (c Config) CurrentPeriod(now time.Time) BillingPeriod {
	return c.PeriodForDate(now)
}

// PeriodsBefore returns up to count periods preceding current, most recent
// first, excluding current itself and never going below period 1.
func (c Config) PeriodsBefore(current BillingPeriod, count int) []BillingPeriod {
	periods := make([]BillingPeriod, 0, count)
	for n := current.Number - 1; n >= 1 && len(periods) < count; n-- {
		periods = append(periods, c.PeriodByNumber(n))
	}
	return periods
}

package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - The calculation period of the engine
// =============================================================================

// Month identifies one calendar month. Every salary record, attendance
// aggregate, and KPI occurrence count is scoped to exactly one Month.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month containing t (in UTC).
func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

// CurrentMonth returns the month containing the current time.
func CurrentMonth() Month { return MonthOf(time.Now()) }

// Start returns the first instant of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last instant of the month (exclusive upper bound is
// Next().Start()).
func (m Month) End() time.Time {
	return m.Next().Start().Add(-time.Nanosecond)
}

// Contains reports whether t falls within the month.
func (m Month) Contains(t time.Time) bool {
	u := t.UTC()
	return u.Year() == m.Year && u.Month() == m.Month
}

func (m Month) Next() Month     { return MonthOf(m.Start().AddDate(0, 1, 0)) }
func (m Month) Previous() Month { return MonthOf(m.Start().AddDate(0, -1, 0)) }

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) Equal(o Month) bool { return m.Year == o.Year && m.Month == o.Month }

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// String formats as "2006-01", the canonical persisted form.
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// ParseMonth parses the canonical "2006-01" form.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// TenureMonths returns the number of whole months between the join month and
// the evaluation month. Returns 0 when asOf precedes joined.
func TenureMonths(joined, asOf Month) int {
	if asOf.Before(joined) {
		return 0
	}
	return (asOf.Year-joined.Year)*12 + int(asOf.Month) - int(joined.Month)
}

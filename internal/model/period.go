package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Period is a fixed display window for the time-series query layer.
type Period string

const (
	Period3Months Period = "3m"
	Period6Months Period = "6m"
	PeriodYear    Period = "1y"
	PeriodAll     Period = "all"
)

// ParsePeriod converts a user-supplied period string.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case Period3Months, Period6Months, PeriodYear, PeriodAll:
		return Period(s), nil
	}
	return "", eris.Errorf("unknown period %q (want 3m, 6m, 1y or all)", s)
}

// Start returns the window start boundary for a period anchored at now.
// The second return value is false for the all-time period, which has no
// lower boundary.
func (p Period) Start(now time.Time) (time.Time, bool) {
	switch p {
	case Period3Months:
		return now.AddDate(0, -3, 0), true
	case Period6Months:
		return now.AddDate(0, -6, 0), true
	case PeriodYear:
		return now.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

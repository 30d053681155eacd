// Package period resolves calendar-month costing periods.
//
// A period runs from the first instant of a month to the last nanosecond of
// that month, both inclusive, evaluated in a fixed location.
package period

import (
	"fmt"
	"time"

	"carmen/internal/core/apperror"
)

// Month is a calendar-month costing period.
type Month struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StartOfMonth returns the first instant of t's month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// EndOfMonth returns the last nanosecond of t's month in loc.
func EndOfMonth(t time.Time, loc *time.Location) time.Time {
	return StartOfMonth(t, loc).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// MonthOf returns the month enclosing t.
func MonthOf(t time.Time, loc *time.Location) Month {
	return Month{Start: StartOfMonth(t, loc), End: EndOfMonth(t, loc)}
}

// New validates start/end against month boundaries and returns the period.
// Both bounds must come from StartOfMonth/EndOfMonth of the same month.
// An end given as midnight of the last day is accepted as date-only input.
func New(start, end time.Time, loc *time.Location) (Month, error) {
	if end.Before(start) {
		return Month{}, apperror.NewInvalidArgument("period start must not be after period end").
			WithDetail("period_start", start).
			WithDetail("period_end", end)
	}
	m := MonthOf(start, loc)
	if !start.Equal(m.Start) {
		return Month{}, apperror.NewInvalidArgument("period start must be the first instant of a month").
			WithDetail("period_start", start)
	}
	lastDay := time.Date(m.End.Year(), m.End.Month(), m.End.Day(), 0, 0, 0, 0, m.End.Location())
	if !end.Equal(m.End) && !end.Equal(lastDay) {
		return Month{}, apperror.NewInvalidArgument("period end must be the end of the starting month").
			WithDetail("period_start", start).
			WithDetail("period_end", end)
	}
	return m, nil
}

// Contains reports whether t falls inside the period (inclusive).
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.Start) && !t.After(m.End)
}

// IsOpen reports whether the period is still accruing at now.
// Future months count as open.
func (m Month) IsOpen(now time.Time) bool {
	return !now.After(m.End)
}

// Key returns the canonical "YYYY-MM" identifier.
func (m Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Start.Year(), int(m.Start.Month()))
}

// Previous returns the month before m.
func (m Month) Previous() Month {
	return MonthOf(m.Start.Add(-time.Nanosecond), m.Start.Location())
}

// String implements fmt.Stringer.
func (m Month) String() string {
	return m.Key()
}

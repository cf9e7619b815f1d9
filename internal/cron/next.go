package cron

import (
	"errors"
	"time"
)

// ErrUnsatisfiable is returned by Next when no matching instant exists within
// the search horizon (e.g. day 31 in February only).
var ErrUnsatisfiable = errors.New("cron expression is not satisfiable within search horizon")

// One leap year of minutes. Almost every satisfiable combination of
// month/day/weekday repeats within a year; the exception is a Feb-29
// schedule queried after the leap day, which is reported unsatisfiable
// rather than searched years ahead.
const maxSearchMinutes = 366 * 24 * 60

// Next returns the earliest instant strictly after from whose minute, hour,
// day-of-month, month and weekday are all members of the expression's sets.
// The search is minute-granular: seconds of from are truncated and the
// candidate starts at the following minute.
func (e *Expression) Next(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < maxSearchMinutes; i++ {
		if e.matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, ErrUnsatisfiable
}

func (e *Expression) matches(t time.Time) bool {
	// time.Weekday numbers Sunday as 0, same as the cron convention,
	// so no renumbering is needed here.
	return e.Minute.Contains(t.Minute()) &&
		e.Hour.Contains(t.Hour()) &&
		e.Day.Contains(t.Day()) &&
		e.Month.Contains(int(t.Month())) &&
		e.Weekday.Contains(int(t.Weekday()))
}

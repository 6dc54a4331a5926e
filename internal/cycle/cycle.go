// Package cycle maps calendar dates onto billing cycles. A cycle runs from the
// 13th of one month through the 12th of the next, both days inclusive.
package cycle

import "time"

const (
	StartDay = 13
	EndDay   = 12

	dateLayout  = "2006-01-02"
	shortLayout = "Jan 02"
	longLayout  = "Jan 02, 2006"
)

const day = 24 * time.Hour

// Cycle is an inclusive [Start, End] date range. Both bounds are midnight UTC.
type Cycle struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping the calendar day as seen in t's
// own location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today is the calendar day of now.
func Today(now time.Time) time.Time {
	return Truncate(now)
}

// For returns the cycle enclosing d.
//
// Boundaries are built from (year, month±1, fixed day) rather than AddDate so
// that month arithmetic never clamps or spills into the following month.
func For(d time.Time) Cycle {
	y, m, dd := d.Date()
	if dd < StartDay {
		return Cycle{
			Start: Date(y, m-1, StartDay),
			End:   Date(y, m, EndDay),
		}
	}
	return Cycle{
		Start: Date(y, m, StartDay),
		End:   Date(y, m+1, EndDay),
	}
}

// Current returns the cycle enclosing now.
func Current(now time.Time) Cycle {
	return For(Today(now))
}

// Days is the inclusive length of the cycle (28 to 31).
func (c Cycle) Days() int {
	return daysBetween(c.Start, c.End) + 1
}

// Contains reports whether the calendar day of d falls inside the cycle.
func (c Cycle) Contains(d time.Time) bool {
	d = Truncate(d)
	return !d.Before(c.Start) && !d.After(c.End)
}

// DayOffset is the 1-indexed position of d within the cycle: Start is day 1.
func (c Cycle) DayOffset(d time.Time) int {
	return daysBetween(c.Start, Truncate(d)) + 1
}

// Next returns the cycle immediately after c.
func (c Cycle) Next() Cycle {
	return For(c.End.Add(day))
}

// Prev returns the cycle immediately before c.
func (c Cycle) Prev() Cycle {
	return For(c.Start.Add(-day))
}

// Label renders the cycle as "Mar 13 - Apr 12, 2025".
func (c Cycle) Label() string {
	return c.Start.Format(shortLayout) + " - " + c.End.Format(longLayout)
}

// Key is a stable identifier for the cycle, its start date as YYYY-MM-DD.
func (c Cycle) Key() string {
	return c.Start.Format(dateLayout)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / day)
}

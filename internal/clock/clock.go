package clock

import "time"

// Clock abstracts time so verification tests can cross calendar days
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// New returns the wall clock
func New() Clock { return realClock{} }

// SameCalendarDay reports whether a and b fall on the same calendar day in
// the given IANA timezone. An unknown timezone falls back to UTC.
func SameCalendarDay(timezone string, a, b time.Time) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay returns midnight of the day containing t in the given timezone
func StartOfDay(timezone string, t time.Time) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

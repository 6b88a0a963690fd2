package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// Clock abstracts time.Now() to allow deterministic testing.
// Feed windows and UI defaults are anchored on Clock.Now().
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Today returns the calendar date of now as seen from loc.
// It is the only place where an instant becomes a calendar date.
func Today(c Clock, loc *time.Location) civil.Date {
	return civil.DateOf(c.Now().In(loc))
}

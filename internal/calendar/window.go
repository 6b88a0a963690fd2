package calendar

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/teambition/rrule-go"
	"github.com/tartampluch/famcal/internal/config"
)

// Window is an inclusive range of calendar dates. The UI and the feed both
// expand through a Window so they walk dates the same way.
type Window struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// NewWindow validates from <= to.
func NewWindow(from, to civil.Date) (Window, error) {
	if to.Before(from) {
		return Window{}, fmt.Errorf("%s: %s < %s", config.ErrWindowOrder, to, from)
	}
	return Window{From: from, To: to}, nil
}

// FeedWindow is today .. today + 1 year.
func FeedWindow(today civil.Date) Window {
	end := today.In(time.UTC).AddDate(config.FeedHorizonYears, 0, 0)
	return Window{From: today, To: civil.DateOf(end)}
}

// WeekWindow is the 7-day week containing day, starting on weekStart.
func WeekWindow(day civil.Date, weekStart time.Weekday) Window {
	offset := (int(weekday(day)) - int(weekStart) + config.DaysPerWeek) % config.DaysPerWeek
	from := day.AddDays(-offset)
	return Window{From: from, To: from.AddDays(config.DaysPerWeek - 1)}
}

// MonthWindow is the calendar month containing day.
func MonthWindow(day civil.Date) Window {
	from := civil.Date{Year: day.Year, Month: day.Month, Day: 1}
	last := civil.DateOf(from.In(time.UTC).AddDate(0, 1, -1))
	return Window{From: from, To: last}
}

// Contains reports whether d lies inside the window.
func (w Window) Contains(d civil.Date) bool {
	return !d.Before(w.From) && !d.After(w.To)
}

// Days is the number of dates in the window.
func (w Window) Days() int {
	return w.To.DaysSince(w.From) + 1
}

// Dates lists every date of the window in order.
func (w Window) Dates() []civil.Date {
	out := make([]civil.Date, 0, w.Days())
	for d := w.From; !d.After(w.To); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Clamp intersects the window with a validity range [start, end?]. The
// second result is false when they do not overlap.
func (w Window) Clamp(start civil.Date, end *civil.Date) (Window, bool) {
	out := w
	if start.After(out.From) {
		out.From = start
	}
	if end != nil && end.Before(out.To) {
		out.To = *end
	}
	if out.To.Before(out.From) {
		return Window{}, false
	}
	return out, true
}

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Weekdays lists the dates of the window falling on wd, in order.
func (w Window) Weekdays(wd time.Weekday) ([]civil.Date, error) {
	if wd < time.Sunday || wd > time.Saturday {
		return nil, errors.New(config.ErrSlotDay)
	}
	start := w.From.In(time.UTC)
	if start.IsZero() {
		// rrule reads a zero Dtstart as "now".
		return w.walkWeekdays(wd), nil
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Wkst:      rrule.MO,
		Byweekday: []rrule.Weekday{rruleWeekdays[wd]},
		Dtstart:   start,
		Until:     w.To.In(time.UTC),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRecurrence, err)
	}

	times := r.All()
	out := make([]civil.Date, 0, len(times))
	for _, t := range times {
		out = append(out, civil.DateOf(t.In(time.UTC)))
	}
	return out, nil
}

func (w Window) walkWeekdays(wd time.Weekday) []civil.Date {
	var out []civil.Date
	for d := w.From; !d.After(w.To); d = d.AddDays(1) {
		if weekday(d) == wd {
			out = append(out, d)
		}
	}
	return out
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

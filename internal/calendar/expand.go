package calendar

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/tartampluch/famcal/internal/config"
)

// SlotIssue records a data-quality problem found during expansion.
// SlotIndex is -1 when the whole event was unusable.
type SlotIssue struct {
	EventID   string `json:"eventId"`
	SlotIndex int    `json:"slotIndex"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

func (i SlotIssue) Error() string {
	if i.SlotIndex < 0 {
		return fmt.Sprintf("event %s: %v", i.EventID, i.Err)
	}
	return fmt.Sprintf("event %s slot %d: %v", i.EventID, i.SlotIndex, i.Err)
}

func (i SlotIssue) Unwrap() error { return i.Err }

// Expansion is the output of Expand: the delivered occurrences plus the
// problems that were skipped over.
type Expansion struct {
	Occurrences []Occurrence `json:"occurrences"`
	Issues      []SlotIssue  `json:"issues,omitempty"`
}

// Expand turns events and their overrides into the concrete occurrences
// falling inside win. Instants are built in loc.
//
// Output is ordered by date; occurrences on the same date keep event input
// order, then slot declaration order. Cancelled occurrences are not
// delivered. A malformed slot is skipped and reported without affecting
// the other slots or events.
func Expand(events []Event, overrides []Override, win Window, loc *time.Location) Expansion {
	if loc == nil {
		loc = time.UTC
	}
	byKey := indexOverrides(overrides)

	var out Expansion
	for _, ev := range events {
		occ, issues := expandEvent(ev, byKey, win, loc)
		out.Occurrences = append(out.Occurrences, occ...)
		out.Issues = append(out.Issues, issues...)
	}

	sort.SliceStable(out.Occurrences, func(i, j int) bool {
		return out.Occurrences[i].Date.Before(out.Occurrences[j].Date)
	})

	for _, issue := range out.Issues {
		slog.Warn(config.MsgSlotSkipped,
			config.LogKeyComponent, config.CompExpand,
			config.LogKeyEvent, issue.EventID,
			config.LogKeySlot, issue.SlotIndex,
			config.LogKeyError, issue.Err,
		)
	}
	slog.Debug(config.MsgExpandDone,
		config.LogKeyComponent, config.CompExpand,
		config.LogKeyCount, len(out.Occurrences),
		config.LogKeyIssues, len(out.Issues),
	)
	return out
}

func expandEvent(ev Event, byKey map[overrideKey]Override, win Window, loc *time.Location) ([]Occurrence, []SlotIssue) {
	if err := ev.checkDates(); err != nil {
		return nil, []SlotIssue{newIssue(ev.ID, -1, err)}
	}
	active, ok := win.Clamp(ev.StartDate, ev.EndDate)
	if !ok {
		return nil, nil
	}

	var (
		out    []Occurrence
		issues []SlotIssue
	)
	for i, slot := range ev.Slots {
		start, end, err := slot.bounds()
		if err != nil {
			issues = append(issues, newIssue(ev.ID, i, err))
			continue
		}
		dates, err := active.Weekdays(time.Weekday(slot.DayOfWeek))
		if err != nil {
			issues = append(issues, newIssue(ev.ID, i, err))
			continue
		}
		for _, date := range dates {
			var ov *Override
			if o, found := byKey[overrideKey{eventID: ev.ID, date: date}]; found {
				if o.Cancelled {
					continue
				}
				ov = &o
			}
			out = append(out, Occurrence{
				EventID:        ev.ID,
				SlotIndex:      i,
				Date:           date,
				Start:          at(date, start, loc),
				End:            at(date, end, loc),
				Title:          ev.Title,
				Category:       ev.Category,
				Location:       ev.Location,
				Participants:   ResolveParticipants(ov, ev),
				Transportation: ResolveTransportation(ov, slot, ev),
			})
		}
	}

	// Slots are walked one after the other; interleave them by date while
	// keeping declaration order for slots sharing a date.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, issues
}

func newIssue(eventID string, slot int, err error) SlotIssue {
	return SlotIssue{EventID: eventID, SlotIndex: slot, Err: err, Message: err.Error()}
}

func at(d civil.Date, t timeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.hour, t.minute, 0, 0, loc)
}

package calendar

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/tartampluch/famcal/internal/config"
)

// Category is the closed set of activity kinds.
type Category string

const (
	CategorySports    Category = "sports"
	CategoryEducation Category = "education"
	CategorySocial    Category = "social"
	CategoryChores    Category = "chores"
	CategoryHealth    Category = "health"
	CategoryOther     Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySports, CategoryEducation, CategorySocial, CategoryChores, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

// Method is how a child gets to or from an activity.
type Method string

const (
	MethodCar  Method = "car"
	MethodBus  Method = "bus"
	MethodWalk Method = "walk"
	MethodBike Method = "bike"
)

// Valid reports whether m is empty or a known method.
func (m Method) Valid() bool {
	switch m {
	case "", MethodCar, MethodBus, MethodWalk, MethodBike:
		return true
	}
	return false
}

// Leg is one direction of transportation.
type Leg struct {
	Method      Method    `json:"method,omitempty"`
	Responsible MemberRef `json:"responsible,omitempty"`
}

// Transportation holds the optional drop-off and pick-up legs.
type Transportation struct {
	DropOff *Leg `json:"dropOff,omitempty"`
	PickUp  *Leg `json:"pickUp,omitempty"`
}

// IsEmpty reports whether t carries no usable leg.
func (t *Transportation) IsEmpty() bool {
	return t == nil || (legEmpty(t.DropOff) && legEmpty(t.PickUp))
}

// Involves reports whether member is responsible for either leg.
func (t *Transportation) Involves(member MemberRef) bool {
	if t == nil || member == "" {
		return false
	}
	if t.DropOff != nil && t.DropOff.Responsible == member {
		return true
	}
	return t.PickUp != nil && t.PickUp.Responsible == member
}

func (t *Transportation) validate() error {
	if t == nil {
		return nil
	}
	for _, l := range []*Leg{t.DropOff, t.PickUp} {
		if l != nil && !l.Method.Valid() {
			return fmt.Errorf("%s: %q", config.ErrMethod, l.Method)
		}
	}
	return nil
}

func legEmpty(l *Leg) bool {
	return l == nil || (l.Method == "" && l.Responsible == "")
}

// Slot is a weekly time-of-day rule.
type Slot struct {
	DayOfWeek      int             `json:"dayOfWeek"` // 0 = Sunday
	StartTime      string          `json:"startTime"` // HH:MM
	EndTime        string          `json:"endTime"`   // HH:MM
	Transportation *Transportation `json:"transportation,omitempty"`
}

// timeOfDay is a parsed HH:MM value.
type timeOfDay struct {
	hour, minute int
}

func (t timeOfDay) minutes() int { return t.hour*60 + t.minute }

// bounds parses and checks the slot. Slots never cross midnight.
func (s Slot) bounds() (timeOfDay, timeOfDay, error) {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return timeOfDay{}, timeOfDay{}, fmt.Errorf("%s: %d", config.ErrSlotDay, s.DayOfWeek)
	}
	start, err := parseTimeOfDay(s.StartTime)
	if err != nil {
		return timeOfDay{}, timeOfDay{}, err
	}
	end, err := parseTimeOfDay(s.EndTime)
	if err != nil {
		return timeOfDay{}, timeOfDay{}, err
	}
	if start.minutes() >= end.minutes() {
		return timeOfDay{}, timeOfDay{}, fmt.Errorf("%s: %s-%s", config.ErrSlotOrder, s.StartTime, s.EndTime)
	}
	return start, end, nil
}

// Validate checks the slot without expanding it.
func (s Slot) Validate() error {
	_, _, err := s.bounds()
	return err
}

func parseTimeOfDay(v string) (timeOfDay, error) {
	t, err := time.Parse(config.TimeOfDayLayout, v)
	if err != nil {
		return timeOfDay{}, fmt.Errorf("%s: %q", config.ErrSlotTime, v)
	}
	return timeOfDay{hour: t.Hour(), minute: t.Minute()}, nil
}

// Event is the static description of a recurring activity.
type Event struct {
	ID             string          `json:"id,omitempty"`
	HouseholdID    string          `json:"householdId,omitempty"`
	Title          string          `json:"title"`
	Category       Category        `json:"category"`
	Participants   []MemberRef     `json:"participants"`
	Slots          []Slot          `json:"slots"`
	StartDate      civil.Date      `json:"startDate"`
	EndDate        *civil.Date     `json:"endDate,omitempty"`
	Transportation *Transportation `json:"transportation,omitempty"`
	Location       string          `json:"location,omitempty"`
	CreatedAt      time.Time       `json:"createdAt,omitzero"`
	UpdatedAt      time.Time       `json:"updatedAt,omitzero"`
}

// Validate checks the record-level invariants. Slot problems are reported
// as well so an import can reject the record as a whole; expansion instead
// skips bad slots one by one.
func (e Event) Validate() error {
	var errs []error
	if e.Title == "" {
		errs = append(errs, errors.New(config.ErrEventTitle))
	}
	if !e.Category.Valid() {
		errs = append(errs, fmt.Errorf("%s: %q", config.ErrEventCategory, e.Category))
	}
	if e.StartDate == (civil.Date{}) {
		errs = append(errs, errors.New(config.ErrEventStart))
	}
	if err := e.checkDates(); err != nil {
		errs = append(errs, err)
	}
	if len(e.Slots) == 0 {
		errs = append(errs, errors.New(config.ErrEventNoSlots))
	}
	if err := e.Transportation.validate(); err != nil {
		errs = append(errs, err)
	}
	for i, s := range e.Slots {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", i, err))
		}
		if err := s.Transportation.validate(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (e Event) checkDates() error {
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%s: %s < %s", config.ErrEventDates, e.EndDate, e.StartDate)
	}
	return nil
}

// HasParticipant reports whether m takes part in the event.
func (e Event) HasParticipant(m MemberRef) bool {
	for _, p := range e.Participants {
		if p == m {
			return true
		}
	}
	return false
}

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"gorm.io/datatypes"
)

// HouseholdRow is a household and its calendar preferences.
type HouseholdRow struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(120);not null"`
	Timezone  string `gorm:"type:varchar(64);not null;default:'UTC'"`
	WeekStart string `gorm:"type:varchar(10);not null;default:'monday'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (HouseholdRow) TableName() string { return "households" }

// EventRow stores a recurring event. Slots, participants and
// transportation are JSON documents; member references inside them may use
// any accepted spelling and are canonicalised on read.
type EventRow struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	HouseholdID    string          `gorm:"type:uuid;not null;index"`
	Title          string          `gorm:"type:varchar(200);not null"`
	Category       string          `gorm:"type:varchar(20);not null"`
	Participants   datatypes.JSON  `gorm:"type:jsonb"`
	Slots          datatypes.JSON  `gorm:"type:jsonb;not null"`
	StartDate      datatypes.Date  `gorm:"type:date;not null;index"`
	EndDate        *datatypes.Date `gorm:"type:date"`
	Transportation datatypes.JSON  `gorm:"type:jsonb"`
	Location       string          `gorm:"type:varchar(200)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (EventRow) TableName() string { return "events" }

// OverrideRow is a per-date exception. (EventID, Date) is unique.
type OverrideRow struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	HouseholdID    string         `gorm:"type:uuid;not null;index"`
	EventID        string         `gorm:"type:uuid;not null;uniqueIndex:idx_override_event_date"`
	Date           datatypes.Date `gorm:"type:date;not null;uniqueIndex:idx_override_event_date"`
	Cancelled      bool           `gorm:"not null;default:false"`
	Transportation datatypes.JSON `gorm:"type:jsonb"`
	Participants   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (OverrideRow) TableName() string { return "event_overrides" }

// FeedRow maps a secret token to a household feed, optionally filtered to
// one member's driving duties.
type FeedRow struct {
	Token       string `gorm:"type:varchar(64);primaryKey"`
	HouseholdID string `gorm:"type:uuid;not null;index"`
	Name        string `gorm:"type:varchar(120);not null"`
	Member      string `gorm:"type:varchar(80)"`
	CreatedAt   time.Time
}

func (FeedRow) TableName() string { return "feeds" }

// MemberRow is a display name for a member reference.
type MemberRow struct {
	HouseholdID string `gorm:"type:uuid;primaryKey"`
	Ref         string `gorm:"type:varchar(80);primaryKey"`
	Name        string `gorm:"type:varchar(120);not null"`
	UpdatedAt   time.Time
}

func (MemberRow) TableName() string { return "members" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&HouseholdRow{}, &EventRow{}, &OverrideRow{}, &FeedRow{}, &MemberRow{}}
}

// -----------------------------------------------------------------------------
// Domain values
// -----------------------------------------------------------------------------

// Household is the domain view of a HouseholdRow.
type Household struct {
	ID        string
	Name      string
	Timezone  string
	WeekStart time.Weekday
}

// Location loads the household time zone, falling back to UTC for an
// unknown name.
func (h Household) Location() *time.Location {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Feed is the domain view of a FeedRow.
type Feed struct {
	Token       string
	HouseholdID string
	Name        string
	Member      calendar.MemberRef
}

func (r HouseholdRow) household() Household {
	ws := time.Monday
	if r.WeekStart == config.WeekStartSunday {
		ws = time.Sunday
	}
	return Household{ID: r.ID, Name: r.Name, Timezone: r.Timezone, WeekStart: ws}
}

func (r FeedRow) feed() (Feed, error) {
	f := Feed{Token: r.Token, HouseholdID: r.HouseholdID, Name: r.Name}
	if r.Member == "" {
		return f, nil
	}
	ref, err := calendar.ParseMemberRef(r.Member)
	if err != nil {
		return Feed{}, fmt.Errorf("%s: feed %s: %w", config.ErrRecordDecode, r.Token, err)
	}
	f.Member = ref
	return f, nil
}

// -----------------------------------------------------------------------------
// Conversions
// -----------------------------------------------------------------------------

// NewEventRow encodes ev for storage.
func NewEventRow(ev calendar.Event) (EventRow, error) {
	row := EventRow{
		ID:          ev.ID,
		HouseholdID: ev.HouseholdID,
		Title:       ev.Title,
		Category:    string(ev.Category),
		StartDate:   toDate(ev.StartDate),
		Location:    ev.Location,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
	if ev.EndDate != nil {
		end := toDate(*ev.EndDate)
		row.EndDate = &end
	}

	var err error
	if row.Slots, err = encode(ev.Slots); err != nil {
		return EventRow{}, err
	}
	if row.Participants, err = encode(ev.Participants); err != nil {
		return EventRow{}, err
	}
	if !ev.Transportation.IsEmpty() {
		if row.Transportation, err = encode(ev.Transportation); err != nil {
			return EventRow{}, err
		}
	}
	return row, nil
}

// Event decodes the row. Legacy member spellings become canonical refs.
func (r EventRow) Event() (calendar.Event, error) {
	ev := calendar.Event{
		ID:          r.ID,
		HouseholdID: r.HouseholdID,
		Title:       r.Title,
		Category:    calendar.Category(r.Category),
		StartDate:   fromDate(r.StartDate),
		Location:    r.Location,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.EndDate != nil {
		end := fromDate(*r.EndDate)
		ev.EndDate = &end
	}
	if err := decode(r.Slots, &ev.Slots); err != nil {
		return calendar.Event{}, fmt.Errorf("%s: event %s slots: %w", config.ErrRecordDecode, r.ID, err)
	}
	if err := decode(r.Participants, &ev.Participants); err != nil {
		return calendar.Event{}, fmt.Errorf("%s: event %s participants: %w", config.ErrRecordDecode, r.ID, err)
	}
	if err := decode(r.Transportation, &ev.Transportation); err != nil {
		return calendar.Event{}, fmt.Errorf("%s: event %s transportation: %w", config.ErrRecordDecode, r.ID, err)
	}
	return ev, nil
}

// NewOverrideRow encodes ov for storage under household.
func NewOverrideRow(household string, ov calendar.Override) (OverrideRow, error) {
	row := OverrideRow{
		ID:          ov.ID,
		HouseholdID: household,
		EventID:     ov.EventID,
		Date:        toDate(ov.Date),
		Cancelled:   ov.Cancelled,
	}
	var err error
	if !ov.Transportation.IsEmpty() {
		if row.Transportation, err = encode(ov.Transportation); err != nil {
			return OverrideRow{}, err
		}
	}
	if len(ov.Participants) > 0 {
		if row.Participants, err = encode(ov.Participants); err != nil {
			return OverrideRow{}, err
		}
	}
	return row, nil
}

// Override decodes the row.
func (r OverrideRow) Override() (calendar.Override, error) {
	ov := calendar.Override{
		ID:        r.ID,
		EventID:   r.EventID,
		Date:      fromDate(r.Date),
		Cancelled: r.Cancelled,
	}
	if err := decode(r.Transportation, &ov.Transportation); err != nil {
		return calendar.Override{}, fmt.Errorf("%s: override %s: %w", config.ErrRecordDecode, r.ID, err)
	}
	if err := decode(r.Participants, &ov.Participants); err != nil {
		return calendar.Override{}, fmt.Errorf("%s: override %s: %w", config.ErrRecordDecode, r.ID, err)
	}
	return ov, nil
}

func encode(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrDBWrite, err)
	}
	return datatypes.JSON(b), nil
}

// decode leaves v untouched for NULL or JSON null.
func decode(raw datatypes.JSON, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func toDate(d civil.Date) datatypes.Date {
	return datatypes.Date(d.In(time.UTC))
}

// fromDate reads the calendar fields as stored, without zone conversion.
func fromDate(d datatypes.Date) civil.Date {
	return civil.DateOf(time.Time(d))
}

// Package store persists households, events, overrides, feeds and members
// in PostgreSQL through GORM. Rows are converted to calendar values at this
// boundary; nothing above it sees a legacy member spelling.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/reconcile"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned for an unknown household, event or feed token.
var ErrNotFound = errors.New("not found")

// RecordSource reads a household's calendar.
type RecordSource interface {
	Household(ctx context.Context, id string) (Household, error)
	Events(ctx context.Context, household string) ([]calendar.Event, error)
	EventsInWindow(ctx context.Context, household string, win calendar.Window) ([]calendar.Event, error)
	Overrides(ctx context.Context, household string, win calendar.Window) ([]calendar.Override, error)
	Members(ctx context.Context, household string) ([]calendar.Member, error)
}

// FeedStore resolves feed tokens.
type FeedStore interface {
	Feed(ctx context.Context, token string) (Feed, error)
	Feeds(ctx context.Context) ([]Feed, error)
}

// EventWriter applies import plans and override edits.
type EventWriter interface {
	ApplyPlan(ctx context.Context, household string, plan reconcile.Plan) error
	PutOverride(ctx context.Context, household string, ov calendar.Override) error
	DeleteOverride(ctx context.Context, household, eventID string, date civil.Date) error
}

// GormStore implements every store interface on one database handle.
type GormStore struct {
	db *gorm.DB
}

var (
	_ RecordSource = (*GormStore)(nil)
	_ FeedStore    = (*GormStore)(nil)
	_ EventWriter  = (*GormStore)(nil)
)

// Open connects to PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrDBOpen, err)
	}
	return db, nil
}

// New wraps an open database.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates every table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("%s: %w", config.ErrDBMigrate, err)
	}
	slog.Info(config.MsgMigrated, config.LogKeyComponent, config.CompStore)
	return nil
}

func (s *GormStore) Household(ctx context.Context, id string) (Household, error) {
	var row HouseholdRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return Household{}, queryErr(err)
	}
	return row.household(), nil
}

// Events returns every event of the household, oldest first.
func (s *GormStore) Events(ctx context.Context, household string) ([]calendar.Event, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("household_id = ?", household).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, queryErr(err)
	}
	return decodeEvents(rows), nil
}

// EventsInWindow returns the events whose validity overlaps win.
func (s *GormStore) EventsInWindow(ctx context.Context, household string, win calendar.Window) ([]calendar.Event, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("household_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)",
			household, toDate(win.To), toDate(win.From)).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, queryErr(err)
	}
	return decodeEvents(rows), nil
}

func (s *GormStore) Overrides(ctx context.Context, household string, win calendar.Window) ([]calendar.Override, error) {
	var rows []OverrideRow
	err := s.db.WithContext(ctx).
		Where("household_id = ? AND date BETWEEN ? AND ?", household, toDate(win.From), toDate(win.To)).
		Order("date, event_id").
		Find(&rows).Error
	if err != nil {
		return nil, queryErr(err)
	}

	out := make([]calendar.Override, 0, len(rows))
	for _, r := range rows {
		ov, err := r.Override()
		if err != nil {
			logSkipped(r.EventID, err)
			continue
		}
		out = append(out, ov)
	}
	return out, nil
}

func (s *GormStore) Members(ctx context.Context, household string) ([]calendar.Member, error) {
	var rows []MemberRow
	if err := s.db.WithContext(ctx).Where("household_id = ?", household).Order("name").Find(&rows).Error; err != nil {
		return nil, queryErr(err)
	}
	out := make([]calendar.Member, 0, len(rows))
	for _, r := range rows {
		ref, err := calendar.ParseMemberRef(r.Ref)
		if err != nil {
			continue
		}
		out = append(out, calendar.Member{Ref: ref, Name: r.Name})
	}
	return out, nil
}

// UpsertMembers inserts members or renames existing ones.
func (s *GormStore) UpsertMembers(ctx context.Context, household string, members []calendar.Member) error {
	if len(members) == 0 {
		return nil
	}
	rows := make([]MemberRow, 0, len(members))
	for _, m := range members {
		rows = append(rows, MemberRow{HouseholdID: household, Ref: string(m.Ref), Name: m.Name})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "household_id"}, {Name: "ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrDBWrite, err)
	}
	return nil
}

func (s *GormStore) Feed(ctx context.Context, token string) (Feed, error) {
	var row FeedRow
	if err := s.db.WithContext(ctx).First(&row, "token = ?", token).Error; err != nil {
		return Feed{}, queryErr(err)
	}
	return row.feed()
}

func (s *GormStore) Feeds(ctx context.Context) ([]Feed, error) {
	var rows []FeedRow
	if err := s.db.WithContext(ctx).Order("token").Find(&rows).Error; err != nil {
		return nil, queryErr(err)
	}
	out := make([]Feed, 0, len(rows))
	for _, r := range rows {
		f, err := r.feed()
		if err != nil {
			slog.Warn(config.MsgFeedSkipped,
				config.LogKeyComponent, config.CompStore,
				config.LogKeyError, err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// ApplyPlan performs an import commit in one transaction. Created events
// get fresh ids; updates must target an event of the same household.
func (s *GormStore) ApplyPlan(ctx context.Context, household string, plan reconcile.Plan) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, ev := range plan.Creates {
			ev.ID = uuid.NewString()
			ev.HouseholdID = household
			ev.CreatedAt, ev.UpdatedAt = now, now
			row, err := NewEventRow(ev)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("%s: %w", config.ErrDBWrite, err)
			}
		}

		for _, up := range plan.Updates {
			ev := up.Event
			ev.HouseholdID = household
			ev.UpdatedAt = now
			row, err := NewEventRow(ev)
			if err != nil {
				return err
			}
			res := tx.Model(&EventRow{}).
				Where("id = ? AND household_id = ?", up.ExistingID, household).
				Select("*").
				Omit("id", "household_id", "created_at").
				Updates(&row)
			if res.Error != nil {
				return fmt.Errorf("%s: %w", config.ErrDBWrite, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("event %s: %w", up.ExistingID, ErrNotFound)
			}
		}
		return nil
	})
}

// PutOverride creates or replaces the override for (event, date). An empty
// override deletes the stored one instead.
func (s *GormStore) PutOverride(ctx context.Context, household string, ov calendar.Override) error {
	if ov.IsEmpty() {
		return s.DeleteOverride(ctx, household, ov.EventID, ov.Date)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&EventRow{}).Where("id = ? AND household_id = ?", ov.EventID, household).Count(&count).Error; err != nil {
		return queryErr(err)
	}
	if count == 0 {
		return fmt.Errorf("event %s: %w", ov.EventID, ErrNotFound)
	}

	if ov.ID == "" {
		ov.ID = uuid.NewString()
	}
	row, err := NewOverrideRow(household, ov)
	if err != nil {
		return err
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"cancelled", "transportation", "participants", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrDBWrite, err)
	}
	return nil
}

// DeleteOverride restores the occurrence to its event defaults. Deleting a
// missing override is not an error.
func (s *GormStore) DeleteOverride(ctx context.Context, household, eventID string, date civil.Date) error {
	err := s.db.WithContext(ctx).
		Where("household_id = ? AND event_id = ? AND date = ?", household, eventID, toDate(date)).
		Delete(&OverrideRow{}).Error
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrDBWrite, err)
	}
	return nil
}

// decodeEvents drops rows that cannot be decoded; they are data-quality
// problems of one record and must not hide the rest.
func decodeEvents(rows []EventRow) []calendar.Event {
	out := make([]calendar.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.Event()
		if err != nil {
			logSkipped(r.ID, err)
			continue
		}
		out = append(out, ev)
	}
	return out
}

func logSkipped(id string, err error) {
	slog.Warn(config.MsgEventSkipped,
		config.LogKeyComponent, config.CompStore,
		config.LogKeyEvent, id,
		config.LogKeyError, err,
	)
}

func queryErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", config.ErrDBQuery, err)
}

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/reconcile"
)

var (
	kid    = calendar.LegacyRole("child1")
	sister = calendar.LegacyRole("child2")
	mom    = calendar.LegacyRole("parent1")

	day = civil.Date{Year: 2025, Month: time.March, Day: 3}
)

func event(id, title string, start civil.Date, who ...calendar.MemberRef) calendar.Event {
	return calendar.Event{
		ID:           id,
		HouseholdID:  "house-1",
		Title:        title,
		Category:     calendar.CategorySports,
		Participants: who,
		Slots:        []calendar.Slot{{DayOfWeek: 1, StartTime: "17:00", EndTime: "18:00"}},
		StartDate:    start,
	}
}

func classify(t *testing.T, candidates, existing []calendar.Event) reconcile.Result {
	t.Helper()
	res, err := (&reconcile.Engine{Workers: 3}).Classify(context.Background(), candidates, existing)
	require.NoError(t, err)
	require.Len(t, res.Items, len(candidates))
	return res
}

func TestClassify_TypoIsFuzzyConflict(t *testing.T) {
	existing := []calendar.Event{event("e1", "Soccer Practice", day, kid)}
	candidates := []calendar.Event{event("", "Socer Practice", day, kid)}

	res := classify(t, candidates, existing)
	c := res.Items[0]

	require.Equal(t, reconcile.KindFuzzyConflict, c.Kind)
	require.NotNil(t, c.Match)
	assert.Equal(t, "e1", c.Match.Existing.ID)
	assert.InDelta(t, 40*(1-1.0/15), c.Match.Breakdown.Title, 1e-9)
	assert.Equal(t, 30.0, c.Match.Breakdown.Date)
	assert.Equal(t, 30.0, c.Match.Breakdown.Participants)
	assert.InDelta(t, 97.33, c.Match.Score, 0.01)
	assert.Equal(t, []string{"title 93% similar", "same start date", "1 of 1 participants shared"}, c.Match.Reasons)
}

func TestClassify_IDConflictStopsScoring(t *testing.T) {
	existing := []calendar.Event{
		event("e1", "Piano", day.AddDays(30)),
		event("e2", "Soccer Practice", day, kid),
	}
	// Same id as e1 but a perfect fuzzy match for e2: the id wins.
	candidates := []calendar.Event{event("e1", "Soccer Practice", day, kid)}

	c := classify(t, candidates, existing).Items[0]
	assert.Equal(t, reconcile.KindIDConflict, c.Kind)
	assert.Equal(t, "e1", c.Match.Existing.ID)
	assert.Equal(t, config.ReasonSameID, c.Match.Reasons[0])
}

func TestClassify_Invalid(t *testing.T) {
	noTitle := event("", "", day)
	noDate := event("", "Swim", civil.Date{})
	badCategory := event("", "Swim", day)
	badCategory.Category = "karaoke"

	res := classify(t, []calendar.Event{noTitle, noDate, badCategory, event("", "Swim", day)}, nil)

	assert.Equal(t, 3, res.SkippedInvalid())
	assert.Contains(t, res.Items[0].Invalid, config.ErrEventTitle)
	assert.Contains(t, res.Items[1].Invalid, config.ErrEventStart)
	assert.Contains(t, res.Items[2].Invalid, config.ErrEventCategory)
	assert.Equal(t, reconcile.KindClean, res.Items[3].Kind)
	assert.Empty(t, res.Conflicts(), "Invalid records are not conflicts")
}

func TestClassify_BelowThresholdIsClean(t *testing.T) {
	// Unrelated titles, same day (30), identical participants (30): 60 < 70.
	existing := []calendar.Event{event("e1", "Chess Club", day, kid)}
	c := classify(t, []calendar.Event{event("", "Swimming", day, kid)}, existing).Items[0]
	assert.Equal(t, reconcile.KindClean, c.Kind)
	assert.Nil(t, c.Match)
}

func TestClassify_TiesGoToEarliestExisting(t *testing.T) {
	existing := []calendar.Event{
		event("first", "Soccer Practice", day, kid),
		event("second", "Soccer Practice", day, kid),
	}
	c := classify(t, []calendar.Event{event("", "Soccer Practice", day, kid)}, existing).Items[0]
	assert.Equal(t, "first", c.Match.Existing.ID)
	assert.Equal(t, 100.0, c.Match.Score)
}

func TestClassify_OrderIndependent(t *testing.T) {
	existing := []calendar.Event{
		event("e1", "Soccer Practice", day, kid),
		event("e2", "Piano Lesson", day.AddDays(1), sister),
		event("e3", "Swim Team", day.AddDays(3), kid, sister),
	}
	candidates := []calendar.Event{
		event("", "Soccer Practise", day, kid),
		event("", "Soccer practice", day.AddDays(1), kid),
		event("", "Piano Lessons", day.AddDays(1), sister),
		event("", "Swim team", day, kid, sister),
		event("", "Gardening", day),
	}

	forward := classify(t, candidates, existing)

	reversed := make([]calendar.Event, len(candidates))
	for i, c := range candidates {
		reversed[len(candidates)-1-i] = c
	}
	backward := classify(t, reversed, existing)

	for i, c := range forward.Items {
		other := backward.Items[len(candidates)-1-i]
		assert.Equal(t, c.Kind, other.Kind, "candidate %d", i)
		if c.Match != nil {
			require.NotNil(t, other.Match)
			assert.Equal(t, c.Match.Existing.ID, other.Match.Existing.ID)
			assert.Equal(t, c.Match.Score, other.Match.Score)
		}
	}

	// Two candidates may share a best match.
	assert.Equal(t, "e1", forward.Items[0].Match.Existing.ID)
	assert.Equal(t, "e1", forward.Items[1].Match.Existing.ID)
}

func TestClassify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&reconcile.Engine{}).Classify(ctx, []calendar.Event{event("", "Swim", day)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore(t *testing.T) {
	base := event("", "Soccer Practice", day, kid, sister)

	tests := []struct {
		name  string
		other calendar.Event
		want  reconcile.Breakdown
	}{
		{"identical", event("", "soccer practice ", day, sister, kid), reconcile.Breakdown{Title: 40, Date: 30, Participants: 30}},
		{"one day", event("", "Chess", day.AddDays(-1)), reconcile.Breakdown{Date: 20}},
		{"one week", event("", "Chess", day.AddDays(7)), reconcile.Breakdown{Date: 10}},
		{"eight days", event("", "Chess", day.AddDays(8)), reconcile.Breakdown{}},
		{"half overlap", event("", "Chess", day.AddDays(60), kid, mom), reconcile.Breakdown{Participants: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcile.Score(base, tt.other)
			assert.InDelta(t, tt.want.Title, got.Title, 1e-9)
			assert.Equal(t, tt.want.Date, got.Date)
			assert.InDelta(t, tt.want.Participants, got.Participants, 1e-9)

			// Symmetric in field values.
			assert.Equal(t, got, reconcile.Score(tt.other, base))
		})
	}
}

func TestScore_EmptyParticipants(t *testing.T) {
	a := event("", "Chess", day)
	assert.Zero(t, reconcile.Score(a, a).Participants, "Empty union contributes nothing")
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, reconcile.TitleSimilarity("Swim", " SWIM "))
	assert.InDelta(t, 1-1.0/15, reconcile.TitleSimilarity("Soccer Practice", "Socer Practice"), 1e-9)
	assert.InDelta(t, 1-1.0/6, reconcile.TitleSimilarity("Éveil", "éveils"), 1e-9, "Distance is counted in runes")
	assert.Zero(t, reconcile.TitleSimilarity("abc", "xyz"))
}

func TestScore_BelowTitleThreshold(t *testing.T) {
	// "Swim" vs "Swimming" is 50% similar: no title credit at all.
	b := reconcile.Score(event("", "Swim", day), event("", "Swimming", day.AddDays(40)))
	assert.Zero(t, b.Title)
}

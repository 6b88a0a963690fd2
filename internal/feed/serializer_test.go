package feed_test

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	ics "github.com/arran4/golang-ical"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/feed"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

var (
	kid = calendar.LegacyRole("child1")
	mom = calendar.LegacyRole("parent1")
	dad = calendar.LegacyRole("parent2")

	monday = civil.Date{Year: 2025, Month: time.January, Day: 6}
	stamp  = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
)

var names = feed.NameFunc(func(ref calendar.MemberRef) string {
	switch ref {
	case kid:
		return "Léa"
	case mom:
		return "Maman"
	case dad:
		return "Papa"
	}
	return ""
})

func newSerializer(t *testing.T, lang string) *feed.Serializer {
	t.Helper()
	labels, err := feed.NewLabels(lang)
	require.NoError(t, err)
	return &feed.Serializer{Names: names, Labels: labels}
}

func occurrence(date civil.Date, slot int, tr *calendar.Transportation) calendar.Occurrence {
	start := time.Date(date.Year, date.Month, date.Day, 17, 0, 0, 0, time.UTC)
	return calendar.Occurrence{
		EventID:        "evt-1",
		SlotIndex:      slot,
		Date:           date,
		Start:          start,
		End:            start.Add(90 * time.Minute),
		Title:          "BJJ Training",
		Category:       calendar.CategorySports,
		Location:       "Dojo",
		Participants:   []calendar.MemberRef{kid},
		Transportation: tr,
	}
}

func decode(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

// -----------------------------------------------------------------------------
// Serialize
// -----------------------------------------------------------------------------

func TestSerialize_Reproducible(t *testing.T) {
	s := newSerializer(t, "en")
	occ := []calendar.Occurrence{
		occurrence(monday, 0, &calendar.Transportation{DropOff: &calendar.Leg{Method: calendar.MethodCar, Responsible: mom}}),
		occurrence(monday.AddDays(2), 1, nil),
	}
	opts := feed.Options{Name: "Family", Stamp: stamp}

	first, err := s.Serialize(occ, opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Serialize(occ, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again, "Identical input must render identical bytes")
	}
}

func TestSerialize_EnvelopeAndEvents(t *testing.T) {
	s := newSerializer(t, "en")
	tr := &calendar.Transportation{
		DropOff: &calendar.Leg{Method: calendar.MethodCar, Responsible: mom},
		PickUp:  &calendar.Leg{Responsible: dad},
	}
	data, err := s.Serialize([]calendar.Occurrence{occurrence(monday, 0, tr)}, feed.Options{Name: "Family", Stamp: stamp})
	require.NoError(t, err)

	cal := decode(t, data)
	for prop, want := range map[string]string{
		config.PropVersion:    config.ICalVersion,
		config.PropProdid:     config.ICalProdid,
		config.PropCalScale:   config.ICalScale,
		config.PropMethod:     config.ICalMethod,
		config.PropXWRCalName: "Family",
	} {
		got, err := cal.Props.Text(prop)
		require.NoError(t, err)
		assert.Equal(t, want, got, prop)
	}
	assert.NotNil(t, cal.Props.Get(config.PropRefresh))

	events := cal.Events()
	require.Len(t, events, 1)
	ev := events[0]

	uid, err := ev.Props.Text(config.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1-20250106@famcal", uid)

	start, err := ev.Props.DateTime(config.PropDTStart, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC), start)

	end, err := ev.Props.DateTime(config.PropDTEnd, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 18, 30, 0, 0, time.UTC), end)

	stampGot, err := ev.Props.DateTime(config.PropDTStamp, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, stamp, stampGot)

	desc, err := ev.Props.Text(config.PropDescription)
	require.NoError(t, err)
	assert.Equal(t, "Participants: Léa\nDrop-off: Maman (car)\nPick-up: Papa", desc)

	for prop, want := range map[string]string{
		config.PropSummary:    "BJJ Training",
		config.PropLocation:   "Dojo",
		config.PropStatus:     config.ICalStatusConfir,
		config.PropCategories: "sports",
	} {
		got, err := ev.Props.Text(prop)
		require.NoError(t, err)
		assert.Equal(t, want, got, prop)
	}
}

func TestSerialize_FrenchLabels(t *testing.T) {
	s := newSerializer(t, "fr")
	tr := &calendar.Transportation{PickUp: &calendar.Leg{Method: calendar.MethodWalk, Responsible: dad}}
	data, err := s.Serialize([]calendar.Occurrence{occurrence(monday, 0, tr)}, feed.Options{Stamp: stamp})
	require.NoError(t, err)

	desc, err := decode(t, data).Events()[0].Props.Text(config.PropDescription)
	require.NoError(t, err)
	assert.Equal(t, "Participants: Léa\nRécupération: Papa (à pied)", desc)
}

func TestSerialize_EscapingRoundTrip(t *testing.T) {
	s := newSerializer(t, "en")
	o := occurrence(monday, 0, nil)
	o.Title = `Swim; lanes 3,4 \ "deep" end`
	o.Location = "Pool, Building B;\nLevel 2"

	data, err := s.Serialize([]calendar.Occurrence{o}, feed.Options{Name: "Smith, family; main", Stamp: stamp})
	require.NoError(t, err)

	cal := decode(t, data)
	calName, err := cal.Props.Text(config.PropXWRCalName)
	require.NoError(t, err)
	assert.Equal(t, "Smith, family; main", calName)

	ev := cal.Events()[0]
	summary, err := ev.Props.Text(config.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, o.Title, summary)

	loc, err := ev.Props.Text(config.PropLocation)
	require.NoError(t, err)
	assert.Equal(t, o.Location, loc)
}

func TestSerialize_ParsesWithIndependentParser(t *testing.T) {
	s := newSerializer(t, "en")
	var occ []calendar.Occurrence
	for week := 0; week < 10; week++ {
		occ = append(occ, occurrence(monday.AddDays(week*7), 0, nil))
		occ = append(occ, occurrence(monday.AddDays(week*7+2), 1, nil))
	}

	data, err := s.Serialize(occ, feed.Options{Name: "Family", Stamp: stamp})
	require.NoError(t, err)

	parsed, err := ics.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	events := parsed.Events()
	assert.Len(t, events, len(occ))

	seen := map[string]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.Id()], "UID %s emitted twice", ev.Id())
		seen[ev.Id()] = true
	}
}

func TestSerialize_FilterDropsUntransported(t *testing.T) {
	s := newSerializer(t, "en")
	occ := []calendar.Occurrence{
		occurrence(monday, 0, &calendar.Transportation{DropOff: &calendar.Leg{Responsible: mom}}),
		occurrence(monday.AddDays(1), 0, &calendar.Transportation{PickUp: &calendar.Leg{Responsible: dad}}),
		occurrence(monday.AddDays(2), 0, nil),
	}

	data, err := s.Serialize(occ, feed.Options{Filter: mom, Stamp: stamp})
	require.NoError(t, err)

	events := decode(t, data).Events()
	require.Len(t, events, 1)
	uid, _ := events[0].Props.Text(config.PropUID)
	assert.Equal(t, "evt-1-20250106@famcal", uid)
}

func TestSerialize_Empty(t *testing.T) {
	s := newSerializer(t, "en")

	tests := []struct {
		name string
		occ  []calendar.Occurrence
		opts feed.Options
	}{
		{"no occurrences", nil, feed.Options{Name: "Quiet, week", Stamp: stamp}},
		{"filter removes all", []calendar.Occurrence{occurrence(monday, 0, nil)}, feed.Options{Name: "Quiet, week", Filter: dad, Stamp: stamp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Serialize(tt.occ, tt.opts)
			require.NoError(t, err)

			str := string(data)
			assert.True(t, strings.HasPrefix(str, "BEGIN:VCALENDAR\r\n"))
			assert.True(t, strings.HasSuffix(str, "END:VCALENDAR\r\n"))
			assert.Contains(t, str, `X-WR-CALNAME:Quiet\, week`)
			assert.NotContains(t, str, "BEGIN:VEVENT")

			parsed, err := ics.ParseCalendar(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Empty(t, parsed.Events())
		})
	}
}

func TestSerialize_FoldsLongLines(t *testing.T) {
	s := newSerializer(t, "en")
	name := strings.Repeat("é", 40) + " famille Dupont, calendrier partagé"

	tests := []struct {
		name string
		occ  []calendar.Occurrence
	}{
		{"with events", []calendar.Occurrence{occurrence(monday, 0, nil)}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Serialize(tt.occ, feed.Options{Name: name, Stamp: stamp})
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
			for _, line := range lines {
				assert.LessOrEqual(t, len(line), config.ICalLineOctets, line)
				assert.True(t, utf8.ValidString(line), "folding split a character: %q", line)
			}

			cal := decode(t, data)
			got, err := cal.Props.Text(config.PropXWRCalName)
			require.NoError(t, err)
			assert.Equal(t, name, got)

			refresh := cal.Props.Get(config.PropRefresh)
			require.NotNil(t, refresh)
			every, err := refresh.Duration()
			require.NoError(t, err)
			assert.Equal(t, config.DefaultICalRefresh, every)
		})
	}
}

func TestSerialize_DefaultName(t *testing.T) {
	s := newSerializer(t, "en")
	data, err := s.Serialize(nil, feed.Options{Stamp: stamp})
	require.NoError(t, err)
	assert.Contains(t, string(data), "X-WR-CALNAME:"+config.DefaultFeedName)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func TestUID(t *testing.T) {
	first := occurrence(monday, 0, nil)
	second := occurrence(monday, 1, nil)

	assert.Equal(t, "evt-1-20250106@famcal", feed.UID(first))
	assert.Equal(t, "evt-1-20250106-1@famcal", feed.UID(second))
	assert.NotEqual(t, feed.UID(first), feed.UID(second))

	// Identity does not depend on the resolved fields.
	moved := first
	moved.Title = "Renamed"
	moved.Start = moved.Start.Add(time.Hour)
	assert.Equal(t, feed.UID(first), feed.UID(moved))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Family", "Family.ics"},
		{"Smith Family  Calendar", "Smith_Family_Calendar.ics"},
		{"Mom's rides!", "Mom_s_rides.ics"},
		{"  leading", "leading.ics"},
		{"__a__", "a.ics"},
		{"Famille Dupont: école!", "Famille_Dupont_ecole.ics"},
		{"Léa 2025", "Lea_2025.ics"},
		{"日本", "calendar.ics"},
		{"", "calendar.ics"},
		{"***", "calendar.ics"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, feed.Filename(tt.in))
		})
	}
}

func TestFilter(t *testing.T) {
	occ := []calendar.Occurrence{
		occurrence(monday, 0, &calendar.Transportation{DropOff: &calendar.Leg{Responsible: mom}}),
		occurrence(monday, 1, nil),
	}
	assert.Len(t, feed.Filter(occ, ""), 2, "No filter keeps everything")
	assert.Len(t, feed.Filter(occ, mom), 1)
	assert.Empty(t, feed.Filter(occ, kid), "Participants are not responsibles")
}

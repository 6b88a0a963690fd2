package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameLookup resolves member references to display names.
type NameLookup interface {
	DisplayName(ref calendar.MemberRef) string
}

// NameFunc adapts a function to NameLookup.
type NameFunc func(ref calendar.MemberRef) string

func (f NameFunc) DisplayName(ref calendar.MemberRef) string { return f(ref) }

// Options describe one rendering of a feed.
type Options struct {
	// Name is the human-readable calendar name (X-WR-CALNAME).
	Name string

	// Filter, when set, keeps only occurrences where this member drives
	// or collects.
	Filter calendar.MemberRef

	// Stamp is written as DTSTAMP on every event. Callers pass a stable
	// value (the start of the rendering day) so that identical input
	// renders identical bytes.
	Stamp time.Time
}

// Serializer renders occurrences as an iCalendar document.
type Serializer struct {
	Names  NameLookup
	Labels *Labels
}

// Serialize filters occ and encodes the survivors. The output is
// byte-for-byte reproducible for identical occurrences and options.
func (s *Serializer) Serialize(occ []calendar.Occurrence, opts Options) ([]byte, error) {
	kept := Filter(occ, opts.Filter)

	name := opts.Name
	if name == "" {
		name = config.DefaultFeedName
	}

	if len(kept) == 0 {
		s.logRendered(name, opts.Filter, len(occ), 0)
		return emptyCalendar(envelope(name)), nil
	}

	cal := envelope(name)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(opts.Stamp.UTC().Truncate(time.Second))

	for _, o := range kept {
		event := s.createEvent(o)
		event.Props.Set(dtStampProp)
		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	s.logRendered(name, opts.Filter, len(occ), len(kept))
	return fold(buf.Bytes()), nil
}

// Filter keeps the occurrences whose resolved transportation names member
// on either leg. An empty member keeps everything; an occurrence without
// transportation never matches a member.
func Filter(occ []calendar.Occurrence, member calendar.MemberRef) []calendar.Occurrence {
	if member == "" {
		return occ
	}
	var out []calendar.Occurrence
	for _, o := range occ {
		if o.Transportation.Involves(member) {
			out = append(out, o)
		}
	}
	return out
}

// UID is stable across renderings so subscribers can de-duplicate.
func UID(o calendar.Occurrence) string {
	day := o.Date.In(time.UTC).Format(config.DateLayoutBasic)
	if o.SlotIndex > 0 {
		return fmt.Sprintf(config.FormatUIDSlot, o.EventID, day, o.SlotIndex, config.ICalDomain)
	}
	return fmt.Sprintf(config.FormatUID, o.EventID, day, config.ICalDomain)
}

// Filename turns a feed name into an ASCII download name. Accents are
// stripped, every run of other characters becomes a single underscore, and
// runs at either end are dropped.
func Filename(name string) string {
	plain, _, err := transform.String(accentStripper(), name)
	if err != nil {
		plain = name
	}
	var b strings.Builder
	gap := false
	for _, r := range plain {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	if b.Len() == 0 {
		return config.FilenameFallback + config.ExtICS
	}
	return b.String() + config.ExtICS
}

// accentStripper decomposes letters and drops the combining marks. A
// transformer is stateful, so each call gets its own.
func accentStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func (s *Serializer) createEvent(o calendar.Occurrence) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(config.PropUID, UID(o))
	event.Props.SetText(config.PropSummary, o.Title)

	start := ical.NewProp(config.PropDTStart)
	start.SetDateTime(o.Start.UTC())
	event.Props.Set(start)

	end := ical.NewProp(config.PropDTEnd)
	end.SetDateTime(o.End.UTC())
	event.Props.Set(end)

	if desc := s.describe(o); desc != "" {
		event.Props.SetText(config.PropDescription, desc)
	}
	if o.Location != "" {
		event.Props.SetText(config.PropLocation, o.Location)
	}
	if o.Category != "" {
		event.Props.SetText(config.PropCategories, string(o.Category))
	}
	event.Props.SetText(config.PropStatus, config.ICalStatusConfir)
	return event
}

// describe assembles the multi-line description: participants, then the
// drop-off and pick-up legs.
func (s *Serializer) describe(o calendar.Occurrence) string {
	var lines []string

	if len(o.Participants) > 0 {
		names := make([]string, 0, len(o.Participants))
		for _, p := range o.Participants {
			names = append(names, s.name(p))
		}
		sort.Strings(names)
		lines = append(lines, fmt.Sprintf(config.FormatDescLine,
			s.Labels.Text(config.TKeyParticipants), strings.Join(names, config.DescListSep)))
	}

	if t := o.Transportation; t != nil {
		if leg := s.leg(t.DropOff); leg != "" {
			lines = append(lines, fmt.Sprintf(config.FormatDescLine, s.Labels.Text(config.TKeyDropOff), leg))
		}
		if leg := s.leg(t.PickUp); leg != "" {
			lines = append(lines, fmt.Sprintf(config.FormatDescLine, s.Labels.Text(config.TKeyPickUp), leg))
		}
	}
	return strings.Join(lines, config.DescLineSep)
}

func (s *Serializer) leg(l *calendar.Leg) string {
	if l == nil {
		return ""
	}
	switch {
	case l.Responsible != "" && l.Method != "":
		return fmt.Sprintf(config.FormatLegMethod, s.name(l.Responsible), s.Labels.Method(l.Method))
	case l.Responsible != "":
		return s.name(l.Responsible)
	default:
		return s.Labels.Method(l.Method)
	}
}

func (s *Serializer) name(ref calendar.MemberRef) string {
	if s.Names != nil {
		if n := s.Names.DisplayName(ref); n != "" {
			return n
		}
	}
	return ref.Value()
}

func (s *Serializer) logRendered(name string, member calendar.MemberRef, total, kept int) {
	slog.Debug(config.MsgFeedRendered,
		config.LogKeyComponent, config.CompFeed,
		config.LogKeyFeed, name,
		config.LogKeyMember, string(member),
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyCount, total),
			slog.Int(config.LogKeyClean, kept),
		),
	)
}

// envelope builds the calendar properties shared by every feed.
func envelope(name string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	// X-WR-CALNAME is read as text without a VALUE parameter.
	calName := ical.NewProp(config.PropXWRCalName)
	calName.SetText(name)
	calName.Params.Del(ical.ParamValue)
	cal.Props.Set(calName)

	// RFC 7986: suggest how often subscribers should poll.
	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)
	return cal
}

// emptyCalendar is the document for a feed with no events. The encoder
// refuses calendars without components, so the envelope is written here in
// the encoder's layout: properties sorted by name, parameters sorted.
func emptyCalendar(cal *ical.Calendar) []byte {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:" + ical.CompCalendar + "\r\n")

	names := make([]string, 0, len(cal.Props))
	for name := range cal.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, prop := range cal.Props[name] {
			writeProp(&buf, prop)
		}
	}

	buf.WriteString("END:" + ical.CompCalendar + "\r\n")
	return fold(buf.Bytes())
}

func writeProp(buf *bytes.Buffer, prop ical.Prop) {
	buf.WriteString(prop.Name)

	params := make([]string, 0, len(prop.Params))
	for name := range prop.Params {
		params = append(params, name)
	}
	sort.Strings(params)
	for _, name := range params {
		buf.WriteString(";" + name + "=")
		for i, v := range prop.Params[name] {
			if i > 0 {
				buf.WriteByte(',')
			}
			if strings.ContainsAny(v, ";:,") {
				v = `"` + v + `"`
			}
			buf.WriteString(v)
		}
	}

	buf.WriteString(":" + prop.Value + "\r\n")
}

// fold splits content lines longer than the RFC 5545 limit. Continuation
// lines start with a space and never split a UTF-8 sequence.
func fold(data []byte) []byte {
	const crlf = "\r\n"
	var out bytes.Buffer
	out.Grow(len(data))
	for _, line := range bytes.SplitAfter(data, []byte(crlf)) {
		if len(line) == 0 {
			continue
		}
		rest := bytes.TrimSuffix(line, []byte(crlf))
		limit := config.ICalLineOctets
		for len(rest) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			out.Write(rest[:cut])
			out.WriteString(crlf + " ")
			rest = rest[cut:]
			limit = config.ICalLineOctets - 1
		}
		out.Write(rest)
		out.WriteString(crlf)
	}
	return out.Bytes()
}

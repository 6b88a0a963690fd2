package calendar

import "cloud.google.com/go/civil"

// Override customizes or cancels a single dated occurrence of an event.
// It is created lazily the first time someone edits one date.
type Override struct {
	ID             string          `json:"id,omitempty"`
	EventID        string          `json:"eventId"`
	Date           civil.Date      `json:"date"`
	Cancelled      bool            `json:"cancelled"`
	Transportation *Transportation `json:"transportation,omitempty"`
	Participants   []MemberRef     `json:"participants,omitempty"`
}

// IsEmpty reports whether o changes nothing. Such overrides are equivalent
// to no override at all and need not be stored.
func (o Override) IsEmpty() bool {
	return !o.Cancelled && o.Transportation.IsEmpty() && len(o.Participants) == 0
}

// overrideKey identifies the occurrence an override applies to.
type overrideKey struct {
	eventID string
	date    civil.Date
}

// indexOverrides keys overrides by (event, date). A later duplicate wins.
func indexOverrides(overrides []Override) map[overrideKey]Override {
	idx := make(map[overrideKey]Override, len(overrides))
	for _, o := range overrides {
		idx[overrideKey{eventID: o.EventID, date: o.Date}] = o
	}
	return idx
}

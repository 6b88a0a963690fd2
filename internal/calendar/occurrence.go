package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// Occurrence is one concrete dated instance of an Event. It is derived on
// demand and never persisted.
type Occurrence struct {
	EventID        string          `json:"eventId"`
	SlotIndex      int             `json:"slotIndex"`
	Date           civil.Date      `json:"date"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Title          string          `json:"title"`
	Category       Category        `json:"category"`
	Location       string          `json:"location,omitempty"`
	Participants   []MemberRef     `json:"participants"`
	Transportation *Transportation `json:"transportation,omitempty"`
	Cancelled      bool            `json:"cancelled"`
}

// ResolveTransportation applies override -> slot -> event precedence to
// each leg independently. It returns nil when no level names any leg.
func ResolveTransportation(ov *Override, slot Slot, ev Event) *Transportation {
	var levels []*Transportation
	if ov != nil {
		levels = append(levels, ov.Transportation)
	}
	levels = append(levels, slot.Transportation, ev.Transportation)

	resolved := &Transportation{
		DropOff: firstLeg(levels, func(t *Transportation) *Leg { return t.DropOff }),
		PickUp:  firstLeg(levels, func(t *Transportation) *Leg { return t.PickUp }),
	}
	if resolved.IsEmpty() {
		return nil
	}
	return resolved
}

func firstLeg(levels []*Transportation, pick func(*Transportation) *Leg) *Leg {
	for _, t := range levels {
		if t == nil {
			continue
		}
		if l := pick(t); !legEmpty(l) {
			leg := *l
			return &leg
		}
	}
	return nil
}

// ResolveParticipants applies override -> event precedence. Slots carry no
// participants.
func ResolveParticipants(ov *Override, ev Event) []MemberRef {
	src := ev.Participants
	if ov != nil && len(ov.Participants) > 0 {
		src = ov.Participants
	}
	out := make([]MemberRef, len(src))
	copy(out, src)
	return out
}

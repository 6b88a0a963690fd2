// Package members maps household members to display names. Members come
// from vCard address books, either uploaded files or remote CardDAV-style
// URLs.
package members

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
)

// Parse decodes every card in r into a member of household.
//
// The reference is taken from X-FAMCAL-ROLE when it names a legacy role,
// else from a UUID-shaped UID, else derived from the household and name so
// that importing the same book twice yields the same ids. Malformed or
// nameless cards are skipped.
func Parse(ctx context.Context, household string, r io.Reader) ([]calendar.Member, error) {
	dec := vcard.NewDecoder(r)
	seen := make(map[calendar.MemberRef]bool)
	var (
		out      []calendar.Member
		failures int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn(config.MsgSkippedCard,
				config.LogKeyComponent, config.CompMembers,
				config.LogKeyError, err)
			// A broken underlying reader fails forever.
			if failures++; failures > config.MaxVCardFailures {
				return nil, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
			}
			continue
		}
		failures = 0

		name := cardName(card)
		if name == "" {
			slog.Debug(config.MsgSkippedNoName, config.LogKeyComponent, config.CompMembers)
			continue
		}
		ref := cardRef(household, name, card)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, calendar.Member{Ref: ref, Name: name})
	}
	return out, nil
}

// cardName prefers FN, then the structured N rendered as "Given Family".
func cardName(card vcard.Card) string {
	if fn := strings.TrimSpace(card.Value(config.VCardFN)); fn != "" {
		return fn
	}
	if n := card.Name(); n != nil {
		return strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " ")
	}
	return ""
}

func cardRef(household, name string, card vcard.Card) calendar.MemberRef {
	if role := strings.TrimSpace(card.Value(config.VCardRole)); role != "" {
		if ref, err := calendar.ParseMemberRef(role); err == nil && ref.IsLegacy() {
			return ref
		}
	}
	if uid := strings.TrimSpace(card.Value(config.VCardUID)); uid != "" {
		uid = strings.TrimPrefix(strings.ToLower(uid), config.VCardUIDURN)
		if id, err := uuid.Parse(uid); err == nil {
			return calendar.MemberID(id)
		}
	}
	seed := fmt.Sprintf(config.FormatMemberSeed, household, strings.ToLower(name))
	return calendar.MemberID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)))
}

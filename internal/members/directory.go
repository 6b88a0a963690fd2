package members

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
)

// Directory is an immutable reference-to-name index.
type Directory struct {
	names map[calendar.MemberRef]string
}

// NewDirectory indexes members. Later duplicates win.
func NewDirectory(members []calendar.Member) *Directory {
	d := &Directory{names: make(map[calendar.MemberRef]string, len(members))}
	for _, m := range members {
		d.names[m.Ref] = m.Name
	}
	return d
}

// DisplayName returns the member's name, or "" when unknown.
func (d *Directory) DisplayName(ref calendar.MemberRef) string {
	if d == nil {
		return ""
	}
	return d.names[ref]
}

// Members returns the indexed members sorted by name.
func (d *Directory) Members() []calendar.Member {
	out := make([]calendar.Member, 0, len(d.names))
	for ref, name := range d.names {
		out = append(out, calendar.Member{Ref: ref, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}

// Writer persists imported members.
type Writer interface {
	UpsertMembers(ctx context.Context, household string, members []calendar.Member) error
}

// Importer loads an address book into a household.
type Importer struct {
	Fetcher Fetcher
	Store   Writer
}

// Import reads the address book at location (file path or URL) and
// upserts its members. It returns the number of members written.
func (im *Importer) Import(ctx context.Context, household, location string) (int, error) {
	rc, err := Open(ctx, im.Fetcher, location)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	list, err := Parse(ctx, household, rc)
	if err != nil {
		return 0, err
	}
	if err := im.Store.UpsertMembers(ctx, household, list); err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrMembersStore, err)
	}

	slog.Info(config.MsgMembersImported,
		config.LogKeyComponent, config.CompMembers,
		config.LogKeyHousehold, household,
		config.LogKeyCount, len(list),
	)
	return len(list), nil
}

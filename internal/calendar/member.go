package calendar

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tartampluch/famcal/internal/config"
)

// MemberRef is the canonical reference to a household member.
//
// Records written before dynamic members existed name one of the fixed
// family roles, newer ones a member UUID. Both are folded into a single
// tagged string at the storage boundary ("role:child1", "member:<uuid>"),
// so the engines compare references without caring where they came from.
type MemberRef string

// Member pairs a reference with its display name.
type Member struct {
	Ref  MemberRef `json:"ref"`
	Name string    `json:"name"`
}

// LegacyRole builds the reference for a fixed family role.
func LegacyRole(role string) MemberRef {
	return MemberRef(config.MemberRefRolePrefix + strings.ToLower(role))
}

// MemberID builds the reference for a dynamic member record.
func MemberID(id uuid.UUID) MemberRef {
	return MemberRef(config.MemberRefMemberPrefix + id.String())
}

// ParseMemberRef accepts a canonical reference, a bare legacy role or a
// bare member UUID and returns the canonical form.
func ParseMemberRef(s string) (MemberRef, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, config.MemberRefRolePrefix):
		role := strings.TrimPrefix(s, config.MemberRefRolePrefix)
		if isLegacyRole(role) {
			return LegacyRole(role), nil
		}
	case strings.HasPrefix(s, config.MemberRefMemberPrefix):
		if id, err := uuid.Parse(strings.TrimPrefix(s, config.MemberRefMemberPrefix)); err == nil {
			return MemberID(id), nil
		}
	default:
		if isLegacyRole(s) {
			return LegacyRole(s), nil
		}
		if id, err := uuid.Parse(s); err == nil {
			return MemberID(id), nil
		}
	}
	return "", fmt.Errorf("%s: %q", config.ErrMemberRef, s)
}

// UnmarshalText lets JSON documents carry any accepted spelling.
func (r *MemberRef) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = ""
		return nil
	}
	ref, err := ParseMemberRef(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// IsLegacy reports whether r names a fixed family role.
func (r MemberRef) IsLegacy() bool {
	return strings.HasPrefix(string(r), config.MemberRefRolePrefix)
}

// Value returns the reference without its tag.
func (r MemberRef) Value() string {
	if r.IsLegacy() {
		return strings.TrimPrefix(string(r), config.MemberRefRolePrefix)
	}
	return strings.TrimPrefix(string(r), config.MemberRefMemberPrefix)
}

func isLegacyRole(role string) bool {
	role = strings.ToLower(role)
	for _, r := range config.LegacyRoles {
		if r == role {
			return true
		}
	}
	return false
}

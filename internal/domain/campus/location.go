// Package campus models shared campus locations and their occupancy.
package campus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS
// ══════════════════════════════════════════════════════════════════════════════

// AccessKind is the rule gating who may join a location.
type AccessKind string

const (
	AccessPublic        AccessKind = "public"
	AccessLevelRequired AccessKind = "level_required"
	AccessRestricted    AccessKind = "restricted"
)

// Access is the access rule of a location.
type Access struct {
	Kind AccessKind `json:"kind"`

	// MinLevel applies to AccessLevelRequired.
	MinLevel int `json:"min_level,omitempty"`

	// AllowList applies to AccessRestricted.
	AllowList []shared.UserID `json:"-"`
}

// Public returns an open access rule.
func Public() Access {
	return Access{Kind: AccessPublic}
}

// LevelRequired returns a rule requiring at least level n.
func LevelRequired(n int) Access {
	return Access{Kind: AccessLevelRequired, MinLevel: n}
}

// Restricted returns a rule admitting only the listed users.
func Restricted(allowed ...shared.UserID) Access {
	return Access{Kind: AccessRestricted, AllowList: allowed}
}

// Check returns nil when a user at level may enter.
func (a Access) Check(userID shared.UserID, level int) error {
	switch a.Kind {
	case AccessPublic, "":
		return nil
	case AccessLevelRequired:
		if level >= a.MinLevel {
			return nil
		}
		return shared.WrapError("campus", "Join", shared.ErrAccessDenied,
			fmt.Sprintf("level %d required, user is level %d", a.MinLevel, level), shared.ErrLevelTooLow)
	case AccessRestricted:
		for _, id := range a.AllowList {
			if id == userID {
				return nil
			}
		}
		return shared.ErrNotOnAllowList
	default:
		return shared.NewDomainError("campus", "Join", shared.ErrAccessDenied, "unknown access rule")
	}
}

// String returns "public", "level_required(5)" or "restricted".
func (a Access) String() string {
	if a.Kind == AccessLevelRequired {
		return fmt.Sprintf("%s(%d)", a.Kind, a.MinLevel)
	}
	return string(a.Kind)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCATION
// ══════════════════════════════════════════════════════════════════════════════

// Location is a capacity-bounded shared space.
type Location struct {
	ID          string
	Name        string
	Description string
	Capacity    int
	Access      Access
}

// Validate checks static configuration.
func (l Location) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("campus: location without id")
	}
	if l.Capacity <= 0 {
		return fmt.Errorf("campus: location %q must have positive capacity", l.ID)
	}
	if l.Access.Kind == AccessLevelRequired && l.Access.MinLevel < 1 {
		return fmt.Errorf("campus: location %q requires a level >= 1", l.ID)
	}
	return nil
}

// Occupant is one user present in a location.
type Occupant struct {
	UserID      shared.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	LocationID  string        `json:"location_id"`
	JoinedAt    time.Time     `json:"joined_at"`
	LastSeenAt  time.Time     `json:"last_seen_at"`
}

// LastActivity is the later of join time and last heartbeat.
func (o Occupant) LastActivity() time.Time {
	if o.LastSeenAt.After(o.JoinedAt) {
		return o.LastSeenAt
	}
	return o.JoinedAt
}

// IsStale reports whether the occupant has been silent since before cutoff.
func (o Occupant) IsStale(cutoff time.Time) bool {
	return o.LastActivity().Before(cutoff)
}

// SortOccupants orders occupants by join time, then user id.
func SortOccupants(occ []Occupant) {
	sort.Slice(occ, func(i, j int) bool {
		if !occ[i].JoinedAt.Equal(occ[j].JoinedAt) {
			return occ[i].JoinedAt.Before(occ[j].JoinedAt)
		}
		return occ[i].UserID < occ[j].UserID
	})
}

// JoinOutcome describes a successful join.
type JoinOutcome struct {
	// PreviousLocation is the location the user was moved out of, if any.
	PreviousLocation string

	// AlreadyPresent is true when the user was already in the target location.
	AlreadyPresent bool

	// Occupancy is the number of occupants after the join.
	Occupancy int
}

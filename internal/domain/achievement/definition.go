// Package achievement defines the achievement catalog: categories, rarities,
// trigger predicates and reward bundles.
package achievement

import (
	"strings"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Category groups achievements for listing.
type Category string

const (
	CategoryProgression Category = "progression"
	CategoryStreak      Category = "streak"
	CategorySkill       Category = "skill"
	CategoryCampus      Category = "campus"
	CategoryDedication  Category = "dedication"
	CategorySpecial     Category = "special"
)

var allCategories = []Category{
	CategoryProgression,
	CategoryStreak,
	CategorySkill,
	CategoryCampus,
	CategoryDedication,
	CategorySpecial,
}

// AllCategories returns the categories in display order.
func AllCategories() []Category {
	return append([]Category(nil), allCategories...)
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory validates a category filter. Empty means "all".
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if c == "" || c.IsValid() {
		return c, nil
	}
	return "", shared.NewDomainError("achievement", "ParseCategory", shared.ErrInvalidInput, "unknown achievement category")
}

// Rarity ranks how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Weight orders rarities from 1 (common) to 5 (legendary); 0 means unknown.
func (r Rarity) Weight() int {
	switch r {
	case RarityCommon:
		return 1
	case RarityUncommon:
		return 2
	case RarityRare:
		return 3
	case RarityEpic:
		return 4
	case RarityLegendary:
		return 5
	default:
		return 0
	}
}

// IsValid reports whether r is a known rarity.
func (r Rarity) IsValid() bool {
	return r.Weight() > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EventType names what triggered an evaluation.
type EventType string

const (
	EventXPAward     EventType = "xp_award"
	EventProfileSync EventType = "profile_sync"
	EventCampusJoin  EventType = "campus_join"
)

// Event is the trigger passed to predicates together with the post-event snapshot.
type Event struct {
	Type       EventType
	Amount     int64
	Skill      progress.Skill
	Source     progress.Source
	Day        shared.Date
	Streak     progress.StreakChange
	LocationID string
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Predicate is a pure rule over an avatar snapshot and the triggering event.
// It must not mutate the avatar.
type Predicate func(a *progress.Avatar, e Event) bool

// Rewards is granted once when the achievement is earned.
type Rewards struct {
	XP    int64  `json:"xp"`
	Coins int64  `json:"coins"`
	Gems  int64  `json:"gems"`
	Title string `json:"title,omitempty"`
}

// IsZero reports whether the bundle grants nothing.
func (r Rewards) IsZero() bool {
	return r.XP == 0 && r.Coins == 0 && r.Gems == 0 && r.Title == ""
}

// Definition is an immutable catalog entry.
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Category    Category
	Rarity      Rarity
	Secret      bool
	Predicate   Predicate
	Rewards     Rewards
}

// Matches runs the predicate, treating a nil predicate as never true.
func (d Definition) Matches(a *progress.Avatar, e Event) bool {
	if d.Predicate == nil {
		return false
	}
	return d.Predicate(a, e)
}

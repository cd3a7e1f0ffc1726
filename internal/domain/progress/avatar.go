package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVATAR
// ══════════════════════════════════════════════════════════════════════════════

// SkillProgress is the per-skill sub-ledger.
type SkillProgress struct {
	XP    int64 `json:"xp"`
	Level int   `json:"level"`
}

// EarnedAchievement records when an achievement id was earned.
type EarnedAchievement struct {
	ID       string    `json:"id"`
	EarnedAt time.Time `json:"earned_at"`
}

// XPGrant is one append-only ledger row. TotalXP always equals the sum of
// the grants recorded for a user.
type XPGrant struct {
	ID        string        `json:"id"`
	UserID    shared.UserID `json:"user_id"`
	Amount    int64         `json:"amount"`
	Skill     Skill         `json:"skill,omitempty"`
	Source    Source        `json:"source"`
	GrantedAt time.Time     `json:"granted_at"`
}

// Avatar is the per-user progression record.
// Level fields are caches of LevelCurve and are reconciled on every load.
type Avatar struct {
	UserID       shared.UserID           `json:"user_id"`
	DisplayName  string                  `json:"display_name"`
	TotalXP      int64                   `json:"total_xp"`
	Level        int                     `json:"level"`
	Coins        int64                   `json:"coins"`
	Gems         int64                   `json:"gems"`
	Skills       map[Skill]SkillProgress `json:"skills"`
	Achievements []EarnedAchievement     `json:"achievements"`
	Titles       []string                `json:"titles"`
	Streak       Streak                  `json:"streak"`
	Appearance   json.RawMessage         `json:"appearance,omitempty"`
	SourceCounts map[Source]int64        `json:"source_counts"`
	Version      int64                   `json:"version"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`

	pendingGrants []XPGrant
}

// NewAvatar creates an empty avatar at level 1.
func NewAvatar(userID shared.UserID, now time.Time) *Avatar {
	return &Avatar{
		UserID:       userID,
		Level:        MinLevel,
		Skills:       make(map[Skill]SkillProgress),
		Achievements: make([]EarnedAchievement, 0),
		Titles:       make([]string, 0),
		SourceCounts: make(map[Source]int64),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Reconcile re-derives every cached level from XP and fills nil collections
// left by decoding. Stores call it on every load.
func (a *Avatar) Reconcile() {
	if a.Skills == nil {
		a.Skills = make(map[Skill]SkillProgress)
	}
	if a.SourceCounts == nil {
		a.SourceCounts = make(map[Source]int64)
	}
	if a.Achievements == nil {
		a.Achievements = make([]EarnedAchievement, 0)
	}
	if a.Titles == nil {
		a.Titles = make([]string, 0)
	}

	a.Level = LevelFor(a.TotalXP)
	for skill, sp := range a.Skills {
		sp.Level = LevelFor(sp.XP)
		a.Skills[skill] = sp
	}
}

// LevelProgress returns the overall position on the level curve.
func (a *Avatar) LevelProgress() LevelProgress {
	return LevelForXP(a.TotalXP)
}

// MaxAwardAmount is the largest XP amount a single award may carry.
const MaxAwardAmount int64 = 1_000_000

// fits reports whether balance+delta stays within int64.
func fits(balance, delta int64) bool {
	return balance <= math.MaxInt64-delta
}

// GrantXP adds amount to the total and, when skill is set, to the skill
// sub-ledger. The grant is queued for the ledger and returned.
// A grant that would overflow either balance is rejected before any change.
func (a *Avatar) GrantXP(amount int64, skill Skill, source Source, at time.Time) (XPGrant, error) {
	if amount <= 0 {
		return XPGrant{}, shared.ErrAmountNotPositive
	}
	if skill != "" && !skill.IsValid() {
		return XPGrant{}, shared.ErrSkillNotRecognized
	}
	if !fits(a.TotalXP, amount) || (skill != "" && !fits(a.Skills[skill].XP, amount)) {
		return XPGrant{}, shared.ErrBalanceOverflow
	}
	if source == "" {
		source = SourceManual
	}

	a.TotalXP += amount
	if skill != "" {
		sp := a.Skills[skill]
		sp.XP += amount
		a.Skills[skill] = sp
	}
	a.SourceCounts[source]++
	a.Reconcile()

	grant := XPGrant{
		ID:        uuid.NewString(),
		UserID:    a.UserID,
		Amount:    amount,
		Skill:     skill,
		Source:    source,
		GrantedAt: at,
	}
	a.pendingGrants = append(a.pendingGrants, grant)
	a.UpdatedAt = at
	return grant, nil
}

// AddCurrency credits coins and gems. Debits are not part of the engine.
func (a *Avatar) AddCurrency(coins, gems int64) error {
	if coins < 0 || gems < 0 {
		return shared.NewDomainError("progress", "AddCurrency", shared.ErrNegativeValue, "currency rewards cannot be negative")
	}
	if !fits(a.Coins, coins) || !fits(a.Gems, gems) {
		return shared.ErrBalanceOverflow
	}
	a.Coins += coins
	a.Gems += gems
	return nil
}

// RecordActivity applies an activity day to the streak.
func (a *Avatar) RecordActivity(day shared.Date) StreakChange {
	next, change := RecordActivity(a.Streak, day)
	a.Streak = next
	return change
}

// HasAchievement reports whether id was already earned.
func (a *Avatar) HasAchievement(id string) bool {
	for _, e := range a.Achievements {
		if e.ID == id {
			return true
		}
	}
	return false
}

// EarnAchievement appends id unless it is already present.
func (a *Avatar) EarnAchievement(id string, at time.Time) bool {
	if id == "" || a.HasAchievement(id) {
		return false
	}
	a.Achievements = append(a.Achievements, EarnedAchievement{ID: id, EarnedAt: at})
	a.UpdatedAt = at
	return true
}

// AchievementIDs returns the earned ids in earning order.
func (a *Avatar) AchievementIDs() []string {
	ids := make([]string, 0, len(a.Achievements))
	for _, e := range a.Achievements {
		ids = append(ids, e.ID)
	}
	return ids
}

// AddTitle grants a cosmetic title once.
func (a *Avatar) AddTitle(title string) {
	if title == "" {
		return
	}
	for _, t := range a.Titles {
		if t == title {
			return
		}
	}
	a.Titles = append(a.Titles, title)
}

// SetDisplayName updates the name shown on leaderboards. Empty keeps the current one.
func (a *Avatar) SetDisplayName(name string) {
	if name != "" {
		a.DisplayName = name
	}
}

// SetAppearance replaces the customization blob. The engine does not interpret it.
func (a *Avatar) SetAppearance(blob json.RawMessage, at time.Time) error {
	if len(blob) > 0 && !json.Valid(blob) {
		return shared.NewDomainError("progress", "SetAppearance", shared.ErrInvalidFormat, "appearance must be valid JSON")
	}
	a.Appearance = append(json.RawMessage(nil), blob...)
	a.UpdatedAt = at
	return nil
}

// SkillXP returns XP accumulated in skill.
func (a *Avatar) SkillXP(skill Skill) int64 {
	return a.Skills[skill].XP
}

// SkillLevel returns the level in skill (1 when untouched).
func (a *Avatar) SkillLevel(skill Skill) int {
	return LevelFor(a.Skills[skill].XP)
}

// SkillsAtLevel counts skills at or above level.
func (a *Avatar) SkillsAtLevel(level int) int {
	n := 0
	for _, sp := range a.Skills {
		if LevelFor(sp.XP) >= level {
			n++
		}
	}
	return n
}

// SkillXPMap returns skill XP keyed by skill id, for projections.
func (a *Avatar) SkillXPMap() map[string]int64 {
	out := make(map[string]int64, len(a.Skills))
	for skill, sp := range a.Skills {
		out[string(skill)] = sp.XP
	}
	return out
}

// SortedSkills returns skills with XP, highest first.
func (a *Avatar) SortedSkills() []Skill {
	skills := make([]Skill, 0, len(a.Skills))
	for s := range a.Skills {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool {
		xi, xj := a.Skills[skills[i]].XP, a.Skills[skills[j]].XP
		if xi != xj {
			return xi > xj
		}
		return skills[i] < skills[j]
	})
	return skills
}

// PendingGrants returns ledger rows not yet persisted.
func (a *Avatar) PendingGrants() []XPGrant {
	return a.pendingGrants
}

// ClearPendingGrants is called by stores after the ledger write commits.
func (a *Avatar) ClearPendingGrants() {
	a.pendingGrants = nil
}

// Clone returns a deep copy, including pending grants.
func (a *Avatar) Clone() *Avatar {
	c := *a
	c.Skills = make(map[Skill]SkillProgress, len(a.Skills))
	for k, v := range a.Skills {
		c.Skills[k] = v
	}
	c.SourceCounts = make(map[Source]int64, len(a.SourceCounts))
	for k, v := range a.SourceCounts {
		c.SourceCounts[k] = v
	}
	c.Achievements = append(make([]EarnedAchievement, 0, len(a.Achievements)), a.Achievements...)
	c.Titles = append(make([]string, 0, len(a.Titles)), a.Titles...)
	if a.Appearance != nil {
		c.Appearance = append(json.RawMessage(nil), a.Appearance...)
	}
	if a.pendingGrants != nil {
		c.pendingGrants = append([]XPGrant(nil), a.pendingGrants...)
	}
	return &c
}

// String returns a short description for logs.
func (a *Avatar) String() string {
	return fmt.Sprintf("Avatar{%s, xp=%d, level=%d}", a.UserID, a.TotalXP, a.Level)
}

// Package leaderboard содержит доменную модель рейтинга: области (scope),
// записи и контракт индекса.
package leaderboard

import (
	"fmt"
	"strings"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// ScopeKind определяет тип рейтинга.
type ScopeKind string

const (
	// ScopeOverall - общий рейтинг по TotalXP.
	ScopeOverall ScopeKind = "overall"

	// ScopeSkill - рейтинг по XP одного навыка.
	ScopeSkill ScopeKind = "skill"
)

// Scope - область рейтинга: общий или по навыку.
type Scope struct {
	Kind  ScopeKind
	Skill progress.Skill
}

// Overall возвращает общий scope.
func Overall() Scope {
	return Scope{Kind: ScopeOverall}
}

// ForSkill возвращает scope навыка.
func ForSkill(skill progress.Skill) Scope {
	return Scope{Kind: ScopeSkill, Skill: skill}
}

// ParseScope разбирает параметры запроса type и skill.
// Пустой type означает overall.
func ParseScope(kind, skill string) (Scope, error) {
	switch ScopeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", ScopeOverall:
		return Overall(), nil
	case ScopeSkill:
		s, err := progress.ParseSkill(skill)
		if err != nil {
			return Scope{}, err
		}
		if s == "" {
			return Scope{}, shared.WrapError("leaderboard", "ParseScope", shared.ErrInvalidInput,
				"skill is required for skill leaderboards", shared.ErrInvalidScope)
		}
		return ForSkill(s), nil
	default:
		return Scope{}, shared.ErrInvalidScope
	}
}

// IsValid проверяет корректность scope.
func (s Scope) IsValid() bool {
	switch s.Kind {
	case ScopeOverall:
		return s.Skill == ""
	case ScopeSkill:
		return s.Skill.IsValid()
	default:
		return false
	}
}

// Key - стабильный идентификатор scope для ключей хранилища.
func (s Scope) Key() string {
	if s.Kind == ScopeSkill {
		return "skill:" + string(s.Skill)
	}
	return string(ScopeOverall)
}

// String возвращает строковое представление.
func (s Scope) String() string {
	return s.Key()
}

// AllScopes возвращает overall и scope каждого навыка.
func AllScopes() []Scope {
	skills := progress.AllSkills()
	scopes := make([]Scope, 0, len(skills)+1)
	scopes = append(scopes, Overall())
	for _, sk := range skills {
		scopes = append(scopes, ForSkill(sk))
	}
	return scopes
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Standing - снимок аватара, который проецируется во все scope.
type Standing struct {
	UserID      shared.UserID
	DisplayName string
	TotalXP     int64
	Level       int
	SkillXP     map[progress.Skill]int64
}

// StandingFromAvatar строит Standing из авторитетной записи.
func StandingFromAvatar(a *progress.Avatar) Standing {
	skills := make(map[progress.Skill]int64, len(a.Skills))
	for sk, sp := range a.Skills {
		skills[sk] = sp.XP
	}
	return Standing{
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		TotalXP:     a.TotalXP,
		Level:       progress.LevelFor(a.TotalXP),
		SkillXP:     skills,
	}
}

// XPFor возвращает XP в указанном scope.
func (s Standing) XPFor(scope Scope) int64 {
	if scope.Kind == ScopeSkill {
		return s.SkillXP[scope.Skill]
	}
	return s.TotalXP
}

// Entry - запись рейтинга. Проекция, не источник истины.
type Entry struct {
	UserID      shared.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	XP          int64         `json:"xp"`
	Level       int           `json:"level"`
	Rank        shared.Rank   `json:"rank"`
}

// String возвращает краткое описание для логов.
func (e Entry) String() string {
	return fmt.Sprintf("#%d %s (%d XP)", e.Rank, e.UserID, e.XP)
}

// Ranks - порядок рейтинга: XP по убыванию, при равенстве user_id по возрастанию.
// Это полный порядок, поэтому Top стабилен между вызовами.
func Ranks(aXP int64, aUser shared.UserID, bXP int64, bUser shared.UserID) bool {
	if aXP != bXP {
		return aXP > bXP
	}
	return aUser < bUser
}

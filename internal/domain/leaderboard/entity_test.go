package leaderboard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

func TestParseScope(t *testing.T) {
	s, err := ParseScope("", "")
	require.NoError(t, err)
	assert.Equal(t, Overall(), s)
	assert.Equal(t, "overall", s.Key())

	s, err = ParseScope("skill", "coding")
	require.NoError(t, err)
	assert.Equal(t, ForSkill(progress.SkillCoding), s)
	assert.Equal(t, "skill:coding", s.Key())
	assert.True(t, s.IsValid())

	_, err = ParseScope("skill", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = ParseScope("skill", "alchemy")
	assert.True(t, errors.Is(err, shared.ErrUnknownSkill))

	_, err = ParseScope("weekly", "")
	assert.True(t, shared.IsValidation(err))
}

func TestAllScopes(t *testing.T) {
	scopes := AllScopes()
	assert.Len(t, scopes, len(progress.AllSkills())+1)
	assert.Equal(t, Overall(), scopes[0])
}

func TestRanks_TieBreakByUserID(t *testing.T) {
	assert.True(t, Ranks(200, "z", 100, "a"))
	assert.False(t, Ranks(100, "a", 200, "z"))
	assert.True(t, Ranks(100, "a", 100, "b"))
	assert.False(t, Ranks(100, "b", 100, "a"))
}

func TestStandingFromAvatar(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := progress.NewAvatar("u1", now)
	a.SetDisplayName("Aru")
	_, _ = a.GrantXP(150, progress.SkillScience, progress.SourceQuiz, now)
	_, _ = a.GrantXP(50, "", progress.SourceManual, now)

	s := StandingFromAvatar(a)
	assert.Equal(t, "Aru", s.DisplayName)
	assert.Equal(t, int64(200), s.XPFor(Overall()))
	assert.Equal(t, int64(150), s.XPFor(ForSkill(progress.SkillScience)))
	assert.Equal(t, int64(0), s.XPFor(ForSkill(progress.SkillArts)))
	assert.Equal(t, 2, s.Level)
}

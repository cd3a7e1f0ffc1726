package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
)

func seededIndex(t *testing.T, n int) *memory.LeaderboardIndex {
	t.Helper()
	idx := memory.NewLeaderboardIndex()
	for i := 1; i <= n; i++ {
		xp := int64(i * 100)
		require.NoError(t, idx.Upsert(context.Background(), leaderboard.Standing{
			UserID:  shared.UserID(fmt.Sprintf("user%02d", i)),
			TotalXP: xp,
			Level:   progress.LevelFor(xp),
			SkillXP: map[progress.Skill]int64{progress.SkillCoding: xp / 2},
		}))
	}
	return idx
}

func TestGetLeaderboard_DefaultAndCappedLimit(t *testing.T) {
	h := NewGetLeaderboardHandler(seededIndex(t, 30), nil, nil, GetLeaderboardHandlerConfig{MaxLimit: 20})
	ctx := context.Background()

	res, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, DefaultLeaderboardLimit)
	assert.Equal(t, int64(30), res.Total)
	assert.Equal(t, leaderboard.Overall(), res.Scope)
	assert.Equal(t, shared.UserID("user30"), res.Entries[0].UserID)
	assert.Equal(t, shared.Rank(1), res.Entries[0].Rank)

	res, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 20)

	_, err = h.Handle(ctx, GetLeaderboardQuery{Limit: -1})
	assert.True(t, errors.Is(err, shared.ErrValueOutOfRange))
}

func TestGetLeaderboard_SkillScopeFlag(t *testing.T) {
	idx := seededIndex(t, 3)
	ctx := context.Background()

	off := NewGetLeaderboardHandler(idx, flags{}, nil, GetLeaderboardHandlerConfig{})
	_, err := off.Handle(ctx, GetLeaderboardQuery{Type: "skill", Skill: "coding"})
	assert.True(t, errors.Is(err, ErrSkillScopesDisabled))

	on := NewGetLeaderboardHandler(idx, flags{FeatureLeaderboardSkillScopes: true}, nil, GetLeaderboardHandlerConfig{})
	res, err := on.Handle(ctx, GetLeaderboardQuery{Type: "skill", Skill: "coding"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, int64(150), res.Entries[0].XP)

	_, err = on.Handle(ctx, GetLeaderboardQuery{Type: "skill", Skill: "alchemy"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetLeaderboard_Rank(t *testing.T) {
	h := NewGetLeaderboardHandler(seededIndex(t, 5), nil, nil, GetLeaderboardHandlerConfig{})
	ctx := context.Background()

	e, err := h.Rank(ctx, GetRankQuery{UserID: "user04"})
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(2), e.Rank)
	assert.Equal(t, int64(400), e.XP)

	_, err = h.Rank(ctx, GetRankQuery{UserID: "ghost"})
	assert.True(t, IsNotRanked(err))
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

func standing(id string, total int64, skills map[progress.Skill]int64) leaderboard.Standing {
	return leaderboard.Standing{
		UserID:      shared.UserID(id),
		DisplayName: "name-" + id,
		TotalXP:     total,
		Level:       progress.LevelFor(total),
		SkillXP:     skills,
	}
}

func TestLeaderboardIndex_OrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	idx := NewLeaderboardIndex()

	require.NoError(t, idx.Upsert(ctx, standing("carol", 300, nil)))
	require.NoError(t, idx.Upsert(ctx, standing("bob", 500, nil)))
	require.NoError(t, idx.Upsert(ctx, standing("alice", 300, nil)))

	top, err := idx.Top(ctx, leaderboard.Overall(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, shared.UserID("bob"), top[0].UserID)
	assert.Equal(t, shared.UserID("alice"), top[1].UserID)
	assert.Equal(t, shared.UserID("carol"), top[2].UserID)
	assert.Equal(t, shared.Rank(3), top[2].Rank)
	assert.Equal(t, "name-bob", top[0].DisplayName)
	assert.Equal(t, 3, top[1].Level)

	e, err := idx.RankOf(ctx, leaderboard.Overall(), "carol")
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(3), e.Rank)

	top, err = idx.Top(ctx, leaderboard.Overall(), 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestLeaderboardIndex_NeverDecreases(t *testing.T) {
	ctx := context.Background()
	idx := NewLeaderboardIndex()

	require.NoError(t, idx.Upsert(ctx, standing("u1", 500, nil)))
	require.NoError(t, idx.Upsert(ctx, standing("u1", 200, nil)))

	e, err := idx.RankOf(ctx, leaderboard.Overall(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), e.XP)

	n, _ := idx.Count(ctx, leaderboard.Overall())
	assert.Equal(t, int64(1), n)
}

func TestLeaderboardIndex_SkillScopes(t *testing.T) {
	ctx := context.Background()
	idx := NewLeaderboardIndex()

	require.NoError(t, idx.Upsert(ctx, standing("u1", 400, map[progress.Skill]int64{progress.SkillCoding: 400})))
	require.NoError(t, idx.Upsert(ctx, standing("u2", 900, map[progress.Skill]int64{
		progress.SkillCoding: 100, progress.SkillArts: 0,
	})))

	coding := leaderboard.ForSkill(progress.SkillCoding)
	top, err := idx.Top(ctx, coding, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, shared.UserID("u1"), top[0].UserID)
	assert.Equal(t, 3, top[0].Level)

	_, err = idx.RankOf(ctx, leaderboard.ForSkill(progress.SkillArts), "u2")
	assert.ErrorIs(t, err, shared.ErrNotRanked)

	_, err = idx.Top(ctx, leaderboard.Scope{Kind: "weekly"}, 5)
	assert.True(t, shared.IsValidation(err))
}

func TestLeaderboardIndex_Empty(t *testing.T) {
	ctx := context.Background()
	idx := NewLeaderboardIndex()

	top, err := idx.Top(ctx, leaderboard.Overall(), 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = idx.RankOf(ctx, leaderboard.Overall(), "ghost")
	assert.True(t, shared.IsNotFound(err))
}

package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
)

func secretCount(views []AchievementView) int {
	n := 0
	for _, v := range views {
		if v.Definition.Secret {
			n++
		}
	}
	return n
}

func TestListAchievements_VisibleHidesSecrets(t *testing.T) {
	store := memory.NewAvatarStore(time.Now)
	h := NewListAchievementsHandler(nil, store, nil, 0)

	views, err := h.Handle(context.Background(), ListAchievementsQuery{})
	require.NoError(t, err)
	assert.NotEmpty(t, views)
	assert.Zero(t, secretCount(views))

	all, err := h.Handle(context.Background(), ListAchievementsQuery{Type: ListTypeAll})
	require.NoError(t, err)
	assert.Equal(t, achievement.DefaultCatalog().Len(), len(all))

	secret, err := h.Handle(context.Background(), ListAchievementsQuery{Type: "SECRET"})
	require.NoError(t, err)
	assert.Equal(t, len(secret), secretCount(secret))
	assert.Equal(t, len(all)-len(views), len(secret))
}

func TestListAchievements_SecretListingFlag(t *testing.T) {
	h := NewListAchievementsHandler(nil, memory.NewAvatarStore(time.Now), flags{}, 0)

	views, err := h.Handle(context.Background(), ListAchievementsQuery{Type: ListTypeAll})
	require.NoError(t, err)
	assert.Zero(t, secretCount(views))
}

func TestListAchievements_Validation(t *testing.T) {
	h := NewListAchievementsHandler(nil, memory.NewAvatarStore(time.Now), nil, 0)

	_, err := h.Handle(context.Background(), ListAchievementsQuery{Type: "hidden"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ListAchievementsQuery{Category: "nonsense"})
	assert.Error(t, err)
}

func TestListAchievements_EarnedState(t *testing.T) {
	store := memory.NewAvatarStore(time.Now)
	h := NewListAchievementsHandler(nil, store, nil, 0)
	ctx := context.Background()
	at := time.Date(2026, time.May, 2, 8, 0, 0, 0, time.UTC)

	_, err := store.Update(ctx, "u1", func(a *progress.Avatar) error {
		a.EarnAchievement(achievement.IDFirstSteps, at)
		a.EarnAchievement(achievement.IDMarathon, at)
		return nil
	})
	require.NoError(t, err)

	views, err := h.Handle(ctx, ListAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)

	byID := map[string]AchievementView{}
	for _, v := range views {
		byID[v.Definition.ID] = v
	}
	require.Contains(t, byID, achievement.IDFirstSteps)
	assert.True(t, byID[achievement.IDFirstSteps].Earned)
	require.NotNil(t, byID[achievement.IDFirstSteps].EarnedAt)
	assert.True(t, at.Equal(*byID[achievement.IDFirstSteps].EarnedAt))

	// Earned secrets stay visible to their owner.
	require.Contains(t, byID, achievement.IDMarathon)
	assert.True(t, byID[achievement.IDMarathon].Earned)
	assert.False(t, byID[achievement.IDScholar].Earned)
}

func TestListAchievements_DoesNotCreateAvatars(t *testing.T) {
	store := memory.NewAvatarStore(time.Now)
	h := NewListAchievementsHandler(nil, store, nil, 0)

	_, err := h.Handle(context.Background(), ListAchievementsQuery{UserID: "lurker"})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "lurker")
	assert.True(t, shared.IsNotFound(err))
}

package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
)

func TestListLocations(t *testing.T) {
	ctx := context.Background()
	dir, err := campus.NewDirectory(
		campus.Location{ID: "booth", Name: "Booth", Capacity: 1, Access: campus.Public()},
		campus.Location{ID: "lab", Name: "Lab", Capacity: 5, Access: campus.LevelRequired(3)},
	)
	require.NoError(t, err)

	occ := memory.NewOccupancyStore()
	store := memory.NewAvatarStore(time.Now)
	now := time.Now().UTC()

	booth, _ := dir.Get("booth")
	_, err = occ.Join(ctx, booth, campus.Occupant{UserID: "alice", LocationID: "booth", JoinedAt: now, LastSeenAt: now})
	require.NoError(t, err)

	h := NewListLocationsHandler(dir, occ, store, 0)

	anon, err := h.Handle(ctx, ListLocationsQuery{})
	require.NoError(t, err)
	require.Len(t, anon, 2)
	assert.Equal(t, "booth", anon[0].Location.ID)
	assert.Equal(t, 1, anon[0].Occupancy)
	assert.False(t, anon[0].CanJoin)

	views, err := h.Handle(ctx, ListLocationsQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, views[0].Present)
	assert.True(t, views[0].CanJoin, "present users can always rejoin")
	assert.False(t, views[1].CanJoin, "level 1 cannot enter the lab")

	views, err = h.Handle(ctx, ListLocationsQuery{UserID: "bob"})
	require.NoError(t, err)
	assert.False(t, views[0].Present)
	assert.False(t, views[0].CanJoin, "booth is full")

	_, err = store.Update(ctx, "bob", func(a *progress.Avatar) error {
		_, err := a.GrantXP(300, progress.SkillCoding, progress.SourceStudySession, now)
		return err
	})
	require.NoError(t, err)
	views, err = h.Handle(ctx, ListLocationsQuery{UserID: "bob"})
	require.NoError(t, err)
	assert.True(t, views[1].CanJoin)

	_, err = h.Handle(ctx, ListLocationsQuery{UserID: "bad id"})
	assert.True(t, shared.IsValidation(err))
}

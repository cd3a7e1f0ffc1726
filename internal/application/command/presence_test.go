package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
)

type flags map[string]bool

func (f flags) IsEnabled(name, _ string) bool { return f[name] }

func newPresence(t *testing.T, f *fixture, features FeatureChecker, joinXP int64, locations ...campus.Location) (*PresenceManager, *memory.OccupancyStore) {
	t.Helper()
	if len(locations) == 0 {
		locations = campus.DefaultLocations()
		for i := range locations {
			if locations[i].Access.Kind == campus.AccessRestricted {
				locations[i].Access = campus.Restricted("mentor")
			}
		}
	}
	dir, err := campus.NewDirectory(locations...)
	require.NoError(t, err)
	occ := memory.NewOccupancyStore()
	pm := NewPresenceManager(dir, occ, f.store, f.engine, f.events, features, f.clock, nil, nil,
		PresenceManagerConfig{JoinXP: joinXP})
	return pm, occ
}

func TestPresence_JoinAndLeave(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, nil, 0)
	ctx := context.Background()

	res, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library", DisplayName: "Aru"})
	require.NoError(t, err)
	assert.Equal(t, "library", res.Location.ID)
	assert.Equal(t, 1, res.Occupancy)
	assert.False(t, res.AlreadyPresent)
	assert.Nil(t, res.Award)
	assert.Equal(t, 1, f.events.count(shared.EventCampusJoined))

	a, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.HasAchievement(achievement.IDCampusExplorer))
	assert.Equal(t, int64(0), a.TotalXP)

	res, err = pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyPresent)
	assert.Equal(t, 1, f.events.count(shared.EventCampusJoined))

	left, err := pm.Leave(ctx, LeaveLocationCommand{UserID: "u1", LocationID: "library"})
	require.NoError(t, err)
	assert.True(t, left)
	ev := f.events.last(shared.EventCampusLeft).(shared.CampusPresenceEvent)
	assert.Equal(t, LeaveReasonLeave, ev.Reason)

	left, err = pm.Leave(ctx, LeaveLocationCommand{UserID: "u1", LocationID: "library"})
	require.NoError(t, err)
	assert.False(t, left)
}

func TestPresence_Errors(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, nil, 0)
	ctx := context.Background()

	_, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "moon_base"})
	assert.True(t, shared.IsNotFound(err))

	_, err = pm.Join(ctx, JoinLocationCommand{UserID: " ", LocationID: "library"})
	assert.True(t, errors.Is(err, shared.ErrInvalidID))

	_, err = pm.Leave(ctx, LeaveLocationCommand{UserID: "u1", LocationID: "moon_base"})
	assert.True(t, shared.IsNotFound(err))
}

func TestPresence_AccessRules(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, nil, 0)
	ctx := context.Background()

	_, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "coding_lab"})
	assert.True(t, errors.Is(err, shared.ErrAccessDenied))

	_, err = f.engine.Award(ctx, AwardXPCommand{UserID: "u1", Amount: 1000})
	require.NoError(t, err)
	_, err = pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "coding_lab"})
	assert.NoError(t, err)

	_, err = pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "mentor_lounge"})
	assert.True(t, errors.Is(err, shared.ErrAccessDenied))

	_, err = pm.Join(ctx, JoinLocationCommand{UserID: "mentor", LocationID: "mentor_lounge"})
	assert.NoError(t, err)
}

func TestPresence_CapacityOne(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, nil, 0, campus.Location{ID: "booth", Capacity: 1, Access: campus.Public()})
	ctx := context.Background()

	_, err := pm.Join(ctx, JoinLocationCommand{UserID: "a", LocationID: "booth"})
	require.NoError(t, err)

	_, err = pm.Join(ctx, JoinLocationCommand{UserID: "b", LocationID: "booth"})
	assert.True(t, errors.Is(err, shared.ErrCapacityExceeded))

	_, err = pm.Leave(ctx, LeaveLocationCommand{UserID: "a", LocationID: "booth"})
	require.NoError(t, err)

	_, err = pm.Join(ctx, JoinLocationCommand{UserID: "b", LocationID: "booth"})
	assert.NoError(t, err)
}

func TestPresence_ConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newFixture()
	pm, occ := newPresence(t, f, nil, 0, campus.Location{ID: "cafe", Capacity: 20, Access: campus.Public()})
	ctx := context.Background()

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pm.Join(ctx, JoinLocationCommand{UserID: fmt.Sprintf("u%02d", i), LocationID: "cafe"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, shared.ErrCapacityExceeded):
				full.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(20), ok.Load())
	assert.Equal(t, int32(30), full.Load())
	list, err := occ.Occupants(ctx, "cafe")
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestPresence_MovePublishesLeave(t *testing.T) {
	f := newFixture()
	pm, occ := newPresence(t, f, nil, 0)
	ctx := context.Background()

	_, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library"})
	require.NoError(t, err)
	res, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "cafe"})
	require.NoError(t, err)
	assert.Equal(t, "library", res.PreviousLocation)

	ev := f.events.last(shared.EventCampusLeft).(shared.CampusPresenceEvent)
	assert.Equal(t, LeaveReasonMoved, ev.Reason)
	assert.Equal(t, "library", ev.LocationID)

	where, _ := occ.LocationOf(ctx, "u1")
	assert.Equal(t, "cafe", where)
}

func TestPresence_JoinReward(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, flags{FeatureCampusJoinReward: true}, 15)
	ctx := context.Background()

	res, err := pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library", DisplayName: "Aru"})
	require.NoError(t, err)
	require.NotNil(t, res.Award)
	assert.Equal(t, int64(15), res.Award.Amount)
	assert.Equal(t, "Aru", res.Award.Avatar.DisplayName)
	assert.GreaterOrEqual(t, res.Award.Avatar.TotalXP, int64(15))
	assert.True(t, res.Award.Avatar.HasAchievement(achievement.IDCampusExplorer))

	res, err = pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library"})
	require.NoError(t, err)
	assert.Nil(t, res.Award, "rejoin is not rewarded")
}

func TestPresence_HeartbeatAndSweep(t *testing.T) {
	f := newFixture()
	pm, _ := newPresence(t, f, nil, 0)
	ctx := context.Background()

	present, err := pm.Heartbeat(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, present)

	_, _ = pm.Join(ctx, JoinLocationCommand{UserID: "u1", LocationID: "library"})
	_, _ = pm.Join(ctx, JoinLocationCommand{UserID: "u2", LocationID: "cafe"})

	f.clock.Advance(10 * time.Minute)
	present, err = pm.Heartbeat(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, present)

	f.clock.Advance(10 * time.Minute)
	removed, err := pm.Sweep(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ev := f.events.last(shared.EventCampusLeft).(shared.CampusPresenceEvent)
	assert.Equal(t, LeaveReasonTimeout, ev.Reason)
	assert.Equal(t, "u1", ev.AggregateID())

	_, err = pm.Sweep(ctx, 0)
	assert.True(t, shared.IsValidation(err))
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, "test:"), mr
}

func TestNewClient_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Config{Addr: mr.Addr(), KeyPrefix: "p:"})
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "p:lb:overall", c.Key("lb", "overall"))

	_, err = NewClient(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestNewClient_FromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	assert.NoError(t, c.Close())

	_, err = NewClient(context.Background(), Config{URL: "http://nope"})
	assert.Error(t, err)
}

func TestLeaderboardIndex_Redis(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	idx := NewLeaderboardIndex(c)

	up := func(id string, total int64, coding int64) {
		require.NoError(t, idx.Upsert(ctx, leaderboard.Standing{
			UserID:      shared.UserID(id),
			DisplayName: "name-" + id,
			TotalXP:     total,
			SkillXP:     map[progress.Skill]int64{progress.SkillCoding: coding},
		}))
	}
	up("carol", 300, 0)
	up("bob", 500, 120)
	up("alice", 300, 400)

	top, err := idx.Top(ctx, leaderboard.Overall(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, shared.UserID("bob"), top[0].UserID)
	assert.Equal(t, shared.UserID("alice"), top[1].UserID)
	assert.Equal(t, shared.UserID("carol"), top[2].UserID)
	assert.Equal(t, int64(500), top[0].XP)
	assert.Equal(t, "name-bob", top[0].DisplayName)
	assert.Equal(t, 3, top[0].Level)

	e, err := idx.RankOf(ctx, leaderboard.Overall(), "carol")
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(3), e.Rank)

	coding := leaderboard.ForSkill(progress.SkillCoding)
	n, err := idx.Count(ctx, coding)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = idx.RankOf(ctx, coding, "carol")
	assert.ErrorIs(t, err, shared.ErrNotRanked)
}

func TestLeaderboardIndex_RedisNeverLowers(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	idx := NewLeaderboardIndex(c)

	require.NoError(t, idx.Upsert(ctx, leaderboard.Standing{UserID: "u1", TotalXP: 800}))
	require.NoError(t, idx.Upsert(ctx, leaderboard.Standing{UserID: "u1", TotalXP: 100}))

	e, err := idx.RankOf(ctx, leaderboard.Overall(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(800), e.XP)
}

func TestOccupancyStore_Redis(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	s := NewOccupancyStore(c)

	lib := campus.Location{ID: "library", Capacity: 1}
	cafe := campus.Location{ID: "cafe", Capacity: 5}
	occ := func(id string, at time.Time) campus.Occupant {
		return campus.Occupant{UserID: shared.UserID(id), DisplayName: id, JoinedAt: at, LastSeenAt: at}
	}

	out, err := s.Join(ctx, lib, occ("a", t0))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Occupancy)
	assert.Empty(t, out.PreviousLocation)

	out, err = s.Join(ctx, lib, occ("a", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, out.AlreadyPresent)

	_, err = s.Join(ctx, lib, occ("b", t0))
	assert.ErrorIs(t, err, shared.ErrCapacityExceeded)

	out, err = s.Join(ctx, cafe, occ("a", t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "library", out.PreviousLocation)

	where, err := s.LocationOf(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "cafe", where)

	libOcc, err := s.Occupants(ctx, "library")
	require.NoError(t, err)
	assert.Empty(t, libOcc)

	cafeOcc, err := s.Occupants(ctx, "cafe")
	require.NoError(t, err)
	require.Len(t, cafeOcc, 1)
	assert.Equal(t, "cafe", cafeOcc[0].LocationID)
	assert.True(t, cafeOcc[0].LastSeenAt.Equal(t0.Add(2*time.Minute)))

	left, err := s.Leave(ctx, "cafe", "a")
	require.NoError(t, err)
	assert.True(t, left)
	left, err = s.Leave(ctx, "cafe", "a")
	require.NoError(t, err)
	assert.False(t, left)

	where, _ = s.LocationOf(ctx, "a")
	assert.Equal(t, "", where)
}

func TestOccupancyStore_RedisSweep(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	s := NewOccupancyStore(c)
	lib := campus.Location{ID: "library", Capacity: 10}

	for _, id := range []string{"old", "fresh"} {
		_, err := s.Join(ctx, lib, campus.Occupant{UserID: shared.UserID(id), JoinedAt: t0, LastSeenAt: t0})
		require.NoError(t, err)
	}

	ok, err := s.Touch(ctx, "fresh", t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Touch(ctx, "ghost", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := s.RemoveStale(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, shared.UserID("old"), removed[0].UserID)
	assert.Equal(t, "library", removed[0].LocationID)

	occ, err := s.Occupants(ctx, "library")
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, shared.UserID("fresh"), occ[0].UserID)

	where, _ := s.LocationOf(ctx, "old")
	assert.Equal(t, "", where)
}

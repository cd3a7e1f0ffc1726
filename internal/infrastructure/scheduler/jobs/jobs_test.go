package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
)

func TestRebuildLeaderboardJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.February, 2, 9, 0, 0, 0, time.UTC)
	store := memory.NewAvatarStore(func() time.Time { return now })
	for i := 1; i <= 7; i++ {
		_, err := store.Update(ctx, shared.UserID(fmt.Sprintf("u%d", i)), func(a *progress.Avatar) error {
			_, err := a.GrantXP(int64(i*10), progress.SkillMusic, progress.SourceQuiz, now)
			return err
		})
		require.NoError(t, err)
	}

	idx := memory.NewLeaderboardIndex()
	job := NewRebuildLeaderboardJob(store, idx, nil, RebuildLeaderboardConfig{BatchSize: 3, Concurrency: 2})
	assert.Equal(t, "rebuild_leaderboard", job.Name())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(7), stats.Avatars)
	assert.Equal(t, 3, stats.Batches)

	n, err := idx.Count(ctx, leaderboard.Overall())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	top, err := idx.Top(ctx, leaderboard.ForSkill(progress.SkillMusic), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, shared.UserID("u7"), top[0].UserID)

	// Повторный прогон идемпотентен.
	require.NoError(t, job.Run(ctx))
	n, _ = idx.Count(ctx, leaderboard.Overall())
	assert.Equal(t, int64(7), n)
}

type brokenIndex struct{ leaderboard.Index }

func (brokenIndex) Upsert(context.Context, leaderboard.Standing) error { return errors.New("index down") }

func TestRebuildLeaderboardJob_IndexFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAvatarStore(time.Now)
	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	job := NewRebuildLeaderboardJob(store, brokenIndex{}, nil, RebuildLeaderboardConfig{})
	err = job.Run(ctx)
	assert.ErrorContains(t, err, "index down")
	assert.Equal(t, int64(0), job.LastStats().Avatars)
}

type sweeper struct {
	calls int
	after time.Duration
	err   error
}

func (s *sweeper) Sweep(_ context.Context, staleAfter time.Duration) (int, error) {
	s.calls++
	s.after = staleAfter
	return 2, s.err
}

func TestSweepPresenceJob(t *testing.T) {
	sw := &sweeper{}
	enabled := true
	job := NewSweepPresenceJob(sw, 0, func() bool { return enabled }, nil)
	assert.Equal(t, "sweep_campus_presence", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sw.calls)
	assert.Equal(t, 15*time.Minute, sw.after)

	enabled = false
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sw.calls, "disabled by flag")

	sw.err = errors.New("redis down")
	job = NewSweepPresenceJob(sw, time.Minute, nil, nil)
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, time.Minute, sw.after)
}

package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/config"
	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewDirectory(t *testing.T) {
	dir, err := NewDirectory([]string{"mentor-1"})
	require.NoError(t, err)

	lounge, err := dir.Get("mentor_lounge")
	require.NoError(t, err)
	assert.Equal(t, campus.AccessRestricted, lounge.Access.Kind)
	assert.NoError(t, lounge.Access.Check("mentor-1", 1))
	assert.True(t, errors.Is(lounge.Access.Check("student", 50), shared.ErrAccessDenied))

	_, err = NewDirectory([]string{"bad id"})
	assert.ErrorContains(t, err, "mentor id")
}

func TestBuild_MemoryBackends(t *testing.T) {
	cfg := memoryConfig(t)
	comp, err := Build(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer comp.Close()

	require.NotNil(t, comp.Engine)
	require.NotNil(t, comp.Presence)
	require.NotNil(t, comp.Metrics)

	ctx := context.Background()
	_, err = comp.Engine.Award(ctx, command.AwardXPCommand{UserID: "alice", Amount: 120, Skill: "coding"})
	require.NoError(t, err)
	comp.Bus.Drain()

	top, err := comp.Index.Top(ctx, leaderboard.Overall(), 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, shared.UserID("alice"), top[0].UserID)

	st := comp.Health.Check(ctx)
	assert.True(t, st.Ready)
}

func TestComponents_Scheduler(t *testing.T) {
	cfg := memoryConfig(t)
	comp, err := Build(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer comp.Close()

	sched, err := comp.Scheduler()
	require.NoError(t, err)

	names := []string{}
	for _, info := range sched.ListJobs() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"rebuild_leaderboard", "sweep_campus_presence"}, names)

	for _, res := range sched.RunAll(context.Background()) {
		assert.NoError(t, res.Error, res.JobName)
	}
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	_, err := Migrate(context.Background(), memoryConfig(t), logger.Nop())
	assert.ErrorContains(t, err, "store.backend=postgres")

	err = Rollback(context.Background(), memoryConfig(t), logger.Nop())
	assert.ErrorContains(t, err, "store.backend=postgres")
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(config.ObservabilityConfig{LogLevel: "warn", LogFormat: "json"}, "debug")
	require.NotNil(t, log)
	assert.NotPanics(t, func() { log.Debug("visible at debug") })
}

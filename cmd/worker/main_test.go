package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce_MemoryBackends(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	err := newApp().Run([]string{"campus-worker", "--log-level", "error", "run-once"})
	require.NoError(t, err)

	err = newApp().Run([]string{"campus-worker", "--log-level", "error", "run-once", "--job", "rebuild_leaderboard"})
	assert.NoError(t, err)
}

func TestRunOnce_UnknownJob(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	err := newApp().Run([]string{"campus-worker", "--log-level", "error",
		"run-once", "--job", "rebuild_leaderboard", "--job", "compact_everything"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "compact_everything")
	assert.ErrorContains(t, err, "job not found")
}

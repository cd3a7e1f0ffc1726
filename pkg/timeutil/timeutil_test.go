package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("+05:00")
	require.NoError(t, err)
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600, offset)

	_, err = LoadLocation("Nowhere/Atlantis")
	assert.Error(t, err)
}

func TestCalendar_TodayFollowsZone(t *testing.T) {
	clock := NewManualClock(time.Date(2026, time.March, 1, 22, 0, 0, 0, time.UTC))
	cal := NewCalendar(clock, time.FixedZone("ALMT", 5*3600))

	assert.Equal(t, "2026-03-02", cal.Today().String())

	clock.Advance(-20 * time.Hour)
	assert.Equal(t, "2026-03-01", cal.Today().String())

	utc := NewCalendar(clock, nil)
	assert.Equal(t, time.UTC, utc.Location())
	assert.Equal(t, "2026-03-01", utc.DayOf(clock.Now()).String())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
	c.Set(start)
	assert.Equal(t, start, c.Now())
}

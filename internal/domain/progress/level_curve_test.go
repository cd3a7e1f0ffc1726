package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold(t *testing.T) {
	assert.Equal(t, int64(0), Threshold(1))
	assert.Equal(t, int64(100), Threshold(2))
	assert.Equal(t, int64(300), Threshold(3))
	assert.Equal(t, int64(600), Threshold(4))
	assert.Equal(t, int64(1000), Threshold(5))
	assert.Equal(t, int64(0), Threshold(0))
}

func TestLevelFor_Boundaries(t *testing.T) {
	cases := map[int64]int{
		-5:   1,
		0:    1,
		99:   1,
		100:  2,
		299:  2,
		300:  3,
		999:  4,
		1000: 5,
	}
	for xp, want := range cases {
		assert.Equal(t, want, LevelFor(xp), "xp=%d", xp)
	}
}

func TestLevelFor_MatchesThresholds(t *testing.T) {
	for level := 1; level <= 500; level++ {
		at := Threshold(level)
		assert.Equal(t, level, LevelFor(at), "exactly at threshold of %d", level)
		if level > 1 {
			assert.Equal(t, level-1, LevelFor(at-1), "one below threshold of %d", level)
		}
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	prev := LevelFor(0)
	for xp := int64(1); xp < 50_000; xp += 37 {
		cur := LevelFor(xp)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestLevelForXP(t *testing.T) {
	p := LevelForXP(150)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(50), p.XPIntoLevel)
	assert.Equal(t, int64(150), p.XPToNext)
	assert.Equal(t, int64(100), p.LevelStartXP)
	assert.Equal(t, int64(300), p.NextLevelAtXP)
	assert.Equal(t, 25, p.Percent())

	zero := LevelForXP(-10)
	assert.Equal(t, 1, zero.Level)
	assert.Equal(t, int64(0), zero.XPIntoLevel)
	assert.Equal(t, int64(100), zero.XPToNext)
	assert.Equal(t, 0, zero.Percent())
}

package progress

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════
//
// Level n requires cumulative XP threshold(n) = LevelBaseCost * n*(n-1)/2:
//
//	level 1:     0 XP
//	level 2:   100 XP
//	level 3:   300 XP
//	level 4:   600 XP
//	level 5: 1 000 XP
//
// Every level costs LevelBaseCost more than the previous one. The inverse is
// computed in O(1) and corrected against the integer thresholds.

const (
	// LevelBaseCost is the XP cost of the first level-up.
	LevelBaseCost int64 = 100

	// MinLevel is the level of a fresh avatar.
	MinLevel = 1

	// MaxLevel caps the curve so thresholds stay within int64.
	MaxLevel = 100_000
)

// LevelProgress describes where an XP total sits on the curve.
type LevelProgress struct {
	Level         int   `json:"level"`
	XPIntoLevel   int64 `json:"xp_into_level"`
	XPToNext      int64 `json:"xp_to_next"`
	LevelStartXP  int64 `json:"level_start_xp"`
	NextLevelAtXP int64 `json:"next_level_at_xp"`
}

// Threshold returns the cumulative XP required to reach level.
func Threshold(level int) int64 {
	if level <= MinLevel {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	n := int64(level)
	return LevelBaseCost * (n * (n - 1) / 2)
}

// LevelFor returns only the level number for xp.
func LevelFor(xp int64) int {
	if xp <= 0 {
		return MinLevel
	}

	// n = floor((1 + sqrt(1 + 8*xp/base)) / 2)
	n := int((1 + math.Sqrt(1+8*float64(xp)/float64(LevelBaseCost))) / 2)
	if n < MinLevel {
		n = MinLevel
	}
	if n > MaxLevel {
		n = MaxLevel
	}

	// Float rounding can be off by one near thresholds.
	for n > MinLevel && Threshold(n) > xp {
		n--
	}
	for n < MaxLevel && Threshold(n+1) <= xp {
		n++
	}
	return n
}

// LevelForXP maps cumulative XP to level, XP gained inside the level and XP
// still needed for the next one. Negative input is treated as zero.
func LevelForXP(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := LevelFor(xp)
	start := Threshold(level)

	p := LevelProgress{
		Level:        level,
		XPIntoLevel:  xp - start,
		LevelStartXP: start,
	}
	if level < MaxLevel {
		p.NextLevelAtXP = Threshold(level + 1)
		p.XPToNext = p.NextLevelAtXP - xp
	} else {
		p.NextLevelAtXP = start
	}
	return p
}

// Percent returns progress through the current level in the range [0, 100].
func (p LevelProgress) Percent() int {
	span := p.NextLevelAtXP - p.LevelStartXP
	if span <= 0 {
		return 100
	}
	return int(p.XPIntoLevel * 100 / span)
}

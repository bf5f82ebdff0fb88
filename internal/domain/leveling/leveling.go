// Package leveling maps a lifetime XP total to a level.
//
// Level n starts at a cumulative threshold of 50*n*(n-1) XP, i.e. every level
// costs 100 XP more than the previous one: level 1 at 0, level 2 at 100,
// level 3 at 300, level 4 at 600. The mapping is a pure, total function over
// non-negative integers; stake suggestions and every balance read rely on it
// being deterministic.
package leveling

import (
	"math"
)

// MinLevel is the level of a fresh account.
const MinLevel = 1

// xpStep is the extra XP each level costs over the previous one.
const xpStep = 100

// Info describes where a total sits in the level schedule.
type Info struct {
	Level            int    `json:"level"`
	TotalXP          int64  `json:"total_xp"`
	CurrentXPInLevel int64  `json:"current_xp_in_level"`
	XPForNextLevel   int64  `json:"xp_for_next_level"`
	ProgressPercent  int    `json:"progress_percent"`
	Title            string `json:"title"`
}

// Threshold returns the cumulative XP at which level starts.
// Levels below MinLevel are clamped.
func Threshold(level int) int64 {
	if level < MinLevel {
		level = MinLevel
	}
	return int64(threshold(level))
}

// threshold stays in uint64 so the search in LevelFor cannot overflow near MaxInt64.
func threshold(level int) uint64 {
	n := uint64(level)
	return xpStep / 2 * n * (n - 1)
}

// XPForLevel returns the XP needed to go from level to level+1.
func XPForLevel(level int) int64 {
	if level < MinLevel {
		level = MinLevel
	}
	return int64(level) * xpStep
}

// LevelFor returns the level reached with totalXP. Negative totals count as zero.
func LevelFor(totalXP int64) int {
	if totalXP <= 0 {
		return MinLevel
	}
	// Closed-form estimate, then corrected for float rounding.
	n := int((1 + math.Sqrt(1+8*float64(totalXP)/xpStep)) / 2)
	if n < MinLevel {
		n = MinLevel
	}
	total := uint64(totalXP)
	for n > MinLevel && threshold(n) > total {
		n--
	}
	for threshold(n+1) <= total {
		n++
	}
	return n
}

// Calculate returns the full level breakdown for totalXP.
func Calculate(totalXP int64) Info {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelFor(totalXP)
	current := totalXP - Threshold(level)
	next := XPForLevel(level)

	percent := int(current * 100 / next)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return Info{
		Level:            level,
		TotalXP:          totalXP,
		CurrentXPInLevel: current,
		XPForNextLevel:   next,
		ProgressPercent:  percent,
		Title:            Title(level),
	}
}

// Title returns the display title for a level tier.
func Title(level int) string {
	switch {
	case level < 5:
		return "Novice"
	case level < 10:
		return "Apprentice"
	case level < 20:
		return "Student"
	case level < 30:
		return "Practitioner"
	case level < 50:
		return "Specialist"
	case level < 75:
		return "Expert"
	default:
		return "Master"
	}
}

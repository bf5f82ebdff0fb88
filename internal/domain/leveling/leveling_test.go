package leveling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold(t *testing.T) {
	assert.Equal(t, int64(0), Threshold(1))
	assert.Equal(t, int64(100), Threshold(2))
	assert.Equal(t, int64(300), Threshold(3))
	assert.Equal(t, int64(600), Threshold(4))
	assert.Equal(t, int64(0), Threshold(0), "levels below 1 clamp to level 1")
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		xp      int64
		level   int
		current int64
		next    int64
		percent int
	}{
		{"zero", 0, 1, 0, 100, 0},
		{"negative counts as zero", -50, 1, 0, 100, 0},
		{"half of level one", 50, 1, 50, 100, 50},
		{"just below level two", 99, 1, 99, 100, 99},
		{"exactly level two", 100, 2, 0, 200, 0},
		{"inside level two", 250, 2, 150, 200, 75},
		{"exactly level three", 300, 3, 0, 300, 0},
		{"level four", 600, 4, 0, 400, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Calculate(tt.xp)
			assert.Equal(t, tt.level, info.Level)
			assert.Equal(t, tt.current, info.CurrentXPInLevel)
			assert.Equal(t, tt.next, info.XPForNextLevel)
			assert.Equal(t, tt.percent, info.ProgressPercent)
		})
	}
}

func TestLevelIsMonotonicAndAtLeastOne(t *testing.T) {
	prev := 0
	for xp := int64(0); xp <= 200_000; xp += 7 {
		info := Calculate(xp)
		assert.GreaterOrEqual(t, info.Level, 1)
		if info.Level < prev {
			t.Fatalf("level decreased at %d XP: %d -> %d", xp, prev, info.Level)
		}
		assert.GreaterOrEqual(t, info.ProgressPercent, 0)
		assert.LessOrEqual(t, info.ProgressPercent, 100)
		assert.Less(t, info.CurrentXPInLevel, info.XPForNextLevel)
		prev = info.Level
	}
}

func TestLevelForBoundaries(t *testing.T) {
	for level := 1; level <= 500; level++ {
		start := Threshold(level)
		assert.Equal(t, level, LevelFor(start), "start of level %d", level)
		if level > 1 {
			assert.Equal(t, level-1, LevelFor(start-1), "just before level %d", level)
		}
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	for _, xp := range []int64{0, 1, 99, 100, 12345, 987654321} {
		assert.Equal(t, Calculate(xp), Calculate(xp))
	}
}

func TestCalculateHandlesMaxInt(t *testing.T) {
	info := Calculate(math.MaxInt64)
	assert.Greater(t, info.Level, 1)
	assert.GreaterOrEqual(t, info.ProgressPercent, 0)
	assert.LessOrEqual(t, info.ProgressPercent, 100)
	assert.Equal(t, "Master", info.Title)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Novice", Title(1))
	assert.Equal(t, "Apprentice", Title(5))
	assert.Equal(t, "Student", Title(10))
	assert.Equal(t, "Practitioner", Title(20))
	assert.Equal(t, "Specialist", Title(30))
	assert.Equal(t, "Expert", Title(50))
	assert.Equal(t, "Master", Title(75))
}

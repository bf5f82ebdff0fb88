package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDayUsesLocation(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	ts := time.Date(2026, 3, 2, 21, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), StartOfDay(ts, nil))
	assert.True(t, StartOfDay(ts, almaty).Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, almaty)))
	assert.True(t, IsSameDay(ts, ts.Add(3*time.Hour), almaty))
	assert.False(t, IsSameDay(ts, ts.Add(3*time.Hour), time.UTC))
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	before := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	after := time.Date(2026, 3, 9, 1, 0, 0, 0, ny)
	assert.Equal(t, 2, DaysBetween(before, after, ny))
	assert.Equal(t, -2, DaysBetween(after, before, ny))

	start := StartOfDay(before, ny)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, ny), AddDays(start, 7))
}

func TestParseAndFormatDate(t *testing.T) {
	d, err := ParseDate("2026-03-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", FormatDate(d))

	_, err = ParseDate("02/03/2026", nil)
	assert.Error(t, err)

	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock(at)())
}

package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

var start = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newPending(t *testing.T) *Challenge {
	t.Helper()
	c, err := New(NewParams{
		ID:           "c-1",
		ChallengerID: "alice",
		OpponentID:   "bob",
		HabitID:      "run",
		DurationDays: 7,
		StakeXP:      100,
		MaxStakeXP:   1000,
	}, start)
	require.NoError(t, err)
	return c
}

func newActive(t *testing.T) *Challenge {
	t.Helper()
	c := newPending(t)
	require.NoError(t, c.Accept("bob", start))
	require.NoError(t, c.Activate(start, time.UTC))
	return c
}

func TestNew_Validation(t *testing.T) {
	base := NewParams{ID: "c", ChallengerID: "a", OpponentID: "b", HabitID: "h", DurationDays: 14, StakeXP: 10}

	tests := []struct {
		name   string
		mutate func(p *NewParams)
	}{
		{"missing id", func(p *NewParams) { p.ID = "" }},
		{"same users", func(p *NewParams) { p.OpponentID = p.ChallengerID }},
		{"missing habit", func(p *NewParams) { p.HabitID = "" }},
		{"duration not allowed", func(p *NewParams) { p.DurationDays = 5 }},
		{"zero stake", func(p *NewParams) { p.StakeXP = 0 }},
		{"stake above cap", func(p *NewParams) { p.StakeXP = 11; p.MaxStakeXP = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := New(p, start)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	c, err := New(base, start)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, EscrowNone, c.Escrow)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusAccepted))
	assert.True(t, StatusAccepted.CanTransitionTo(StatusActive))
	assert.True(t, StatusActive.CanTransitionTo(StatusExpired))
	assert.False(t, StatusPending.CanTransitionTo(StatusActive))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusActive))

	for _, s := range []Status{StatusRejected, StatusCancelled, StatusCompleted, StatusExpired} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusActive.IsTerminal())
}

func TestActivate_WindowCoversDurationDays(t *testing.T) {
	c := newActive(t)

	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), *c.EndsAt)

	assert.False(t, c.InWindow(start.AddDate(0, 0, -1), time.UTC))
	assert.True(t, c.InWindow(start, time.UTC))
	assert.True(t, c.InWindow(time.Date(2026, time.March, 8, 23, 59, 0, 0, time.UTC), time.UTC))
	assert.False(t, c.InWindow(*c.EndsAt, time.UTC))
}

func TestActivate_RequiresAccepted(t *testing.T) {
	c := newPending(t)
	assert.ErrorIs(t, c.Activate(start, time.UTC), shared.ErrInvalidTransition)
}

func TestGuards_AuthorizationBeforeStatus(t *testing.T) {
	c := newActive(t)

	r := CanRespond(c, "mallory")
	assert.False(t, r.Allowed)
	assert.ErrorIs(t, r.Err("Accept"), shared.ErrUnauthorized)

	r = CanRespond(c, "bob")
	assert.ErrorIs(t, r.Err("Accept"), shared.ErrInvalidTransition)

	assert.ErrorIs(t, CanCancel(c, "bob").Err("Cancel"), shared.ErrUnauthorized)
	assert.True(t, CanView(c, "alice").Allowed)
	assert.False(t, CanView(c, "mallory").Allowed)
}

func TestResolve(t *testing.T) {
	end := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		challenger int
		opponent   int
		status     Status
		winner     shared.UserID
		draw       bool
	}{
		{"challenger ahead", 5, 2, StatusCompleted, "alice", false},
		{"opponent ahead", 1, 3, StatusCompleted, "bob", false},
		{"tie", 4, 4, StatusCompleted, "", true},
		{"nobody showed up", 0, 0, StatusCompleted, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newActive(t)
			c.ChallengerProgress, c.OpponentProgress = tt.challenger, tt.opponent

			outcome, err := c.Resolve(end, ResolveOptions{Location: time.UTC})
			require.NoError(t, err)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.draw, outcome.Draw)
			assert.Equal(t, tt.winner, outcome.WinnerID)
			assert.Equal(t, tt.winner, c.WinnerID)
			require.NotNil(t, c.ResolvedAt)

			_, err = c.Resolve(end, ResolveOptions{Location: time.UTC})
			assert.ErrorIs(t, err, shared.ErrAlreadySettled)
		})
	}
}

func TestResolve_BeforeEndNeedsDecisiveLead(t *testing.T) {
	c := newActive(t)
	// Bob can still score on the 5th (backfill) and on 6, 7 and 8.
	now := time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)
	c.ChallengerProgress = 4

	_, err := c.Resolve(now, ResolveOptions{Location: time.UTC, AllowEarly: true})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	c.ChallengerProgress = 5
	_, err = c.Resolve(now, ResolveOptions{Location: time.UTC})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition, "early settlement disabled")

	outcome, err := c.Resolve(now, ResolveOptions{Location: time.UTC, AllowEarly: true})
	require.NoError(t, err)
	assert.Equal(t, shared.UserID("alice"), outcome.WinnerID)
}

func TestDecisive_CountsBackfillableDays(t *testing.T) {
	c := newActive(t)
	now := time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)

	from, to, ok := c.RecoveryWindow(now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), to)

	c.ChallengerProgress, c.OpponentProgress = 5, 1
	trailing, ok := c.Trailing()
	require.True(t, ok)
	assert.Equal(t, shared.UserID("bob"), trailing)

	assert.False(t, c.Decisive(now, time.UTC, 0), "bob may still log 5, 6, 7 and 8")
	assert.True(t, c.Decisive(now, time.UTC, 1), "bob already logged one of those days")

	// The horizon never reaches before the window start.
	from, _, _ = c.RecoveryWindow(start, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), from)

	c.OpponentProgress = 5
	_, ok = c.Trailing()
	assert.False(t, ok)
	assert.False(t, c.Decisive(now, time.UTC, 0))
}

func TestCanRecordProgress_BackfillGrace(t *testing.T) {
	c := newActive(t)
	now := time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)

	assert.True(t, CanRecordProgress(c, now, now, time.UTC).Allowed)
	assert.True(t, CanRecordProgress(c, now.AddDate(0, 0, -1), now, time.UTC).Allowed)

	late := CanRecordProgress(c, now.AddDate(0, 0, -2), now, time.UTC)
	assert.False(t, late.Allowed)
	assert.ErrorIs(t, late.Err("RecordCompletion"), shared.ErrInvalidTransition)
}

func TestResolve_ActiveWithoutWindowExpires(t *testing.T) {
	c := newActive(t)
	c.StartedAt, c.EndsAt = nil, nil
	c.ChallengerProgress = 3

	outcome, err := c.Resolve(start, ResolveOptions{})
	require.NoError(t, err)
	assert.True(t, outcome.Draw)
	assert.Equal(t, StatusExpired, c.Status)
}

func TestSuggestStake(t *testing.T) {
	s := SuggestStake(500, 500, 0)
	assert.Equal(t, 3, s.Level)
	assert.Equal(t, int64(75), s.Recommended)
	assert.Equal(t, int64(37), s.Low)
	assert.Equal(t, int64(150), s.High)

	s = SuggestStake(40, 5000, 0)
	assert.Equal(t, int64(25), s.Recommended)
	assert.Equal(t, int64(40), s.High, "capped by what both can afford")

	s = SuggestStake(5000, 5000, 60)
	assert.Equal(t, int64(60), s.Recommended)

	assert.Zero(t, SuggestStake(0, 500, 0).Recommended)
}

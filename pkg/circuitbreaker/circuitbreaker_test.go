package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("backend down")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func withClock(b *Breaker) *fakeClock {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	return clock
}

func fail(context.Context) (string, error) { return "", errDown }
func ok(context.Context) (string, error)   { return "story", nil }

func TestOpensAfterThresholdAndRecovers(t *testing.T) {
	var transitions []string
	b := New(Settings{
		Name:      "test",
		Threshold: 2,
		Cooldown:  time.Minute,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	clock := withClock(b)
	ctx := context.Background()

	_, err := Call(ctx, b, fail)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StateClosed, b.State())
	_, err = Call(ctx, b, fail)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StateOpen, b.State())

	_, err = Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(time.Minute)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, "story", v)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestFailedTrialReopens(t *testing.T) {
	b := New(Settings{Name: "test", Threshold: 1, Cooldown: time.Second})
	clock := withClock(b)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	clock.Advance(time.Second)
	_, err := Call(ctx, b, fail)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StateOpen, b.State())

	_, err = Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestOnlyOneTrialAtATime(t *testing.T) {
	b := New(Settings{Name: "test", Threshold: 1, Cooldown: time.Second})
	clock := withClock(b)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	clock.Advance(time.Second)

	_, err := Call(ctx, b, func(ctx context.Context) (string, error) {
		_, inner := Call(ctx, b, ok)
		assert.ErrorIs(t, inner, ErrCircuitOpen)
		return "trial", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestEnrichmentBreakerIgnoresCancellation(t *testing.T) {
	b := ForEnrichment(nil)
	ctx := context.Background()
	for range 5 {
		_, _ = Call(ctx, b, func(context.Context) (string, error) { return "", context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())

	for range 3 {
		_, _ = Call(ctx, b, fail)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "persona-enrichment", b.Name())
}

func TestSuccessResetsFailureRun(t *testing.T) {
	b := New(Settings{Name: "test", Threshold: 2})
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, ok)
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, StateClosed, b.State())
}

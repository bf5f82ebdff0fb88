package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

type fakeGenerator struct {
	text   string
	err    error
	calls  int
	model  string
	prompt string
}

func (g *fakeGenerator) Generate(_ context.Context, model, _, prompt string, _ Config) (string, error) {
	g.calls++
	g.model, g.prompt = model, prompt
	return g.text, g.err
}

func warriorAnswers() persona.Answers {
	return persona.Answers{
		Motivation:    " Competition ",
		TopMotivators: []string{"Health", ""},
		MissResponse:  "quiet_reset",
	}
}

func TestBuildPrompt(t *testing.T) {
	answers := warriorAnswers()
	base := persona.Classify(answers)

	prompt := BuildPrompt(answers, base)

	assert.Contains(t, prompt, "Archetype: warrior")
	assert.Contains(t, prompt, "Selected because: motivation=competition")
	assert.Contains(t, prompt, "- motivation: competition")
	assert.Contains(t, prompt, "- top motivators: health")
	assert.Contains(t, prompt, "- after a miss: quiet_reset")
	assert.NotContains(t, prompt, "weekly feeling", "empty answers are omitted")
}

func TestEnrich_ReturnsCleanedNarrative(t *testing.T) {
	gen := &fakeGenerator{text: "  \"You thrive   when\nthere is a scoreboard.\"  "}
	e := NewWithGenerator(gen, Config{}, nil)

	answers := warriorAnswers()
	narrative, err := e.Enrich(context.Background(), answers, persona.Classify(answers))
	require.NoError(t, err)

	assert.Equal(t, "You thrive when there is a scoreboard.", narrative)
	assert.Equal(t, DefaultConfig().Model, gen.model)
	assert.Equal(t, 1, gen.calls)
}

func TestEnrich_FailuresAreInfrastructure(t *testing.T) {
	answers := warriorAnswers()
	base := persona.Classify(answers)

	e := NewWithGenerator(&fakeGenerator{err: errors.New("503 unavailable")}, Config{}, nil)
	_, err := e.Enrich(context.Background(), answers, base)
	assert.ErrorIs(t, err, shared.ErrInfrastructure)
	assert.True(t, shared.IsRetryable(err))

	e = NewWithGenerator(&fakeGenerator{text: "   "}, Config{}, nil)
	_, err = e.Enrich(context.Background(), answers, base)
	assert.ErrorIs(t, err, ErrEmptyNarrative)
}

func TestEnrich_RateLimited(t *testing.T) {
	gen := &fakeGenerator{text: "Keep going."}
	e := NewWithGenerator(gen, Config{RateLimit: RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		WaitTimeout:       10 * time.Millisecond,
	}}, nil)

	answers := warriorAnswers()
	base := persona.Classify(answers)

	_, err := e.Enrich(context.Background(), answers, base)
	require.NoError(t, err)

	_, err = e.Enrich(context.Background(), answers, base)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, gen.calls)
}

func TestCleanNarrative_Truncates(t *testing.T) {
	got := cleanNarrative(strings.Repeat("ä", 20), 5)
	assert.Equal(t, "äääää…", got)

	assert.Equal(t, "plain text", cleanNarrative("```plain text```", 100))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2})
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	now = now.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, rl.Available(), 1e-9)
	assert.True(t, rl.TryAcquire())

	now = now.Add(time.Hour)
	assert.InDelta(t, 2.0, rl.Available(), 1e-9, "bucket is capped at burst size")
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.5, BurstSize: 1, WaitTimeout: time.Minute})
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}

package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/memory"
)

func seededStore(t *testing.T, balances map[string]int64) *memory.Store {
	t.Helper()
	s := memory.New()
	for id, xp := range balances {
		require.NoError(t, s.Accounts().Create(context.Background(), &ledger.Account{ID: shared.UserID(id), TotalXP: xp}))
	}
	return s
}

type mapCache struct {
	mu      sync.Mutex
	entries map[shared.UserID]leveling.Info
	sets    int
}

func (c *mapCache) Get(_ context.Context, id shared.UserID) (*leveling.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (c *mapCache) Set(_ context.Context, id shared.UserID, info leveling.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = info
	c.sets++
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id shared.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func TestGetLevelInfo_UsesCacheAfterFirstRead(t *testing.T) {
	s := seededStore(t, map[string]int64{"alice": 350})
	cache := &mapCache{entries: map[shared.UserID]leveling.Info{}}
	h := NewGetLevelInfoHandler(s.Ledger(), cache, nil)

	first, err := h.Handle(context.Background(), GetLevelInfoQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 3, first.Level)
	assert.Equal(t, int64(50), first.CurrentXPInLevel)

	second, err := h.Handle(context.Background(), GetLevelInfoQuery{UserID: " alice "})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Info, second.Info)
	assert.Equal(t, 1, cache.sets)

	_, err = h.Handle(context.Background(), GetLevelInfoQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetLevelInfo_IgnoresEntryFromOlderBalance(t *testing.T) {
	s := seededStore(t, map[string]int64{"alice": 90})
	cache := &mapCache{entries: map[shared.UserID]leveling.Info{}}
	h := NewGetLevelInfoHandler(s.Ledger(), cache, nil)
	ctx := context.Background()

	// A reader that saw 90 XP writes its entry after the credit landed and
	// after the invalidation already ran.
	_, err := s.Ledger().Credit(ctx, "alice", 260, ledger.Posting{Reason: ledger.ReasonGrant})
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, "alice", leveling.Calculate(90)))

	got, err := h.Handle(ctx, GetLevelInfoQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, int64(350), got.TotalXP)
	assert.Equal(t, 3, got.Level)

	again, err := h.Handle(ctx, GetLevelInfoQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, int64(350), again.TotalXP)
}

func TestSuggestStake(t *testing.T) {
	s := seededStore(t, map[string]int64{"alice": 500, "bob": 500})
	h := NewSuggestStakeHandler(s.Ledger(), 0)

	got, err := h.Handle(context.Background(), SuggestStakeQuery{ChallengerID: "alice", OpponentID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(75), got.Recommended)

	_, err = h.Handle(context.Background(), SuggestStakeQuery{ChallengerID: "alice", OpponentID: "alice"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestChallengeReader(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []challenge.ID{"c-1", "c-2"} {
		require.NoError(t, s.Challenges().Create(ctx, &challenge.Challenge{
			ID: id, ChallengerID: "alice", OpponentID: "bob", Status: challenge.StatusPending,
			CreatedAt: created.Add(time.Duration(i) * time.Hour),
		}))
	}
	r := NewChallengeReader(s.Challenges())

	dto, err := r.Get(ctx, GetChallengeQuery{ChallengeID: "c-1", CallerID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "pending", dto.Status)

	_, err = r.Get(ctx, GetChallengeQuery{ChallengeID: "c-1", CallerID: "mallory"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	list, err := r.List(ctx, ListChallengesQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c-2", list[0].ID)

	_, err = r.List(ctx, ListChallengesQuery{UserID: "alice", Statuses: []challenge.Status{"bogus"}})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONA
// ══════════════════════════════════════════════════════════════════════════════

type stubEnricher struct {
	mu        sync.Mutex
	calls     int
	narrative string
	err       error
}

func (e *stubEnricher) Enrich(context.Context, persona.Answers, persona.Result) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.narrative, e.err
}

var enrichOn = shared.StaticFeatures{shared.FeaturePersonaEnrichment: true}

func TestClassifyPersona_RulesOnly(t *testing.T) {
	s := memory.New()
	h := NewClassifyPersonaHandler(s.Answers(), nil, nil, nil, DefaultClassifyPersonaConfig())

	res, err := h.Handle(context.Background(), ClassifyPersonaQuery{
		Answers: &persona.Answers{Motivation: "Mastery", MissResponse: "quiet_reset"},
	})
	require.NoError(t, err)
	assert.Equal(t, persona.ArchetypeMage, res.Archetype)
	assert.Equal(t, persona.SourceRules, res.Source)
	assert.Equal(t, persona.QuietContactFrequency, res.ContactFrequency)
}

func TestClassifyPersona_MissingQuestionnaireIsGuardian(t *testing.T) {
	s := memory.New()
	h := NewClassifyPersonaHandler(s.Answers(), nil, nil, nil, DefaultClassifyPersonaConfig())

	res, err := h.Handle(context.Background(), ClassifyPersonaQuery{UserID: "newcomer"})
	require.NoError(t, err)
	assert.Equal(t, persona.ArchetypeGuardian, res.Archetype)
}

func TestClassifyPersona_SaveThenReadBack(t *testing.T) {
	s := memory.New()
	h := NewClassifyPersonaHandler(s.Answers(), nil, nil, nil, DefaultClassifyPersonaConfig())
	ctx := context.Background()

	_, err := h.Handle(ctx, ClassifyPersonaQuery{
		UserID:  "alice",
		Answers: &persona.Answers{PushOrProtect: "protect"},
		Save:    true,
	})
	require.NoError(t, err)

	res, err := h.Handle(ctx, ClassifyPersonaQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, persona.ArchetypeHealer, res.Archetype)
}

func TestClassifyPersona_EnrichmentAddsNarrativeOnly(t *testing.T) {
	s := memory.New()
	e := &stubEnricher{narrative: "  You thrive on rivalry.  "}
	h := NewClassifyPersonaHandler(s.Answers(), e, enrichOn, nil, DefaultClassifyPersonaConfig())

	answers := &persona.Answers{Motivation: "competition"}
	res, err := h.Handle(context.Background(), ClassifyPersonaQuery{Answers: answers})
	require.NoError(t, err)

	base := persona.Classify(*answers)
	assert.Equal(t, base.Archetype, res.Archetype)
	assert.Equal(t, base.DefaultChallengeDays, res.DefaultChallengeDays)
	assert.Equal(t, persona.SourceEnriched, res.Source)
	assert.Equal(t, "You thrive on rivalry.", res.Narrative)
}

func TestClassifyPersona_EnrichmentDisabledByFlag(t *testing.T) {
	s := memory.New()
	e := &stubEnricher{narrative: "unused"}
	h := NewClassifyPersonaHandler(s.Answers(), e, shared.StaticFeatures{}, nil, DefaultClassifyPersonaConfig())

	res, err := h.Handle(context.Background(), ClassifyPersonaQuery{Answers: &persona.Answers{}})
	require.NoError(t, err)
	assert.Equal(t, persona.SourceRules, res.Source)
	assert.Zero(t, e.calls)
}

func TestClassifyPersona_EnrichmentFailureFallsBackAndOpensCircuit(t *testing.T) {
	s := memory.New()
	e := &stubEnricher{err: errors.New("upstream 503")}
	h := NewClassifyPersonaHandler(s.Answers(), e, enrichOn, nil, DefaultClassifyPersonaConfig())

	answers := &persona.Answers{Journey: []string{"open_road"}}
	for i := 0; i < 3; i++ {
		res, err := h.Handle(context.Background(), ClassifyPersonaQuery{Answers: answers})
		require.NoError(t, err)
		assert.Equal(t, persona.ArchetypeRogue, res.Archetype)
		assert.Equal(t, persona.SourceRules, res.Source)
		assert.Empty(t, res.Narrative)
	}

	// Two attempts per call trip the breaker during the second call.
	callsBefore := e.calls
	_, err := h.Handle(context.Background(), ClassifyPersonaQuery{Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, callsBefore, e.calls, "open circuit skips the backend")
}

func TestGetXPHistory(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, map[string]int64{"alice": 0})
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.Ledger().Credit(ctx, "alice", 30, ledger.Posting{Reason: ledger.ReasonGrant, Reference: "g-1", At: at})
	require.NoError(t, err)
	_, err = s.Ledger().Credit(ctx, "alice", 20, ledger.Posting{Reason: ledger.ReasonGrant, Reference: "g-2", At: at.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Ledger().Debit(ctx, "alice", 10, ledger.Posting{Reason: ledger.ReasonChallengeStake, Reference: "c-1", At: at.Add(2 * time.Hour)})
	require.NoError(t, err)

	h := NewGetXPHistoryHandler(s.Accounts())

	page, err := h.Handle(ctx, GetXPHistoryQuery{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "DEBIT", page[0].Type)
	assert.Equal(t, int64(40), page[0].BalanceAfter)
	assert.Equal(t, "c-1", page[0].Reference)
	assert.Equal(t, "g-2", page[1].Reference)

	_, err = h.Handle(ctx, GetXPHistoryQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.Handle(ctx, GetXPHistoryQuery{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine lists unsettled challenges and settles them on request.
type fakeEngine struct {
	mu       sync.Mutex
	pending  map[string]bool
	behavior map[string]error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	listCalls   int
	listErr     error
}

func newFakeEngine(ids ...string) *fakeEngine {
	e := &fakeEngine{pending: map[string]bool{}, behavior: map[string]error{}}
	for _, id := range ids {
		e.pending[id] = true
	}
	return e
}

func (e *fakeEngine) ListDue(_ context.Context, _ time.Time, after challenge.DueCursor, limit int) ([]*challenge.Challenge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listCalls++
	if e.listErr != nil {
		return nil, e.listErr
	}
	var ids []string
	for id := range e.pending {
		if after.Precedes(&challenge.Challenge{ID: challenge.ID(id)}) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*challenge.Challenge, 0, len(ids))
	for _, id := range ids {
		out = append(out, &challenge.Challenge{ID: challenge.ID(id), Status: challenge.StatusActive})
	}
	return out, nil
}

func (e *fakeEngine) Handle(_ context.Context, cmd command.SettleChallengeCommand) (*command.SettleChallengeResult, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxInFlight.Load()
		if n <= m || e.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.behavior[cmd.ChallengeID]; err != nil {
		if errors.Is(err, shared.ErrAlreadySettled) {
			delete(e.pending, cmd.ChallengeID)
		}
		return nil, err
	}
	delete(e.pending, cmd.ChallengeID)
	return &command.SettleChallengeResult{}, nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "c-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	return out
}

func TestSweep_PagesUntilEmpty(t *testing.T) {
	engine := newFakeEngine(ids(25)...)
	job := NewSettleDueChallengesJob(engine, engine, nil, nil, SettleDueChallengesConfig{BatchSize: 10, Concurrency: 3})

	stats, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, stats.Scanned)
	assert.Equal(t, 25, stats.Settled)
	assert.Equal(t, 3, stats.Batches)
	assert.Empty(t, engine.pending)
	assert.LessOrEqual(t, engine.maxInFlight.Load(), int32(3))
	assert.Equal(t, stats, *job.LastStats())
}

func TestSweep_CountsSkippedAndFailed(t *testing.T) {
	engine := newFakeEngine("c-1", "c-2", "c-3", "c-4")
	engine.behavior["c-2"] = shared.ErrChallengeSettled
	engine.behavior["c-3"] = errors.New("database unavailable")

	job := NewSettleDueChallengesJob(engine, engine, nil, nil, SettleDueChallengesConfig{BatchSize: 10})
	stats, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Settled)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, map[string]bool{"c-3": true}, engine.pending, "failed challenge stays due for the next run")
}

func TestSweep_PagesPastFailingChallenges(t *testing.T) {
	engine := newFakeEngine("c-1", "c-2", "c-3")
	engine.behavior["c-1"] = errors.New("boom")
	engine.behavior["c-2"] = errors.New("boom")

	job := NewSettleDueChallengesJob(engine, engine, nil, nil, SettleDueChallengesConfig{BatchSize: 2})
	stats, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Settled)
	assert.Equal(t, 2, engine.listCalls)
	assert.Equal(t, map[string]bool{"c-1": true, "c-2": true}, engine.pending)
}

func TestSweep_FailuresDoNotRepeatWithinARun(t *testing.T) {
	engine := newFakeEngine("c-1", "c-2")
	engine.behavior["c-1"] = errors.New("boom")
	engine.behavior["c-2"] = errors.New("boom")

	job := NewSettleDueChallengesJob(engine, engine, nil, nil, SettleDueChallengesConfig{BatchSize: 2, MaxBatches: 10})
	stats, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 2, engine.listCalls, "second page is empty")
}

func TestSweep_ListErrorAndCancellation(t *testing.T) {
	engine := newFakeEngine("c-1")
	engine.listErr = errors.New("connection refused")
	job := NewSettleDueChallengesJob(engine, engine, nil, nil, SettleDueChallengesConfig{})

	assert.ErrorContains(t, job.Run(context.Background()), "list due challenges")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := job.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobIdentity(t *testing.T) {
	job := NewSettleDueChallengesJob(newFakeEngine(), newFakeEngine(), nil, nil, SettleDueChallengesConfig{})
	assert.Equal(t, "settle_due_challenges", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Nil(t, job.LastStats())
}

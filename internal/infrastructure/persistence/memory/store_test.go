package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
)

var t0 = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T, balances map[shared.UserID]int64) *Store {
	t.Helper()
	s := New()
	for id, xp := range balances {
		require.NoError(t, s.Accounts().Create(context.Background(), &ledger.Account{ID: id, TotalXP: xp, CreatedAt: t0}))
	}
	return s
}

func TestLedger_DebitNeverGoesNegative(t *testing.T) {
	s := seeded(t, map[shared.UserID]int64{"alice": 100})
	ctx := context.Background()
	p := ledger.Posting{Reason: ledger.ReasonGrant, At: t0}

	_, err := s.Ledger().Debit(ctx, "alice", 101, p)
	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)

	e, err := s.Ledger().Debit(ctx, "alice", 100, p)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.BalanceAfter)

	_, err = s.Ledger().Credit(ctx, "alice", -5, p)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = s.Ledger().Credit(ctx, "ghost", 5, p)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLedger_CreditNeverOverflows(t *testing.T) {
	s := seeded(t, map[shared.UserID]int64{"alice": 10})
	ctx := context.Background()
	p := ledger.Posting{Reason: ledger.ReasonGrant, At: t0}

	_, err := s.Ledger().Credit(ctx, "alice", math.MaxInt64, p)
	assert.ErrorIs(t, err, shared.ErrBalanceOverflow)
	assert.ErrorIs(t, err, shared.ErrValidation)

	e, err := s.Ledger().Credit(ctx, "alice", math.MaxInt64-10, p)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), e.BalanceAfter)

	_, err = s.Ledger().Credit(ctx, "alice", 1, p)
	assert.ErrorIs(t, err, shared.ErrBalanceOverflow)

	balance, err := s.Ledger().Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), balance)
}

func TestLedger_ConcurrentDebitsStayNonNegative(t *testing.T) {
	s := seeded(t, map[shared.UserID]int64{"alice": 100})
	ctx := context.Background()
	p := ledger.Posting{Reason: ledger.ReasonChallengeStake, At: t0}

	const workers = 25
	var (
		wg       sync.WaitGroup
		ok, low  atomic.Int32
		balances = make(chan int64, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := s.Ledger().Debit(ctx, "alice", 10, p)
			switch {
			case err == nil:
				ok.Add(1)
				balances <- e.BalanceAfter
			case errors.Is(err, shared.ErrInsufficientFunds):
				low.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(balances)

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int32(workers-10), low.Load())
	for b := range balances {
		assert.GreaterOrEqual(t, b, int64(0))
	}
	balance, err := s.Ledger().Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestAtomic_RollsBackEveryWrite(t *testing.T) {
	s := seeded(t, map[shared.UserID]int64{"alice": 100, "bob": 100})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		p := ledger.Posting{Reason: ledger.ReasonGrant, At: t0}
		if _, err := tx.Ledger().Credit(ctx, "alice", 50, p); err != nil {
			return err
		}
		if _, err := tx.Ledger().Debit(ctx, "bob", 50, p); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, _ := s.Ledger().Balance(ctx, "alice")
	b, _ := s.Ledger().Balance(ctx, "bob")
	assert.Equal(t, int64(100), a)
	assert.Equal(t, int64(100), b)

	history, err := s.Accounts().History(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChallenges_UpdateIfStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &challenge.Challenge{ID: "c-1", ChallengerID: "a", OpponentID: "b", Status: challenge.StatusPending, Version: 1}
	require.NoError(t, s.Challenges().Create(ctx, c))

	c.Status = challenge.StatusCancelled
	require.NoError(t, s.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending))
	assert.Equal(t, 2, c.Version)

	c.Status = challenge.StatusRejected
	err := s.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	stored, err := s.Challenges().GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, stored.Status)
}

func TestChallenges_IncrementOnlyWhenActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &challenge.Challenge{ID: "c-1", ChallengerID: "a", OpponentID: "b", HabitID: "h", Status: challenge.StatusPending}
	require.NoError(t, s.Challenges().Create(ctx, c))

	ok, err := s.Challenges().IncrementProgress(ctx, "c-1", challenge.SideOpponent, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	c.Status = challenge.StatusActive
	require.NoError(t, s.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending))

	ok, err = s.Challenges().IncrementProgress(ctx, "c-1", challenge.SideOpponent, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := s.Challenges().ListActiveForHabit(ctx, "b", "h")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].OpponentProgress)
}

func TestChallenges_ListDue(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, offset := range []int{-2, -1, 3} {
		end := t0.AddDate(0, 0, offset)
		c := &challenge.Challenge{
			ID:     challenge.ID([]string{"a", "b", "c"}[i]),
			Status: challenge.StatusActive,
			EndsAt: &end,
		}
		require.NoError(t, s.Challenges().Create(ctx, c))
	}

	due, err := s.Challenges().ListDue(ctx, t0, challenge.DueCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, challenge.ID("a"), due[0].ID)

	due, err = s.Challenges().ListDue(ctx, t0, challenge.DueCursor{}, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = s.Challenges().ListDue(ctx, t0, challenge.CursorAt(due[0]), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, challenge.ID("b"), due[0].ID)

	due, err = s.Challenges().ListDue(ctx, t0, challenge.CursorAt(due[0]), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCompletions_UniquePerDay(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec, err := challenge.NewCompletionRecord("h", "a", t0, time.UTC, t0)
	require.NoError(t, err)

	inserted, err := s.Completions().Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	again, err := challenge.NewCompletionRecord("h", "a", t0.Add(3*time.Hour), time.UTC, t0.Add(3*time.Hour))
	require.NoError(t, err)
	inserted, err = s.Completions().Record(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := s.Completions().Count(ctx, "h", "a", t0.AddDate(0, 0, -1), t0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), shared.ErrInfrastructure)
}

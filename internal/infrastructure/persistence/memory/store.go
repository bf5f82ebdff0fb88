// Package memory is an in-process implementation of store.Store.
//
// Units of work are serialized by one mutex and roll back by restoring a
// snapshot, which gives the same observable semantics as the Postgres store.
// Repositories obtained from a Tx must not be used after Atomic returns, and
// code inside Atomic must use the Tx rather than the Store.
package memory

import (
	"context"
	"sync"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
)

var errClosed = shared.NewDomainError("memory", "Use", shared.ErrInfrastructure, "store is closed")

type state struct {
	accounts    map[shared.UserID]*ledger.Account
	entries     []ledger.Entry
	challenges  map[challenge.ID]*challenge.Challenge
	completions map[string]challenge.CompletionRecord
	answers     map[shared.UserID]*persona.Submission
}

func newState() *state {
	return &state{
		accounts:    make(map[shared.UserID]*ledger.Account),
		challenges:  make(map[challenge.ID]*challenge.Challenge),
		completions: make(map[string]challenge.CompletionRecord),
		answers:     make(map[shared.UserID]*persona.Submission),
	}
}

// clone copies every mutable record. Time pointers are shared because the
// aggregate replaces them rather than writing through them.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	c.entries = append(c.entries, s.entries...)
	for k, v := range s.challenges {
		ch := *v
		c.challenges[k] = &ch
	}
	for k, v := range s.completions {
		c.completions[k] = v
	}
	for k, v := range s.answers {
		sub := *v
		c.answers[k] = &sub
	}
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu     sync.Mutex
	state  *state
	closed bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// with runs fn against the live state, taking the lock unless inTx.
func (s *Store) with(inTx bool, fn func(st *state) error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if s.closed {
		return errClosed
	}
	return fn(s.state)
}

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	if err := fn(ctx, &txView{s: s, inTx: true}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) Ledger() ledger.Ledger                { return &ledgerRepo{s: s} }
func (s *Store) Accounts() ledger.AccountRepository   { return &accountRepo{s: s} }
func (s *Store) Challenges() challenge.Repository     { return &challengeRepo{s: s} }
func (s *Store) Completions() challenge.CompletionLog { return &completionLog{s: s} }
func (s *Store) Answers() persona.AnswerRepository    { return &answerRepo{s: s} }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.with(false, func(*state) error { return nil })
}

// Close implements store.Store. Further calls fail with an infrastructure error.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type txView struct {
	s    *Store
	inTx bool
}

func (t *txView) Ledger() ledger.Ledger                { return &ledgerRepo{s: t.s, inTx: t.inTx} }
func (t *txView) Accounts() ledger.AccountRepository   { return &accountRepo{s: t.s, inTx: t.inTx} }
func (t *txView) Challenges() challenge.Repository     { return &challengeRepo{s: t.s, inTx: t.inTx} }
func (t *txView) Completions() challenge.CompletionLog { return &completionLog{s: t.s, inTx: t.inTx} }

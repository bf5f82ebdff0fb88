package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

type challengeRepo struct {
	s    *Store
	inTx bool
}

func cloneChallenge(c *challenge.Challenge) *challenge.Challenge {
	cp := *c
	return &cp
}

func (r *challengeRepo) Create(ctx context.Context, c *challenge.Challenge) error {
	return r.s.with(r.inTx, func(st *state) error {
		if _, ok := st.challenges[c.ID]; ok {
			return shared.NewDomainError("challenge", "Create", shared.ErrValidation, "challenge already exists")
		}
		st.challenges[c.ID] = cloneChallenge(c)
		return nil
	})
}

func (r *challengeRepo) GetByID(ctx context.Context, id challenge.ID) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := r.s.with(r.inTx, func(st *state) error {
		c, ok := st.challenges[id]
		if !ok {
			return shared.ErrChallengeNotFound
		}
		out = cloneChallenge(c)
		return nil
	})
	return out, err
}

func (r *challengeRepo) UpdateIfStatus(ctx context.Context, c *challenge.Challenge, expected challenge.Status) error {
	return r.s.with(r.inTx, func(st *state) error {
		stored, ok := st.challenges[c.ID]
		if !ok {
			return shared.ErrChallengeNotFound
		}
		if stored.Status != expected {
			return shared.ErrStatusChanged
		}
		c.Version = stored.Version + 1
		st.challenges[c.ID] = cloneChallenge(c)
		return nil
	})
}

func (r *challengeRepo) IncrementProgress(ctx context.Context, id challenge.ID, side challenge.Side, at time.Time) (bool, error) {
	var ok bool
	err := r.s.with(r.inTx, func(st *state) error {
		c, found := st.challenges[id]
		if !found {
			return shared.ErrChallengeNotFound
		}
		if c.Status != challenge.StatusActive {
			return nil
		}
		if side == challenge.SideChallenger {
			c.ChallengerProgress++
		} else {
			c.OpponentProgress++
		}
		c.Version++
		c.UpdatedAt = at
		ok = true
		return nil
	})
	return ok, err
}

func (r *challengeRepo) ListActiveForHabit(ctx context.Context, userID shared.UserID, habitID shared.HabitID) ([]*challenge.Challenge, error) {
	return r.list(func(c *challenge.Challenge) bool {
		return c.Status == challenge.StatusActive && c.HabitID == habitID && c.IsParticipant(userID)
	}, func(a, b *challenge.Challenge) bool { return a.CreatedAt.Before(b.CreatedAt) }, 0)
}

func (r *challengeRepo) ListDue(ctx context.Context, now time.Time, after challenge.DueCursor, limit int) ([]*challenge.Challenge, error) {
	return r.list(func(c *challenge.Challenge) bool {
		return c.Status == challenge.StatusActive && (c.EndsAt == nil || !now.Before(*c.EndsAt)) && after.Precedes(c)
	}, func(a, b *challenge.Challenge) bool {
		ka, kb := challenge.CursorAt(a), challenge.CursorAt(b)
		if !ka.EndsAt.Equal(kb.EndsAt) {
			return ka.EndsAt.Before(kb.EndsAt)
		}
		return ka.ID < kb.ID
	}, limit)
}

func (r *challengeRepo) ListByUser(ctx context.Context, userID shared.UserID, statuses []challenge.Status, limit int) ([]*challenge.Challenge, error) {
	return r.list(func(c *challenge.Challenge) bool {
		return c.IsParticipant(userID) && (len(statuses) == 0 || slices.Contains(statuses, c.Status))
	}, func(a, b *challenge.Challenge) bool { return a.CreatedAt.After(b.CreatedAt) }, limit)
}

func (r *challengeRepo) list(keep func(*challenge.Challenge) bool, less func(a, b *challenge.Challenge) bool, limit int) ([]*challenge.Challenge, error) {
	var out []*challenge.Challenge
	err := r.s.with(r.inTx, func(st *state) error {
		for _, c := range st.challenges {
			if keep(c) {
				out = append(out, cloneChallenge(c))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type completionLog struct {
	s    *Store
	inTx bool
}

func (l *completionLog) Record(ctx context.Context, rec challenge.CompletionRecord) (bool, error) {
	var inserted bool
	err := l.s.with(l.inTx, func(st *state) error {
		key := rec.Key()
		if _, ok := st.completions[key]; ok {
			return nil
		}
		st.completions[key] = rec
		inserted = true
		return nil
	})
	return inserted, err
}

func (l *completionLog) Count(ctx context.Context, habitID shared.HabitID, userID shared.UserID, from, to time.Time) (int, error) {
	var n int
	err := l.s.with(l.inTx, func(st *state) error {
		for _, rec := range st.completions {
			if rec.HabitID == habitID && rec.UserID == userID && rec.Completed &&
				!rec.Date.Before(from) && rec.Date.Before(to) {
				n++
			}
		}
		return nil
	})
	return n, err
}

type answerRepo struct {
	s *Store
}

func (r *answerRepo) Latest(ctx context.Context, userID shared.UserID) (*persona.Submission, error) {
	var out *persona.Submission
	err := r.s.with(false, func(st *state) error {
		sub, ok := st.answers[userID]
		if !ok {
			return shared.ErrQuestionnaireAbsent
		}
		cp := *sub
		out = &cp
		return nil
	})
	return out, err
}

func (r *answerRepo) Save(ctx context.Context, sub *persona.Submission) error {
	if !sub.UserID.IsValid() {
		return shared.NewDomainError("persona", "Save", shared.ErrValidation, "user id is required")
	}
	return r.s.with(false, func(st *state) error {
		cp := *sub
		st.answers[sub.UserID] = &cp
		return nil
	})
}

package challenge

import (
	"context"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// Repository persists challenges.
type Repository interface {
	// Create inserts a new pending challenge.
	Create(ctx context.Context, c *Challenge) error

	// GetByID returns the challenge or ErrChallengeNotFound.
	GetByID(ctx context.Context, id ID) (*Challenge, error)

	// UpdateIfStatus writes c only if the stored status still equals expected.
	// A lost race returns ErrStatusChanged (an ErrInvalidTransition kind).
	UpdateIfStatus(ctx context.Context, c *Challenge, expected Status) error

	// IncrementProgress adds one to side's progress if the challenge is still
	// active. Returns false when the challenge is no longer active.
	IncrementProgress(ctx context.Context, id ID, side Side, at time.Time) (bool, error)

	// ListActiveForHabit returns active challenges on habitID where userID plays.
	ListActiveForHabit(ctx context.Context, userID shared.UserID, habitID shared.HabitID) ([]*Challenge, error)

	// ListDue returns active challenges whose window ended at or before now,
	// ordered by (EndsAt, ID) and strictly after the cursor, at most limit.
	ListDue(ctx context.Context, now time.Time, after DueCursor, limit int) ([]*Challenge, error)

	// ListByUser returns the user's challenges, newest first, optionally filtered by status.
	ListByUser(ctx context.Context, userID shared.UserID, statuses []Status, limit int) ([]*Challenge, error)
}

// CompletionLog stores completion records.
type CompletionLog interface {
	// Record inserts r unless a record for the same key exists.
	// Returns false for a duplicate.
	Record(ctx context.Context, r CompletionRecord) (bool, error)

	// Count returns completed days for (habit, user) in [from, to).
	Count(ctx context.Context, habitID shared.HabitID, userID shared.UserID, from, to time.Time) (int, error)
}

// DueCursor is the keyset position of a ListDue page. A challenge without a
// window sorts as if it ended at the zero time. The zero cursor starts at the
// beginning.
type DueCursor struct {
	EndsAt time.Time
	ID     ID
}

// CursorAt returns the cursor positioned on c.
func CursorAt(c *Challenge) DueCursor {
	cur := DueCursor{ID: c.ID}
	if c.EndsAt != nil {
		cur.EndsAt = c.EndsAt.UTC()
	}
	return cur
}

// IsZero reports whether the cursor starts at the beginning.
func (cur DueCursor) IsZero() bool { return cur.ID == "" }

// Precedes reports whether c sorts strictly after the cursor.
func (cur DueCursor) Precedes(c *Challenge) bool {
	if cur.IsZero() {
		return true
	}
	at := CursorAt(c)
	if !at.EndsAt.Equal(cur.EndsAt) {
		return at.EndsAt.After(cur.EndsAt)
	}
	return at.ID > cur.ID
}

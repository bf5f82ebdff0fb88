package challenge

import (
	"fmt"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// GuardResult is the outcome of a pure guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // populated when not allowed
	Kind    error  // shared error kind when not allowed
}

// Err converts a denied result into a domain error for op.
func (r GuardResult) Err(op string) error {
	if r.Allowed {
		return nil
	}
	return shared.NewDomainError("challenge", op, r.Kind, r.Reason)
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func deny(kind error, format string, args ...any) GuardResult {
	return GuardResult{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// CanView allows participants to read a challenge.
func CanView(c *Challenge, caller shared.UserID) GuardResult {
	if !c.IsParticipant(caller) {
		return deny(shared.ErrUnauthorized, "user %s is not a participant of challenge %s", caller, c.ID)
	}
	return allow()
}

// CanRespond allows the invited opponent to accept or reject a pending challenge.
// Authorization is checked before status so outsiders learn nothing about state.
func CanRespond(c *Challenge, caller shared.UserID) GuardResult {
	if caller != c.OpponentID {
		return deny(shared.ErrUnauthorized, "only the invited opponent can respond to challenge %s", c.ID)
	}
	if c.Status != StatusPending {
		return deny(shared.ErrInvalidTransition, "cannot respond to a %s challenge", c.Status)
	}
	return allow()
}

// CanCancel allows the challenger to withdraw while the proposal is pending.
func CanCancel(c *Challenge, caller shared.UserID) GuardResult {
	if caller != c.ChallengerID {
		return deny(shared.ErrUnauthorized, "only the challenger can withdraw challenge %s", c.ID)
	}
	if c.Status != StatusPending {
		return deny(shared.ErrInvalidTransition, "cannot cancel a %s challenge", c.Status)
	}
	return allow()
}

// CanRecordProgress allows increments on an active challenge for a date inside
// its window and no older than the backfill grace period at now.
func CanRecordProgress(c *Challenge, day, now time.Time, loc *time.Location) GuardResult {
	if c.Status != StatusActive {
		return deny(shared.ErrInvalidTransition, "challenge %s is %s", c.ID, c.Status)
	}
	if !c.InWindow(day, loc) {
		return deny(shared.ErrInvalidTransition, "date is outside the window of challenge %s", c.ID)
	}
	if timeutil.StartOfDay(day, loc).Before(ScoringHorizon(now, loc)) {
		return deny(shared.ErrInvalidTransition, "date is past the %d day backfill grace of challenge %s", BackfillGraceDays, c.ID)
	}
	return allow()
}

// CanSettle allows resolution of an active challenge once it is due, or early
// when the options allow it and the lead is unrecoverable.
func CanSettle(c *Challenge, now time.Time, opts ResolveOptions) GuardResult {
	switch {
	case c.Status.IsSettled():
		return deny(shared.ErrAlreadySettled, "challenge %s is already %s", c.ID, c.Status)
	case c.Status != StatusActive:
		return deny(shared.ErrInvalidTransition, "cannot settle a %s challenge", c.Status)
	case c.StartedAt == nil || c.EndsAt == nil:
		// Active without a window: resolvable so the stake is not stranded.
		return allow()
	case c.IsDue(now):
		return allow()
	case opts.AllowEarly && c.Decisive(now, opts.Location, opts.TrailingRecorded):
		return allow()
	default:
		return deny(shared.ErrInvalidTransition, "challenge %s runs until %s", c.ID, c.EndsAt.Format(time.RFC3339))
	}
}

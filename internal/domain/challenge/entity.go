// Package challenge contains the challenge aggregate and its state machine.
//
// A challenge moves pending -> accepted -> active -> completed|expired, or ends
// early as rejected or cancelled. Terminal challenges are immutable. Every
// transition is persisted with a compare-and-swap on the previous status.
package challenge

import (
	"slices"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// ID identifies a challenge.
type ID string

// IsValid checks the id is non-empty.
func (id ID) IsValid() bool { return id != "" }

// String returns the string representation.
func (id ID) String() string { return string(id) }

// Status is the lifecycle state of a challenge.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusActive},
	StatusActive:   {StatusCompleted, StatusExpired},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusActive,
		StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further writes are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted || s == StatusExpired
}

// IsSettled reports whether the stake was resolved by settlement.
func (s Status) IsSettled() bool {
	return s == StatusCompleted || s == StatusExpired
}

// CanTransitionTo reports whether to is a legal next status.
func (s Status) CanTransitionTo(to Status) bool {
	return slices.Contains(transitions[s], to)
}

// EscrowState tracks the staked XP independently of the status so settlement
// can be checked for idempotency.
type EscrowState string

const (
	EscrowNone     EscrowState = "none"
	EscrowHeld     EscrowState = "held"
	EscrowPaidOut  EscrowState = "paid_out"
	EscrowRefunded EscrowState = "refunded"
)

// Side is one of the two participants.
type Side string

const (
	SideChallenger Side = "challenger"
	SideOpponent   Side = "opponent"
)

// AllowedDurations are the only challenge lengths in days.
var AllowedDurations = []int{7, 14, 21, 30}

// IsAllowedDuration reports whether days is one of AllowedDurations.
func IsAllowedDuration(days int) bool {
	return slices.Contains(AllowedDurations, days)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Challenge is a two-player habit duel with an XP stake.
type Challenge struct {
	ID           ID
	ChallengerID shared.UserID
	OpponentID   shared.UserID
	HabitID      shared.HabitID
	DurationDays int
	StakeXP      int64

	Status Status
	Escrow EscrowState

	ChallengerProgress int
	OpponentProgress   int
	WinnerID           shared.UserID

	CreatedAt  time.Time
	StartedAt  *time.Time
	EndsAt     *time.Time
	ResolvedAt *time.Time
	UpdatedAt  time.Time

	// Version increments on every persisted write.
	Version int
}

// NewParams holds the proposal input.
type NewParams struct {
	ID           ID
	ChallengerID shared.UserID
	OpponentID   shared.UserID
	HabitID      shared.HabitID
	DurationDays int
	StakeXP      int64
	MaxStakeXP   int64 // 0 disables the cap
}

// New validates a proposal and returns a pending challenge.
func New(p NewParams, now time.Time) (*Challenge, error) {
	if !p.ID.IsValid() {
		return nil, shared.NewDomainError("challenge", "New", shared.ErrValidation, "challenge id is required")
	}
	if !p.ChallengerID.IsValid() || !p.OpponentID.IsValid() {
		return nil, shared.NewDomainError("challenge", "New", shared.ErrValidation, "participant ids are required")
	}
	if p.ChallengerID == p.OpponentID {
		return nil, shared.ErrSelfChallenge
	}
	if !p.HabitID.IsValid() {
		return nil, shared.NewDomainError("challenge", "New", shared.ErrValidation, "habit id is required")
	}
	if !IsAllowedDuration(p.DurationDays) {
		return nil, shared.ErrInvalidDuration
	}
	if p.StakeXP <= 0 || (p.MaxStakeXP > 0 && p.StakeXP > p.MaxStakeXP) {
		return nil, shared.ErrInvalidStake
	}

	return &Challenge{
		ID:           p.ID,
		ChallengerID: p.ChallengerID,
		OpponentID:   p.OpponentID,
		HabitID:      p.HabitID,
		DurationDays: p.DurationDays,
		StakeXP:      p.StakeXP,
		Status:       StatusPending,
		Escrow:       EscrowNone,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

// IsParticipant reports whether userID is one of the two sides.
func (c *Challenge) IsParticipant(userID shared.UserID) bool {
	return userID == c.ChallengerID || userID == c.OpponentID
}

// SideOf returns the side userID plays.
func (c *Challenge) SideOf(userID shared.UserID) (Side, bool) {
	switch userID {
	case c.ChallengerID:
		return SideChallenger, true
	case c.OpponentID:
		return SideOpponent, true
	}
	return "", false
}

// Progress returns the qualifying-completion count of a side.
func (c *Challenge) Progress(side Side) int {
	if side == SideChallenger {
		return c.ChallengerProgress
	}
	return c.OpponentProgress
}

// InWindow reports whether day falls inside [start day, end day).
func (c *Challenge) InWindow(day time.Time, loc *time.Location) bool {
	if c.StartedAt == nil || c.EndsAt == nil {
		return false
	}
	d := timeutil.StartOfDay(day, loc)
	start := timeutil.StartOfDay(*c.StartedAt, loc)
	return !d.Before(start) && d.Before(*c.EndsAt)
}

func (c *Challenge) transition(to Status, now time.Time) {
	c.Status = to
	c.UpdatedAt = now
}

// Accept moves a pending challenge to accepted. Only the opponent may accept.
func (c *Challenge) Accept(caller shared.UserID, now time.Time) error {
	if r := CanRespond(c, caller); !r.Allowed {
		return r.Err("Accept")
	}
	c.transition(StatusAccepted, now)
	return nil
}

// Activate starts the window at the acceptance day. EndsAt is midnight after
// the last day of the window in loc.
func (c *Challenge) Activate(now time.Time, loc *time.Location) error {
	if !c.Status.CanTransitionTo(StatusActive) {
		return shared.NewDomainError("challenge", "Activate", shared.ErrInvalidTransition,
			"only an accepted challenge can become active")
	}
	start := now
	end := timeutil.AddDays(timeutil.StartOfDay(now, loc), c.DurationDays)
	c.StartedAt = &start
	c.EndsAt = &end
	c.transition(StatusActive, now)
	return nil
}

// Reject moves a pending challenge to rejected. No funds were reserved.
func (c *Challenge) Reject(caller shared.UserID, now time.Time) error {
	if r := CanRespond(c, caller); !r.Allowed {
		return r.Err("Reject")
	}
	c.transition(StatusRejected, now)
	r := now
	c.ResolvedAt = &r
	return nil
}

// Cancel withdraws a pending proposal. Only the challenger may cancel.
func (c *Challenge) Cancel(caller shared.UserID, now time.Time) error {
	if r := CanCancel(c, caller); !r.Allowed {
		return r.Err("Cancel")
	}
	c.transition(StatusCancelled, now)
	r := now
	c.ResolvedAt = &r
	return nil
}

// Outcome is the result of a resolved challenge.
type Outcome struct {
	Draw     bool
	WinnerID shared.UserID
}

// Winner returns an outcome where userID takes the pot.
func Winner(userID shared.UserID) Outcome { return Outcome{WinnerID: userID} }

// Draw returns a draw outcome.
func Draw() Outcome { return Outcome{Draw: true} }

// ResolveOptions tunes Resolve.
type ResolveOptions struct {
	Location *time.Location
	// AllowEarly resolves before EndsAt when the lead can no longer be caught.
	AllowEarly bool
	// TrailingRecorded is how many days of the recovery window the trailing
	// side has already recorded.
	TrailingRecorded int
}

// Resolve decides the outcome and moves the challenge to completed or expired.
// Higher progress wins and equal progress, 0-0 included, is a draw. An active
// challenge missing its window cannot be scored and expires as a draw.
func (c *Challenge) Resolve(now time.Time, opts ResolveOptions) (Outcome, error) {
	if r := CanSettle(c, now, opts); !r.Allowed {
		return Outcome{}, r.Err("Resolve")
	}

	var outcome Outcome
	status := StatusCompleted

	switch {
	case c.StartedAt == nil || c.EndsAt == nil:
		outcome, status = Draw(), StatusExpired
	case c.ChallengerProgress > c.OpponentProgress:
		outcome = Winner(c.ChallengerID)
	case c.OpponentProgress > c.ChallengerProgress:
		outcome = Winner(c.OpponentID)
	default:
		outcome = Draw()
	}

	if !outcome.Draw {
		c.WinnerID = outcome.WinnerID
	}
	c.transition(status, now)
	resolved := now
	c.ResolvedAt = &resolved
	return outcome, nil
}

// Trailing returns the participant with less progress. ok is false on a tie.
func (c *Challenge) Trailing() (userID shared.UserID, ok bool) {
	switch {
	case c.ChallengerProgress < c.OpponentProgress:
		return c.ChallengerID, true
	case c.OpponentProgress < c.ChallengerProgress:
		return c.OpponentID, true
	}
	return "", false
}

// RecoveryWindow returns the days [from, to) on which a side can still score
// at now: from the scoring horizon, clipped to the window start, until EndsAt.
func (c *Challenge) RecoveryWindow(now time.Time, loc *time.Location) (from, to time.Time, ok bool) {
	if c.StartedAt == nil || c.EndsAt == nil {
		return time.Time{}, time.Time{}, false
	}
	from = ScoringHorizon(now, loc)
	if start := timeutil.StartOfDay(*c.StartedAt, loc); from.Before(start) {
		from = start
	}
	return from, *c.EndsAt, true
}

// Decisive reports whether the leader can no longer be caught. The trailing
// side can still score once on every day of the recovery window it has not
// recorded yet; trailingRecorded is how many of those days it already has.
func (c *Challenge) Decisive(now time.Time, loc *time.Location, trailingRecorded int) bool {
	from, to, ok := c.RecoveryWindow(now, loc)
	if !ok {
		return false
	}
	open := max(timeutil.DaysBetween(from, to, loc), 0)
	open = max(open-trailingRecorded, 0)

	lead, trail := c.ChallengerProgress, c.OpponentProgress
	if trail > lead {
		lead, trail = trail, lead
	}
	return lead > trail+open
}

// IsDue reports whether the window has elapsed.
func (c *Challenge) IsDue(now time.Time) bool {
	return c.EndsAt != nil && !now.Before(*c.EndsAt)
}

// Event builds the change-feed event for the current state.
func (c *Challenge) Event(t shared.EventType, now time.Time) shared.ChallengeEvent {
	return shared.ChallengeEvent{
		BaseEvent:          shared.NewBaseEvent(t, c.ID.String(), now),
		ChallengerID:       c.ChallengerID.String(),
		OpponentID:         c.OpponentID.String(),
		Status:             string(c.Status),
		StakeXP:            c.StakeXP,
		ChallengerProgress: c.ChallengerProgress,
		OpponentProgress:   c.OpponentProgress,
		WinnerID:           c.WinnerID.String(),
	}
}

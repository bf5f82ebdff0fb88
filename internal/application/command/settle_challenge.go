package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLE CHALLENGE COMMAND
// Resolves an active challenge and moves the escrowed stake: twice the stake
// to the winner, or each stake back on a draw. Settling twice is rejected
// with an already-settled error and moves no XP.
// ══════════════════════════════════════════════════════════════════════════════

// SettleChallengeCommand contains the settlement input.
type SettleChallengeCommand struct {
	ChallengeID string

	// CallerID must be a participant. Empty means the system sweep.
	CallerID string

	CorrelationID string
}

// Validate validates the command.
func (c SettleChallengeCommand) Validate() error {
	if strings.TrimSpace(c.ChallengeID) == "" {
		return errors.New("challenge_id is required")
	}
	return nil
}

// SettleChallengeResult contains the settled challenge.
type SettleChallengeResult struct {
	Challenge *challenge.Challenge
	Outcome   challenge.Outcome
	Entries   []ledger.Entry
	Events    []shared.Event
}

// SettleChallengeHandler handles the SettleChallengeCommand.
type SettleChallengeHandler struct {
	deps Dependencies
}

// NewSettleChallengeHandler creates a new SettleChallengeHandler.
func NewSettleChallengeHandler(deps Dependencies) *SettleChallengeHandler {
	return &SettleChallengeHandler{deps: deps.withDefaults()}
}

// Handle executes the settle command.
func (h *SettleChallengeHandler) Handle(ctx context.Context, cmd SettleChallengeCommand) (*SettleChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "Settle", shared.ErrValidation, "invalid command", err)
	}

	id := challenge.ID(strings.TrimSpace(cmd.ChallengeID))
	caller := shared.UserID(strings.TrimSpace(cmd.CallerID))
	now := h.deps.Clock()

	var result *SettleChallengeResult
	err := h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.Challenges().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if caller != "" {
			if r := challenge.CanView(c, caller); !r.Allowed {
				return r.Err("Settle")
			}
		}
		result, err = settleInTx(ctx, h.deps, tx, c, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("settle_challenge: %w", err)
	}

	result.Events = settlementEvents(result, now, cmd.CorrelationID)
	h.deps.publish("settle_challenge", result.Events)

	h.deps.Logger.Info("challenge settled",
		logger.ChallengeID(id.String()),
		logger.Status(string(result.Challenge.Status)),
		logger.String("winner_id", result.Outcome.WinnerID.String()),
		logger.Bool("draw", result.Outcome.Draw),
	)
	return result, nil
}

// settleInTx resolves c and moves the stake inside an open unit of work.
func settleInTx(ctx context.Context, deps Dependencies, tx store.Tx, c *challenge.Challenge, now time.Time) (*SettleChallengeResult, error) {
	expected := c.Status
	opts := challenge.ResolveOptions{
		Location:   deps.Location,
		AllowEarly: deps.Features.IsEnabled(shared.FeatureEarlyDecisive, c.ChallengerID.String()),
	}
	if opts.AllowEarly && !c.IsDue(now) {
		n, err := trailingRecorded(ctx, deps, tx, c, now)
		if err != nil {
			return nil, err
		}
		opts.TrailingRecorded = n
	}

	outcome, err := c.Resolve(now, opts)
	if err != nil {
		return nil, err
	}
	entries, err := deps.Escrow.Settle(ctx, tx.Ledger(), c, outcome, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Challenges().UpdateIfStatus(ctx, c, expected); err != nil {
		// Only settlement leaves the active status once the window is running.
		if errors.Is(err, shared.ErrStatusChanged) {
			return nil, shared.ErrChallengeSettled
		}
		return nil, err
	}

	return &SettleChallengeResult{Challenge: c, Outcome: outcome, Entries: entries}, nil
}

// earlyDecisive reports whether c may settle before its window ends.
func earlyDecisive(ctx context.Context, deps Dependencies, tx store.Tx, c *challenge.Challenge, now time.Time) (bool, error) {
	if !deps.Features.IsEnabled(shared.FeatureEarlyDecisive, c.ChallengerID.String()) {
		return false, nil
	}
	n, err := trailingRecorded(ctx, deps, tx, c, now)
	if err != nil {
		return false, err
	}
	return c.Decisive(now, deps.Location, n), nil
}

// trailingRecorded counts the recovery-window days the trailing side has
// already recorded on the challenge habit.
func trailingRecorded(ctx context.Context, deps Dependencies, tx store.Tx, c *challenge.Challenge, now time.Time) (int, error) {
	userID, ok := c.Trailing()
	if !ok {
		return 0, nil
	}
	from, to, ok := c.RecoveryWindow(now, deps.Location)
	if !ok || !from.Before(to) {
		return 0, nil
	}
	return tx.Completions().Count(ctx, c.HabitID, userID, from, to)
}

func settlementEvents(r *SettleChallengeResult, now time.Time, correlationID string) []shared.Event {
	event := r.Challenge.Event(shared.EventChallengeSettled, now)
	event.BaseEvent = event.WithCorrelationID(correlationID)
	return append([]shared.Event{event}, ledgerEvents(r.Entries, now)...)
}

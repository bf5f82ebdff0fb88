package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL CHALLENGE COMMAND
// The challenger withdraws a proposal that has not been answered yet.
// ══════════════════════════════════════════════════════════════════════════════

// CancelChallengeCommand contains the cancellation input.
type CancelChallengeCommand struct {
	ChallengeID   string
	CallerID      string
	CorrelationID string
}

// Validate validates the command.
func (c CancelChallengeCommand) Validate() error {
	if strings.TrimSpace(c.ChallengeID) == "" {
		return errors.New("challenge_id is required")
	}
	if strings.TrimSpace(c.CallerID) == "" {
		return errors.New("caller_id is required")
	}
	return nil
}

// CancelChallengeResult contains the cancelled challenge.
type CancelChallengeResult struct {
	Challenge *challenge.Challenge

	// Entries holds refunds; empty unless stakes were held.
	Entries []ledger.Entry

	Events []shared.Event
}

// CancelChallengeHandler handles the CancelChallengeCommand.
type CancelChallengeHandler struct {
	deps Dependencies
}

// NewCancelChallengeHandler creates a new CancelChallengeHandler.
func NewCancelChallengeHandler(deps Dependencies) *CancelChallengeHandler {
	return &CancelChallengeHandler{deps: deps.withDefaults()}
}

// Handle executes the cancel command.
func (h *CancelChallengeHandler) Handle(ctx context.Context, cmd CancelChallengeCommand) (*CancelChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "Cancel", shared.ErrValidation, "invalid command", err)
	}

	id := challenge.ID(strings.TrimSpace(cmd.ChallengeID))
	caller, _ := shared.NewUserID(cmd.CallerID)
	now := h.deps.Clock()

	var result *CancelChallengeResult
	err := h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		result = &CancelChallengeResult{}

		c, err := tx.Challenges().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := c.Cancel(caller, now); err != nil {
			return err
		}
		entries, err := h.deps.Escrow.CancelRefund(ctx, tx.Ledger(), c, now)
		if err != nil {
			return err
		}
		if err := tx.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending); err != nil {
			return err
		}
		result.Challenge = c
		result.Entries = entries
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel_challenge: %w", err)
	}

	event := result.Challenge.Event(shared.EventChallengeCancelled, now)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	result.Events = append([]shared.Event{event}, ledgerEvents(result.Entries, now)...)
	h.deps.publish("cancel_challenge", result.Events)

	h.deps.Logger.Info("challenge cancelled",
		logger.ChallengeID(id.String()),
		logger.UserID(caller.String()),
	)
	return result, nil
}

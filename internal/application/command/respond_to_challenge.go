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
// RESPOND TO CHALLENGE COMMAND
// The invited opponent accepts or rejects a pending proposal. Acceptance
// reserves both stakes and starts the window in the same unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the opponent's answer to a proposal.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// RespondToChallengeCommand contains the response input.
type RespondToChallengeCommand struct {
	ChallengeID   string
	CallerID      string
	Decision      Decision
	CorrelationID string
}

// Validate validates the command.
func (c RespondToChallengeCommand) Validate() error {
	if strings.TrimSpace(c.ChallengeID) == "" {
		return errors.New("challenge_id is required")
	}
	if strings.TrimSpace(c.CallerID) == "" {
		return errors.New("caller_id is required")
	}
	if c.Decision != DecisionAccept && c.Decision != DecisionReject {
		return fmt.Errorf("unknown decision: %q", c.Decision)
	}
	return nil
}

// RespondToChallengeResult contains the challenge after the response.
type RespondToChallengeResult struct {
	Challenge *challenge.Challenge

	// Entries are the stake debits written on acceptance.
	Entries []ledger.Entry

	// Events contains domain events generated.
	Events []shared.Event
}

// RespondToChallengeHandler handles the RespondToChallengeCommand.
type RespondToChallengeHandler struct {
	deps Dependencies
}

// NewRespondToChallengeHandler creates a new RespondToChallengeHandler.
func NewRespondToChallengeHandler(deps Dependencies) *RespondToChallengeHandler {
	return &RespondToChallengeHandler{deps: deps.withDefaults()}
}

// Handle executes the respond command.
func (h *RespondToChallengeHandler) Handle(ctx context.Context, cmd RespondToChallengeCommand) (*RespondToChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "Respond", shared.ErrValidation, "invalid command", err)
	}

	id := challenge.ID(strings.TrimSpace(cmd.ChallengeID))
	caller, _ := shared.NewUserID(cmd.CallerID)
	now := h.deps.Clock()

	var result *RespondToChallengeResult
	err := h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		result = &RespondToChallengeResult{}

		c, err := tx.Challenges().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if cmd.Decision == DecisionReject {
			if err := c.Reject(caller, now); err != nil {
				return err
			}
			if err := tx.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending); err != nil {
				return err
			}
			result.Challenge = c
			return nil
		}

		if err := c.Accept(caller, now); err != nil {
			return err
		}
		if err := c.Activate(now, h.deps.Location); err != nil {
			return err
		}

		// Claim the transition first so a concurrent responder loses on the
		// status check rather than on a balance check.
		if err := tx.Challenges().UpdateIfStatus(ctx, c, challenge.StatusPending); err != nil {
			return err
		}

		entries, err := h.deps.Escrow.Reserve(ctx, tx.Ledger(), c, now)
		if err != nil {
			return err
		}
		if err := tx.Challenges().UpdateIfStatus(ctx, c, challenge.StatusActive); err != nil {
			return err
		}

		result.Challenge = c
		result.Entries = entries
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("respond_to_challenge: %w", err)
	}

	eventType := shared.EventChallengeAccepted
	if cmd.Decision == DecisionReject {
		eventType = shared.EventChallengeRejected
	}
	event := result.Challenge.Event(eventType, now)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	result.Events = append([]shared.Event{event}, ledgerEvents(result.Entries, now)...)
	h.deps.publish("respond_to_challenge", result.Events)

	h.deps.Logger.Info("challenge answered",
		logger.ChallengeID(id.String()),
		logger.UserID(caller.String()),
		logger.Status(string(result.Challenge.Status)),
	)
	return result, nil
}

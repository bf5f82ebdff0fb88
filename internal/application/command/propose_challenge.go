package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSE CHALLENGE COMMAND
// Creates a pending challenge between two users. No XP moves until the
// opponent accepts.
// ══════════════════════════════════════════════════════════════════════════════

// ProposeChallengeCommand contains the proposal input.
type ProposeChallengeCommand struct {
	ChallengerID string
	OpponentID   string
	HabitID      string

	// DurationDays must be one of challenge.AllowedDurations. Zero takes the
	// challenger's persona default.
	DurationDays int

	// StakeXP is the amount each side puts up. Zero takes the suggested stake.
	StakeXP int64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ProposeChallengeCommand) Validate() error {
	if strings.TrimSpace(c.ChallengerID) == "" {
		return errors.New("challenger_id is required")
	}
	if strings.TrimSpace(c.OpponentID) == "" {
		return errors.New("opponent_id is required")
	}
	if strings.TrimSpace(c.HabitID) == "" {
		return errors.New("habit_id is required")
	}
	if c.DurationDays < 0 {
		return errors.New("duration_days cannot be negative")
	}
	if c.StakeXP < 0 {
		return errors.New("stake_xp cannot be negative")
	}
	return nil
}

// ProposeChallengeResult contains the created challenge.
type ProposeChallengeResult struct {
	Challenge *challenge.Challenge

	// DurationDefaulted is set when the duration came from the persona.
	DurationDefaulted bool

	// StakeSuggested is set when the stake came from the suggestion.
	StakeSuggested bool

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProposeChallengeConfig contains configuration for the handler.
type ProposeChallengeConfig struct {
	// MaxStakeXP caps the stake per side. Zero disables the cap.
	MaxStakeXP int64
}

// DefaultProposeChallengeConfig returns default configuration.
func DefaultProposeChallengeConfig() ProposeChallengeConfig {
	return ProposeChallengeConfig{MaxStakeXP: 10_000}
}

// ProposeChallengeHandler handles the ProposeChallengeCommand.
type ProposeChallengeHandler struct {
	deps   Dependencies
	config ProposeChallengeConfig
	newID  func() string
}

// NewProposeChallengeHandler creates a new ProposeChallengeHandler.
func NewProposeChallengeHandler(deps Dependencies, config ProposeChallengeConfig) *ProposeChallengeHandler {
	return &ProposeChallengeHandler{
		deps:   deps.withDefaults(),
		config: config,
		newID:  uuid.NewString,
	}
}

// Handle executes the propose challenge command.
func (h *ProposeChallengeHandler) Handle(ctx context.Context, cmd ProposeChallengeCommand) (*ProposeChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "Propose", shared.ErrValidation, "invalid command", err)
	}

	challengerID, _ := shared.NewUserID(cmd.ChallengerID)
	opponentID, _ := shared.NewUserID(cmd.OpponentID)
	habitID := shared.HabitID(strings.TrimSpace(cmd.HabitID))
	now := h.deps.Clock()

	result := &ProposeChallengeResult{}

	duration := cmd.DurationDays
	if duration == 0 {
		d, err := h.defaultDuration(ctx, challengerID)
		if err != nil {
			return nil, fmt.Errorf("propose_challenge: failed to resolve default duration: %w", err)
		}
		duration = d
		result.DurationDefaulted = true
	}

	err := h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		challengerXP, err := tx.Ledger().Balance(ctx, challengerID)
		if err != nil {
			return err
		}
		opponentXP, err := tx.Ledger().Balance(ctx, opponentID)
		if err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrOpponentNotFound
			}
			return err
		}

		stake := cmd.StakeXP
		result.StakeSuggested = false
		if stake == 0 {
			suggestion := challenge.SuggestStake(challengerXP, opponentXP, h.config.MaxStakeXP)
			if suggestion.Recommended == 0 {
				return shared.ErrCannotAffordStake
			}
			stake = suggestion.Recommended
			result.StakeSuggested = true
		}

		c, err := challenge.New(challenge.NewParams{
			ID:           challenge.ID(h.newID()),
			ChallengerID: challengerID,
			OpponentID:   opponentID,
			HabitID:      habitID,
			DurationDays: duration,
			StakeXP:      stake,
			MaxStakeXP:   h.config.MaxStakeXP,
		}, now)
		if err != nil {
			return err
		}

		// Soft check only; the debit on acceptance is authoritative.
		if challengerXP < c.StakeXP {
			return shared.ErrCannotAffordStake
		}

		if err := tx.Challenges().Create(ctx, c); err != nil {
			return err
		}
		result.Challenge = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("propose_challenge: %w", err)
	}

	event := result.Challenge.Event(shared.EventChallengeProposed, now)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	result.Events = []shared.Event{event}
	h.deps.publish("propose_challenge", result.Events)

	h.deps.Logger.Info("challenge proposed",
		logger.ChallengeID(result.Challenge.ID.String()),
		logger.UserID(challengerID.String()),
		logger.String("opponent_id", opponentID.String()),
		logger.XPAmount(result.Challenge.StakeXP),
		logger.Int("duration_days", duration),
	)
	return result, nil
}

// defaultDuration takes the challenger's persona default. Users without a
// questionnaire classify as the fallback archetype.
func (h *ProposeChallengeHandler) defaultDuration(ctx context.Context, userID shared.UserID) (int, error) {
	if !h.deps.Features.IsEnabled(shared.FeaturePersonaDefaults, userID.String()) {
		return persona.ProfileOf(persona.ArchetypeGuardian).DefaultChallengeDays, nil
	}

	var answers persona.Answers
	sub, err := h.deps.Store.Answers().Latest(ctx, userID)
	switch {
	case err == nil:
		answers = sub.Answers
	case shared.IsNotFound(err):
	default:
		return 0, err
	}
	return persona.Classify(answers).DefaultChallengeDays, nil
}

package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// Credits XP earned outside challenges, e.g. by the habit tracker's
// per-completion award. Goes through the same ledger as stakes and payouts.
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPCommand contains the grant input.
type GrantXPCommand struct {
	UserID string
	Amount int64

	// Reference identifies the source, e.g. a completion or campaign id.
	Reference string

	CorrelationID string
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id is required")
	}
	if c.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if c.Amount > ledger.MaxGrantXP {
		return fmt.Errorf("amount must not exceed %d", ledger.MaxGrantXP)
	}
	return nil
}

// GrantXPResult contains the ledger entry and the resulting level.
type GrantXPResult struct {
	Entry  ledger.Entry
	Level  leveling.Info
	Events []shared.Event
}

// GrantXPHandler handles the GrantXPCommand.
type GrantXPHandler struct {
	deps Dependencies
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(deps Dependencies) *GrantXPHandler {
	return &GrantXPHandler{deps: deps.withDefaults()}
}

// Handle executes the grant command.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("ledger", "Grant", shared.ErrValidation, "invalid command", err)
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	now := h.deps.Clock()

	var entry ledger.Entry
	err := h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		entry, err = tx.Ledger().Credit(ctx, userID, cmd.Amount, ledger.Posting{
			Reason:    ledger.ReasonGrant,
			Reference: cmd.Reference,
			At:        now,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}

	result := &GrantXPResult{
		Entry:  entry,
		Level:  leveling.Calculate(entry.BalanceAfter),
		Events: ledgerEvents([]ledger.Entry{entry}, now),
	}
	h.deps.publish("grant_xp", result.Events)

	h.deps.Logger.Info("xp granted",
		logger.UserID(userID.String()),
		logger.XPAmount(cmd.Amount),
		logger.Int("level", result.Level.Level),
	)
	return result, nil
}

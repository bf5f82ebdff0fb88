package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGEST STAKE QUERY
// Recommends a stake for a pairing from the two balances.
// ══════════════════════════════════════════════════════════════════════════════

// SuggestStakeQuery names the pairing.
type SuggestStakeQuery struct {
	ChallengerID string
	OpponentID   string
}

// Validate checks the query parameters.
func (q *SuggestStakeQuery) Validate() error {
	q.ChallengerID = strings.TrimSpace(q.ChallengerID)
	q.OpponentID = strings.TrimSpace(q.OpponentID)
	if q.ChallengerID == "" || q.OpponentID == "" {
		return errors.New("challenger_id and opponent_id are required")
	}
	if q.ChallengerID == q.OpponentID {
		return errors.New("challenger and opponent must differ")
	}
	return nil
}

// SuggestStakeHandler handles SuggestStakeQuery.
type SuggestStakeHandler struct {
	ledger     ledger.Ledger
	maxStakeXP int64
}

// NewSuggestStakeHandler creates a new handler. maxStakeXP of zero disables the cap.
func NewSuggestStakeHandler(l ledger.Ledger, maxStakeXP int64) *SuggestStakeHandler {
	return &SuggestStakeHandler{ledger: l, maxStakeXP: maxStakeXP}
}

// Handle executes the query.
func (h *SuggestStakeHandler) Handle(ctx context.Context, q SuggestStakeQuery) (*challenge.StakeSuggestion, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "SuggestStake", shared.ErrValidation, "invalid query", err)
	}

	a, err := h.ledger.Balance(ctx, shared.UserID(q.ChallengerID))
	if err != nil {
		return nil, fmt.Errorf("suggest_stake: challenger: %w", err)
	}
	b, err := h.ledger.Balance(ctx, shared.UserID(q.OpponentID))
	if err != nil {
		return nil, fmt.Errorf("suggest_stake: opponent: %w", err)
	}

	s := challenge.SuggestStake(a, b, h.maxStakeXP)
	return &s, nil
}

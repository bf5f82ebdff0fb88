package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET XP HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MaxHistoryLimit caps one history page.
const MaxHistoryLimit = 200

// GetXPHistoryQuery lists a user's ledger entries, newest first.
type GetXPHistoryQuery struct {
	UserID string
	Limit  int
}

// Validate checks the query parameters and clamps the limit.
func (q *GetXPHistoryQuery) Validate() error {
	q.UserID = strings.TrimSpace(q.UserID)
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	q.Limit = min(q.Limit, MaxHistoryLimit)
	return nil
}

// LedgerEntryDTO is one history row.
type LedgerEntryDTO struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetXPHistoryHandler handles GetXPHistoryQuery.
type GetXPHistoryHandler struct {
	accounts ledger.AccountRepository
}

// NewGetXPHistoryHandler creates a new handler.
func NewGetXPHistoryHandler(accounts ledger.AccountRepository) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{accounts: accounts}
}

// Handle executes the query. An unknown user is ErrAccountNotFound rather
// than an empty page.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) ([]LedgerEntryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("ledger", "History", shared.ErrValidation, "invalid query", err)
	}

	id := shared.UserID(q.UserID)
	if _, err := h.accounts.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}

	entries, err := h.accounts.History(ctx, id, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}

	out := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryDTO{
			ID:           e.ID,
			Type:         string(e.Type),
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Reason:       string(e.Reason),
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out, nil
}

// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEVEL INFO QUERY
// Returns the level breakdown for a user's current balance. Levels are never
// stored; they are derived from total XP, and a cached breakdown is reused
// only while it matches the balance just read.
// ══════════════════════════════════════════════════════════════════════════════

// GetLevelInfoQuery identifies the user.
type GetLevelInfoQuery struct {
	UserID string
}

// Validate checks the query parameters.
func (q *GetLevelInfoQuery) Validate() error {
	q.UserID = strings.TrimSpace(q.UserID)
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// LevelInfoDTO is the level view of a user.
type LevelInfoDTO struct {
	UserID string `json:"user_id"`
	leveling.Info
	// Cached is set when the answer came from the level cache.
	Cached bool `json:"cached"`
}

// GetLevelInfoHandler handles GetLevelInfoQuery.
type GetLevelInfoHandler struct {
	ledger ledger.Ledger
	cache  leveling.Cache
	log    *logger.Logger
}

// NewGetLevelInfoHandler creates a new handler. cache may be nil.
func NewGetLevelInfoHandler(l ledger.Ledger, cache leveling.Cache, log *logger.Logger) *GetLevelInfoHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetLevelInfoHandler{ledger: l, cache: cache, log: log}
}

// Handle executes the query.
func (h *GetLevelInfoHandler) Handle(ctx context.Context, q GetLevelInfoQuery) (*LevelInfoDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("leveling", "GetLevelInfo", shared.ErrValidation, "invalid query", err)
	}
	userID := shared.UserID(q.UserID)

	// The balance is always read: a cached entry only answers when it was
	// computed from that same total, so a late write from a racing reader
	// is never served.
	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_level_info: %w", err)
	}

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, userID)
		switch {
		case err != nil:
			h.log.Warn("level cache read failed", logger.UserID(q.UserID), logger.Err(err))
		case cached != nil && cached.TotalXP == balance:
			return &LevelInfoDTO{UserID: q.UserID, Info: *cached, Cached: true}, nil
		}
	}

	info := leveling.Calculate(balance)
	if h.cache != nil {
		if err := h.cache.Set(ctx, userID, info); err != nil {
			h.log.Warn("level cache write failed", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return &LevelInfoDTO{UserID: q.UserID, Info: info}, nil
}

// LevelInfoForXP is the pure calculation exposed for callers that already hold a total.
func LevelInfoForXP(totalXP int64) leveling.Info {
	return leveling.Calculate(totalXP)
}

package leveling

import (
	"context"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// Cache keeps computed level info per user between balance changes.
// Entries are dropped whenever the user's XP changes.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, userID shared.UserID) (*Info, error)
	Set(ctx context.Context, userID shared.UserID, info Info) error
	Invalidate(ctx context.Context, userID shared.UserID) error
}

// Package eventhandler contains reactions to committed domain events.
// Handlers run after the unit of work that produced the event, so they only
// touch derived state such as caches.
package eventhandler

import (
	"context"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON XP CHANGED HANDLER
// Drops the cached level of a user whenever their balance moves, and logs
// level-ups for the activity feed.
// ═══════════════════════════════════════════════════════════════════════════

// OnXPChangedHandler reacts to ledger events.
type OnXPChangedHandler struct {
	cache   leveling.Cache
	log     *logger.Logger
	timeout time.Duration
}

// NewOnXPChangedHandler creates the handler.
func NewOnXPChangedHandler(cache leveling.Cache, log *logger.Logger) *OnXPChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnXPChangedHandler{
		cache:   cache,
		log:     log.With(logger.String("handler", "on_xp_changed")),
		timeout: 2 * time.Second,
	}
}

// Handle implements shared.EventHandler. Events replayed from peer instances
// carry only type, aggregate and payload, so nothing here asserts concrete types.
func (h *OnXPChangedHandler) Handle(event shared.Event) error {
	switch event.EventType() {
	case shared.EventXPCredited, shared.EventXPDebited:
		if h.cache == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.cache.Invalidate(ctx, shared.UserID(event.AggregateID())); err != nil {
			h.log.Warn("failed to invalidate level cache",
				logger.UserID(event.AggregateID()),
				logger.Err(err),
			)
			return err
		}
	case shared.EventLevelUp:
		p := event.Payload()
		h.log.Info("user levelled up",
			logger.UserID(event.AggregateID()),
			logger.Any("old_level", p["old_level"]),
			logger.Any("new_level", p["new_level"]),
			logger.Any("title", p["title"]),
		)
	}
	return nil
}

// Register subscribes the handler to the ledger events on bus.
func (h *OnXPChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPCredited, shared.EventXPDebited, shared.EventLevelUp} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

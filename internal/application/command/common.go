// Package command contains write operations (CQRS - Commands).
//
// Every command runs its reads and writes in one store.Atomic unit of work and
// publishes the collected events only after that unit commits.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/escrow"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/retry"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies are the collaborators shared by all challenge commands.
type Dependencies struct {
	Store     store.Store
	Escrow    *escrow.Service
	Publisher shared.EventPublisher
	Features  shared.FeatureGate
	Logger    *logger.Logger

	// Clock defaults to timeutil.SystemClock.
	Clock timeutil.Clock

	// Location is the engine time zone for calendar days. Defaults to UTC.
	Location *time.Location
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Escrow == nil {
		d.Escrow = escrow.NewService()
	}
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Features == nil {
		d.Features = shared.StaticFeatures{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return d
}

// atomic runs fn in a unit of work, retrying when the store reports a
// concurrent modification such as a serialization failure.
func (d Dependencies) atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	p := retry.StorePolicy(func(err error) bool {
		return errors.Is(err, shared.ErrConcurrentModification)
	})
	return p.Do(ctx, func(ctx context.Context) error {
		return d.Store.Atomic(ctx, fn)
	})
}

// publish sends events after commit. Delivery failures are logged only: the
// state change is already durable.
func (d Dependencies) publish(op string, events []shared.Event) {
	if err := shared.PublishAll(d.Publisher, events); err != nil {
		d.Logger.Warn("failed to publish events",
			logger.Operation(op),
			logger.Int("events", len(events)),
			logger.Err(err),
		)
	}
}

// ledgerEvents turns committed ledger entries into XP events, adding a level-up
// event for every credit that crosses a level threshold.
func ledgerEvents(entries []ledger.Entry, now time.Time) []shared.Event {
	events := make([]shared.Event, 0, len(entries))
	for _, e := range entries {
		credit := e.Type == ledger.EntryCredit
		events = append(events, shared.NewXPChangedEvent(
			credit, e.UserID.String(), e.Amount, e.BalanceAfter, string(e.Reason), e.Reference, now,
		))
		if !credit {
			continue
		}
		oldLevel := leveling.LevelFor(e.BalanceAfter - e.Amount)
		info := leveling.Calculate(e.BalanceAfter)
		if info.Level > oldLevel {
			events = append(events, shared.NewLevelUpEvent(e.UserID.String(), oldLevel, info.Level, info.Title, now))
		}
	}
	return events
}

package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Marks a habit done for a calendar day and adds one point to the user's side
// of every active challenge on that habit whose window contains the day.
// A second completion for the same day is a successful no-op.
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionCommand contains the completion input.
type RecordCompletionCommand struct {
	UserID  string
	HabitID string

	// Date is the completion day. Zero means today in the engine location.
	Date time.Time

	CorrelationID string
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(c.HabitID) == "" {
		return errors.New("habit_id is required")
	}
	return nil
}

// ChallengeProgress is the score of one side after an increment.
type ChallengeProgress struct {
	ChallengeID challenge.ID
	Side        challenge.Side
	Progress    int
	// Settled is set when the increment made the lead unrecoverable and the
	// challenge was settled in the same unit of work.
	Settled bool
}

// RecordCompletionResult contains the effect of the completion.
type RecordCompletionResult struct {
	Date time.Time

	// Duplicate is set when the day was already recorded; nothing changed.
	Duplicate bool

	Progressed []ChallengeProgress
	Events     []shared.Event
}

// RecordCompletionHandler handles the RecordCompletionCommand.
type RecordCompletionHandler struct {
	deps Dependencies
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
func NewRecordCompletionHandler(deps Dependencies) *RecordCompletionHandler {
	return &RecordCompletionHandler{deps: deps.withDefaults()}
}

// Handle executes the record completion command.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*RecordCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "RecordCompletion", shared.ErrValidation, "invalid command", err)
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	habitID := shared.HabitID(strings.TrimSpace(cmd.HabitID))
	now := h.deps.Clock()
	day := cmd.Date
	if day.IsZero() {
		day = now
	}

	rec, err := challenge.NewCompletionRecord(habitID, userID, day, h.deps.Location, now)
	if err != nil {
		return nil, fmt.Errorf("record_completion: %w", err)
	}

	var (
		result  *RecordCompletionResult
		settled []*SettleChallengeResult
		touched []*challenge.Challenge
	)
	err = h.deps.atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		result = &RecordCompletionResult{Date: rec.Date}
		settled, touched = nil, nil

		inserted, err := tx.Completions().Record(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}

		active, err := tx.Challenges().ListActiveForHabit(ctx, userID, habitID)
		if err != nil {
			return err
		}

		for _, c := range active {
			side, ok := c.SideOf(userID)
			if !ok || !challenge.CanRecordProgress(c, rec.Date, now, h.deps.Location).Allowed {
				continue
			}
			incremented, err := tx.Challenges().IncrementProgress(ctx, c.ID, side, now)
			if err != nil {
				return err
			}
			if !incremented {
				continue
			}
			if side == challenge.SideChallenger {
				c.ChallengerProgress++
			} else {
				c.OpponentProgress++
			}
			c.Version++
			c.UpdatedAt = now

			progress := ChallengeProgress{ChallengeID: c.ID, Side: side, Progress: c.Progress(side)}

			decisive, err := earlyDecisive(ctx, h.deps, tx, c, now)
			if err != nil {
				return err
			}
			if decisive {
				s, err := settleInTx(ctx, h.deps, tx, c, now)
				if err != nil {
					return err
				}
				settled = append(settled, s)
				progress.Settled = true
			} else {
				touched = append(touched, c)
			}
			result.Progressed = append(result.Progressed, progress)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_completion: %w", err)
	}

	if result.Duplicate {
		h.deps.Logger.Debug("completion already recorded",
			logger.UserID(userID.String()),
			logger.HabitID(habitID.String()),
			logger.String("date", timeutil.FormatDate(rec.Date)),
		)
		return result, nil
	}

	ids := make([]string, 0, len(result.Progressed))
	for _, p := range result.Progressed {
		ids = append(ids, p.ChallengeID.String())
	}
	completed := shared.NewCompletionRecordedEvent(habitID.String(), userID.String(), timeutil.FormatDate(rec.Date), ids, now)
	completed.BaseEvent = completed.WithCorrelationID(cmd.CorrelationID)
	result.Events = append(result.Events, completed)
	for _, c := range touched {
		result.Events = append(result.Events, c.Event(shared.EventChallengeProgressed, now))
	}
	for _, s := range settled {
		result.Events = append(result.Events, settlementEvents(s, now, cmd.CorrelationID)...)
	}
	h.deps.publish("record_completion", result.Events)

	h.deps.Logger.Info("completion recorded",
		logger.UserID(userID.String()),
		logger.HabitID(habitID.String()),
		logger.String("date", timeutil.FormatDate(rec.Date)),
		logger.Int("challenges", len(result.Progressed)),
		logger.Int("settled", len(settled)),
	)
	return result, nil
}

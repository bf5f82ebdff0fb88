package challenge

import (
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// BackfillGraceDays is how many past days a completion may still score on an
// active challenge. A completion for today always scores.
const BackfillGraceDays = 1

// ScoringHorizon returns the earliest day a completion recorded at now can score.
func ScoringHorizon(now time.Time, loc *time.Location) time.Time {
	return timeutil.AddDays(timeutil.StartOfDay(now, loc), -BackfillGraceDays)
}

// CompletionRecord marks a habit as done on one calendar day.
// At most one record exists per (habit, user, day).
type CompletionRecord struct {
	HabitID    shared.HabitID
	UserID     shared.UserID
	Date       time.Time // midnight in the engine location
	Completed  bool
	RecordedAt time.Time
}

// NewCompletionRecord normalizes day to its calendar date in loc.
func NewCompletionRecord(habitID shared.HabitID, userID shared.UserID, day time.Time, loc *time.Location, now time.Time) (CompletionRecord, error) {
	if !habitID.IsValid() {
		return CompletionRecord{}, shared.NewDomainError("challenge", "RecordCompletion", shared.ErrValidation, "habit id is required")
	}
	if !userID.IsValid() {
		return CompletionRecord{}, shared.NewDomainError("challenge", "RecordCompletion", shared.ErrValidation, "user id is required")
	}
	date := timeutil.StartOfDay(day, loc)
	if date.After(timeutil.StartOfDay(now, loc)) {
		return CompletionRecord{}, shared.NewDomainError("challenge", "RecordCompletion", shared.ErrValidation, "completion date is in the future")
	}
	return CompletionRecord{
		HabitID:    habitID,
		UserID:     userID,
		Date:       date,
		Completed:  true,
		RecordedAt: now,
	}, nil
}

// Key returns the uniqueness key of the record.
func (r CompletionRecord) Key() string {
	return r.HabitID.String() + "|" + r.UserID.String() + "|" + timeutil.FormatDate(r.Date)
}

package persona

import (
	"context"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// Submission is a stored questionnaire record.
type Submission struct {
	UserID      shared.UserID
	Answers     Answers
	SubmittedAt time.Time
}

// AnswerRepository stores the latest questionnaire submission per user.
// The engine only reads it to derive behavioral defaults; the onboarding flow writes it.
type AnswerRepository interface {
	// Latest returns the newest submission or ErrQuestionnaireAbsent.
	Latest(ctx context.Context, userID shared.UserID) (*Submission, error)

	// Save stores a submission, replacing the previous one.
	Save(ctx context.Context, s *Submission) error
}

// Enricher adds a free-text narrative to a deterministic result.
// It is best-effort: callers fall back to the rules result on any error.
type Enricher interface {
	Enrich(ctx context.Context, answers Answers, base Result) (narrative string, err error)
}

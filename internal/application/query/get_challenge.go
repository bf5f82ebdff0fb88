package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CHALLENGE / LIST CHALLENGES QUERIES
// Participant-only reads of the challenge aggregate.
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeDTO is the read model of a challenge.
type ChallengeDTO struct {
	ID                 string     `json:"id"`
	ChallengerID       string     `json:"challenger_id"`
	OpponentID         string     `json:"opponent_id"`
	HabitID            string     `json:"habit_id"`
	DurationDays       int        `json:"duration_days"`
	StakeXP            int64      `json:"stake_xp"`
	Status             string     `json:"status"`
	Escrow             string     `json:"escrow"`
	ChallengerProgress int        `json:"challenger_progress"`
	OpponentProgress   int        `json:"opponent_progress"`
	WinnerID           string     `json:"winner_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndsAt             *time.Time `json:"ends_at,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

// NewChallengeDTO maps the aggregate to its read model.
func NewChallengeDTO(c *challenge.Challenge) ChallengeDTO {
	return ChallengeDTO{
		ID:                 c.ID.String(),
		ChallengerID:       c.ChallengerID.String(),
		OpponentID:         c.OpponentID.String(),
		HabitID:            c.HabitID.String(),
		DurationDays:       c.DurationDays,
		StakeXP:            c.StakeXP,
		Status:             string(c.Status),
		Escrow:             string(c.Escrow),
		ChallengerProgress: c.ChallengerProgress,
		OpponentProgress:   c.OpponentProgress,
		WinnerID:           c.WinnerID.String(),
		CreatedAt:          c.CreatedAt,
		StartedAt:          c.StartedAt,
		EndsAt:             c.EndsAt,
		ResolvedAt:         c.ResolvedAt,
	}
}

// GetChallengeQuery reads one challenge as CallerID.
type GetChallengeQuery struct {
	ChallengeID string
	CallerID    string
}

// Validate checks the query parameters.
func (q *GetChallengeQuery) Validate() error {
	if strings.TrimSpace(q.ChallengeID) == "" {
		return errors.New("challenge_id is required")
	}
	if strings.TrimSpace(q.CallerID) == "" {
		return errors.New("caller_id is required")
	}
	return nil
}

// ListChallengesQuery lists a user's challenges, newest first.
type ListChallengesQuery struct {
	UserID   string
	Statuses []challenge.Status
	Limit    int
}

// Validate checks the query parameters and applies the default limit.
func (q *ListChallengesQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return errors.New("user_id is required")
	}
	for _, s := range q.Statuses {
		if !s.IsValid() {
			return fmt.Errorf("unknown status %q", s)
		}
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// ChallengeReader handles both challenge queries.
type ChallengeReader struct {
	repo challenge.Repository
}

// NewChallengeReader creates a new reader.
func NewChallengeReader(repo challenge.Repository) *ChallengeReader {
	return &ChallengeReader{repo: repo}
}

// Get returns the challenge if the caller is a participant.
func (r *ChallengeReader) Get(ctx context.Context, q GetChallengeQuery) (*ChallengeDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "Get", shared.ErrValidation, "invalid query", err)
	}
	c, err := r.repo.GetByID(ctx, challenge.ID(strings.TrimSpace(q.ChallengeID)))
	if err != nil {
		return nil, fmt.Errorf("get_challenge: %w", err)
	}
	if g := challenge.CanView(c, shared.UserID(strings.TrimSpace(q.CallerID))); !g.Allowed {
		return nil, g.Err("Get")
	}
	dto := NewChallengeDTO(c)
	return &dto, nil
}

// List returns the user's challenges filtered by status.
func (r *ChallengeReader) List(ctx context.Context, q ListChallengesQuery) ([]ChallengeDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "List", shared.ErrValidation, "invalid query", err)
	}
	list, err := r.repo.ListByUser(ctx, shared.UserID(strings.TrimSpace(q.UserID)), q.Statuses, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list_challenges: %w", err)
	}
	out := make([]ChallengeDTO, 0, len(list))
	for _, c := range list {
		out = append(out, NewChallengeDTO(c))
	}
	return out, nil
}

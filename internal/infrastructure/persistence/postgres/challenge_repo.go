package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY
// Inside a unit of work, reads of single challenges take a row lock so the
// status check and the write that follows see the same progress counters.
// ══════════════════════════════════════════════════════════════════════════════

type challengeRepo struct {
	db dbFunc

	// lock appends FOR UPDATE to point reads; set for transactional views.
	lock bool
}

const challengeColumns = `
	id, challenger_id, opponent_id, habit_id, duration_days, stake_xp,
	status, escrow, challenger_progress, opponent_progress, winner_id,
	created_at, started_at, ends_at, resolved_at, updated_at, version
`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var (
		c                               challenge.Challenge
		id, challenger, opponent, habit string
		status, escrow, winner          string
		startedAt, endsAt, resolvedAt   *time.Time
	)
	err := row.Scan(
		&id, &challenger, &opponent, &habit, &c.DurationDays, &c.StakeXP,
		&status, &escrow, &c.ChallengerProgress, &c.OpponentProgress, &winner,
		&c.CreatedAt, &startedAt, &endsAt, &resolvedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	c.ID = challenge.ID(id)
	c.ChallengerID = shared.UserID(challenger)
	c.OpponentID = shared.UserID(opponent)
	c.HabitID = shared.HabitID(habit)
	c.Status = challenge.Status(status)
	c.Escrow = challenge.EscrowState(escrow)
	c.WinnerID = shared.UserID(winner)
	c.StartedAt = startedAt
	c.EndsAt = endsAt
	c.ResolvedAt = resolvedAt
	return &c, nil
}

func (r *challengeRepo) suffix() string {
	if r.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (r *challengeRepo) Create(ctx context.Context, c *challenge.Challenge) error {
	q, err := r.db()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		c.ID.String(), c.ChallengerID.String(), c.OpponentID.String(), c.HabitID.String(), c.DurationDays, c.StakeXP,
		string(c.Status), string(c.Escrow), c.ChallengerProgress, c.OpponentProgress, c.WinnerID.String(),
		c.CreatedAt, c.StartedAt, c.EndsAt, c.ResolvedAt, c.UpdatedAt, c.Version,
	)
	switch {
	case IsUniqueViolation(err):
		return shared.NewDomainError("challenge", "Create", shared.ErrValidation, "challenge already exists")
	case IsForeignKeyViolation(err):
		return shared.NewDomainError("challenge", "Create", shared.ErrNotFound, "participant account not found")
	}
	return translate("challenge", "Create", err)
}

func (r *challengeRepo) GetByID(ctx context.Context, id challenge.ID) (*challenge.Challenge, error) {
	q, err := r.db()
	if err != nil {
		return nil, err
	}
	c, err := scanChallenge(q.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`+r.suffix(), id.String()))
	if IsNoRows(err) {
		return nil, shared.ErrChallengeNotFound
	}
	if err != nil {
		return nil, translate("challenge", "GetByID", err)
	}
	return c, nil
}

func (r *challengeRepo) UpdateIfStatus(ctx context.Context, c *challenge.Challenge, expected challenge.Status) error {
	q, err := r.db()
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, `
		UPDATE challenges SET
			status = $3, escrow = $4,
			challenger_progress = $5, opponent_progress = $6, winner_id = $7,
			started_at = $8, ends_at = $9, resolved_at = $10, updated_at = $11,
			version = version + 1
		WHERE id = $1 AND status = $2
		RETURNING version
	`,
		c.ID.String(), string(expected),
		string(c.Status), string(c.Escrow),
		c.ChallengerProgress, c.OpponentProgress, c.WinnerID.String(),
		c.StartedAt, c.EndsAt, c.ResolvedAt, c.UpdatedAt,
	).Scan(&c.Version)
	if IsNoRows(err) {
		return r.missOrRace(ctx, q, c.ID, shared.ErrStatusChanged)
	}
	return translate("challenge", "UpdateIfStatus", err)
}

// missOrRace tells a missing row from a row whose status moved on.
func (r *challengeRepo) missOrRace(ctx context.Context, q Querier, id challenge.ID, raced error) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM challenges WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return translate("challenge", "Exists", err)
	}
	if !exists {
		return shared.ErrChallengeNotFound
	}
	return raced
}

func (r *challengeRepo) IncrementProgress(ctx context.Context, id challenge.ID, side challenge.Side, at time.Time) (bool, error) {
	q, err := r.db()
	if err != nil {
		return false, err
	}

	column := "opponent_progress"
	if side == challenge.SideChallenger {
		column = "challenger_progress"
	}

	tag, err := q.Exec(ctx, `
		UPDATE challenges
		SET `+column+` = `+column+` + 1, updated_at = $2, version = version + 1
		WHERE id = $1 AND status = 'active'
	`, id.String(), at)
	if err != nil {
		return false, translate("challenge", "IncrementProgress", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.missOrRace(ctx, q, id, nil); err != nil {
		return false, err
	}
	return false, nil
}

func (r *challengeRepo) ListActiveForHabit(ctx context.Context, userID shared.UserID, habitID shared.HabitID) ([]*challenge.Challenge, error) {
	return r.list(ctx, "ListActiveForHabit", `
		SELECT `+challengeColumns+` FROM challenges
		WHERE status = 'active' AND habit_id = $2 AND (challenger_id = $1 OR opponent_id = $1)
		ORDER BY created_at, id`+r.suffix(),
		userID.String(), habitID.String())
}

// dueKey orders windowless challenges first, matching challenge.DueCursor.
const dueKey = `COALESCE(ends_at, '0001-01-01 00:00:00+00'::timestamptz)`

func (r *challengeRepo) ListDue(ctx context.Context, now time.Time, after challenge.DueCursor, limit int) ([]*challenge.Challenge, error) {
	return r.list(ctx, "ListDue", `
		SELECT `+challengeColumns+` FROM challenges
		WHERE status = 'active' AND (ends_at IS NULL OR ends_at <= $1)
		  AND ($3::text = '' OR (`+dueKey+`, id) > ($2::timestamptz, $3::text))
		ORDER BY `+dueKey+`, id
		LIMIT NULLIF($4, 0)`,
		now, after.EndsAt, after.ID.String(), limit)
}

func (r *challengeRepo) ListByUser(ctx context.Context, userID shared.UserID, statuses []challenge.Status, limit int) ([]*challenge.Challenge, error) {
	var filter []string
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	return r.list(ctx, "ListByUser", `
		SELECT `+challengeColumns+` FROM challenges
		WHERE (challenger_id = $1 OR opponent_id = $1)
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id
		LIMIT NULLIF($3, 0)`,
		userID.String(), filter, limit)
}

func (r *challengeRepo) list(ctx context.Context, op, sql string, args ...any) ([]*challenge.Challenge, error) {
	q, err := r.db()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate("challenge", op, err)
	}
	defer rows.Close()

	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, translate("challenge", op, err)
		}
		out = append(out, c)
	}
	return out, translate("challenge", op, rows.Err())
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION LOG
// ══════════════════════════════════════════════════════════════════════════════

type completionLog struct {
	db dbFunc
}

func (l *completionLog) Record(ctx context.Context, rec challenge.CompletionRecord) (bool, error) {
	q, err := l.db()
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO completion_records (habit_id, user_id, completed_on, completed, recorded_at)
		VALUES ($1, $2, $3::date, $4, $5)
		ON CONFLICT (habit_id, user_id, completed_on) DO NOTHING
	`, rec.HabitID.String(), rec.UserID.String(), timeutil.FormatDate(rec.Date), rec.Completed, rec.RecordedAt)
	if err != nil {
		return false, translate("challenge", "RecordCompletion", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *completionLog) Count(ctx context.Context, habitID shared.HabitID, userID shared.UserID, from, to time.Time) (int, error) {
	q, err := l.db()
	if err != nil {
		return 0, err
	}
	var n int
	err = q.QueryRow(ctx, `
		SELECT count(*) FROM completion_records
		WHERE habit_id = $1 AND user_id = $2 AND completed
		  AND completed_on >= $3::date AND completed_on < $4::date
	`, habitID.String(), userID.String(), timeutil.FormatDate(from), timeutil.FormatDate(to)).Scan(&n)
	if err != nil {
		return 0, translate("challenge", "CountCompletions", err)
	}
	return n, nil
}

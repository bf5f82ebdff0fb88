package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
)

// dbFunc yields the pool or the open transaction a repository runs against.
type dbFunc func() (Querier, error)

// Store implements store.Store on a pgx pool.
type Store struct {
	conn *Connection
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Open connects with cfg and optionally applies pending migrations.
func Open(ctx context.Context, cfg Config, migrate bool) (*Store, error) {
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, shared.Infrastructure("postgres", "Open", err)
	}
	if migrate {
		if _, err := NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, shared.Infrastructure("postgres", "Migrate", err)
		}
	}
	return NewStore(conn), nil
}

// Connection exposes the pool for the migrator and health checks.
func (s *Store) Connection() *Connection { return s.conn }

// Atomic implements store.Store with one READ COMMITTED transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, newTxView(tx))
	})
	return translate("postgres", "Atomic", err)
}

func (s *Store) Ledger() ledger.Ledger                { return &ledgerRepo{db: s.conn.querier} }
func (s *Store) Accounts() ledger.AccountRepository   { return &accountRepo{db: s.conn.querier} }
func (s *Store) Challenges() challenge.Repository     { return &challengeRepo{db: s.conn.querier} }
func (s *Store) Completions() challenge.CompletionLog { return &completionLog{db: s.conn.querier} }
func (s *Store) Answers() persona.AnswerRepository    { return &answerRepo{db: s.conn.querier} }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return translate("postgres", "Ping", s.conn.Ping(ctx))
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

type txView struct {
	db dbFunc
}

func newTxView(tx pgx.Tx) *txView {
	return &txView{db: func() (Querier, error) { return tx, nil }}
}

func (t *txView) Ledger() ledger.Ledger                { return &ledgerRepo{db: t.db} }
func (t *txView) Accounts() ledger.AccountRepository   { return &accountRepo{db: t.db} }
func (t *txView) Challenges() challenge.Repository     { return &challengeRepo{db: t.db, lock: true} }
func (t *txView) Completions() challenge.CompletionLog { return &completionLog{db: t.db} }

// ══════════════════════════════════════════════════════════════════════════════
// QUESTIONNAIRE ANSWERS
// ══════════════════════════════════════════════════════════════════════════════

type answerRepo struct {
	db dbFunc
}

func (r *answerRepo) Latest(ctx context.Context, userID shared.UserID) (*persona.Submission, error) {
	q, err := r.db()
	if err != nil {
		return nil, err
	}
	sub := &persona.Submission{UserID: userID}
	var raw []byte
	err = q.QueryRow(ctx, `
		SELECT answers, submitted_at FROM questionnaire_answers WHERE user_id = $1
	`, userID.String()).Scan(&raw, &sub.SubmittedAt)
	if IsNoRows(err) {
		return nil, shared.ErrQuestionnaireAbsent
	}
	if err != nil {
		return nil, translate("persona", "Latest", err)
	}
	if err := json.Unmarshal(raw, &sub.Answers); err != nil {
		return nil, shared.Infrastructure("persona", "Latest", err)
	}
	return sub, nil
}

func (r *answerRepo) Save(ctx context.Context, sub *persona.Submission) error {
	if !sub.UserID.IsValid() {
		return shared.NewDomainError("persona", "Save", shared.ErrValidation, "user id is required")
	}
	raw, err := json.Marshal(sub.Answers)
	if err != nil {
		return shared.WrapError("persona", "Save", shared.ErrValidation, "answers are not serializable", err)
	}
	q, err := r.db()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO questionnaire_answers (user_id, answers, submitted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET answers = EXCLUDED.answers, submitted_at = EXCLUDED.submitted_at
	`, sub.UserID.String(), raw, sub.SubmittedAt)
	return translate("persona", "Save", err)
}

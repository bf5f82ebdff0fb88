package postgres

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// Each balance change and its history row are written by one statement, so
// the pair is atomic even outside a unit of work.
// ══════════════════════════════════════════════════════════════════════════════

type ledgerRepo struct {
	db dbFunc
}

// $7 is the highest balance that can take the credit without overflowing bigint.
const creditSQL = `
	WITH updated AS (
		UPDATE user_accounts
		SET total_xp = total_xp + $2, updated_at = $3
		WHERE id = $1 AND total_xp <= $7
		RETURNING total_xp
	)
	INSERT INTO xp_ledger_entries (id, user_id, entry_type, amount, balance_after, reason, reference, created_at)
	SELECT $4, $1, 'CREDIT', $2, total_xp, $5, $6, $3 FROM updated
	RETURNING balance_after
`

// The WHERE clause is the non-negativity guard: a debit that the balance
// cannot cover updates nothing.
const debitSQL = `
	WITH updated AS (
		UPDATE user_accounts
		SET total_xp = total_xp - $2, updated_at = $3
		WHERE id = $1 AND total_xp >= $2
		RETURNING total_xp
	)
	INSERT INTO xp_ledger_entries (id, user_id, entry_type, amount, balance_after, reason, reference, created_at)
	SELECT $4, $1, 'DEBIT', $2, total_xp, $5, $6, $3 FROM updated
	RETURNING balance_after
`

func (r *ledgerRepo) Credit(ctx context.Context, userID shared.UserID, amount int64, p ledger.Posting) (ledger.Entry, error) {
	return r.post(ctx, creditSQL, ledger.EntryCredit, userID, amount, p)
}

func (r *ledgerRepo) Debit(ctx context.Context, userID shared.UserID, amount int64, p ledger.Posting) (ledger.Entry, error) {
	return r.post(ctx, debitSQL, ledger.EntryDebit, userID, amount, p)
}

func (r *ledgerRepo) post(ctx context.Context, sql string, typ ledger.EntryType, userID shared.UserID, amount int64, p ledger.Posting) (ledger.Entry, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return ledger.Entry{}, err
	}
	q, err := r.db()
	if err != nil {
		return ledger.Entry{}, err
	}

	entry := ledger.Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Reason:    p.Reason,
		Reference: p.Reference,
		CreatedAt: p.At,
	}

	args := []any{userID.String(), amount, p.At, entry.ID, string(p.Reason), p.Reference}
	if typ == ledger.EntryCredit {
		args = append(args, int64(math.MaxInt64)-amount)
	}
	err = q.QueryRow(ctx, sql, args...).Scan(&entry.BalanceAfter)
	if IsNoRows(err) {
		exists, existsErr := accountExists(ctx, q, userID)
		switch {
		case existsErr != nil:
			return ledger.Entry{}, translate("ledger", string(typ), existsErr)
		case !exists:
			return ledger.Entry{}, shared.ErrAccountNotFound
		case typ == ledger.EntryCredit:
			return ledger.Entry{}, shared.ErrBalanceOverflow
		default:
			return ledger.Entry{}, shared.ErrBalanceTooLow
		}
	}
	if err != nil {
		return ledger.Entry{}, translate("ledger", string(typ), err)
	}
	return entry, nil
}

func (r *ledgerRepo) Balance(ctx context.Context, userID shared.UserID) (int64, error) {
	q, err := r.db()
	if err != nil {
		return 0, err
	}
	var balance int64
	err = q.QueryRow(ctx, `SELECT total_xp FROM user_accounts WHERE id = $1`, userID.String()).Scan(&balance)
	if IsNoRows(err) {
		return 0, shared.ErrAccountNotFound
	}
	if err != nil {
		return 0, translate("ledger", "Balance", err)
	}
	return balance, nil
}

func accountExists(ctx context.Context, q Querier, userID shared.UserID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_accounts WHERE id = $1)`, userID.String()).Scan(&exists)
	return exists, err
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

type accountRepo struct {
	db dbFunc
}

func (r *accountRepo) Get(ctx context.Context, id shared.UserID) (*ledger.Account, error) {
	q, err := r.db()
	if err != nil {
		return nil, err
	}
	a := &ledger.Account{ID: id}
	err = q.QueryRow(ctx, `
		SELECT total_xp, squad_id, created_at, updated_at
		FROM user_accounts WHERE id = $1
	`, id.String()).Scan(&a.TotalXP, &a.SquadID, &a.CreatedAt, &a.UpdatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrAccountNotFound
	}
	if err != nil {
		return nil, translate("ledger", "GetAccount", err)
	}
	return a, nil
}

func (r *accountRepo) Create(ctx context.Context, a *ledger.Account) error {
	if !a.ID.IsValid() {
		return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "account id is required")
	}
	if a.TotalXP < 0 {
		return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "opening balance cannot be negative")
	}
	q, err := r.db()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO user_accounts (id, total_xp, squad_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID.String(), a.TotalXP, a.SquadID, a.CreatedAt, a.UpdatedAt)
	if IsUniqueViolation(err) {
		return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "account already exists")
	}
	return translate("ledger", "Create", err)
}

func (r *accountRepo) History(ctx context.Context, id shared.UserID, limit int) ([]ledger.Entry, error) {
	q, err := r.db()
	if err != nil {
		return nil, err
	}
	exists, err := accountExists(ctx, q, id)
	if err != nil {
		return nil, translate("ledger", "History", err)
	}
	if !exists {
		return nil, shared.ErrAccountNotFound
	}

	rows, err := q.Query(ctx, `
		SELECT id, entry_type, amount, balance_after, reason, reference, created_at
		FROM xp_ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT NULLIF($2, 0)
	`, id.String(), limit)
	if err != nil {
		return nil, translate("ledger", "History", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e := ledger.Entry{UserID: id}
		var typ, reason string
		if err := rows.Scan(&e.ID, &typ, &e.Amount, &e.BalanceAfter, &reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, translate("ledger", "History", err)
		}
		e.Type = ledger.EntryType(typ)
		e.Reason = ledger.Reason(reason)
		out = append(out, e)
	}
	return out, translate("ledger", "History", rows.Err())
}

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

type ledgerRepo struct {
	s    *Store
	inTx bool
}

func (r *ledgerRepo) Credit(ctx context.Context, userID shared.UserID, amount int64, p ledger.Posting) (ledger.Entry, error) {
	return r.apply(userID, amount, ledger.EntryCredit, p)
}

func (r *ledgerRepo) Debit(ctx context.Context, userID shared.UserID, amount int64, p ledger.Posting) (ledger.Entry, error) {
	return r.apply(userID, amount, ledger.EntryDebit, p)
}

func (r *ledgerRepo) apply(userID shared.UserID, amount int64, typ ledger.EntryType, p ledger.Posting) (ledger.Entry, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return ledger.Entry{}, err
	}

	var entry ledger.Entry
	err := r.s.with(r.inTx, func(st *state) error {
		acc, ok := st.accounts[userID]
		if !ok {
			return shared.ErrAccountNotFound
		}
		if typ == ledger.EntryDebit {
			if acc.TotalXP < amount {
				return shared.ErrBalanceTooLow
			}
			acc.TotalXP -= amount
		} else {
			if err := ledger.CheckCredit(acc.TotalXP, amount); err != nil {
				return err
			}
			acc.TotalXP += amount
		}
		acc.UpdatedAt = p.At

		entry = ledger.Entry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Type:         typ,
			Amount:       amount,
			BalanceAfter: acc.TotalXP,
			Reason:       p.Reason,
			Reference:    p.Reference,
			CreatedAt:    p.At,
		}
		st.entries = append(st.entries, entry)
		return nil
	})
	return entry, err
}

func (r *ledgerRepo) Balance(ctx context.Context, userID shared.UserID) (int64, error) {
	var balance int64
	err := r.s.with(r.inTx, func(st *state) error {
		acc, ok := st.accounts[userID]
		if !ok {
			return shared.ErrAccountNotFound
		}
		balance = acc.TotalXP
		return nil
	})
	return balance, err
}

type accountRepo struct {
	s    *Store
	inTx bool
}

func (r *accountRepo) Get(ctx context.Context, id shared.UserID) (*ledger.Account, error) {
	var out *ledger.Account
	err := r.s.with(r.inTx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return shared.ErrAccountNotFound
		}
		cp := *acc
		out = &cp
		return nil
	})
	return out, err
}

func (r *accountRepo) Create(ctx context.Context, a *ledger.Account) error {
	if !a.ID.IsValid() {
		return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "account id is required")
	}
	if a.TotalXP < 0 {
		return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "opening balance cannot be negative")
	}
	return r.s.with(r.inTx, func(st *state) error {
		if _, ok := st.accounts[a.ID]; ok {
			return shared.NewDomainError("ledger", "Create", shared.ErrValidation, "account already exists")
		}
		cp := *a
		st.accounts[a.ID] = &cp
		return nil
	})
}

func (r *accountRepo) History(ctx context.Context, id shared.UserID, limit int) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := r.s.with(r.inTx, func(st *state) error {
		if _, ok := st.accounts[id]; !ok {
			return shared.ErrAccountNotFound
		}
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i].UserID == id {
				out = append(out, st.entries[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// entries are appended in commit order; keep that order for equal timestamps
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Package ledger defines the XP ledger: the only way a user's total XP changes.
//
// Credits are atomic increments and debits are conditional atomic decrements.
// Implementations never read a balance into memory and write it back.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

// Reason explains why XP moved.
type Reason string

const (
	ReasonChallengeStake  Reason = "challenge_stake"
	ReasonChallengePayout Reason = "challenge_payout"
	ReasonChallengeRefund Reason = "challenge_refund"
	ReasonGrant           Reason = "grant"
)

// IsValid reports whether r is a known reason.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonChallengeStake, ReasonChallengePayout, ReasonChallengeRefund, ReasonGrant:
		return true
	}
	return false
}

// Posting annotates a credit or debit for the history table.
type Posting struct {
	Reason    Reason
	Reference string // challenge id or grant id
	At        time.Time
}

// Entry is an append-only history row written with every balance change.
type Entry struct {
	ID           string
	UserID       shared.UserID
	Type         EntryType
	Amount       int64
	BalanceAfter int64
	Reason       Reason
	Reference    string
	CreatedAt    time.Time
}

// Ledger mutates and reads XP balances.
type Ledger interface {
	// Credit atomically adds amount and returns the resulting entry.
	Credit(ctx context.Context, userID shared.UserID, amount int64, p Posting) (Entry, error)

	// Debit atomically subtracts amount only if the balance covers it.
	// Returns an ErrInsufficientFunds error otherwise and leaves the balance unchanged.
	Debit(ctx context.Context, userID shared.UserID, amount int64, p Posting) (Entry, error)

	// Balance returns the current total XP.
	Balance(ctx context.Context, userID shared.UserID) (int64, error)
}

// Account is the engine's view of a user record.
type Account struct {
	ID        shared.UserID
	TotalXP   int64
	SquadID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Level derives level information from the stored total. Never persisted.
func (a *Account) Level() leveling.Info {
	return leveling.Calculate(a.TotalXP)
}

// AccountRepository reads and seeds user records. Signup owns creation; the
// engine uses Create for imports and tests.
type AccountRepository interface {
	// Get returns the account or ErrAccountNotFound.
	Get(ctx context.Context, id shared.UserID) (*Account, error)

	// Create inserts a new account with its opening balance.
	Create(ctx context.Context, a *Account) error

	// History returns the newest entries first, at most limit.
	History(ctx context.Context, id shared.UserID, limit int) ([]Entry, error)
}

// MaxGrantXP caps a single grant from outside the challenge flow.
const MaxGrantXP int64 = 1_000_000

// CheckCredit rejects a credit that would push balance past the int64 range.
func CheckCredit(balance, amount int64) error {
	if amount > math.MaxInt64-balance {
		return shared.ErrBalanceOverflow
	}
	return nil
}

// ValidateAmount rejects non-positive amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return shared.ErrNonPositiveAmount
	}
	return nil
}

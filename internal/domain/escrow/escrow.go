// Package escrow moves challenge stakes between user balances and the
// challenge's escrow state through the XP ledger.
//
// The escrow state on the challenge is the idempotency check: a stake is
// reserved only from EscrowNone and paid out only from EscrowHeld. Callers run
// every method inside the same unit of work as the status compare-and-swap.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// Service implements reserve, settle and cancel-refund.
type Service struct{}

// NewService creates an escrow service.
func NewService() *Service {
	return &Service{}
}

// Reserve debits the stake from both participants, all or nothing. When the
// second debit fails the first is refunded before the error is returned.
func (s *Service) Reserve(ctx context.Context, l ledger.Ledger, c *challenge.Challenge, now time.Time) ([]ledger.Entry, error) {
	if c.Escrow != challenge.EscrowNone {
		return nil, shared.ErrStakeAlreadyHeld
	}

	posting := ledger.Posting{Reason: ledger.ReasonChallengeStake, Reference: c.ID.String(), At: now}

	first, err := l.Debit(ctx, c.ChallengerID, c.StakeXP, posting)
	if err != nil {
		return nil, fmt.Errorf("reserve challenger stake: %w", err)
	}

	second, err := l.Debit(ctx, c.OpponentID, c.StakeXP, posting)
	if err != nil {
		refund := ledger.Posting{Reason: ledger.ReasonChallengeRefund, Reference: c.ID.String(), At: now}
		if _, rerr := l.Credit(ctx, c.ChallengerID, c.StakeXP, refund); rerr != nil {
			return nil, errors.Join(
				fmt.Errorf("reserve opponent stake: %w", err),
				fmt.Errorf("refund challenger stake: %w", rerr),
			)
		}
		return nil, fmt.Errorf("reserve opponent stake: %w", err)
	}

	c.Escrow = challenge.EscrowHeld
	return []ledger.Entry{first, second}, nil
}

// Settle pays twice the stake to the winner, or refunds each side on a draw.
// A stake that is not held returns ErrStakeNotHeld, an ErrAlreadySettled kind.
func (s *Service) Settle(ctx context.Context, l ledger.Ledger, c *challenge.Challenge, outcome challenge.Outcome, now time.Time) ([]ledger.Entry, error) {
	if c.Escrow != challenge.EscrowHeld {
		return nil, shared.ErrStakeNotHeld
	}

	if outcome.Draw {
		entries, err := s.refundBoth(ctx, l, c, now)
		if err != nil {
			return nil, err
		}
		c.Escrow = challenge.EscrowRefunded
		return entries, nil
	}

	if !c.IsParticipant(outcome.WinnerID) {
		return nil, shared.NewDomainError("escrow", "Settle", shared.ErrValidation, "winner is not a participant")
	}

	posting := ledger.Posting{Reason: ledger.ReasonChallengePayout, Reference: c.ID.String(), At: now}
	entry, err := l.Credit(ctx, outcome.WinnerID, 2*c.StakeXP, posting)
	if err != nil {
		return nil, fmt.Errorf("pay out to winner: %w", err)
	}
	c.Escrow = challenge.EscrowPaidOut
	return []ledger.Entry{entry}, nil
}

// CancelRefund returns held stakes to both sides. No-op when nothing was reserved.
func (s *Service) CancelRefund(ctx context.Context, l ledger.Ledger, c *challenge.Challenge, now time.Time) ([]ledger.Entry, error) {
	if c.Escrow != challenge.EscrowHeld {
		return nil, nil
	}
	entries, err := s.refundBoth(ctx, l, c, now)
	if err != nil {
		return nil, err
	}
	c.Escrow = challenge.EscrowRefunded
	return entries, nil
}

func (s *Service) refundBoth(ctx context.Context, l ledger.Ledger, c *challenge.Challenge, now time.Time) ([]ledger.Entry, error) {
	posting := ledger.Posting{Reason: ledger.ReasonChallengeRefund, Reference: c.ID.String(), At: now}
	entries := make([]ledger.Entry, 0, 2)
	for _, id := range []shared.UserID{c.ChallengerID, c.OpponentID} {
		e, err := l.Credit(ctx, id, c.StakeXP, posting)
		if err != nil {
			return nil, fmt.Errorf("refund stake to %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

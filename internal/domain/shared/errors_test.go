package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", ErrChallengeNotFound, CodeNotFound},
		{"wrapped not found", fmt.Errorf("settle: %w", ErrAccountNotFound), CodeNotFound},
		{"insufficient", ErrCannotAffordStake, CodeInsufficientFunds},
		{"already settled", ErrChallengeSettled, CodeAlreadySettled},
		{"status race", ErrStatusChanged, CodeInvalidTransition},
		{"validation", ErrSelfChallenge, CodeValidation},
		{"conflict", ErrConcurrentModification, CodeConflict},
		{"infrastructure", Infrastructure("ledger", "Credit", errors.New("conn reset")), CodeUnavailable},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestInfrastructureKeepsDomainKinds(t *testing.T) {
	assert.Nil(t, Infrastructure("ledger", "Debit", nil))
	assert.Same(t, ErrBalanceTooLow, Infrastructure("ledger", "Debit", ErrBalanceTooLow))

	cause := errors.New("dial tcp: refused")
	err := Infrastructure("ledger", "Debit", cause)
	assert.ErrorIs(t, err, ErrInfrastructure)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsDomain(err))
}

func TestDomainErrorMatching(t *testing.T) {
	err := WrapError("challenge", "Accept", ErrInsufficientFunds, "opponent cannot afford the stake", ErrBalanceTooLow)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, ErrBalanceTooLow)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "challenge.Accept: opponent cannot afford the stake: "+ErrBalanceTooLow.Error(), err.Error())
	assert.True(t, IsDomain(err))
	assert.False(t, IsRetryable(err))
}

// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// ErrNotFound means a challenge, user, habit or questionnaire is missing.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the caller is not allowed to act on the aggregate,
	// e.g. is not a participant of the challenge.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition means the action is not valid from the current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInsufficientFunds means a debit would drive a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySettled means the stake was already paid out or refunded.
	ErrAlreadySettled = errors.New("already settled")

	// ErrDuplicateCompletion means the day was already recorded. Callers treat
	// it as a successful no-op and never surface it.
	ErrDuplicateCompletion = errors.New("duplicate completion")

	// ErrValidation means the input is malformed.
	ErrValidation = errors.New("validation error")

	// ErrConcurrentModification means an optimistic write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInfrastructure is a store or transport failure. Distinct from domain
	// errors so clients can tell "invalid action" from "try again later".
	ErrInfrastructure = errors.New("infrastructure failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "challenge", "ledger", "escrow"
	Op      string // Operation that failed, e.g., "Accept", "Debit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching on both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Infrastructure wraps a driver or transport error as ErrInfrastructure.
// Errors that already carry a domain kind are returned unchanged.
func Infrastructure(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return WrapError(domain, op, ErrInfrastructure, "store operation failed", err)
}

// Ledger domain errors
var (
	ErrAccountNotFound   = NewDomainError("ledger", "Find", ErrNotFound, "user account not found")
	ErrNonPositiveAmount = NewDomainError("ledger", "Validate", ErrValidation, "amount must be positive")
	ErrBalanceTooLow     = NewDomainError("ledger", "Debit", ErrInsufficientFunds, "balance is lower than the requested amount")
	ErrBalanceOverflow   = NewDomainError("ledger", "Credit", ErrValidation, "credit would overflow the balance")
)

// Challenge domain errors
var (
	ErrChallengeNotFound   = NewDomainError("challenge", "Find", ErrNotFound, "challenge not found")
	ErrStatusChanged       = NewDomainError("challenge", "Update", ErrInvalidTransition, "challenge status changed concurrently")
	ErrChallengeSettled    = NewDomainError("challenge", "Settle", ErrAlreadySettled, "challenge is already settled")
	ErrSelfChallenge       = NewDomainError("challenge", "Validate", ErrValidation, "challenger and opponent must differ")
	ErrInvalidDuration     = NewDomainError("challenge", "Validate", ErrValidation, "duration is not one of the allowed values")
	ErrInvalidStake        = NewDomainError("challenge", "Validate", ErrValidation, "stake must be positive and within the allowed maximum")
	ErrCannotAffordStake   = NewDomainError("challenge", "Propose", ErrInsufficientFunds, "challenger cannot afford the stake")
	ErrOpponentNotFound    = NewDomainError("challenge", "Propose", ErrNotFound, "opponent account not found")
	ErrStakeNotHeld        = NewDomainError("escrow", "Settle", ErrAlreadySettled, "stake is not held in escrow")
	ErrStakeAlreadyHeld    = NewDomainError("escrow", "Reserve", ErrInvalidTransition, "stake is already reserved")
	ErrQuestionnaireAbsent = NewDomainError("persona", "Find", ErrNotFound, "questionnaire answers not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInfrastructure checks if the error is an infrastructure failure.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// IsDomain reports whether err carries one of the domain kinds.
func IsDomain(err error) bool {
	switch Code(err) {
	case "", CodeInternal, CodeUnavailable:
		return false
	}
	return true
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure) ||
		errors.Is(err, ErrConcurrentModification)
}

// Stable error codes for transports.
const (
	CodeNotFound            = "not_found"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidTransition   = "invalid_transition"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeAlreadySettled      = "already_settled"
	CodeDuplicateCompletion = "duplicate_completion"
	CodeValidation          = "validation_error"
	CodeConflict            = "conflict"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

// Code maps err to a stable transport code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrAlreadySettled):
		return CodeAlreadySettled
	case errors.Is(err, ErrDuplicateCompletion):
		return CodeDuplicateCompletion
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConcurrentModification):
		return CodeConflict
	case errors.Is(err, ErrInfrastructure):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

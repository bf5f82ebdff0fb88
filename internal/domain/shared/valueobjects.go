package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// UserID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// UserID is the opaque identity key issued by the identity provider.
// The engine never parses it.
type UserID string

// NewUserID trims and validates a raw identity key.
func NewUserID(raw string) (UserID, error) {
	id := UserID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrValidation, "user id is empty or too long")
	}
	return id, nil
}

// IsValid checks the id is non-empty and fits the storage column.
func (id UserID) IsValid() bool {
	return id != "" && len(id) <= 128
}

// String returns the string representation.
func (id UserID) String() string {
	return string(id)
}

// ═══════════════════════════════════════════════════════════════════════════
// HabitID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// HabitID references a habit owned by the external habit service.
type HabitID string

// IsValid checks the id is non-empty and fits the storage column.
func (id HabitID) IsValid() bool {
	return id != "" && len(id) <= 128
}

// String returns the string representation.
func (id HabitID) String() string {
	return string(id)
}

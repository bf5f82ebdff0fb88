// Package store defines the unit-of-work port that ties the ledger, the
// challenge repository and the completion log to one transaction.
//
// The engine receives a Store handle at construction; it is opened at process
// start and closed at shutdown. Postgres and in-memory implementations live
// under internal/infrastructure/persistence.
package store

import (
	"context"

	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/domain/persona"
)

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Ledger() ledger.Ledger
	Accounts() ledger.AccountRepository
	Challenges() challenge.Repository
	Completions() challenge.CompletionLog
}

// Store opens units of work and exposes non-transactional readers.
type Store interface {
	Tx

	// Atomic runs fn in a single transaction. Any error from fn rolls back
	// every write made through tx.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Answers returns the questionnaire repository.
	Answers() persona.AnswerRepository

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

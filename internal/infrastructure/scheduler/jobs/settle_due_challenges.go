// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLE DUE CHALLENGES JOB
// Settles every active challenge whose window has ended. Settlement is
// idempotent, so a challenge settled concurrently by a participant is simply
// counted as skipped.
// ══════════════════════════════════════════════════════════════════════════════

// DueLister lists challenges that are ready for settlement.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, after challenge.DueCursor, limit int) ([]*challenge.Challenge, error)
}

// Settler settles one challenge.
type Settler interface {
	Handle(ctx context.Context, cmd command.SettleChallengeCommand) (*command.SettleChallengeResult, error)
}

// SettleDueChallengesConfig configures the sweep.
type SettleDueChallengesConfig struct {
	// BatchSize is the page size for ListDue.
	BatchSize int

	// Concurrency caps simultaneous settlements.
	Concurrency int

	// MaxBatches bounds one run so a backlog cannot starve other jobs.
	MaxBatches int
}

// DefaultSettleDueChallengesConfig returns the defaults.
func DefaultSettleDueChallengesConfig() SettleDueChallengesConfig {
	return SettleDueChallengesConfig{
		BatchSize:   200,
		Concurrency: 4,
		MaxBatches:  50,
	}
}

// SweepStats summarizes one run.
type SweepStats struct {
	Scanned int
	Settled int
	Skipped int
	Failed  int
	Batches int
}

// SettleDueChallengesJob implements scheduler.Job.
type SettleDueChallengesJob struct {
	due     DueLister
	settler Settler
	clock   timeutil.Clock
	log     *logger.Logger
	config  SettleDueChallengesConfig

	lastStats atomic.Pointer[SweepStats]
}

// NewSettleDueChallengesJob creates the job.
func NewSettleDueChallengesJob(due DueLister, settler Settler, clock timeutil.Clock, log *logger.Logger, config SettleDueChallengesConfig) *SettleDueChallengesJob {
	def := DefaultSettleDueChallengesConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = def.MaxBatches
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SettleDueChallengesJob{
		due:     due,
		settler: settler,
		clock:   clock,
		log:     log.With(logger.String("job", "settle_due_challenges")),
		config:  config,
	}
}

// Name implements scheduler.Job.
func (j *SettleDueChallengesJob) Name() string { return "settle_due_challenges" }

// Description implements scheduler.Job.
func (j *SettleDueChallengesJob) Description() string {
	return "Settles active challenges whose window has ended"
}

// Run implements scheduler.Job.
func (j *SettleDueChallengesJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// LastStats returns the stats of the previous run, or nil.
func (j *SettleDueChallengesJob) LastStats() *SweepStats {
	return j.lastStats.Load()
}

// Sweep pages through due challenges by (EndsAt, ID) until a short page or
// MaxBatches. A challenge that fails stays active and is retried on the next
// run, not on the next page. Only listing errors and cancellation abort.
func (j *SettleDueChallengesJob) Sweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()
	var (
		stats  SweepStats
		cursor challenge.DueCursor
		now    = j.clock()
	)
	defer func() {
		s := stats
		j.lastStats.Store(&s)
	}()

	for stats.Batches < j.config.MaxBatches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		due, err := j.due.ListDue(ctx, now, cursor, j.config.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("list due challenges: %w", err)
		}
		if len(due) == 0 {
			break
		}
		stats.Batches++
		stats.Scanned += len(due)

		settled, skipped, failed := j.settleBatch(ctx, due)
		stats.Settled += settled
		stats.Skipped += skipped
		stats.Failed += failed

		if len(due) < j.config.BatchSize {
			break
		}
		cursor = challenge.CursorAt(due[len(due)-1])
	}

	j.log.Info("sweep finished",
		logger.Int("scanned", stats.Scanned),
		logger.Int("settled", stats.Settled),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed),
		logger.Latency(time.Since(start)),
	)
	return stats, ctx.Err()
}

func (j *SettleDueChallengesJob) settleBatch(ctx context.Context, due []*challenge.Challenge) (settled, skipped, failed int) {
	var nSettled, nSkipped, nFailed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, c := range due {
		id := c.ID.String()
		g.Go(func() error {
			_, err := j.settler.Handle(gctx, command.SettleChallengeCommand{
				ChallengeID:   id,
				CorrelationID: "sweep:" + id,
			})
			switch {
			case err == nil:
				nSettled.Add(1)
			case errors.Is(err, shared.ErrAlreadySettled), errors.Is(err, shared.ErrInvalidTransition):
				nSkipped.Add(1)
			default:
				nFailed.Add(1)
				j.log.Warn("failed to settle challenge", logger.ChallengeID(id), logger.Err(err))
			}
			// Never cancel siblings over one challenge.
			return nil
		})
	}
	_ = g.Wait()

	return int(nSettled.Load()), int(nSkipped.Load()), int(nFailed.Load())
}

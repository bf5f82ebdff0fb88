// Package scheduler runs the engine's periodic jobs on top of gocron.
// Jobs never overlap with themselves: a run that is still going when the next
// tick arrives causes that tick to be skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler registers jobs at fixed intervals and records their results.
type Scheduler struct {
	mu sync.RWMutex

	cron     gocron.Scheduler
	log      *logger.Logger
	timeout  time.Duration
	jobs     map[string]Job
	lastRuns map[string]JobResult

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	stopped bool

	onJobComplete func(result JobResult)
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *logger.Logger

	// Location for gocron's time calculations. Defaults to UTC.
	Location *time.Location

	// JobTimeout bounds a single run. Zero means no bound.
	JobTimeout time.Duration

	// StopTimeout is how long Stop waits for running jobs.
	StopTimeout time.Duration

	// OnJobComplete is called after every run. Optional.
	OnJobComplete func(result JobResult)
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Location:    time.UTC,
		JobTimeout:  2 * time.Minute,
		StopTimeout: 30 * time.Second,
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 30 * time.Second
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(config.Location),
		gocron.WithStopTimeout(config.StopTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:          cron,
		log:           config.Logger.With(logger.Component("scheduler")),
		timeout:       config.JobTimeout,
		jobs:          make(map[string]Job),
		lastRuns:      make(map[string]JobResult),
		ctx:           ctx,
		cancel:        cancel,
		onJobComplete: config.OnJobComplete,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register runs job every interval. With runNow the first run happens at
// Start instead of one interval later.
func (s *Scheduler) Register(job Job, interval time.Duration, runNow bool) error {
	if job == nil {
		return ErrNilJob
	}
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if runNow {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	if _, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.execute(job) }),
		opts...,
	); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	s.jobs[name] = job
	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("description", job.Description()),
		logger.Duration("interval", interval),
	)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	if s.stopped {
		return ErrSchedulerStopped
	}
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs_count", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits up to the stop timeout for them.
// A stopped scheduler cannot be restarted; further calls are no-ops.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	wasRunning := s.running
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	if wasRunning {
		s.log.Info("scheduler stopped")
	}
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a registered job synchronously with ctx, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	result := s.run(ctx, job)
	return result, result.Error
}

func (s *Scheduler) execute(job Job) {
	s.run(s.ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) JobResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	log := s.log.With(logger.String("job", job.Name()), logger.String("run_id", runID))

	result := JobResult{JobName: job.Name(), StartedAt: time.Now()}
	err := safeRun(ctx, job)
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Success = err == nil
	result.Error = err

	if err != nil {
		log.Error("job failed", logger.Err(err), logger.Latency(result.Duration))
	} else {
		log.Debug("job completed", logger.Latency(result.Duration))
	}

	s.mu.Lock()
	s.lastRuns[job.Name()] = result
	s.mu.Unlock()

	if s.onJobComplete != nil {
		s.onJobComplete(result)
	}
	return result
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// LastRun returns the most recent result of a job.
func (s *Scheduler) LastRun(name string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRuns[name]
	return r, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrInvalidInterval         = errors.New("scheduler: interval must be positive")
	ErrJobAlreadyExists        = errors.New("scheduler: job already exists")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobPanicked             = errors.New("scheduler: job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerStopped        = errors.New("scheduler: stopped")
)

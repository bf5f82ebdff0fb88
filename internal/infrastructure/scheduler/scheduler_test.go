package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func newTestScheduler(t *testing.T, cfg SchedulerConfig) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(t, DefaultSchedulerConfig())
	job := funcJob{name: "sweep", fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Register(job, time.Minute, false))
	assert.ErrorIs(t, s.Register(job, time.Minute, false), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, time.Minute, false), ErrNilJob)
	assert.ErrorIs(t, s.Register(funcJob{name: "other"}, 0, false), ErrInvalidInterval)
	assert.Equal(t, []string{"sweep"}, s.Jobs())
}

func TestScheduler_RunNow(t *testing.T) {
	var completed []JobResult
	cfg := DefaultSchedulerConfig()
	cfg.JobTimeout = 50 * time.Millisecond
	cfg.OnJobComplete = func(r JobResult) { completed = append(completed, r) }
	s := newTestScheduler(t, cfg)

	boom := errors.New("boom")
	require.NoError(t, s.Register(funcJob{name: "ok", fn: func(context.Context) error { return nil }}, time.Hour, false))
	require.NoError(t, s.Register(funcJob{name: "fails", fn: func(context.Context) error { return boom }}, time.Hour, false))
	require.NoError(t, s.Register(funcJob{name: "panics", fn: func(context.Context) error { panic("bug") }}, time.Hour, false))
	require.NoError(t, s.Register(funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, time.Hour, false))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = s.RunNow(context.Background(), "fails")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Len(t, completed, 4)
	last, ok := s.LastRun("fails")
	require.True(t, ok)
	assert.False(t, last.Success)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := newTestScheduler(t, DefaultSchedulerConfig())

	var runs atomic.Int32
	require.NoError(t, s.Register(funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, 20*time.Millisecond, true))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), ErrSchedulerStopped)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.JobTimeout = 0
	cfg.StopTimeout = time.Second
	s := newTestScheduler(t, cfg)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Register(funcJob{name: "long", fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}}, time.Hour, true))

	require.NoError(t, s.Start())
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	require.NoError(t, s.Stop())
	assert.True(t, cancelled.Load())
}

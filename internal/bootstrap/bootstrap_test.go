package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/config"
	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/application/query"
	"github.com/habitquest/duel-engine/internal/domain/ledger"
	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/memory"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Redis.Disabled = true
	cfg.Engine.Location = time.UTC
	return cfg
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	rt, err := Open(ctx, memoryConfig(), logger.Nop(), Options{Clock: timeutil.FixedClock(now)})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })

	assert.IsType(t, &memory.Store{}, rt.Store)
	assert.Nil(t, rt.Cache)
	assert.Nil(t, rt.LevelCache)
	assert.Nil(t, rt.Enricher)
	require.NoError(t, rt.Store.Ping(ctx))

	require.NoError(t, rt.Store.Accounts().Create(ctx, &ledger.Account{ID: "u1", CreatedAt: now}))
	_, err = rt.Commands.GrantXP.Handle(ctx, command.GrantXPCommand{UserID: "u1", Amount: 350, Reference: "seed"})
	require.NoError(t, err)

	info, err := rt.Queries.LevelInfo.Handle(ctx, query.GetLevelInfoQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, info.Level)

	stats, err := rt.SweepJob().Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
}

func TestNewSchedulerRegistersSweep(t *testing.T) {
	cfg := memoryConfig()
	cfg.Engine.SweepInterval = time.Hour

	rt, err := Open(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	sched, err := rt.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })

	assert.Equal(t, []string{"settle_due_challenges"}, sched.Jobs())

	res, err := sched.RunNow(context.Background(), "settle_due_challenges")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCloseIsIdempotent(t *testing.T) {
	rt, err := Open(context.Background(), memoryConfig(), nil, Options{})
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	assert.NoError(t, rt.Close())
}

func TestNewLoggerHonoursConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Observability.LogLevel = "debug"
	cfg.Observability.LogFormat = "console"
	assert.NotNil(t, NewLogger(cfg))
}

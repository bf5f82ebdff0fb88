// Package bootstrap wires configuration into a running engine: store, cache,
// event bus, enricher and the application handlers. The api and worker
// binaries and the xpctl tool share it so every process sees the same graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/habitquest/duel-engine/config"
	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/application/eventhandler"
	"github.com/habitquest/duel-engine/internal/application/query"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/internal/domain/store"
	"github.com/habitquest/duel-engine/internal/infrastructure/external/gemini"
	"github.com/habitquest/duel-engine/internal/infrastructure/messaging"
	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/memory"
	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/postgres"
	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/redis"
	"github.com/habitquest/duel-engine/internal/infrastructure/scheduler"
	"github.com/habitquest/duel-engine/internal/infrastructure/scheduler/jobs"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// Commands groups the write-side handlers.
type Commands struct {
	Propose  *command.ProposeChallengeHandler
	Respond  *command.RespondToChallengeHandler
	Cancel   *command.CancelChallengeHandler
	Settle   *command.SettleChallengeHandler
	Complete *command.RecordCompletionHandler
	GrantXP  *command.GrantXPHandler
}

// Queries groups the read-side handlers.
type Queries struct {
	Challenges      *query.ChallengeReader
	LevelInfo       *query.GetLevelInfoHandler
	XPHistory       *query.GetXPHistoryHandler
	SuggestStake    *query.SuggestStakeHandler
	ClassifyPersona *query.ClassifyPersonaHandler
}

// Runtime is a fully wired engine.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	Clock  timeutil.Clock

	Store store.Store

	// Cache is nil when Redis is disabled or unreachable.
	Cache      *redis.Cache
	LevelCache leveling.Cache

	Bus      shared.EventBus
	Enricher persona.Enricher

	Commands Commands
	Queries  Queries

	closers []func() error
}

// Options adjust Open.
type Options struct {
	// Clock overrides the system clock. Used by tests.
	Clock timeutil.Clock

	// Migrate applies pending migrations regardless of DB_AUTO_MIGRATE.
	Migrate bool

	// SkipRedis forces the in-process bus and no cache.
	SkipRedis bool
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Name != "" {
		opts.ServiceName = cfg.App.Name
	}
	return logger.New(opts)
}

// Open connects every backing service and builds the handlers. On error all
// resources opened so far are released.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (rt *Runtime, err error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock
	}

	rt = &Runtime{Config: cfg, Logger: log, Clock: opts.Clock}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if err := rt.openStore(ctx, opts.Migrate); err != nil {
		return nil, err
	}
	if !opts.SkipRedis {
		rt.openCache(ctx)
	}
	if err := rt.openBus(); err != nil {
		return nil, err
	}
	rt.openEnricher(ctx)
	rt.buildHandlers()

	if rt.LevelCache != nil {
		if err := eventhandler.NewOnXPChangedHandler(rt.LevelCache, log).Register(rt.Bus); err != nil {
			return nil, fmt.Errorf("register xp handler: %w", err)
		}
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// SweepJob builds the settlement sweep over the runtime's store.
func (r *Runtime) SweepJob() *jobs.SettleDueChallengesJob {
	return jobs.NewSettleDueChallengesJob(
		r.Store.Challenges(),
		r.Commands.Settle,
		r.Clock,
		r.Logger,
		jobs.SettleDueChallengesConfig{
			BatchSize:   r.Config.Engine.SweepBatchSize,
			Concurrency: r.Config.Engine.SweepConcurrency,
		},
	)
}

// NewScheduler returns a stopped scheduler with the settlement sweep
// registered at the configured interval. The first sweep runs at Start.
func (r *Runtime) NewScheduler() (*scheduler.Scheduler, error) {
	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:      r.Logger,
		Location:    r.Config.Engine.Location,
		JobTimeout:  r.Config.Engine.SweepTimeout,
		StopTimeout: r.Config.App.ShutdownTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := sched.Register(r.SweepJob(), r.Config.Engine.SweepInterval, true); err != nil {
		_ = sched.Stop()
		return nil, err
	}
	return sched, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKING SERVICES
// ══════════════════════════════════════════════════════════════════════════════

func (r *Runtime) openStore(ctx context.Context, migrate bool) error {
	db := r.Config.Database
	if db.URL == "" {
		r.Logger.Warn("DATABASE_URL not set, using the in-memory store")
		r.Store = memory.New()
		r.closers = append(r.closers, r.Store.Close)
		return nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = db.URL
	pgCfg.MaxConns = db.MaxConns
	pgCfg.MinConns = db.MinConns
	pgCfg.MaxConnLifetime = db.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = db.ConnMaxIdleTime
	pgCfg.QueryTimeout = db.QueryTimeout

	st, err := postgres.Open(ctx, pgCfg, migrate || db.AutoMigrate)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	r.Logger.Info("postgres connected", logger.Int("max_conns", int(pgCfg.MaxConns)))
	r.Store = st
	r.closers = append(r.closers, st.Close)
	return nil
}

// openCache degrades to no cache when Redis cannot be reached.
func (r *Runtime) openCache(ctx context.Context) {
	rc := r.Config.Redis
	if rc.Disabled {
		return
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = rc.URL
	redisCfg.Host = rc.Host
	redisCfg.Port = rc.Port
	redisCfg.Password = rc.Password
	redisCfg.DB = rc.DB
	redisCfg.PoolSize = rc.PoolSize
	redisCfg.MinIdleConns = rc.MinIdleConns
	redisCfg.DialTimeout = rc.DialTimeout
	redisCfg.ReadTimeout = rc.ReadTimeout
	redisCfg.WriteTimeout = rc.WriteTimeout

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		r.Logger.Warn("redis unavailable, running without cache", logger.Err(err))
		return
	}
	r.Cache = cache
	r.LevelCache = redis.NewLevelCache(cache, rc.LevelCacheTTL)
	r.closers = append(r.closers, cache.Close)
}

func (r *Runtime) openBus() error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = r.Logger

	if r.Cache == nil {
		bus := messaging.NewInMemoryEventBus(local)
		r.Bus = bus
		r.closers = append(r.closers, bus.Close)
		return nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(r.Cache.Client()),
		ChannelName:    r.Config.Redis.EventChannel,
		LocalBusConfig: local,
		Logger:         r.Logger,
	})
	if err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	r.Bus = bus
	r.closers = append(r.closers, bus.Close)
	return nil
}

func (r *Runtime) openEnricher(ctx context.Context) {
	pc := r.Config.Persona
	if pc.GenAIAPIKey == "" {
		return
	}
	gcfg := gemini.DefaultConfig()
	gcfg.APIKey = pc.GenAIAPIKey
	if pc.GenAIModel != "" {
		gcfg.Model = pc.GenAIModel
	}
	enricher, err := gemini.New(ctx, gcfg, r.Logger)
	if err != nil {
		r.Logger.Warn("persona enrichment disabled", logger.Err(err))
		return
	}
	r.Enricher = enricher
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Runtime) buildHandlers() {
	var features shared.FeatureGate = shared.StaticFeatures{}
	if r.Config.Features != nil {
		features = r.Config.Features
	}

	deps := command.Dependencies{
		Store:     r.Store,
		Publisher: r.Bus,
		Features:  features,
		Logger:    r.Logger,
		Clock:     r.Clock,
		Location:  r.Config.Engine.Location,
	}

	r.Commands = Commands{
		Propose:  command.NewProposeChallengeHandler(deps, command.ProposeChallengeConfig{MaxStakeXP: r.Config.Engine.MaxStakeXP}),
		Respond:  command.NewRespondToChallengeHandler(deps),
		Cancel:   command.NewCancelChallengeHandler(deps),
		Settle:   command.NewSettleChallengeHandler(deps),
		Complete: command.NewRecordCompletionHandler(deps),
		GrantXP:  command.NewGrantXPHandler(deps),
	}

	r.Queries = Queries{
		Challenges:   query.NewChallengeReader(r.Store.Challenges()),
		LevelInfo:    query.NewGetLevelInfoHandler(r.Store.Ledger(), r.LevelCache, r.Logger),
		XPHistory:    query.NewGetXPHistoryHandler(r.Store.Accounts()),
		SuggestStake: query.NewSuggestStakeHandler(r.Store.Ledger(), r.Config.Engine.MaxStakeXP),
		ClassifyPersona: query.NewClassifyPersonaHandler(
			r.Store.Answers(),
			r.Enricher,
			features,
			r.Logger,
			query.ClassifyPersonaConfig{EnrichTimeout: r.Config.Persona.EnrichTimeout},
		),
	}
}

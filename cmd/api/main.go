// Package main is the entry point of the duel engine API server.
//
// The server sits behind the product's API gateway: every /v1 route expects
// the gateway bearer token and the caller's id in X-User-ID. Without a
// DATABASE_URL it runs on the in-memory store and settles due challenges
// in-process, which is enough for local development.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/habitquest/duel-engine/config"
	"github.com/habitquest/duel-engine/internal/bootstrap"
	"github.com/habitquest/duel-engine/internal/infrastructure/scheduler"
	httpserver "github.com/habitquest/duel-engine/internal/interface/http"
	"github.com/habitquest/duel-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting duel engine API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.Engine.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Store, cache, event bus, handlers
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing backing services...")
		if err := rt.Close(); err != nil {
			log.Warn("close backing services", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. In-process sweep for the in-memory store
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Database.URL == "" && cfg.Engine.SweepEnabled {
		sched, err = rt.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	health := httpserver.NewHealthChecker(cfg.App.Version)
	health.AddCheck("store", rt.Store.Ping)
	if rt.Cache != nil {
		health.AddCheck("redis", rt.Cache.Ping)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.GatewayToken = cfg.HTTP.GatewayToken
	httpConfig.AdminToken = cfg.HTTP.AdminToken
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.Location = cfg.Engine.Location
	httpConfig.Version = cfg.App.Version

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		ProposeChallenge:   rt.Commands.Propose,
		RespondToChallenge: rt.Commands.Respond,
		CancelChallenge:    rt.Commands.Cancel,
		SettleChallenge:    rt.Commands.Settle,
		RecordCompletion:   rt.Commands.Complete,
		GrantXP:            rt.Commands.GrantXP,
		Challenges:         rt.Queries.Challenges,
		GetLevelInfo:       rt.Queries.LevelInfo,
		GetXPHistory:       rt.Queries.XPHistory,
		SuggestStake:       rt.Queries.SuggestStake,
		ClassifyPersona:    rt.Queries.ClassifyPersona,
		Health:             health,
		Logger:             log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		shutdownErr = err
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", logger.Err(err))
			shutdownErr = err
		}
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}

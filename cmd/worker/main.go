// Package main is the entry point of the duel engine worker.
//
// The worker owns the periodic settlement sweep: every active challenge whose
// window has ended is settled even if no participant ever asks for it. It
// shares the database with the API servers; settlement is idempotent, so
// overlapping with a participant-triggered settle is harmless.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/habitquest/duel-engine/config"
	"github.com/habitquest/duel-engine/internal/bootstrap"
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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required: the worker cannot share an in-memory store")
	}
	if !cfg.Engine.SweepEnabled {
		return errors.New("ENGINE_SWEEP_ENABLED is false, nothing to do")
	}

	log := bootstrap.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting duel engine worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("sweep_interval", cfg.Engine.SweepInterval),
		logger.Int("sweep_batch_size", cfg.Engine.SweepBatchSize),
		logger.Int("sweep_concurrency", cfg.Engine.SweepConcurrency),
	)

	rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("close backing services", logger.Err(err))
		}
	}()

	sched, err := rt.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", logger.Err(err))
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

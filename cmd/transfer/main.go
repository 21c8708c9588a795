// Command transfer consumes TransferCreatedEvent and records transfer logs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/next-trace/scg-event-bus/internal/app"
	"github.com/next-trace/scg-event-bus/internal/config"
	"github.com/next-trace/scg-event-bus/internal/logger"
	"github.com/next-trace/scg-event-bus/internal/transfer"
	"github.com/next-trace/scg-event-bus/mediator"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	baseLogger := logger.New(logger.Options{
		DevMode:    cfg.DevMode(),
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}).With().Str("service", "transfer").Logger()

	baseLogger.Info().Str("app_env", cfg.AppEnv).Str("broker", cfg.Broker).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, cfg, baseLogger, openRepository)

	stop()

	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Transfer service failed")
	}
}

type repositoryOpener func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (transfer.Repository, func(), error)

// run serves until ctx is done. Everything it opens is closed before it returns.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, open repositoryOpener) error {
	// 3. Initialize storage
	repo, closeRepo, err := open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	// 4. Initialize the bus and subscribe
	rt, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}

	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := transfer.Register(rt.Bus, rt.Mediator, repo, log); err != nil {
		return fmt.Errorf("subscribe transfer handlers: %w", err)
	}

	log.Info().Msg("Transfer service started, waiting for events")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.ServeMetrics(gctx, cfg.MetricsAddr, log) })

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}

	if err := rt.Bus.Close(); err != nil {
		log.Error().Err(err).Msg("Event bus shutdown failed")
	}

	logs, err := mediator.Ask[transfer.GetTransferLogsQuery, []transfer.TransferLog](
		context.Background(), rt.Mediator, transfer.GetTransferLogsQuery{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list transfer logs")
		return nil
	}

	log.Info().Int("transfers", len(logs)).Msg("Transfer service stopped")

	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (transfer.Repository, func(), error) {
	if cfg.PostgresURL == "" {
		log.Info().Msg("No postgres.url configured, keeping transfer logs in memory")
		return transfer.NewMemoryRepository(), func() {}, nil
	}

	repo, err := transfer.NewPostgresRepository(ctx, cfg.PostgresURL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}

	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("prepare database schema: %w", err)
	}

	return repo, repo.Close, nil
}

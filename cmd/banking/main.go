// Command banking requests a transfer, which is announced as TransferCreatedEvent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/next-trace/scg-event-bus/internal/app"
	"github.com/next-trace/scg-event-bus/internal/banking"
	"github.com/next-trace/scg-event-bus/internal/config"
	"github.com/next-trace/scg-event-bus/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	from := flag.String("from", "", "source account")
	to := flag.String("to", "", "target account")
	amount := flag.Int64("amount", 0, "amount in minor units")
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
	}).With().Str("service", "banking").Logger()

	req := banking.AccountTransfer{FromAccount: *from, ToAccount: *to, TransferAmount: *amount}
	if err := run(cfg, baseLogger, req); err != nil {
		baseLogger.Fatal().Err(err).Msg("Transfer failed")
	}

	baseLogger.Info().Str("from", *from).Str("to", *to).Int64("amount", *amount).Msg("Transfer requested")
}

func run(cfg *config.Config, log zerolog.Logger, req banking.AccountTransfer) error {
	// 3. Initialize the bus and bind commands
	rt, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := banking.Register(rt.Mediator, rt.Bus, log); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 4. Request the transfer
	return banking.NewService(rt.Bus).Transfer(ctx, req)
}

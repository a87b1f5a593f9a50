// Package main is the entry point for the planner server: the coordinator
// that turns a portfolio snapshot and a security universe into an ordered,
// scored trading plan.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/trading-planner/internal/config"
	"github.com/aristath/trading-planner/internal/di"
	"github.com/aristath/trading-planner/internal/server"
	"github.com/aristath/trading-planner/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting planner server")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(container, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, cfg.ServerPort); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Planner server stopped")
}

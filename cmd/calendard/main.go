package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/calendar-engine/docs"
	"github.com/kirinyoku/calendar-engine/internal/app"
	"github.com/kirinyoku/calendar-engine/internal/config"
	"github.com/kirinyoku/calendar-engine/internal/obs"
)

// @title Calendar Engine API
// @version 1.0
// @description Availability calendar, pricing and channel reconciliation for vacation rentals.
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.AppEnv, cfg.LogLevel)
	slog.SetDefault(logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}

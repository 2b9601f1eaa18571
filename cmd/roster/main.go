// Package main builds the location roster: one monitored location per
// country served by the upstream API, written as a one-row CSV.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/config"
	"github.com/capitalaq/capitalaq/internal/openaq"
	"github.com/capitalaq/capitalaq/internal/roster"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "capitalaq-roster"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := openaq.NewClient(openaq.ClientConfig{
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
		Logger:  log,
	})

	ids, err := roster.NewBuilder(client, log).Build(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build roster")
	}

	if err := roster.Save(cfg.RosterPath, ids); err != nil {
		log.Fatal().Err(err).Msg("failed to save roster")
	}
	log.Info().Int("locations", len(ids)).Str("roster", cfg.RosterPath).Msg("roster written")
}

// Package main provides the entrypoint for the capitalaq ETL run.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/config"
	"github.com/capitalaq/capitalaq/internal/database"
	"github.com/capitalaq/capitalaq/internal/openaq"
	"github.com/capitalaq/capitalaq/internal/pipeline"
	"github.com/capitalaq/capitalaq/internal/roster"
	"github.com/capitalaq/capitalaq/internal/store"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "capitalaq-etl"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting capitalaq ETL")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	locationIDs, err := roster.Load(cfg.RosterPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load roster")
	}
	log.Info().Int("locations", len(locationIDs)).Str("roster", cfg.RosterPath).Msg("roster loaded")

	client := openaq.NewClient(openaq.ClientConfig{
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
		Logger:  log,
	})
	repo := store.NewPostgresRepository(pool, log)

	runOnce := func() error {
		p := pipeline.New(client, repo, log, pipeline.Config{
			LocationIDs:      locationIDs,
			DateFrom:         cfg.DateFrom,
			DateTo:           cfg.DateTo,
			OverlapDays:      cfg.OverlapDays,
			SkipKnownSensors: cfg.SkipKnownSensors,
		})
		summary, err := p.Run(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Str("run_id", summary.RunID).
			Int("locations_with_data", len(summary.LocationsWithData)).
			Int("attempted", summary.Attempted).
			Int("total_measurement_inserts", summary.TotalMeasurementInserts).
			Msg("run summary")
		return nil
	}

	if cfg.Schedule == "" {
		if err := runOnce(); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn().Msg("run interrupted")
				return
			}
			log.Error().Err(err).Msg("run failed")
			os.Exit(1)
		}
		return
	}

	// Scheduled mode: keep the process up and run on the cron expression.
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron(cfg.Schedule).Do(func() {
		if err := runOnce(); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Schedule).Msg("invalid schedule")
	}

	log.Info().Str("schedule", cfg.Schedule).Msg("scheduler started")
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	log.Info().Msg("scheduler stopped")
}

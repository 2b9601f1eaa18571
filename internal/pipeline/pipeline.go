// Package pipeline drives the ETL run: one location at a time through
// fetch, normalize, aggregate, merge, commit. Strictly sequential; the
// only suspension points are the API client's rate-limit sleeps.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/ingest"
	"github.com/capitalaq/capitalaq/internal/openaq"
	"github.com/capitalaq/capitalaq/internal/store"
)

// DefaultOverlapDays is the window extension behind the latest stored
// measurement, re-fetched on every run to catch late corrections.
const DefaultOverlapDays = 3

// DefaultLookbackDays bounds the first run against an empty store.
const DefaultLookbackDays = 30

// Client is the slice of the API client the pipeline needs.
type Client interface {
	Location(ctx context.Context, id int64) (*openaq.LocationPayload, error)
	ingest.MeasurementFetcher
}

// Config holds run parameters.
type Config struct {
	// LocationIDs is the roster of locations to process, in order.
	LocationIDs []int64

	// DateFrom and DateTo bound the measurement window. Zero values are
	// resolved at run time: DateFrom from the latest stored measurement
	// minus OverlapDays, DateTo from the current date.
	DateFrom time.Time
	DateTo   time.Time

	// OverlapDays extends the window behind the latest stored date.
	// Default: DefaultOverlapDays.
	OverlapDays int

	// SkipKnownSensors enables the reference-table short-circuit.
	SkipKnownSensors bool
}

// Pipeline orchestrates one ETL run.
type Pipeline struct {
	client    Client
	repo      store.Repository
	engine    *store.Engine
	collector *ingest.Collector
	logger    zerolog.Logger
	cfg       Config
}

// New creates a pipeline over the given client and repository.
func New(client Client, repo store.Repository, logger zerolog.Logger, cfg Config) *Pipeline {
	if cfg.OverlapDays <= 0 {
		cfg.OverlapDays = DefaultOverlapDays
	}
	return &Pipeline{
		client:    client,
		repo:      repo,
		engine:    store.NewEngine(repo, logger, cfg.SkipKnownSensors),
		collector: ingest.NewCollector(client, logger),
		logger:    logger,
		cfg:       cfg,
	}
}

// Summary is the run's audit trail, also emitted as log lines as the run
// proceeds so it can be reconstructed if the process dies mid-run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DateFrom   time.Time
	DateTo     time.Time

	Attempted int
	Skipped   int

	// LocationsWithData holds the ids that yielded at least one
	// measurement row, sorted.
	LocationsWithData []int64

	// TotalMeasurementInserts counts previously-unseen (sensor, day)
	// keys across the whole run.
	TotalMeasurementInserts int

	// TableFailures tallies failed rows per table name.
	TableFailures map[string]int
}

// Run processes every roster location in order. It returns a non-nil
// summary even on cancellation; the only error returned is the context's.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now(),
		TableFailures: make(map[string]int),
	}

	from, to, err := p.resolveWindow(ctx)
	if err != nil {
		return summary, err
	}
	summary.DateFrom, summary.DateTo = from, to

	logger := p.logger.With().Str("run_id", summary.RunID).Logger()
	logger.Info().
		Time("date_from", from).
		Time("date_to", to).
		Int("locations", len(p.cfg.LocationIDs)).
		Msg("starting ETL run")

	for _, locationID := range p.cfg.LocationIDs {
		// Honor cancellation between locations; a location in flight is
		// never cut off mid-merge from here.
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = time.Now()
			logger.Warn().Err(err).Msg("run cancelled between locations")
			return summary, err
		}

		summary.Attempted++
		p.processLocation(ctx, logger, locationID, from, to, summary)
	}

	summary.FinishedAt = time.Now()
	sort.Slice(summary.LocationsWithData, func(i, j int) bool {
		return summary.LocationsWithData[i] < summary.LocationsWithData[j]
	})

	logger.Info().
		Int("attempted", summary.Attempted).
		Int("skipped", summary.Skipped).
		Int("locations_with_data", len(summary.LocationsWithData)).
		Int("total_measurement_inserts", summary.TotalMeasurementInserts).
		Interface("table_failures", summary.TableFailures).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("ETL run complete")

	return summary, nil
}

// processLocation walks one location through the stage sequence. A stage
// returning absence or empty makes the skip terminal for this run.
func (p *Pipeline) processLocation(ctx context.Context, logger zerolog.Logger, locationID int64, from, to time.Time, summary *Summary) {
	locLogger := logger.With().Int64("location_id", locationID).Logger()

	// fetching
	payload, err := p.client.Location(ctx, locationID)
	if err != nil {
		if errors.Is(err, openaq.ErrNotFound) {
			locLogger.Info().Msg("location not found upstream, skipping")
		} else {
			locLogger.Warn().Err(err).Msg("location fetch failed, skipping")
		}
		summary.Skipped++
		return
	}

	// normalizing
	set, err := ingest.NormalizeLocation(payload)
	if err != nil {
		locLogger.Warn().Err(err).Msg("location payload rejected, skipping")
		summary.Skipped++
		return
	}
	if set.Empty() {
		locLogger.Info().Msg("location has no sensors, skipping")
		summary.Skipped++
		return
	}

	// aggregating-measurements
	measurements := p.collector.Collect(ctx, set.SensorIDs, locationID, from, to)
	if len(measurements) == 0 {
		locLogger.Info().Msg("no measurements in range, skipping")
		summary.Skipped++
		return
	}

	// merging
	result := p.engine.Apply(ctx, set, measurements)
	summary.TotalMeasurementInserts += result.MeasurementInserts
	for table, failed := range result.Failures() {
		summary.TableFailures[table] += failed
	}
	summary.LocationsWithData = append(summary.LocationsWithData, locationID)

	// committed
	locLogger.Info().
		Int("sensors", len(set.SensorIDs)).
		Int("measurement_rows", len(measurements)).
		Int("measurement_inserts", result.MeasurementInserts).
		Bool("reference_skipped", result.ReferenceSkipped).
		Msg("location committed")
}

// resolveWindow fills in the default date range: from the latest stored
// measurement minus the overlap window, up to the current date.
func (p *Pipeline) resolveWindow(ctx context.Context) (time.Time, time.Time, error) {
	from, to := p.cfg.DateFrom, p.cfg.DateTo

	if to.IsZero() {
		to = time.Now().Truncate(24 * time.Hour)
	}
	if from.IsZero() {
		latest, ok, err := p.repo.LatestMeasurementDate(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if ok {
			from = latest.AddDate(0, 0, -p.cfg.OverlapDays)
		} else {
			from = to.AddDate(0, 0, -DefaultLookbackDays)
		}
	}
	return from, to, nil
}

package store

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/ingest"
)

// Engine merges one location's worth of rows across all five tables in
// dependency order (countries, pollutants, locations, sensors,
// measurements), so a child row never lands before its parent.
type Engine struct {
	repo   Repository
	logger zerolog.Logger

	// skipKnown enables the reference-table short-circuit: when the
	// location's first sensor id is already stored, the four reference
	// tables cannot have changed under their merge policies (save the
	// bounded pollutant display-name staleness) and are skipped. This is
	// a statement-count optimization only; results must be identical
	// with it disabled.
	skipKnown bool
}

// NewEngine creates a merge engine over the given repository.
func NewEngine(repo Repository, logger zerolog.Logger, skipKnown bool) *Engine {
	return &Engine{repo: repo, logger: logger, skipKnown: skipKnown}
}

// MergeResult aggregates the per-table outcomes for one location.
type MergeResult struct {
	Outcomes []Outcome

	// MeasurementInserts counts previously-unseen (sensor, day) keys.
	MeasurementInserts int

	// ReferenceSkipped is true when the short-circuit fired.
	ReferenceSkipped bool
}

// Failures returns the per-table failed-row counts, keyed by table name.
// Tables without failures are absent.
func (r MergeResult) Failures() map[string]int {
	failures := make(map[string]int)
	for _, out := range r.Outcomes {
		if out.Failed > 0 {
			failures[out.Table] += out.Failed
		}
	}
	return failures
}

// Apply merges the entity set and measurement table for one location.
// A failed table batch is tallied and logged but does not stop the
// remaining tables.
func (e *Engine) Apply(ctx context.Context, set ingest.EntitySet, measurements []ingest.MeasurementRow) MergeResult {
	var result MergeResult

	mergeReference := true
	if e.skipKnown && len(set.SensorIDs) > 0 {
		known, err := e.repo.SensorKnown(ctx, set.SensorIDs[0])
		if err != nil {
			// Fall through to the full merge; it is always correct.
			e.logger.Warn().Err(err).Int64("sensor_id", set.SensorIDs[0]).Msg("sensor lookup failed, merging all tables")
		} else if known {
			mergeReference = false
			result.ReferenceSkipped = true
		}
	}

	if mergeReference {
		result.Outcomes = append(result.Outcomes,
			e.repo.MergeCountries(ctx, []ingest.CountryRow{set.Country}),
			e.repo.MergePollutants(ctx, set.Pollutants),
			e.repo.MergeLocations(ctx, []ingest.LocationRow{set.Location}),
			e.repo.MergeSensors(ctx, set.Sensors),
		)
	}

	measurementOutcome := e.repo.MergeMeasurements(ctx, measurements)
	result.Outcomes = append(result.Outcomes, measurementOutcome)
	result.MeasurementInserts = measurementOutcome.Inserted

	for _, out := range result.Outcomes {
		if out.Err != nil {
			e.logger.Warn().
				Str("table", out.Table).
				Int("failed_rows", out.Failed).
				Msg("table batch abandoned, continuing with remaining tables")
		}
	}

	return result
}

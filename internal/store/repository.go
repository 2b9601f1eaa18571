// Package store persists normalized air-quality rows with per-table merge
// policies. The upstream API is re-queried over an overlapping window on
// every run, so every insert is treated as a potential re-insert:
//
//   - pollutants: refine only display_name on conflict, never clobber a
//     known value with NULL
//   - countries, locations, sensors: existing row wins, insert is a no-op
//   - measurements: overwrite every non-key column on conflict
package store

import (
	"context"
	"time"

	"github.com/capitalaq/capitalaq/internal/ingest"
)

// Table names used in outcomes, failure tallies and logs.
const (
	TableCountries    = "countries"
	TablePollutants   = "pollutants"
	TableLocations    = "locations"
	TableSensors      = "sensors"
	TableMeasurements = "measurements"
)

// Outcome records the result of merging one table's batch of rows.
type Outcome struct {
	Table     string
	Attempted int

	// Inserted counts rows whose primary key was previously unseen.
	// Conflicting rows resolved by the table's merge policy do not count.
	Inserted int

	// Failed counts rows abandoned because the batch failed.
	Failed int

	// Err is the batch failure, nil on success.
	Err error
}

// Repository is the merge interface over the five tables. Implementations
// must apply the per-table conflict policies documented on the package.
type Repository interface {
	MergeCountries(ctx context.Context, rows []ingest.CountryRow) Outcome
	MergePollutants(ctx context.Context, rows []ingest.PollutantRow) Outcome
	MergeLocations(ctx context.Context, rows []ingest.LocationRow) Outcome
	MergeSensors(ctx context.Context, rows []ingest.SensorRow) Outcome
	MergeMeasurements(ctx context.Context, rows []ingest.MeasurementRow) Outcome

	// SensorKnown reports whether a sensor id is already stored. Used by
	// the engine's reference-table short-circuit.
	SensorKnown(ctx context.Context, sensorID int64) (bool, error)

	// LatestMeasurementDate returns the maximum stored measurement date,
	// or ok=false when the measurements table is empty.
	LatestMeasurementDate(ctx context.Context) (time.Time, bool, error)
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/capitalaq/capitalaq/internal/ingest"
)

// MemoryRepository is an in-memory implementation of Repository with the
// same merge policies as the PostgreSQL one. It backs engine and pipeline
// tests and dry runs; it is not meant for production use.
type MemoryRepository struct {
	mu           sync.RWMutex
	countries    map[int64]ingest.CountryRow
	pollutants   map[int64]ingest.PollutantRow
	locations    map[int64]ingest.LocationRow
	sensors      map[int64]ingest.SensorRow
	measurements map[measurementKey]ingest.MeasurementRow

	failures map[string]error
}

type measurementKey struct {
	SensorID int64
	Day      string
}

func keyFor(row ingest.MeasurementRow) measurementKey {
	return measurementKey{SensorID: row.SensorID, Day: row.Datetime.UTC().Format(time.RFC3339)}
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		countries:    make(map[int64]ingest.CountryRow),
		pollutants:   make(map[int64]ingest.PollutantRow),
		locations:    make(map[int64]ingest.LocationRow),
		sensors:      make(map[int64]ingest.SensorRow),
		measurements: make(map[measurementKey]ingest.MeasurementRow),
		failures:     make(map[string]error),
	}
}

// FailWith makes every merge into the named table fail with err until
// cleared with a nil err. Test hook for failure-isolation scenarios.
func (r *MemoryRepository) FailWith(table string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, table)
		return
	}
	r.failures[table] = err
}

func (r *MemoryRepository) forced(table string, attempted int) (Outcome, bool) {
	if err, ok := r.failures[table]; ok {
		return Outcome{Table: table, Attempted: attempted, Failed: attempted, Err: err}, true
	}
	return Outcome{}, false
}

// MergeCountries applies the existing-row-wins policy.
func (r *MemoryRepository) MergeCountries(_ context.Context, rows []ingest.CountryRow) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.forced(TableCountries, len(rows)); ok {
		return out
	}

	out := Outcome{Table: TableCountries, Attempted: len(rows)}
	for _, row := range rows {
		if _, exists := r.countries[row.ID]; exists {
			continue
		}
		r.countries[row.ID] = row
		out.Inserted++
	}
	return out
}

// MergePollutants applies the refine-display-name policy.
func (r *MemoryRepository) MergePollutants(_ context.Context, rows []ingest.PollutantRow) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.forced(TablePollutants, len(rows)); ok {
		return out
	}

	out := Outcome{Table: TablePollutants, Attempted: len(rows)}
	for _, row := range rows {
		existing, exists := r.pollutants[row.ID]
		if !exists {
			r.pollutants[row.ID] = row
			out.Inserted++
			continue
		}
		// Only display_name is refinable, and never back to NULL.
		if row.DisplayName != nil {
			existing.DisplayName = row.DisplayName
			r.pollutants[row.ID] = existing
		}
	}
	return out
}

// MergeLocations applies the existing-row-wins policy.
func (r *MemoryRepository) MergeLocations(_ context.Context, rows []ingest.LocationRow) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.forced(TableLocations, len(rows)); ok {
		return out
	}

	out := Outcome{Table: TableLocations, Attempted: len(rows)}
	for _, row := range rows {
		if _, exists := r.locations[row.ID]; exists {
			continue
		}
		r.locations[row.ID] = row
		out.Inserted++
	}
	return out
}

// MergeSensors applies the existing-row-wins policy.
func (r *MemoryRepository) MergeSensors(_ context.Context, rows []ingest.SensorRow) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.forced(TableSensors, len(rows)); ok {
		return out
	}

	out := Outcome{Table: TableSensors, Attempted: len(rows)}
	for _, row := range rows {
		if _, exists := r.sensors[row.ID]; exists {
			continue
		}
		r.sensors[row.ID] = row
		out.Inserted++
	}
	return out
}

// MergeMeasurements applies the overwrite policy keyed by (sensor, day).
func (r *MemoryRepository) MergeMeasurements(_ context.Context, rows []ingest.MeasurementRow) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.forced(TableMeasurements, len(rows)); ok {
		return out
	}

	out := Outcome{Table: TableMeasurements, Attempted: len(rows)}
	for _, row := range rows {
		key := keyFor(row)
		if _, exists := r.measurements[key]; !exists {
			out.Inserted++
		}
		r.measurements[key] = row
	}
	return out
}

// SensorKnown reports whether a sensor id is already stored.
func (r *MemoryRepository) SensorKnown(_ context.Context, sensorID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, known := r.sensors[sensorID]
	return known, nil
}

// LatestMeasurementDate returns the maximum stored measurement date.
func (r *MemoryRepository) LatestMeasurementDate(_ context.Context) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest time.Time
	for _, row := range r.measurements {
		if row.Datetime.After(latest) {
			latest = row.Datetime
		}
	}
	return latest, !latest.IsZero(), nil
}

// RowCount returns the number of stored rows in the named table.
func (r *MemoryRepository) RowCount(table string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch table {
	case TableCountries:
		return len(r.countries)
	case TablePollutants:
		return len(r.pollutants)
	case TableLocations:
		return len(r.locations)
	case TableSensors:
		return len(r.sensors)
	case TableMeasurements:
		return len(r.measurements)
	}
	return 0
}

// Pollutant returns a stored pollutant row by id.
func (r *MemoryRepository) Pollutant(id int64) (ingest.PollutantRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.pollutants[id]
	return row, ok
}

// Location returns a stored location row by id.
func (r *MemoryRepository) Location(id int64) (ingest.LocationRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.locations[id]
	return row, ok
}

// Measurement returns a stored measurement row by its composite key.
func (r *MemoryRepository) Measurement(sensorID int64, datetime time.Time) (ingest.MeasurementRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.measurements[measurementKey{SensorID: sensorID, Day: datetime.UTC().Format(time.RFC3339)}]
	return row, ok
}

// Ensure MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

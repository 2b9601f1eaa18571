package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/ingest"
)

// PostgresRepository is the PostgreSQL implementation of Repository.
// Each table's batch runs in its own transaction, so an interrupt can
// leave a location with only some tables merged but never a half-written
// row; the merge policies make a re-run of the whole location safe.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// MergeCountries inserts country rows; existing identities win.
func (r *PostgresRepository) MergeCountries(ctx context.Context, rows []ingest.CountryRow) Outcome {
	if len(rows) == 0 {
		return Outcome{Table: TableCountries}
	}

	query := `INSERT INTO countries (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.ID, row.Name)
	}
	inserted, err := r.runBatch(ctx, batch, false)
	return r.outcome(TableCountries, len(rows), inserted, err, rows[0])
}

// MergePollutants inserts pollutant rows, refining only display_name on
// conflict. COALESCE keeps a later partial payload from clobbering an
// already-known display name with NULL.
func (r *PostgresRepository) MergePollutants(ctx context.Context, rows []ingest.PollutantRow) Outcome {
	if len(rows) == 0 {
		return Outcome{Table: TablePollutants}
	}

	query := `INSERT INTO pollutants (id, name, units, display_name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = COALESCE(EXCLUDED.display_name, pollutants.display_name)
		RETURNING (xmax = 0) AS inserted`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.ID, row.Name, row.Units, row.DisplayName)
	}
	inserted, err := r.runBatch(ctx, batch, true)
	return r.outcome(TablePollutants, len(rows), inserted, err, rows[0])
}

// MergeLocations inserts location rows; existing identities win.
func (r *PostgresRepository) MergeLocations(ctx context.Context, rows []ingest.LocationRow) Outcome {
	if len(rows) == 0 {
		return Outcome{Table: TableLocations}
	}

	query := `INSERT INTO locations (id, latitude, longitude, locality, country_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.ID, row.Latitude, row.Longitude, row.Locality, row.CountryID)
	}
	inserted, err := r.runBatch(ctx, batch, false)
	return r.outcome(TableLocations, len(rows), inserted, err, rows[0])
}

// MergeSensors inserts sensor rows; existing identities win.
func (r *PostgresRepository) MergeSensors(ctx context.Context, rows []ingest.SensorRow) Outcome {
	if len(rows) == 0 {
		return Outcome{Table: TableSensors}
	}

	query := `INSERT INTO sensors (id, pollutant_id, location_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.ID, row.PollutantID, row.LocationID)
	}
	inserted, err := r.runBatch(ctx, batch, false)
	return r.outcome(TableSensors, len(rows), inserted, err, rows[0])
}

// MergeMeasurements upserts daily rollups keyed by (sensor_id, datetime),
// overwriting every non-key column. Re-fetching a day is expected and must
// converge on the latest upstream value.
func (r *PostgresRepository) MergeMeasurements(ctx context.Context, rows []ingest.MeasurementRow) Outcome {
	if len(rows) == 0 {
		return Outcome{Table: TableMeasurements}
	}

	query := `INSERT INTO measurements
		(sensor_id, datetime, location_id, pollutant_id, value, min_val, max_val, sd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sensor_id, datetime) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			pollutant_id = EXCLUDED.pollutant_id,
			value = EXCLUDED.value,
			min_val = EXCLUDED.min_val,
			max_val = EXCLUDED.max_val,
			sd = EXCLUDED.sd
		RETURNING (xmax = 0) AS inserted`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			row.SensorID, row.Datetime, row.LocationID, row.PollutantID,
			row.Value, row.MinVal, row.MaxVal, row.SD)
	}
	inserted, err := r.runBatch(ctx, batch, true)
	return r.outcome(TableMeasurements, len(rows), inserted, err, rows[0])
}

// SensorKnown reports whether a sensor id is already stored.
func (r *PostgresRepository) SensorKnown(ctx context.Context, sensorID int64) (bool, error) {
	var known bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sensors WHERE id = $1)`, sensorID).Scan(&known)
	return known, err
}

// LatestMeasurementDate returns the maximum stored measurement date.
func (r *PostgresRepository) LatestMeasurementDate(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(datetime) FROM measurements`).Scan(&latest)
	if err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

// runBatch executes a batch inside one transaction and returns the count
// of newly inserted rows. returning marks batches whose statements end in
// RETURNING (xmax = 0). Any statement failure rolls back the whole batch.
func (r *PostgresRepository) runBatch(ctx context.Context, batch *pgx.Batch, returning bool) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	res := tx.SendBatch(ctx, batch)

	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		if returning {
			var isInsert bool
			if err := res.QueryRow().Scan(&isInsert); err != nil {
				res.Close()
				return 0, err
			}
			if isInsert {
				inserted++
			}
			continue
		}

		tag, err := res.Exec()
		if err != nil {
			res.Close()
			return 0, err
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}

	if err := res.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// outcome assembles an Outcome, logging a row sample on batch failure so
// the offending data can be diagnosed from the run log.
func (r *PostgresRepository) outcome(table string, attempted, inserted int, err error, sample any) Outcome {
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("table", table).
			Interface("row_sample", sample).
			Msg("merge batch failed")
		return Outcome{Table: table, Attempted: attempted, Failed: attempted, Err: err}
	}
	return Outcome{Table: table, Attempted: attempted, Inserted: inserted}
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

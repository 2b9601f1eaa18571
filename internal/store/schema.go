package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the five tables if they do not exist. Identifiers are
// assigned upstream, so none of the primary keys are generated here.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS countries (
		id   BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pollutants (
		id           BIGINT PRIMARY KEY,
		name         TEXT NOT NULL,
		units        TEXT NOT NULL,
		display_name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id         BIGINT PRIMARY KEY,
		latitude   DOUBLE PRECISION NOT NULL,
		longitude  DOUBLE PRECISION NOT NULL,
		locality   TEXT,
		country_id BIGINT NOT NULL REFERENCES countries (id)
	)`,
	`CREATE TABLE IF NOT EXISTS sensors (
		id           BIGINT PRIMARY KEY,
		pollutant_id BIGINT NOT NULL REFERENCES pollutants (id),
		location_id  BIGINT NOT NULL REFERENCES locations (id)
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		sensor_id    BIGINT NOT NULL REFERENCES sensors (id),
		datetime     TIMESTAMPTZ NOT NULL,
		location_id  BIGINT NOT NULL,
		pollutant_id BIGINT NOT NULL,
		value        DOUBLE PRECISION NOT NULL,
		min_val      DOUBLE PRECISION,
		max_val      DOUBLE PRECISION,
		sd           DOUBLE PRECISION,
		PRIMARY KEY (sensor_id, datetime)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_location_datetime
		ON measurements (location_id, datetime)`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_pollutant_datetime
		ON measurements (pollutant_id, datetime)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_country ON locations (country_id)`,
}

// EnsureSchema creates all tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

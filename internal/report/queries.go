// Package report serves read-only views over the air-quality tables for
// dashboards and ad hoc inspection. It is a pure consumer of the store;
// nothing here writes.
package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs the reporting queries against the relational sink.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a reporting store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LatestValue is the most recent daily value for one country.
type LatestValue struct {
	CountryID int64     `json:"country_id"`
	Country   string    `json:"country"`
	Pollutant string    `json:"pollutant"`
	Datetime  time.Time `json:"datetime"`
	Value     float64   `json:"value"`
}

// Latest returns the most recent stored value per country for one
// pollutant name (e.g. "pm25").
func (s *Store) Latest(ctx context.Context, pollutant string) ([]LatestValue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (c.id) c.id, c.name, p.name, m.datetime, m.value
		FROM measurements m
		JOIN locations l ON l.id = m.location_id
		JOIN countries c ON c.id = l.country_id
		JOIN pollutants p ON p.id = m.pollutant_id
		WHERE p.name = $1
		ORDER BY c.id, m.datetime DESC`, pollutant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []LatestValue
	for rows.Next() {
		var v LatestValue
		if err := rows.Scan(&v.CountryID, &v.Country, &v.Pollutant, &v.Datetime, &v.Value); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// SeriesPoint is one day of one pollutant for one country.
type SeriesPoint struct {
	Datetime time.Time `json:"datetime"`
	Value    float64   `json:"value"`
	MinVal   *float64  `json:"min_val,omitempty"`
	MaxVal   *float64  `json:"max_val,omitempty"`
}

// Series returns the daily time series for a country and pollutant name.
func (s *Store) Series(ctx context.Context, countryID int64, pollutant string) ([]SeriesPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.datetime, m.value, m.min_val, m.max_val
		FROM measurements m
		JOIN locations l ON l.id = m.location_id
		JOIN pollutants p ON p.id = m.pollutant_id
		WHERE l.country_id = $1 AND p.name = $2
		ORDER BY m.datetime`, countryID, pollutant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []SeriesPoint
	for rows.Next() {
		var pt SeriesPoint
		if err := rows.Scan(&pt.Datetime, &pt.Value, &pt.MinVal, &pt.MaxVal); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// PollutantInfo describes one pollutant for display purposes.
type PollutantInfo struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Units       string  `json:"units"`
	DisplayName *string `json:"display_name"`
}

// Pollutants lists every stored pollutant.
func (s *Store) Pollutants(ctx context.Context) ([]PollutantInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, units, display_name FROM pollutants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pollutants []PollutantInfo
	for rows.Next() {
		var p PollutantInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.Units, &p.DisplayName); err != nil {
			return nil, err
		}
		pollutants = append(pollutants, p)
	}
	return pollutants, rows.Err()
}

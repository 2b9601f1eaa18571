// Package ingest converts OpenAQ payloads into flat per-entity rows ready
// for the store's merge engine.
package ingest

import "time"

// CountryRow is a row destined for the countries table.
type CountryRow struct {
	ID   int64
	Name string
}

// LocationRow is a row destined for the locations table.
type LocationRow struct {
	ID        int64
	Latitude  float64
	Longitude float64
	Locality  *string
	CountryID int64
}

// PollutantRow is a row destined for the pollutants table. DisplayName is
// the one attribute the upstream refines after the fact, so it stays
// nullable here and is merged with refine semantics.
type PollutantRow struct {
	ID          int64
	Name        string
	Units       string
	DisplayName *string
}

// SensorRow is a row destined for the sensors table.
type SensorRow struct {
	ID          int64
	PollutantID int64
	LocationID  int64
}

// MeasurementRow is a daily rollup row destined for the measurements
// table, keyed by (SensorID, Datetime).
type MeasurementRow struct {
	SensorID    int64
	Datetime    time.Time
	LocationID  int64
	PollutantID int64
	Value       float64
	MinVal      *float64
	MaxVal      *float64
	SD          *float64
}

// EntitySet is the full set of reference rows produced from one location
// payload. The zero value is the explicit "nothing to merge" result.
type EntitySet struct {
	SensorIDs  []int64
	Country    CountryRow
	Location   LocationRow
	Pollutants []PollutantRow
	Sensors    []SensorRow
}

// Empty reports whether the location carried zero sensors. This is a
// valid terminal state for a location, not an error.
func (s EntitySet) Empty() bool {
	return len(s.SensorIDs) == 0
}

package openaq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexInt is an integer that unmarshals from either a JSON number or a
// numeric string. The upstream API is inconsistent about how it encodes
// identifiers across endpoints, and a mixed representation would land
// type-mismatched join keys in the store.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", data, err)
	}
	*f = FlexInt(n)
	return nil
}

// Int returns the value as a plain int64.
func (f FlexInt) Int() int64 { return int64(f) }

// Found is the result count from response metadata. The API reports an
// exact integer when all results fit in one page, or a ">N" marker when
// the result set was truncated at the page limit.
type Found struct {
	Count     int64
	Truncated bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Found) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = Found{}
		return nil
	}
	if strings.HasPrefix(s, ">") {
		f.Truncated = true
		s = s[1:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse found %q: %w", data, err)
	}
	f.Count = n
	return nil
}

// Meta is the pagination metadata common to all list responses.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Found Found `json:"found"`
}

// Coordinates is a WGS 84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CountryRef is the country block embedded in a location result.
type CountryRef struct {
	ID   FlexInt `json:"id"`
	Code string  `json:"code"`
	Name string  `json:"name"`
}

// Parameter describes the pollutant a sensor measures.
type Parameter struct {
	ID          FlexInt `json:"id"`
	Name        string  `json:"name"`
	Units       string  `json:"units"`
	DisplayName *string `json:"displayName"`
}

// SensorRef is a sensor entry embedded in a location result.
type SensorRef struct {
	ID        FlexInt   `json:"id"`
	Name      string    `json:"name"`
	Parameter Parameter `json:"parameter"`
}

// LocationResult is a single result from the locations endpoint.
type LocationResult struct {
	ID          FlexInt     `json:"id"`
	Name        string      `json:"name"`
	Locality    *string     `json:"locality"`
	Coordinates Coordinates `json:"coordinates"`
	Country     CountryRef  `json:"country"`
	Sensors     []SensorRef `json:"sensors"`
}

// LocationPayload is the response from the location-by-id endpoint.
type LocationPayload struct {
	Meta    Meta             `json:"meta"`
	Results []LocationResult `json:"results"`
}

// CountryResult is a single result from the countries endpoint.
type CountryResult struct {
	ID   FlexInt `json:"id"`
	Code string  `json:"code"`
	Name string  `json:"name"`
}

// CountriesPayload is the response from the countries endpoint.
type CountriesPayload struct {
	Meta    Meta            `json:"meta"`
	Results []CountryResult `json:"results"`
}

// Period describes the rollup window of a daily measurement.
type Period struct {
	DatetimeTo PeriodStamp `json:"datetimeTo"`
}

// PeriodStamp carries the rollup boundary in UTC and local form.
type PeriodStamp struct {
	UTC   string `json:"utc"`
	Local string `json:"local"`
}

// Summary carries the daily rollup statistics.
type Summary struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	SD  *float64 `json:"sd"`
}

// MeasurementResult is one daily rollup row from the sensor measurements
// endpoint.
type MeasurementResult struct {
	Value     float64   `json:"value"`
	Parameter Parameter `json:"parameter"`
	Period    Period    `json:"period"`
	Summary   Summary   `json:"summary"`
}

// MeasurementPayload is the response from the sensor daily measurements
// endpoint.
type MeasurementPayload struct {
	Meta    Meta                `json:"meta"`
	Results []MeasurementResult `json:"results"`
}

// ParseStamp parses a rollup boundary timestamp. Depending on response
// mode the upstream emits either a bare `Z` zone marker or a fully
// qualified offset; both must be accepted. A third, zoneless form shows
// up in some local timestamps and is taken at face value.
func ParseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ json.Unmarshaler = (*FlexInt)(nil)
var _ json.Unmarshaler = (*Found)(nil)

package ingest

import (
	"errors"
	"fmt"

	"github.com/capitalaq/capitalaq/internal/openaq"
)

// ErrAmbiguousLocation is returned when an id lookup yields more than one
// location. Silently using an arbitrary entry would tie sensors to the
// wrong place, so the whole location is rejected instead.
var ErrAmbiguousLocation = errors.New("ingest: ambiguous location result")

// NormalizeLocation flattens a location payload into per-entity rows.
// A location with zero sensors produces an empty EntitySet and no error.
func NormalizeLocation(payload *openaq.LocationPayload) (EntitySet, error) {
	if payload == nil || len(payload.Results) == 0 {
		return EntitySet{}, nil
	}
	if len(payload.Results) > 1 {
		return EntitySet{}, fmt.Errorf("%w: %d results for id lookup", ErrAmbiguousLocation, len(payload.Results))
	}

	res := payload.Results[0]
	if len(res.Sensors) == 0 {
		return EntitySet{}, nil
	}

	set := EntitySet{
		Country: CountryRow{
			ID:   res.Country.ID.Int(),
			Name: res.Country.Name,
		},
		Location: LocationRow{
			ID:        res.ID.Int(),
			Latitude:  res.Coordinates.Latitude,
			Longitude: res.Coordinates.Longitude,
			Locality:  res.Locality,
			CountryID: res.Country.ID.Int(),
		},
	}

	// One pollutant row per distinct parameter id. A later duplicate may
	// carry the display name an earlier one lacked.
	seen := make(map[int64]int)
	for _, sensor := range res.Sensors {
		sensorID := sensor.ID.Int()
		pollutantID := sensor.Parameter.ID.Int()

		set.SensorIDs = append(set.SensorIDs, sensorID)
		set.Sensors = append(set.Sensors, SensorRow{
			ID:          sensorID,
			PollutantID: pollutantID,
			LocationID:  set.Location.ID,
		})

		if idx, ok := seen[pollutantID]; ok {
			if set.Pollutants[idx].DisplayName == nil && sensor.Parameter.DisplayName != nil {
				set.Pollutants[idx].DisplayName = sensor.Parameter.DisplayName
			}
			continue
		}
		seen[pollutantID] = len(set.Pollutants)
		set.Pollutants = append(set.Pollutants, PollutantRow{
			ID:          pollutantID,
			Name:        sensor.Parameter.Name,
			Units:       sensor.Parameter.Units,
			DisplayName: sensor.Parameter.DisplayName,
		})
	}

	return set, nil
}

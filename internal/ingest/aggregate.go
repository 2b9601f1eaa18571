package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/openaq"
)

// MeasurementFetcher is the slice of the API client the collector needs.
type MeasurementFetcher interface {
	SensorDaily(ctx context.Context, sensorID int64, from, to time.Time) (*openaq.MeasurementPayload, error)
}

// Collector gathers daily rollups for a set of sensors into one table.
type Collector struct {
	client MeasurementFetcher
	logger zerolog.Logger
}

// NewCollector creates a measurement collector.
func NewCollector(client MeasurementFetcher, logger zerolog.Logger) *Collector {
	return &Collector{client: client, logger: logger}
}

// Collect fetches the daily rollup for every sensor in the list and
// concatenates the rows. The result is possibly empty but never nil; a
// sensor with no data in the range is logged and skipped, it does not
// abort the location. Row order carries no meaning.
func (c *Collector) Collect(ctx context.Context, sensorIDs []int64, locationID int64, from, to time.Time) []MeasurementRow {
	rows := make([]MeasurementRow, 0, len(sensorIDs))

	for _, sensorID := range sensorIDs {
		if ctx.Err() != nil {
			return rows
		}

		payload, err := c.client.SensorDaily(ctx, sensorID, from, to)
		if err != nil {
			switch {
			case errors.Is(err, openaq.ErrNoResults):
				c.logger.Info().Int64("sensor_id", sensorID).Msg("sensor has no measurements in range, skipping")
			case errors.Is(err, openaq.ErrTruncated):
				// A truncated page would look complete but is not;
				// better to skip the sensor than store a partial day set.
				c.logger.Warn().Err(err).Int64("sensor_id", sensorID).Msg("truncated measurement result, skipping sensor")
			default:
				c.logger.Info().Err(err).Int64("sensor_id", sensorID).Msg("no measurement data for sensor, skipping")
			}
			continue
		}

		for _, result := range payload.Results {
			stamp, err := openaq.ParseStamp(result.Period.DatetimeTo.Local)
			if err != nil {
				c.logger.Warn().Err(err).Int64("sensor_id", sensorID).Msg("unparseable rollup timestamp, dropping row")
				continue
			}
			rows = append(rows, MeasurementRow{
				SensorID:    sensorID,
				Datetime:    stamp,
				LocationID:  locationID,
				PollutantID: result.Parameter.ID.Int(),
				Value:       result.Value,
				MinVal:      result.Summary.Min,
				MaxVal:      result.Summary.Max,
				SD:          result.Summary.SD,
			})
		}
	}

	return rows
}

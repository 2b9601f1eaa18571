package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/openaq"
)

const countriesPageLimit = 200

// BuilderClient is the slice of the API client the builder needs.
type BuilderClient interface {
	Countries(ctx context.Context, limit int) (*openaq.CountriesPayload, error)
	LocationsByCountry(ctx context.Context, countryID int64, limit int) (*openaq.LocationPayload, error)
}

// Builder assembles a roster by enumerating every country the API serves
// and picking its first monitored location.
type Builder struct {
	client BuilderClient
	logger zerolog.Logger
}

// NewBuilder creates a roster builder.
func NewBuilder(client BuilderClient, logger zerolog.Logger) *Builder {
	return &Builder{client: client, logger: logger}
}

// Build returns one location id per country that has any monitored
// location. Countries without coverage are logged and skipped.
func (b *Builder) Build(ctx context.Context) ([]int64, error) {
	countries, err := b.client.Countries(ctx, countriesPageLimit)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}

	var ids []int64
	var skipped int
	for _, country := range countries.Results {
		if err := ctx.Err(); err != nil {
			return ids, err
		}

		locations, err := b.client.LocationsByCountry(ctx, country.ID.Int(), 1)
		if err != nil || len(locations.Results) == 0 {
			if err != nil && !errors.Is(err, openaq.ErrNotFound) {
				b.logger.Warn().Err(err).Str("country", country.Name).Msg("location lookup failed")
			}
			skipped++
			continue
		}
		ids = append(ids, locations.Results[0].ID.Int())
	}

	b.logger.Info().
		Int("locations", len(ids)).
		Int("countries_without_coverage", skipped).
		Msg("roster built")
	return ids, nil
}

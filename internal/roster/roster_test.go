package roster_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalaq/capitalaq/internal/openaq"
	"github.com/capitalaq/capitalaq/internal/roster"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte("2178, 660 ,7440\n"), 0o644))

	ids, err := roster.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{2178, 660, 7440}, ids)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := roster.Load(filepath.Join(dir, "absent.csv"))
		assert.Error(t, err)
	})

	t.Run("bad entry", func(t *testing.T) {
		path := filepath.Join(dir, "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("2178,abc\n"), 0o644))

		_, err := roster.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "abc")
	})

	t.Run("no ids", func(t *testing.T) {
		path := filepath.Join(dir, "blank.csv")
		require.NoError(t, os.WriteFile(path, []byte(" , \n"), 0o644))

		_, err := roster.Load(path)
		assert.Error(t, err)
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	want := []int64{2178, 660, 7440, 155}

	require.NoError(t, roster.Save(path, want))

	got, err := roster.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// stubBuilderClient maps countries to their first monitored location.
type stubBuilderClient struct {
	countries *openaq.CountriesPayload
	locations map[int64]*openaq.LocationPayload
}

func (s *stubBuilderClient) Countries(_ context.Context, _ int) (*openaq.CountriesPayload, error) {
	return s.countries, nil
}

func (s *stubBuilderClient) LocationsByCountry(_ context.Context, countryID int64, _ int) (*openaq.LocationPayload, error) {
	payload, ok := s.locations[countryID]
	if !ok {
		return nil, openaq.ErrNotFound
	}
	return payload, nil
}

func locationResult(id int64) openaq.LocationResult {
	return openaq.LocationResult{ID: openaq.FlexInt(id)}
}

func TestBuilder_Build(t *testing.T) {
	client := &stubBuilderClient{
		countries: &openaq.CountriesPayload{
			Results: []openaq.CountryResult{
				{ID: openaq.FlexInt(155), Code: "US", Name: "United States"},
				{ID: openaq.FlexInt(13), Code: "AD", Name: "Andorra"},
				{ID: openaq.FlexInt(9), Code: "FR", Name: "France"},
			},
		},
		locations: map[int64]*openaq.LocationPayload{
			155: {Results: []openaq.LocationResult{locationResult(2178)}},
			// Andorra has no monitored locations upstream.
			9: {Results: []openaq.LocationResult{locationResult(660)}},
		},
	}

	ids, err := roster.NewBuilder(client, zerolog.Nop()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2178, 660}, ids)
}

func TestBuilder_Build_EmptyCountryPayload(t *testing.T) {
	client := &stubBuilderClient{
		countries: &openaq.CountriesPayload{
			Results: []openaq.CountryResult{{ID: openaq.FlexInt(13), Name: "Andorra"}},
		},
		locations: map[int64]*openaq.LocationPayload{
			13: {},
		},
	}

	ids, err := roster.NewBuilder(client, zerolog.Nop()).Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	client := &stubBuilderClient{
		countries: &openaq.CountriesPayload{
			Results: []openaq.CountryResult{{ID: openaq.FlexInt(155), Name: "United States"}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := roster.NewBuilder(client, zerolog.Nop()).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

package openaq_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalaq/capitalaq/internal/openaq"
)

const locationBody = `{
	"meta": {"page": 1, "limit": 100, "found": 1},
	"results": [{
		"id": "2178",
		"name": "Del Norte",
		"locality": "Albuquerque",
		"coordinates": {"latitude": 35.1353, "longitude": -106.5847},
		"country": {"id": "155", "code": "US", "name": "United States"},
		"sensors": [
			{"id": "3917", "name": "pm25", "parameter": {"id": 2, "name": "pm25", "units": "µg/m³", "displayName": "PM2.5"}},
			{"id": 3916, "name": "o3", "parameter": {"id": "1", "name": "o3", "units": "ppm", "displayName": null}}
		]
	}]
}`

// waitRecorder captures sleep decisions instead of sleeping.
type waitRecorder struct {
	waits []time.Duration
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func newTestClient(t *testing.T, serverURL string) (*openaq.Client, *waitRecorder) {
	t.Helper()
	rec := &waitRecorder{}
	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		HTTPClient: http.DefaultClient,
		Wait:       rec.wait,
		Logger:     zerolog.Nop(),
	})
	return client, rec
}

func TestClient_Location(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/locations/2178", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(locationBody))
	}))
	defer server.Close()

	client, rec := newTestClient(t, server.URL)

	payload, err := client.Location(context.Background(), 2178)
	require.NoError(t, err)
	require.Len(t, payload.Results, 1)
	assert.Empty(t, rec.waits)

	res := payload.Results[0]
	assert.Equal(t, int64(2178), res.ID.Int())
	assert.Equal(t, int64(155), res.Country.ID.Int())
	require.Len(t, res.Sensors, 2)

	// Numeric-looking strings and native numbers must coerce uniformly.
	assert.Equal(t, int64(3917), res.Sensors[0].ID.Int())
	assert.Equal(t, int64(3916), res.Sensors[1].ID.Int())
	assert.Equal(t, int64(2), res.Sensors[0].Parameter.ID.Int())
	assert.Equal(t, int64(1), res.Sensors[1].Parameter.ID.Int())
}

func TestClient_Location_RateLimitPause(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Used", "58")
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.Header().Set("X-Ratelimit-Reset", "42")
		w.Write([]byte(locationBody))
	}))
	defer server.Close()

	client, rec := newTestClient(t, server.URL)

	_, err := client.Location(context.Background(), 2178)
	require.NoError(t, err)

	// Exactly one pause, for the reported reset-seconds value.
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 42*time.Second, rec.waits[0])
}

func TestClient_Location_NoPauseAboveMargin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "30")
		w.Header().Set("X-Ratelimit-Reset", "42")
		w.Write([]byte(locationBody))
	}))
	defer server.Close()

	client, rec := newTestClient(t, server.URL)

	_, err := client.Location(context.Background(), 2178)
	require.NoError(t, err)
	assert.Empty(t, rec.waits)
}

func TestClient_Location_BoundedRateLimitRetry(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, rec := newTestClient(t, server.URL)

	_, err := client.Location(context.Background(), 2178)
	require.ErrorIs(t, err, openaq.ErrRateLimited)

	// The retry loop must terminate even if the 429 never clears.
	assert.Equal(t, 3, requests)
	assert.Len(t, rec.waits, 3)
}

func TestClient_Location_RetryAfterRateLimit(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(locationBody))
	}))
	defer server.Close()

	client, rec := newTestClient(t, server.URL)

	payload, err := client.Location(context.Background(), 2178)
	require.NoError(t, err)
	assert.Len(t, payload.Results, 1)
	assert.Equal(t, 2, requests)

	// The server-reported reset wins over the local growing delay.
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 7*time.Second, rec.waits[0])
}

func TestClient_Location_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.Location(context.Background(), 999999)
	assert.ErrorIs(t, err, openaq.ErrNotFound)
}

func TestClient_Location_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.Location(context.Background(), 2178)
	assert.ErrorIs(t, err, openaq.ErrNotFound)
}

func TestClient_SensorDaily(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/sensors/3917/measurements/daily", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("datetime_from"))
		assert.Equal(t, "2025-01-03", r.URL.Query().Get("datetime_to"))
		assert.Equal(t, "40", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"meta": {"page": 1, "limit": 40, "found": 2},
			"results": [
				{"value": 10.1, "parameter": {"id": 2, "name": "pm25", "units": "µg/m³"},
				 "period": {"datetimeTo": {"utc": "2025-01-02T00:00:00Z", "local": "2025-01-01T17:00:00-07:00"}},
				 "summary": {"min": 4.0, "max": 18.0, "sd": 3.2}},
				{"value": 12.5, "parameter": {"id": 2, "name": "pm25", "units": "µg/m³"},
				 "period": {"datetimeTo": {"utc": "2025-01-03T00:00:00Z", "local": "2025-01-02T17:00:00-07:00"}},
				 "summary": {"min": 6.1, "max": 20.3, "sd": 2.8}}
			]
		}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	payload, err := client.SensorDaily(context.Background(), 3917, from, to)
	require.NoError(t, err)
	require.Len(t, payload.Results, 2)
	assert.Equal(t, 10.1, payload.Results[0].Value)
	require.NotNil(t, payload.Results[0].Summary.SD)
	assert.Equal(t, 3.2, *payload.Results[0].Summary.SD)
}

func TestClient_SensorDaily_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta": {"page": 1, "limit": 40, "found": 0}, "results": []}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.SensorDaily(context.Background(), 3917, time.Now().AddDate(0, 0, -2), time.Now())
	assert.ErrorIs(t, err, openaq.ErrNoResults)
}

func TestClient_SensorDaily_Truncated(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{name: "found marker", meta: `{"page": 1, "limit": 40, "found": ">40"}`},
		{name: "found exceeds limit", meta: `{"page": 1, "limit": 40, "found": 120}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"meta": ` + tt.meta + `, "results": []}`))
			}))
			defer server.Close()

			client, _ := newTestClient(t, server.URL)

			_, err := client.SensorDaily(context.Background(), 3917, time.Now().AddDate(0, 0, -2), time.Now())
			assert.ErrorIs(t, err, openaq.ErrTruncated)
		})
	}
}

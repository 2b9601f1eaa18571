// Package openaq provides a rate-limit-aware client for the OpenAQ v3 API.
//
// The client returns absence sentinels (ErrNotFound, ErrNoResults) for
// anything that means "no data for this request" so that callers can skip
// a unit of work instead of aborting the run. Rate limiting is handled
// internally: the header triple is inspected on every response and the
// client blocks until the quota window resets when the remaining budget
// drops under a safety margin.
package openaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/capitalaq/capitalaq/internal/openaq/resilience"
)

const (
	// DefaultBaseURL is the base URL for the OpenAQ API.
	DefaultBaseURL = "https://api.openaq.org"

	// DefaultPageLimit is the per-request result limit for measurement
	// fetches. One daily rollup per sensor per day means this comfortably
	// exceeds any sane date window.
	DefaultPageLimit = 40

	defaultLocationAttempts    = 3
	defaultMeasurementAttempts = 5
	defaultRetryDelay          = 2 * time.Second
)

// Sentinel errors returned by the client.
var (
	// ErrNotFound means the upstream has no data for this request
	// (404, malformed payload, network failure). Callers skip the unit
	// of work.
	ErrNotFound = errors.New("openaq: no data for request")

	// ErrNoResults means the request succeeded but matched zero results.
	ErrNoResults = errors.New("openaq: zero results found")

	// ErrTruncated means the upstream reported more results than the
	// page limit; the payload would look complete but is not.
	ErrTruncated = errors.New("openaq: result set truncated")

	// ErrRateLimited means the bounded 429 retry loop was exhausted.
	ErrRateLimited = errors.New("openaq: rate limited after retries")
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WaitFunc blocks for the given duration or until the context is done.
// It exists so tests can observe sleep decisions without sleeping.
type WaitFunc func(ctx context.Context, d time.Duration) error

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent in the X-API-KEY header.
	APIKey string

	// HTTPClient is the HTTP client to use. If nil, a resilient client
	// with retry and circuit breaking is created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 15s).
	Timeout time.Duration

	// PageLimit is the measurement page limit (default: DefaultPageLimit).
	PageLimit int

	// Wait overrides the blocking sleep used for rate-limit pauses.
	Wait WaitFunc

	// Logger for rate-limit and skip events.
	Logger zerolog.Logger
}

// Client is an OpenAQ API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	pageLimit  int
	wait       WaitFunc
	logger     zerolog.Logger
}

// NewClient creates a new OpenAQ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "openaq",
			Timeout: cfg.Timeout,
		})
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}

	wait := cfg.Wait
	if wait == nil {
		wait = sleepWait
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		pageLimit:  pageLimit,
		wait:       wait,
		logger:     cfg.Logger,
	}
}

// sleepWait is the production WaitFunc: a plain blocking sleep, cut short
// by context cancellation.
func sleepWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Location fetches a single location by id, with its embedded sensor list.
func (c *Client) Location(ctx context.Context, id int64) (*LocationPayload, error) {
	path := fmt.Sprintf("/v3/locations/%d", id)

	var payload LocationPayload
	if err := c.getJSON(ctx, path, nil, defaultLocationAttempts, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SensorDaily fetches daily rollup measurements for one sensor over a date
// range. Returns ErrNoResults when the sensor has no data in the range and
// ErrTruncated when the upstream reports more rows than the page limit.
func (c *Client) SensorDaily(ctx context.Context, sensorID int64, from, to time.Time) (*MeasurementPayload, error) {
	path := fmt.Sprintf("/v3/sensors/%d/measurements/daily", sensorID)
	query := url.Values{
		"datetime_from": []string{from.Format("2006-01-02")},
		"datetime_to":   []string{to.Format("2006-01-02")},
		"limit":         []string{strconv.Itoa(c.pageLimit)},
		"page":          []string{"1"},
	}

	var payload MeasurementPayload
	if err := c.getJSON(ctx, path, query, defaultMeasurementAttempts, &payload); err != nil {
		return nil, err
	}

	if payload.Meta.Found.Count == 0 && !payload.Meta.Found.Truncated {
		return nil, ErrNoResults
	}
	if payload.Meta.Found.Truncated || payload.Meta.Found.Count > int64(c.pageLimit) {
		return nil, fmt.Errorf("%w: found %d, limit %d", ErrTruncated, payload.Meta.Found.Count, c.pageLimit)
	}
	return &payload, nil
}

// Countries lists countries served by the API.
func (c *Client) Countries(ctx context.Context, limit int) (*CountriesPayload, error) {
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	var payload CountriesPayload
	if err := c.getJSON(ctx, "/v3/countries", query, defaultLocationAttempts, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// LocationsByCountry lists monitored locations for one country.
func (c *Client) LocationsByCountry(ctx context.Context, countryID int64, limit int) (*LocationPayload, error) {
	query := url.Values{
		"countries_id": []string{strconv.FormatInt(countryID, 10)},
		"limit":        []string{strconv.Itoa(limit)},
	}

	var payload LocationPayload
	if err := c.getJSON(ctx, "/v3/locations", query, defaultLocationAttempts, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// getJSON issues a GET with the bounded 429 retry loop, enforces the
// rate-limit pause, and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, attempts int, out any) error {
	resp, err := c.get(ctx, path, query, attempts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Inspect the rate-limit triple on every response, success or not.
	// Pausing here keeps the next request inside quota.
	if rl := rateLimitFrom(resp.Header); rl.ShouldPause() {
		c.logger.Info().
			Int("remaining", rl.Remaining).
			Int("reset_seconds", rl.Reset).
			Str("path", path).
			Msg("rate limit budget low, pausing until reset")
		if err := c.wait(ctx, time.Duration(rl.Reset)*time.Second); err != nil {
			return err
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("unexpected status, treating as absent")
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("malformed payload, treating as absent")
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

// get sends the request, retrying the same request on 429 with a growing
// delay. The loop is explicitly bounded: if the condition is not actually
// a rate limit it terminates with ErrRateLimited instead of recursing.
func (c *Client) get(ctx context.Context, path string, query url.Values, attempts int) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	delay := defaultRetryDelay
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-KEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// 429: back off and retry the same request. Prefer the
		// server-reported reset over the local growing delay.
		pause := delay
		if rl := rateLimitFrom(resp.Header); rl.Present && rl.Reset > 0 {
			pause = time.Duration(rl.Reset) * time.Second
		}
		resp.Body.Close()

		c.logger.Info().
			Str("path", path).
			Int("attempt", attempt+1).
			Dur("pause", pause).
			Msg("rate limit exceeded, backing off")

		if err := c.wait(ctx, pause); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, ErrRateLimited
}

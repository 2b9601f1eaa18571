// Package config loads runtime configuration for the ETL and reporting
// binaries from environment variables, with optional .env support.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultRosterPath     = "locations.csv"
	defaultRequestTimeout = 15 * time.Second
	defaultOverlapDays    = 3
	defaultReportAddr     = ":8080"
	dateLayout            = "2006-01-02"
)

// Config holds runtime configuration shared by the binaries.
type Config struct {
	// APIKey authenticates against the OpenAQ API.
	APIKey string

	// RosterPath is the one-row CSV of location ids.
	RosterPath string

	// DateFrom and DateTo override the measurement window. Zero values
	// defer to the pipeline's defaults.
	DateFrom time.Time
	DateTo   time.Time

	// OverlapDays extends the window behind the latest stored date.
	OverlapDays int

	// SkipKnownSensors enables the reference-table short-circuit.
	SkipKnownSensors bool

	// Schedule is an optional cron expression; when set, cmd/etl keeps
	// running and executes on the schedule instead of once.
	Schedule string

	// RequestTimeout bounds individual upstream HTTP calls.
	RequestTimeout time.Duration

	// ReportAddr is the listen address for the reporting API.
	ReportAddr string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		RosterPath:       getEnvOrDefault("ROSTER_PATH", defaultRosterPath),
		OverlapDays:      defaultOverlapDays,
		RequestTimeout:   defaultRequestTimeout,
		ReportAddr:       getEnvOrDefault("REPORT_ADDR", defaultReportAddr),
		Schedule:         strings.TrimSpace(os.Getenv("ETL_SCHEDULE")),
		SkipKnownSensors: os.Getenv("SKIP_KNOWN_SENSORS") != "false",
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAQ_API_KEY"))
	if cfg.APIKey == "" {
		return cfg, errors.New("OPENAQ_API_KEY is required")
	}

	if v := strings.TrimSpace(os.Getenv("ETL_OVERLAP_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid ETL_OVERLAP_DAYS %q", v)
		}
		cfg.OverlapDays = n
	}

	if v := strings.TrimSpace(os.Getenv("ETL_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ETL_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	var err error
	if cfg.DateFrom, err = parseDate("ETL_DATE_FROM"); err != nil {
		return cfg, err
	}
	if cfg.DateTo, err = parseDate("ETL_DATE_TO"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseDate(key string) (time.Time, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

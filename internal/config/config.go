package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/bundlecast/internal/common"
)

type AppConfig struct {
	Port string

	// Store selection: postgres, sqlite or memory.
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// RedisURL enables the shared weather cache; empty uses an in-process cache.
	RedisURL        string
	WeatherCacheTTL time.Duration

	// Outbound calls.
	HTTPTimeout       time.Duration
	LookupTimeout     time.Duration
	GeocoderAPIKey    string
	GeocoderCountry   string
	WeatherArchiveURL string
	WeatherTimezone   string
	OpenWeatherAPIKey string
	WeatherAPIKey     string

	// Pipeline windows.
	AggregateLookbackDays int
	EnrichLookbackDays    int
	EnrichMinAgeDays      int
	ConfidenceWeeks       int

	// Scheduling, in UTC "HH:MM".
	NightlyAt        string
	ForecastAt       string
	VendorIDs        []int64
	VendorRunTimeout time.Duration

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", "memory"))
	switch cfg.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want postgres, sqlite or memory", cfg.StoreDriver)
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/bundlecast.db")

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.WeatherCacheTTL, err = getenvDuration("WEATHER_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.LookupTimeout, err = getenvDuration("LOOKUP_TIMEOUT", "20s"); err != nil {
		return nil, err
	}

	cfg.GeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	cfg.GeocoderCountry = getenvDefault("GEOCODER_COUNTRY", "GB")
	cfg.WeatherArchiveURL = getenvDefault("WEATHER_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive")
	cfg.WeatherTimezone = getenvDefault("WEATHER_TIMEZONE", "Europe/London")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")

	if cfg.AggregateLookbackDays, err = getenvInt("AGGREGATE_LOOKBACK_DAYS", 30, 1); err != nil {
		return nil, err
	}
	if cfg.EnrichLookbackDays, err = getenvInt("ENRICH_LOOKBACK_DAYS", 60, 1); err != nil {
		return nil, err
	}
	// Zero enriches dates up to and including today.
	if cfg.EnrichMinAgeDays, err = getenvInt("ENRICH_MIN_AGE_DAYS", 5, 0); err != nil {
		return nil, err
	}
	if cfg.ConfidenceWeeks, err = getenvInt("CONFIDENCE_WEEKS", 4, 1); err != nil {
		return nil, err
	}
	if cfg.EnrichMinAgeDays > cfg.EnrichLookbackDays {
		return nil, fmt.Errorf("ENRICH_MIN_AGE_DAYS (%d) exceeds ENRICH_LOOKBACK_DAYS (%d)", cfg.EnrichMinAgeDays, cfg.EnrichLookbackDays)
	}

	if cfg.NightlyAt, err = getenvClock("NIGHTLY_AT", "02:00"); err != nil {
		return nil, err
	}
	if cfg.ForecastAt, err = getenvClock("FORECAST_AT", "03:00"); err != nil {
		return nil, err
	}
	if cfg.VendorIDs, err = common.ParseIDs(os.Getenv("VENDOR_IDS")); err != nil {
		return nil, fmt.Errorf("invalid VENDOR_IDS: %w", err)
	}
	if cfg.VendorRunTimeout, err = getenvDuration("VENDOR_RUN_TIMEOUT", "5m"); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFile = os.Getenv("LOG_FILE")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def, min int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < min {
		return 0, fmt.Errorf("invalid %s: %d is below %d", key, n, min)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvClock(key, def string) (string, error) {
	v := getenvDefault(key, def)
	if _, err := time.Parse("15:04", v); err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

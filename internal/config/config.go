// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cityforge/enviro-intel/internal/aggregate"
)

// Config is the full service configuration. Every field has a workable
// default except the Meteomatics credentials; without them the live weather
// feed is disabled and the service runs on satellite data alone.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	City      string  `envconfig:"CITY" default:"Mumbai, India" validate:"required"`
	Latitude  float64 `envconfig:"CITY_LAT" default:"19.0760" validate:"gte=-90,lte=90"`
	Longitude float64 `envconfig:"CITY_LON" default:"72.8777" validate:"gte=-180,lte=180"`

	ArtifactDir   string        `envconfig:"MODEL_ARTIFACT_DIR" default:"data/artifacts"`
	ArchivePath   string        `envconfig:"SATELLITE_ARCHIVE" default:"data/archive/daily_composites.jsonl"`
	HistoryDays   int           `envconfig:"HISTORY_DAYS" default:"45" validate:"gte=44,lte=365"`
	RecencyWindow time.Duration `envconfig:"RECENCY_WINDOW" default:"6h"`

	WeatherMaxAge   time.Duration `envconfig:"WEATHER_MAX_AGE" default:"5m" validate:"gt=0"`
	SatelliteMaxAge time.Duration `envconfig:"SATELLITE_MAX_AGE" default:"1h" validate:"gt=0"`
	ComputeTimeout  time.Duration `envconfig:"COMPUTE_TIMEOUT" default:"30s" validate:"gt=0"`

	MeteomaticsUsername string        `envconfig:"METEOMATICS_USERNAME"`
	MeteomaticsPassword string        `envconfig:"METEOMATICS_PASSWORD"`
	MeteomaticsBaseURL  string        `envconfig:"METEOMATICS_BASE_URL" default:"https://api.meteomatics.com"`
	MeteomaticsTimeout  time.Duration `envconfig:"METEOMATICS_TIMEOUT" default:"10s"`

	ResilienceAirWeight   float64 `envconfig:"RESILIENCE_WEIGHT_AIR" default:"0.30" validate:"gte=0,lte=1"`
	ResilienceHeatWeight  float64 `envconfig:"RESILIENCE_WEIGHT_HEAT" default:"0.25" validate:"gte=0,lte=1"`
	ResilienceWaterWeight float64 `envconfig:"RESILIENCE_WEIGHT_WATER" default:"0.25" validate:"gte=0,lte=1"`
	ResilienceUrbanWeight float64 `envconfig:"RESILIENCE_WEIGHT_URBAN" default:"0.20" validate:"gte=0,lte=1"`

	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	KafkaSnapshotTopic string   `envconfig:"KAFKA_SNAPSHOT_TOPIC" default:"environment-snapshots"`
}

// weightTolerance bounds floating-point drift when checking that the
// resilience weights sum to 1.0.
const weightTolerance = 1e-9

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if sum := cfg.ResilienceWeights().Sum(); math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("resilience weights must sum to 1.0, got %g", sum)
	}

	if (cfg.MeteomaticsUsername == "") != (cfg.MeteomaticsPassword == "") {
		return nil, fmt.Errorf("METEOMATICS_USERNAME and METEOMATICS_PASSWORD must be set together")
	}

	return &cfg, nil
}

// WeatherEnabled reports whether live weather credentials are configured.
func (c *Config) WeatherEnabled() bool {
	return c.MeteomaticsUsername != "" && c.MeteomaticsPassword != ""
}

// SnapshotsEnabled reports whether composite snapshots should be published to
// Kafka.
func (c *Config) SnapshotsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ResilienceWeights assembles the configured resilience weighting.
func (c *Config) ResilienceWeights() aggregate.Weights {
	return aggregate.Weights{
		Air:   c.ResilienceAirWeight,
		Heat:  c.ResilienceHeatWeight,
		Water: c.ResilienceWaterWeight,
		Urban: c.ResilienceUrbanWeight,
	}
}

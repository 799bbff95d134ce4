// Package config resolves the tracker's runtime configuration from a
// host-supplied settings object, the process environment and the
// development/production defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Environment distinguishes development-like hosts from production ones
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

const (
	ProductionBaseURL  = "https://analytics.jscloud.in/api/v1"
	DevelopmentBaseURL = "http://localhost:3000/api/v1"

	// DevelopmentProjectID is used on development hosts when no project
	// id is configured.
	DevelopmentProjectID = "670cfd5967d53bf2459c535e"

	DefaultBatchSize     = 10
	DefaultBatchInterval = 10 * time.Second

	ProductionActivityTimeout  = 15 * time.Minute
	DevelopmentActivityTimeout = 5 * time.Minute
)

// ErrMissingProjectID is the one fatal initialization error
var ErrMissingProjectID = errors.New("no project-id specified, please specify the project id in the config")

// Settings mirrors the host-supplied settings object. Durations are in
// milliseconds and zero values mean "use the default".
type Settings struct {
	APIBaseURL              string `json:"apiBaseUrl"`
	ProjectID               string `json:"projectId"`
	ActivityTrackingTimeout int64  `json:"activityTrackingTimeout"`
	EventBatchSize          int    `json:"eventBatchSize"`
	EventBatchInterval      int64  `json:"eventBatchInterval"`
}

// Config is the resolved configuration handed to the tracker
type Config struct {
	Environment     Environment
	APIBaseURL      string
	ProjectID       string
	ActivityTimeout time.Duration
	BatchSize       int
	BatchInterval   time.Duration
}

// IsDevelopment reports whether delivery errors should be logged
func (c Config) IsDevelopment() bool {
	return c.Environment == Development
}

// DetectEnvironment treats localhost and 127.0.0.1 hosts as development
func DetectEnvironment(hostname string) Environment {
	if strings.Contains(hostname, "localhost") || strings.Contains(hostname, "127.0.0.1") {
		return Development
	}
	return Production
}

// Resolve applies the defaults for env to settings and validates the
// result. A missing project id yields ErrMissingProjectID.
func Resolve(settings Settings, env Environment) (Config, error) {
	cfg := Config{
		Environment:     env,
		APIBaseURL:      settings.APIBaseURL,
		ProjectID:       settings.ProjectID,
		ActivityTimeout: time.Duration(settings.ActivityTrackingTimeout) * time.Millisecond,
		BatchSize:       settings.EventBatchSize,
		BatchInterval:   time.Duration(settings.EventBatchInterval) * time.Millisecond,
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = ProductionBaseURL
		if env == Development {
			cfg.APIBaseURL = DevelopmentBaseURL
		}
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.ProjectID == "" && env == Development {
		cfg.ProjectID = DevelopmentProjectID
	}

	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = ProductionActivityTimeout
		if env == Development {
			cfg.ActivityTimeout = DevelopmentActivityTimeout
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a resolved Config
func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return ErrMissingProjectID
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIBaseURL, validation.Required, is.URL),
		validation.Field(&c.ActivityTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.BatchSize, validation.Min(1)),
		validation.Field(&c.BatchInterval, validation.Min(time.Millisecond)),
	)
}

// LoadSettingsFile reads a settings object from a JSON file. Comments and
// trailing commas are allowed.
func LoadSettingsFile(path string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}

// Environment variables that override the settings object
const (
	EnvAPIBaseURL      = "PAGETRACK_API_BASE_URL"
	EnvProjectID       = "PAGETRACK_PROJECT_ID"
	EnvActivityTimeout = "PAGETRACK_ACTIVITY_TIMEOUT_MS"
	EnvBatchSize       = "PAGETRACK_BATCH_SIZE"
	EnvBatchInterval   = "PAGETRACK_BATCH_INTERVAL_MS"
)

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays PAGETRACK_* environment variables onto settings
func ApplyEnv(settings Settings, getenv func(string) string) (Settings, error) {
	if v := getenv(EnvAPIBaseURL); v != "" {
		settings.APIBaseURL = v
	}
	if v := getenv(EnvProjectID); v != "" {
		settings.ProjectID = v
	}
	if v := getenv(EnvActivityTimeout); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return settings, fmt.Errorf("invalid %s: %w", EnvActivityTimeout, err)
		}
		settings.ActivityTrackingTimeout = ms
	}
	if v := getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return settings, fmt.Errorf("invalid %s: %w", EnvBatchSize, err)
		}
		settings.EventBatchSize = n
	}
	if v := getenv(EnvBatchInterval); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return settings, fmt.Errorf("invalid %s: %w", EnvBatchInterval, err)
		}
		settings.EventBatchInterval = ms
	}
	return settings, nil
}

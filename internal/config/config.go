// Package config loads the matching engine configuration from the
// environment, after reading optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Prefix is prepended to every variable name. Fields whose tag names a
// well-known variable (ANTHROPIC_API_KEY, DATABASE_URL, REDIS_URL) fall back
// to the unprefixed name.
const Prefix = "MATCHING"

// Lock backends
const (
	LockAuto  = "auto"
	LockRedis = "redis"
	LockFile  = "file"
	LockLocal = "local"
)

// Config is the process configuration
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	// StoragePath is the SQLite file; empty means discover .matching/*.db
	StoragePath string `envconfig:"STORAGE_PATH"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	LockBackend string        `envconfig:"LOCK_BACKEND" default:"auto"`
	LockDir     string        `envconfig:"LOCK_DIR" default:".matching/locks"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30m"`
	RedisURL    string        `envconfig:"REDIS_URL"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// ScanSecret authenticates scheduler calls to the trigger endpoint
	ScanSecret string `envconfig:"SCAN_SECRET"`
	// AdminToken authenticates operator calls
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	AnthropicAPIKey      string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL     string        `envconfig:"ANTHROPIC_BASE_URL"`
	AIModel              string        `envconfig:"AI_MODEL" default:"claude-sonnet-4-5-20250929"`
	AIMergeTimeout       time.Duration `envconfig:"AI_MERGE_TIMEOUT" default:"30s"`
	AIMaxConcurrentCalls int           `envconfig:"AI_MAX_CONCURRENT_CALLS" default:"3"`
	AIRequestsPerMinute  int           `envconfig:"AI_REQUESTS_PER_MINUTE" default:"0"`

	SchedulerEnabled bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	SchedulerSpec    string `envconfig:"SCHEDULER_SPEC" default:"@every 15m"`

	// MinScore and MinOrganizations override the scan thresholds when positive
	MinScore         int `envconfig:"MIN_SCORE" default:"0"`
	MinOrganizations int `envconfig:"MIN_ORGANIZATIONS" default:"0"`

	// LibraryOrgID owns imported library records; scans skip it
	LibraryOrgID       string `envconfig:"LIBRARY_ORG_ID" default:"global-library"`
	LibraryOrgName     string `envconfig:"LIBRARY_ORG_NAME" default:"Global Library"`
	AutoImportLimit    int    `envconfig:"AUTO_IMPORT_LIMIT" default:"100"`
	AutoImportMinScore int    `envconfig:"AUTO_IMPORT_MIN_SCORE" default:"80"`

	Events EventRetentionConfig `envconfig:"EVENT"`
}

// Load reads the given .env files (".env" when none are given), then the
// environment. Variables already set in the environment win over files.
// Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel))); err != nil {
		return fmt.Errorf("MATCHING_LOG_LEVEL %q is invalid", c.LogLevel)
	}

	switch c.StorageDriver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("MATCHING_STORAGE_DRIVER must be 'sqlite' or 'postgres' (got %q)", c.StorageDriver)
	}

	switch c.LockBackend {
	case LockAuto, LockLocal, LockFile:
	case LockRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("MATCHING_LOCK_BACKEND must be one of auto, redis, file, local (got %q)", c.LockBackend)
	}
	if c.LockTTL < time.Minute {
		return fmt.Errorf("MATCHING_LOCK_TTL too small (got %v, min 1 minute)", c.LockTTL)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("MATCHING_HTTP_PORT must be between 1 and 65535 (got %d)", c.HTTPPort)
	}

	if c.AIMergeTimeout <= 0 {
		return fmt.Errorf("MATCHING_AI_MERGE_TIMEOUT must be positive (got %v)", c.AIMergeTimeout)
	}
	if c.AIMaxConcurrentCalls < 0 {
		return fmt.Errorf("MATCHING_AI_MAX_CONCURRENT_CALLS cannot be negative (got %d)", c.AIMaxConcurrentCalls)
	}
	if c.AIRequestsPerMinute < 0 {
		return fmt.Errorf("MATCHING_AI_REQUESTS_PER_MINUTE cannot be negative (got %d)", c.AIRequestsPerMinute)
	}

	if c.SchedulerEnabled {
		if _, err := cron.ParseStandard(c.SchedulerSpec); err != nil {
			return fmt.Errorf("invalid MATCHING_SCHEDULER_SPEC %q: %w", c.SchedulerSpec, err)
		}
	}

	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("MATCHING_MIN_SCORE must be between 0 and 100 (got %d)", c.MinScore)
	}
	if c.MinOrganizations < 0 {
		return fmt.Errorf("MATCHING_MIN_ORGANIZATIONS cannot be negative (got %d)", c.MinOrganizations)
	}

	if strings.TrimSpace(c.LibraryOrgID) == "" {
		return fmt.Errorf("MATCHING_LIBRARY_ORG_ID is required")
	}
	if c.AutoImportLimit < 1 || c.AutoImportLimit > 1000 {
		return fmt.Errorf("MATCHING_AUTO_IMPORT_LIMIT must be between 1 and 1000 (got %d)", c.AutoImportLimit)
	}
	if c.AutoImportMinScore < 1 || c.AutoImportMinScore > 100 {
		return fmt.Errorf("MATCHING_AUTO_IMPORT_MIN_SCORE must be between 1 and 100 (got %d)", c.AutoImportMinScore)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("event retention: %w", err)
	}
	return nil
}

// IsLocal reports whether the process runs in the local environment
func (c *Config) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "local")
}

// HTTPAddr returns the listen address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// EffectiveLockBackend resolves LockAuto: redis when REDIS_URL is set,
// local otherwise.
func (c *Config) EffectiveLockBackend() string {
	if c.LockBackend != LockAuto {
		return c.LockBackend
	}
	if strings.TrimSpace(c.RedisURL) != "" {
		return LockRedis
	}
	return LockLocal
}

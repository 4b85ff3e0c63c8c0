package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// EventRetentionConfig holds configuration for pruning stored events.
// Fields are read from MATCHING_EVENT_* variables.
type EventRetentionConfig struct {
	// RetentionDays is how long events are kept
	// Default: 30, Range: 1-365
	RetentionDays int `envconfig:"RETENTION_DAYS" default:"30"`

	// CleanupBatchSize is the number of events deleted per statement
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `envconfig:"CLEANUP_BATCH_SIZE" default:"1000"`

	// CleanupEnabled controls whether the scheduler prunes events
	// Default: true
	CleanupEnabled bool `envconfig:"CLEANUP_ENABLED" default:"true"`

	// CleanupSchedule is the cron spec of the pruning job
	// Default: "@daily"
	CleanupSchedule string `envconfig:"CLEANUP_SCHEDULE" default:"@daily"`
}

// DefaultEventRetentionConfig returns the default event retention configuration
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:    30,
		CleanupBatchSize: 1000,
		CleanupEnabled:   true,
		CleanupSchedule:  "@daily",
	}
}

// Validate checks if the configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)", c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)", c.CleanupBatchSize)
	}
	if c.CleanupEnabled {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup_schedule %q: %w", c.CleanupSchedule, err)
		}
	}
	return nil
}

// String returns a human-readable representation of the config
func (c EventRetentionConfig) String() string {
	return fmt.Sprintf(
		"EventRetentionConfig{RetentionDays: %d, BatchSize: %d, Enabled: %t, Schedule: %s}",
		c.RetentionDays, c.CleanupBatchSize, c.CleanupEnabled, c.CleanupSchedule,
	)
}

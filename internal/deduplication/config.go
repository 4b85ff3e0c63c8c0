package deduplication

import (
	"fmt"
	"time"

	"github.com/prlibrary/matching/internal/types"
)

// Threshold defaults. Development mode relaxes both so small fixture
// datasets still produce candidates.
const (
	MinScore            = 60
	MinOrganizations    = 2
	DevMinScore         = 20
	DevMinOrganizations = 1
)

// DefaultLockKey is the scan lock shared by every process
const DefaultLockKey = "matching:scan"

// Options select how one scan runs
type Options struct {
	// DevelopmentMode forces DevMinScore/DevMinOrganizations; overrides are
	// ignored in that mode
	DevelopmentMode bool

	// MinScore and MinOrganizations override the production defaults when
	// positive
	MinScore         int
	MinOrganizations int

	// TriggeredBy is recorded on the job; empty means manual
	TriggeredBy types.TriggerMode

	// OrganizationIDs restricts the scan to these organizations when non-empty
	OrganizationIDs []string
}

// Thresholds resolves the effective thresholds for opts
func (o Options) Thresholds() types.Thresholds {
	if o.DevelopmentMode {
		return types.Thresholds{MinScore: DevMinScore, MinOrganizations: DevMinOrganizations}
	}
	th := types.Thresholds{MinScore: MinScore, MinOrganizations: MinOrganizations}
	if o.MinScore > 0 {
		th.MinScore = o.MinScore
	}
	if o.MinOrganizations > 0 {
		th.MinOrganizations = o.MinOrganizations
	}
	return th
}

// Config holds configuration for the scanner
type Config struct {
	// LockKey names the scan lock
	// Default: "matching:scan"
	LockKey string

	// LockTTL bounds how long a crashed scan can block the next one
	// Default: 30 minutes
	LockTTL time.Duration

	// MaxUpdateAttempts is how often a candidate write is retried after
	// losing an optimistic version check
	// Default: 3
	MaxUpdateAttempts int

	// FinalizeTimeout bounds writing the job record after the scan, which
	// happens even when the scan's context was cancelled
	// Default: 10 seconds
	FinalizeTimeout time.Duration
}

// DefaultConfig returns the default scanner configuration
func DefaultConfig() Config {
	return Config{
		LockKey:           DefaultLockKey,
		LockTTL:           30 * time.Minute,
		MaxUpdateAttempts: 3,
		FinalizeTimeout:   10 * time.Second,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.LockKey == "" {
		return fmt.Errorf("lock_key is required")
	}
	if c.LockTTL < time.Minute {
		return fmt.Errorf("lock_ttl too small (got %v, min 1 minute)", c.LockTTL)
	}
	if c.LockTTL > 24*time.Hour {
		return fmt.Errorf("lock_ttl too large (got %v, max 24 hours)", c.LockTTL)
	}
	if c.MaxUpdateAttempts < 1 {
		return fmt.Errorf("max_update_attempts must be at least 1 (got %d)", c.MaxUpdateAttempts)
	}
	if c.MaxUpdateAttempts > 10 {
		return fmt.Errorf("max_update_attempts too large (got %d, max 10)", c.MaxUpdateAttempts)
	}
	if c.FinalizeTimeout <= 0 {
		return fmt.Errorf("finalize_timeout must be positive (got %v)", c.FinalizeTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{LockKey: %s, LockTTL: %v, MaxUpdateAttempts: %d, FinalizeTimeout: %v}",
		c.LockKey, c.LockTTL, c.MaxUpdateAttempts, c.FinalizeTimeout)
}

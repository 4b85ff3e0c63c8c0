package types

import (
	"fmt"
	"time"
)

// GlobalSettings is the singleton operator configuration of the engine.
type GlobalSettings struct {
	UseAIMerge bool           `json:"useAiMerge"`
	AutoScan   AutoScanConfig `json:"autoScan"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	UpdatedBy  string         `json:"updatedBy,omitempty"`
}

// AutoScanConfig controls unattended scans
type AutoScanConfig struct {
	Enabled  bool         `json:"enabled"`
	Interval ScanInterval `json:"interval"`
	LastRun  *time.Time   `json:"lastRun,omitempty"`
	NextRun  *time.Time   `json:"nextRun,omitempty"`
}

// Validate checks if the settings have valid field values
func (s *GlobalSettings) Validate() error {
	if !s.AutoScan.Interval.IsValid() {
		return fmt.Errorf("invalid auto-scan interval: %s", s.AutoScan.Interval)
	}
	if s.AutoScan.Enabled && s.AutoScan.Interval == IntervalDisabled {
		return fmt.Errorf("auto-scan cannot be enabled with interval %s", IntervalDisabled)
	}
	return nil
}

// ScanInterval is the cadence of unattended scans
type ScanInterval string

const (
	IntervalDisabled ScanInterval = "disabled"
	IntervalDaily    ScanInterval = "daily"
	IntervalWeekly   ScanInterval = "weekly"
	IntervalMonthly  ScanInterval = "monthly"
)

// IsValid checks if the interval value is valid
func (i ScanInterval) IsValid() bool {
	switch i {
	case IntervalDisabled, IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

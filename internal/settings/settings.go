// Package settings holds the operator-configurable matching settings and
// computes when the next unattended scan is due.
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

// DefaultLoadTimeout bounds a settings read before defaults are used.
const DefaultLoadTimeout = 5 * time.Second

// scheduledHour is the local hour unattended scans run at.
const scheduledHour = 2

// Store persists the settings singleton. GetSettings returns (nil, nil) when
// no settings were saved yet.
type Store interface {
	GetSettings(ctx context.Context) (*types.GlobalSettings, error)
	SaveSettings(ctx context.Context, s *types.GlobalSettings) error
}

// Defaults returns the settings used when none are stored.
func Defaults() types.GlobalSettings {
	return types.GlobalSettings{
		UseAIMerge: true,
		AutoScan: types.AutoScanConfig{
			Enabled:  false,
			Interval: types.IntervalDisabled,
		},
	}
}

// CalculateNextRun returns when the next unattended scan is due for interval,
// at 02:00 in now's location, or nil when scans are disabled.
func CalculateNextRun(interval types.ScanInterval, now time.Time) *time.Time {
	var day time.Time
	switch interval {
	case types.IntervalDaily:
		day = now.AddDate(0, 0, 1)
	case types.IntervalWeekly:
		day = now.AddDate(0, 0, 7)
	case types.IntervalMonthly:
		day = time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	default:
		return nil
	}
	next := time.Date(day.Year(), day.Month(), day.Day(), scheduledHour, 0, 0, 0, now.Location())
	return &next
}

// Update is a partial settings change. Nil fields are left as they are.
type Update struct {
	UseAIMerge *bool               `json:"useAiMerge,omitempty"`
	Interval   *types.ScanInterval `json:"interval,omitempty"`
}

// Service reads and writes the settings singleton. It is constructed once
// and passed to the components that need it.
type Service struct {
	store       Store
	emitter     events.Emitter
	logger      zerolog.Logger
	now         func() time.Time
	loadTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLoadTimeout bounds reads in Get.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) { s.loadTimeout = d }
}

// NewService creates a settings service backed by store.
func NewService(store Store, emitter events.Emitter, logger zerolog.Logger, opts ...Option) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	s := &Service{
		store:       store,
		emitter:     emitter,
		logger:      logger.With().Str("component", "settings").Logger(),
		now:         time.Now,
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current settings. Missing settings are created with
// defaults; a failing or slow store yields defaults without blocking.
func (s *Service) Get(ctx context.Context) types.GlobalSettings {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load settings, using defaults")
		ev := events.NewSimpleEvent(events.EventTypeSettingsFallback, events.SeverityWarning,
			fmt.Sprintf("settings unavailable: %v", err))
		s.emitter.Emit(ctx, ev)
		return Defaults()
	}
	if stored != nil {
		return *stored
	}

	defaults := Defaults()
	defaults.UpdatedAt = s.now()
	defaults.UpdatedBy = "system"
	if err := s.store.SaveSettings(ctx, &defaults); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist default settings")
	}
	return defaults
}

// Update applies a partial change on behalf of actor. The next run is
// recomputed from the resulting interval.
func (s *Service) Update(ctx context.Context, u Update, actor string) (*types.GlobalSettings, error) {
	current, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if current == nil {
		d := Defaults()
		current = &d
	}
	next := *current

	if u.UseAIMerge != nil {
		next.UseAIMerge = *u.UseAIMerge
	}
	if u.Interval != nil {
		if !u.Interval.IsValid() {
			return nil, fmt.Errorf("invalid auto-scan interval: %s", *u.Interval)
		}
		next.AutoScan.Interval = *u.Interval
	}
	now := s.now()
	next.AutoScan.Enabled = next.AutoScan.Interval != types.IntervalDisabled
	next.AutoScan.NextRun = CalculateNextRun(next.AutoScan.Interval, now)
	next.UpdatedAt = now
	next.UpdatedBy = actor

	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SaveSettings(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.logger.Info().Str("actor", actor).Bool("use_ai_merge", next.UseAIMerge).
		Str("interval", string(next.AutoScan.Interval)).Msg("settings updated")
	ev := events.NewSimpleEvent(events.EventTypeSettingsUpdated, events.SeverityInfo,
		fmt.Sprintf("settings updated by %s", actor))
	ev.Data = map[string]interface{}{
		"useAiMerge": next.UseAIMerge,
		"interval":   string(next.AutoScan.Interval),
		"updatedBy":  actor,
	}
	s.emitter.Emit(ctx, ev)
	return &next, nil
}

// RecordRun stores that a scheduled scan ran at ranAt and schedules the next
// one from there.
func (s *Service) RecordRun(ctx context.Context, ranAt time.Time) error {
	current, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if current == nil {
		d := Defaults()
		current = &d
	}
	current.AutoScan.LastRun = &ranAt
	current.AutoScan.NextRun = CalculateNextRun(current.AutoScan.Interval, ranAt)
	if err := s.store.SaveSettings(ctx, current); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Due reports whether an unattended scan should run at now.
func Due(st types.GlobalSettings, now time.Time) bool {
	if !st.AutoScan.Enabled || st.AutoScan.NextRun == nil {
		return false
	}
	return !now.Before(*st.AutoScan.NextRun)
}

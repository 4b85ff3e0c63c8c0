// Package scheduler runs unattended scans and event pruning on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/config"
	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/settings"
	"github.com/prlibrary/matching/internal/types"
)

// DefaultSpec is how often the scheduler checks whether a scan is due
const DefaultSpec = "@every 15m"

// Scanner runs one scan
type Scanner interface {
	Scan(ctx context.Context, opts deduplication.Options) (*types.ScanJob, error)
}

// SettingsService reads the auto-scan settings and records runs
type SettingsService interface {
	Get(ctx context.Context) types.GlobalSettings
	RecordRun(ctx context.Context, ranAt time.Time) error
}

// EventPruner deletes old events
type EventPruner interface {
	CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error)
}

// Config holds scheduler configuration
type Config struct {
	// Spec is the cron spec of the due check
	// Default: "@every 15m"
	Spec string

	// Retention configures the pruning job; disabled when CleanupEnabled is false
	Retention config.EventRetentionConfig

	// ScanOptions are passed to every scheduled scan. TriggeredBy is forced
	// to scheduled.
	ScanOptions deduplication.Options
}

// Scheduler owns a cron instance with the due check and the pruning job
type Scheduler struct {
	cron     *cron.Cron
	scanner  Scanner
	settings SettingsService
	pruner   EventPruner
	emitter  events.Emitter
	logger   zerolog.Logger
	cfg      Config
	now      func() time.Time

	// ticks do not overlap within one process
	mu sync.Mutex
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. pruner may be nil when retention is disabled.
func New(scanner Scanner, st SettingsService, pruner EventPruner, emitter events.Emitter, logger zerolog.Logger, cfg Config, opts ...Option) (*Scheduler, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if st == nil {
		return nil, fmt.Errorf("settings service is required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Retention.CleanupEnabled && pruner == nil {
		return nil, fmt.Errorf("event pruner is required when cleanup is enabled")
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	cfg.ScanOptions.TriggeredBy = types.TriggerScheduled

	logger = logger.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLogger{logger}), cron.WithChain(cron.Recover(cronLogger{logger}))),
		scanner:  scanner,
		settings: st,
		pruner:   pruner,
		emitter:  emitter,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the jobs and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled scan failed")
		}
	}); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.cfg.Spec, err)
	}

	if s.cfg.Retention.CleanupEnabled {
		if _, err := s.cron.AddFunc(s.cfg.Retention.CleanupSchedule, func() {
			if _, err := s.Prune(ctx); err != nil {
				s.logger.Error().Err(err).Msg("event pruning failed")
			}
		}); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", s.cfg.Retention.CleanupSchedule, err)
		}
	}

	s.cron.Start()
	s.logger.Info().Str("spec", s.cfg.Spec).Bool("pruning", s.cfg.Retention.CleanupEnabled).Msg("scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Tick runs a scheduled scan when one is due. It reports whether a scan
// ran. A scan already in progress elsewhere is not an error.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.settings.Get(ctx)
	if !settings.Due(st, now) {
		s.logger.Debug().Bool("enabled", st.AutoScan.Enabled).Msg("no scan due")
		return false, nil
	}

	job, err := s.scanner.Scan(ctx, s.cfg.ScanOptions)
	if errors.Is(err, deduplication.ErrScanInProgress) {
		s.logger.Info().Msg("scan already in progress, skipping tick")
		return false, nil
	}

	// a failed scan still consumes its slot so it is not retried every tick
	if rerr := s.settings.RecordRun(ctx, now); rerr != nil {
		s.logger.Error().Err(rerr).Msg("failed to record scheduled run")
	}
	if err != nil {
		return true, err
	}
	s.logger.Info().Str("job_id", job.ID).Int("created", job.Stats.CandidatesCreated).
		Int("updated", job.Stats.CandidatesUpdated).Msg("scheduled scan completed")
	return true, nil
}

// Prune deletes events older than the retention period
func (s *Scheduler) Prune(ctx context.Context) (int, error) {
	if s.pruner == nil {
		return 0, nil
	}
	r := s.cfg.Retention
	deleted, err := s.pruner.CleanupEventsByAge(ctx, r.RetentionDays, r.CleanupBatchSize)
	if err != nil {
		return deleted, fmt.Errorf("failed to prune events: %w", err)
	}
	if deleted > 0 {
		ev := events.NewSimpleEvent(events.EventTypeEventsPruned, events.SeverityInfo,
			fmt.Sprintf("Pruned %d events older than %d days", deleted, r.RetentionDays))
		ev.Data = map[string]interface{}{"deleted": deleted, "retentionDays": r.RetentionDays}
		s.emitter.Emit(ctx, ev)
	}
	s.logger.Info().Int("deleted", deleted).Int("retention_days", r.RetentionDays).Msg("events pruned")
	return deleted, nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

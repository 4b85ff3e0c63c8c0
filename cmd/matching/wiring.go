package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prlibrary/matching/internal/ai"
	"github.com/prlibrary/matching/internal/config"
	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/lock"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/settings"
)

// engine holds the components shared by the commands that scan or review
type engine struct {
	emitter  events.Emitter
	provider *ai.Provider
	settings *settings.Service
	scanner  *deduplication.Scanner
	reviewer *deduplication.Reviewer
	importer *deduplication.Importer
	resolver *deduplication.Resolver
	closers  []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("failed to release resource")
		}
	}
}

// breakerState reports the AI circuit breaker, or "disabled" without a provider
func (e *engine) breakerState() string {
	if e.provider == nil {
		return "disabled"
	}
	return e.provider.Breaker().State().String()
}

// newEngine wires storage, events, locking and merging from cfg
func newEngine(ctx context.Context) (*engine, error) {
	e := &engine{
		emitter: events.Multi{
			events.LogEmitter{Logger: logger},
			events.StoreEmitter{Store: store, Logger: logger},
			counters,
		},
	}

	locker, err := newLocker(ctx, e)
	if err != nil {
		e.Close()
		return nil, err
	}

	if cfg.AnthropicAPIKey != "" {
		aiCfg := ai.DefaultConfig()
		aiCfg.APIKey = cfg.AnthropicAPIKey
		aiCfg.BaseURL = cfg.AnthropicBaseURL
		aiCfg.Model = cfg.AIModel
		aiCfg.MaxConcurrentCalls = cfg.AIMaxConcurrentCalls
		aiCfg.RequestsPerMinute = cfg.AIRequestsPerMinute
		e.provider, err = ai.NewProvider(aiCfg, e.emitter, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
	} else {
		logger.Info().Msg("ANTHROPIC_API_KEY not set, merging mechanically")
	}

	var provider merge.TextMergeProvider
	if e.provider != nil {
		provider = e.provider
	}
	merger := merge.NewMerger(provider, cfg.AIMergeTimeout, e.emitter, logger)

	e.settings = settings.NewService(store, e.emitter, logger)

	scanCfg := deduplication.DefaultConfig()
	scanCfg.LockTTL = cfg.LockTTL
	e.scanner, err = deduplication.NewScanner(store, merger, e.settings, locker, e.emitter, logger, scanCfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.reviewer = deduplication.NewReviewer(store, e.emitter, logger, 0)

	e.importer, err = deduplication.NewImporter(store, merger, e.emitter, logger, importConfig())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.resolver = deduplication.NewResolver(store, e.importer.LibraryOrganizationID(), e.emitter, logger)
	e.scanner.SetReconciler(e.resolver)
	return e, nil
}

// importConfig is the importer configuration taken from cfg
func importConfig() deduplication.ImportConfig {
	ic := deduplication.DefaultImportConfig()
	ic.LibraryOrganizationID = cfg.LibraryOrgID
	ic.LibraryOrganizationName = cfg.LibraryOrgName
	ic.AutoImportLimit = cfg.AutoImportLimit
	ic.AutoImportMinScore = cfg.AutoImportMinScore
	return ic
}

func newLocker(ctx context.Context, e *engine) (lock.Locker, error) {
	switch backend := cfg.EffectiveLockBackend(); backend {
	case config.LockRedis:
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		e.closers = append(e.closers, client.Close)
		logger.Debug().Msg("using redis scan lock")
		return lock.NewRedis(client, "lock:"), nil
	case config.LockFile:
		host, _ := os.Hostname()
		holder := fmt.Sprintf("%s:%d", host, os.Getpid())
		logger.Debug().Str("dir", cfg.LockDir).Msg("using file scan lock")
		return lock.NewFile(cfg.LockDir, holder), nil
	default:
		return lock.NewLocal(), nil
	}
}

// scanDefaults are the scan options taken from the configuration
func scanDefaults() deduplication.Options {
	return deduplication.Options{
		MinScore:         cfg.MinScore,
		MinOrganizations: cfg.MinOrganizations,
	}
}

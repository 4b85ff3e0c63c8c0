// Command matching runs and operates the entity-matching engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/config"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/logging"
	"github.com/prlibrary/matching/internal/storage"
)

var (
	cfg      *config.Config
	logger   zerolog.Logger
	store    storage.Storage
	counters = events.NewCounters()

	envFiles  []string
	dbPath    string
	logLevel  string
	actorFlag string
)

var rootCmd = &cobra.Command{
	Use:   "matching",
	Short: "Entity matching and deduplication for the shared library",
	Long: `matching detects contacts, companies and publications that several
organizations store for the same real-world entity, scores the matches and
merges their variants into one canonical record.

Configuration is read from .env files and MATCHING_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFiles...)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger, err = logging.NewWithWriter(os.Stderr, cfg.Environment, cfg.LogLevel)
		if err != nil {
			return err
		}

		storeCfg, err := storageConfig(cfg, dbPath)
		if err != nil {
			return err
		}
		store, err = storage.NewStorage(cmd.Context(), storeCfg)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		logger.Debug().Str("driver", storeCfg.Driver).Str("path", storeCfg.Path).Msg("storage opened")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close storage")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "Path to a .env file (repeatable, default .env)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides MATCHING_STORAGE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides MATCHING_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Operator name recorded on changes (default $USER)")
}

// storageConfig resolves the backend from the configuration. An explicit
// path wins; without one an existing .matching/*.db is reused.
func storageConfig(c *config.Config, explicitPath string) (*storage.Config, error) {
	sc := &storage.Config{Driver: c.StorageDriver, Path: c.StoragePath, URL: c.DatabaseURL}
	if explicitPath != "" {
		sc.Driver = storage.DriverSQLite
		sc.Path = explicitPath
	}
	if sc.Driver == storage.DriverSQLite && sc.Path == "" {
		path, err := storage.DiscoverDatabase()
		if err != nil {
			return nil, err
		}
		sc.Path = path
	}
	return sc, nil
}

// actor names the operator for audit fields
func actor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package storage

import (
	"context"
	"fmt"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/storage/postgres"
	"github.com/prlibrary/matching/internal/storage/sqlite"
	"github.com/prlibrary/matching/internal/types"
)

// Storage defines the interface for matching storage backends
type Storage interface {
	// Tenant data read by scans
	UpsertOrganization(ctx context.Context, org *types.Organization) error
	ListOrganizations(ctx context.Context, ids []string) ([]*types.Organization, error)
	UpsertContact(ctx context.Context, c *types.Contact) error
	ListContacts(ctx context.Context, orgID string) ([]*types.Contact, error)
	UpsertCompany(ctx context.Context, c *types.Company) error
	ListCompanies(ctx context.Context, orgID string) ([]*types.Company, error)
	UpsertPublication(ctx context.Context, p *types.Publication) error
	ListPublications(ctx context.Context, orgID string) ([]*types.Publication, error)

	// Single records, used for the shared library
	GetContact(ctx context.Context, orgID, id string) (*types.Contact, error)
	GetCompany(ctx context.Context, orgID, id string) (*types.Company, error)
	GetPublication(ctx context.Context, orgID, id string) (*types.Publication, error)

	// Candidates
	CreateCandidate(ctx context.Context, c *types.MatchingCandidate) error
	UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error
	GetCandidate(ctx context.Context, id string) (*types.MatchingCandidate, error)
	GetCandidateByKey(ctx context.Context, entityType types.EntityType, matchKey string) (*types.MatchingCandidate, error)
	ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error)
	DeleteCandidate(ctx context.Context, id string) error

	// Field conflict reviews
	CreateConflict(ctx context.Context, c *types.FieldConflict) error
	UpdateConflict(ctx context.Context, c *types.FieldConflict) error
	GetConflict(ctx context.Context, id string) (*types.FieldConflict, error)
	ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.FieldConflict, error)

	// Scan jobs
	CreateScanJob(ctx context.Context, job *types.ScanJob) error
	FinishScanJob(ctx context.Context, job *types.ScanJob) error
	GetScanJob(ctx context.Context, id string) (*types.ScanJob, error)
	ListScanJobs(ctx context.Context, limit int) ([]*types.ScanJob, error)
	ListRunningScanJobs(ctx context.Context) ([]*types.ScanJob, error)

	// Settings
	GetSettings(ctx context.Context) (*types.GlobalSettings, error)
	SaveSettings(ctx context.Context, st *types.GlobalSettings) error

	// Events
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	GetEventCounts(ctx context.Context) (*events.EventCounts, error)
	CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error)

	// Lifecycle
	Close() error
}

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultPath is the SQLite database used when no path is configured
const DefaultPath = ".matching/matching.db"

// Config holds database configuration
type Config struct {
	// Driver selects the backend: "sqlite" (default) or "postgres"
	Driver string

	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string

	// URL is the PostgreSQL connection string
	URL string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverSQLite,
		Path:   DefaultPath,
	}
}

// NewStorage opens the backend selected by cfg
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Driver {
	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		return sqlite.New(path)
	case DriverPostgres:
		if cfg.URL == "" {
			return nil, fmt.Errorf("postgres driver requires a database URL")
		}
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.URL
		return postgres.New(ctx, pgCfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var (
	_ Storage = (*sqlite.SQLiteStorage)(nil)
	_ Storage = (*postgres.PostgresStorage)(nil)
)

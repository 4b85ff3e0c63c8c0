// Package httpapi serves the scan trigger endpoint and the operator API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/settings"
	"github.com/prlibrary/matching/internal/types"
)

// ScanRunner runs one scan
type ScanRunner interface {
	Scan(ctx context.Context, opts deduplication.Options) (*types.ScanJob, error)
}

// SettingsService reads and updates the global settings
type SettingsService interface {
	Get(ctx context.Context) types.GlobalSettings
	Update(ctx context.Context, u settings.Update, actor string) (*types.GlobalSettings, error)
}

// Reviewer records operator decisions
type Reviewer interface {
	Confirm(ctx context.Context, id, actor string) (*types.MatchingCandidate, error)
	Reject(ctx context.Context, id, actor string) (*types.MatchingCandidate, error)
	Skip(ctx context.Context, id, actor, reason string) (*types.MatchingCandidate, error)
	Delete(ctx context.Context, id, actor string) error
}

// Importer writes candidates to the shared library
type Importer interface {
	Import(ctx context.Context, req deduplication.ImportRequest) (*deduplication.ImportResult, error)
	AutoImport(ctx context.Context, opts deduplication.AutoImportOptions) (*deduplication.AutoImportStats, error)
}

// ConflictReviewer lists and decides field conflicts on library records
type ConflictReviewer interface {
	OpenConflicts(ctx context.Context, limit int) ([]*types.FieldConflict, error)
	Approve(ctx context.Context, id, actor, notes string) (*types.FieldConflict, error)
	Reject(ctx context.Context, id, actor, notes string) (*types.FieldConflict, error)
}

// Store is the read side used by the operator routes
type Store interface {
	GetCandidate(ctx context.Context, id string) (*types.MatchingCandidate, error)
	ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error)
	GetScanJob(ctx context.Context, id string) (*types.ScanJob, error)
	ListScanJobs(ctx context.Context, limit int) ([]*types.ScanJob, error)
	GetEventCounts(ctx context.Context) (*events.EventCounts, error)
}

// Deps are the components the server dispatches to
type Deps struct {
	Scanner  ScanRunner
	Settings SettingsService
	Reviewer Reviewer
	Store    Store

	// Importer, when set, enables the import routes
	Importer Importer
	// Conflicts, when set, enables the conflict review routes
	Conflicts ConflictReviewer

	// Counters, when set, adds this process's event counts to /events/stats
	Counters *events.Counters
	// BreakerState, when set, reports the AI circuit breaker state on /healthz
	BreakerState func() string
}

// Options configure the server
type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// ScanSecret authenticates scheduler calls to the trigger endpoint
	ScanSecret string
	// AdminToken authenticates operator calls
	AdminToken string

	// ScanDefaults are the options every triggered scan starts from
	ScanDefaults deduplication.Options
}

// Server is the HTTP server
type Server struct {
	deps   Deps
	logger zerolog.Logger
	opts   Options
}

// NewServer creates a server. Scanner, Settings, Reviewer and Store are required.
func NewServer(deps Deps, logger zerolog.Logger, opts Options) (*Server, error) {
	if deps.Scanner == nil || deps.Settings == nil || deps.Reviewer == nil || deps.Store == nil {
		return nil, fmt.Errorf("scanner, settings, reviewer and store are required")
	}
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	opts.Host = host
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	// scans run inside the request
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		deps:   deps,
		logger: logger.With().Str("component", "httpapi").Logger(),
		opts:   opts,
	}, nil
}

// Handler builds the echo instance with every route registered
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", redactSecret(v.URI)).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.POST("/scan", s.handleScan)
	api.GET("/scan", s.handleScan)

	ops := api.Group("", s.requireAdmin())
	ops.GET("/settings", s.handleGetSettings)
	ops.PUT("/settings", s.handlePutSettings)
	ops.GET("/candidates", s.handleListCandidates)
	ops.GET("/candidates/stats", s.handleCandidateStats)
	ops.GET("/candidates/:id", s.handleGetCandidate)
	ops.DELETE("/candidates/:id", s.handleDeleteCandidate)
	ops.POST("/candidates/:id/confirm", s.handleConfirm)
	ops.POST("/candidates/:id/reject", s.handleReject)
	ops.POST("/candidates/:id/skip", s.handleSkip)
	if s.deps.Importer != nil {
		ops.POST("/candidates/import/auto", s.handleAutoImport)
		ops.POST("/candidates/:id/import", s.handleImport)
	}
	if s.deps.Conflicts != nil {
		ops.GET("/conflicts", s.handleListConflicts)
		ops.POST("/conflicts/:id/approve", s.handleApproveConflict)
		ops.POST("/conflicts/:id/reject", s.handleRejectConflict)
	}
	ops.POST("/candidates/:id/articles/check", s.handleCheckArticle)
	ops.GET("/jobs", s.handleListJobs)
	ops.GET("/jobs/latest", s.handleLatestJob)
	ops.GET("/jobs/:id", s.handleGetJob)
	ops.GET("/events/stats", s.handleEventStats)

	return e
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("matching API started")
	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("matching API stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	} else if err != nil {
		s.logger.Error().Err(err).Str("uri", c.Request().URL.Path).Msg("unhandled error")
	}

	if status >= 500 {
		_ = fail(c, status, "internal_error", "Internal server error")
		return
	}
	_ = fail(c, status, codeForStatus(status), message)
}

func (s *Server) handleHealth(c echo.Context) error {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.deps.BreakerState != nil {
		body["circuitBreaker"] = s.deps.BreakerState()
	}
	return c.JSON(http.StatusOK, body)
}

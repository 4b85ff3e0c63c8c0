package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/types"
)

type scanRequest struct {
	Secret  string `json:"secret"`
	DevMode *bool  `json:"devMode"`
}

type scanJobResponse struct {
	ID          string          `json:"id"`
	Status      types.JobStatus `json:"status"`
	Stats       types.ScanStats `json:"stats"`
	Duration    int64           `json:"duration"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type scanResponse struct {
	Success bool            `json:"success"`
	Job     scanJobResponse `json:"job"`
}

// handleScan is the trigger endpoint. Operators authenticate with the admin
// token and start manual scans; the scheduler authenticates with the shared
// secret and starts scheduled scans. A secret that is supplied must match
// either way.
func (s *Server) handleScan(c echo.Context) error {
	var req scanRequest
	if c.Request().Method == http.MethodPost {
		if err := decodeJSONBody(c, &req); err != nil {
			return failValidation(c, map[string]string{"body": err.Error()})
		}
	}
	if q := c.QueryParam("secret"); q != "" {
		req.Secret = q
	}
	if q := c.QueryParam("devMode"); q != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(q))
		if err != nil {
			return failValidation(c, map[string]string{"devMode": "must be a boolean"})
		}
		req.DevMode = &v
	}

	trigger := types.TriggerScheduled
	if s.isAdmin(c) {
		trigger = types.TriggerManual
		if req.Secret != "" && (s.opts.ScanSecret == "" || !secretEqual(req.Secret, s.opts.ScanSecret)) {
			return fail(c, http.StatusUnauthorized, "unauthorized", "Invalid scan secret")
		}
	} else {
		if s.opts.ScanSecret == "" {
			return fail(c, http.StatusInternalServerError, "configuration_error",
				"MATCHING_SCAN_SECRET is not configured")
		}
		if req.Secret == "" || !secretEqual(req.Secret, s.opts.ScanSecret) {
			return fail(c, http.StatusUnauthorized, "unauthorized", "Invalid or missing scan secret")
		}
	}

	opts := s.opts.ScanDefaults
	opts.TriggeredBy = trigger
	if req.DevMode != nil {
		opts.DevelopmentMode = *req.DevMode
	}

	job, err := s.deps.Scanner.Scan(c.Request().Context(), opts)
	if errors.Is(err, deduplication.ErrScanInProgress) {
		return fail(c, http.StatusConflict, "scan_in_progress", "Another scan is already running")
	}
	var scanErr *deduplication.ScanError
	if errors.As(err, &scanErr) {
		s.logger.Error().Err(err).Str("job_id", scanErr.JobID).Msg("triggered scan failed")
		message := "Scan failed"
		if scanErr.Err != nil {
			message = scanErr.Err.Error()
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "scan_failed",
			Message: message,
			JobID:   scanErr.JobID,
		})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("triggered scan could not start")
		return internalError(c, "Failed to start scan")
	}

	return c.JSON(http.StatusOK, scanResponse{
		Success: true,
		Job: scanJobResponse{
			ID:          job.ID,
			Status:      job.Status,
			Stats:       job.Stats,
			Duration:    job.DurationMs,
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
		},
	})
}

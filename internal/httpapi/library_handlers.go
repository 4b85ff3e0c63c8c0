package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/types"
)

type importRequest struct {
	// VariantIndex picks the variant to import; omitted means the
	// recommended one
	VariantIndex *int              `json:"variantIndex,omitempty"`
	Overrides    map[string]string `json:"overrides,omitempty"`
	Actor        string            `json:"actor,omitempty"`
}

type autoImportRequest struct {
	MinScore int    `json:"minScore,omitempty"`
	UseAI    bool   `json:"useAi,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

type conflictReviewRequest struct {
	Actor string `json:"actor,omitempty"`
	Notes string `json:"notes,omitempty"`
}

func (s *Server) handleCandidateStats(c echo.Context) error {
	stats, err := deduplication.Analytics(c.Request().Context(), s.deps.Store)
	if err != nil {
		s.logger.Error().Err(err).Msg("candidate analytics failed")
		return internalError(c, "Failed to compute candidate statistics")
	}
	return c.JSON(http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleImport(c echo.Context) error {
	var req importRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	actor := actorFrom(c, req.Actor)
	if actor == "" {
		return failValidation(c, map[string]string{"actor": "is required"})
	}
	idx := -1
	if req.VariantIndex != nil {
		if *req.VariantIndex < 0 {
			return failValidation(c, map[string]string{"variantIndex": "must not be negative"})
		}
		idx = *req.VariantIndex
	}

	id := c.Param("id")
	res, err := s.deps.Importer.Import(c.Request().Context(), deduplication.ImportRequest{
		CandidateID:  id,
		VariantIndex: idx,
		Overrides:    req.Overrides,
		Actor:        actor,
	})
	switch {
	case errors.Is(err, types.ErrNotFound):
		return notFound(c, "Candidate not found")
	case errors.Is(err, deduplication.ErrInvalidImport):
		return fail(c, http.StatusBadRequest, "invalid_import", err.Error())
	case errors.Is(err, deduplication.ErrAlreadyImported):
		return fail(c, http.StatusConflict, "already_imported", "Candidate is already in the library")
	case errors.Is(err, types.ErrVersionConflict):
		return fail(c, http.StatusConflict, "version_conflict", "Candidate is being modified, retry later")
	case err != nil:
		s.logger.Error().Err(err).Str("candidate_id", id).Msg("import candidate failed")
		return internalError(c, "Failed to import candidate")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"candidate":      res.Candidate,
		"recordId":       res.RecordID,
		"companyId":      res.CompanyID,
		"publicationIds": nonNil(res.PublicationIDs),
	})
}

func (s *Server) handleAutoImport(c echo.Context) error {
	var req autoImportRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	fields := map[string]string{}
	if req.MinScore < 0 || req.MinScore > 100 {
		fields["minScore"] = "must be between 0 and 100"
	}
	if req.Limit < 0 {
		fields["limit"] = "must not be negative"
	}
	actor := actorFrom(c, req.Actor)
	if actor == "" {
		fields["actor"] = "is required"
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	stats, err := s.deps.Importer.AutoImport(c.Request().Context(), deduplication.AutoImportOptions{
		MinScore: req.MinScore,
		UseAI:    req.UseAI,
		Actor:    actor,
		Limit:    req.Limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("actor", actor).Msg("auto-import failed")
		return internalError(c, "Failed to auto-import candidates")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": stats.Failed == 0, "stats": stats})
}

func (s *Server) handleListConflicts(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	items, err := s.deps.Conflicts.OpenConflicts(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list conflicts failed")
		return internalError(c, "Failed to load conflicts")
	}
	if items == nil {
		items = []*types.FieldConflict{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleApproveConflict(c echo.Context) error {
	return s.decideConflict(c, s.deps.Conflicts.Approve)
}

func (s *Server) handleRejectConflict(c echo.Context) error {
	return s.decideConflict(c, s.deps.Conflicts.Reject)
}

func (s *Server) decideConflict(c echo.Context, decide func(ctx context.Context, id, actor, notes string) (*types.FieldConflict, error)) error {
	var req conflictReviewRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	actor := actorFrom(c, req.Actor)
	if actor == "" {
		return failValidation(c, map[string]string{"actor": "is required"})
	}

	id := c.Param("id")
	conflict, err := decide(c.Request().Context(), id, actor, req.Notes)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return notFound(c, "Conflict not found")
	case errors.Is(err, deduplication.ErrConflictClosed):
		return fail(c, http.StatusConflict, "conflict_closed", "Conflict was already reviewed")
	case err != nil:
		s.logger.Error().Err(err).Str("conflict_id", id).Msg("review conflict failed")
		return internalError(c, "Failed to review conflict")
	}
	return c.JSON(http.StatusOK, map[string]any{"conflict": conflict})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

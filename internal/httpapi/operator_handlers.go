package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/settings"
	"github.com/prlibrary/matching/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type settingsRequest struct {
	settings.Update
	Actor string `json:"actor,omitempty"`
}

type reviewRequest struct {
	Actor string `json:"actor,omitempty"`
}

type skipRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type articleCheckRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content,omitempty"`
	SEOKeywords []string `json:"seoKeywords,omitempty"`
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"settings": s.deps.Settings.Get(c.Request().Context()),
	})
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var req settingsRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if req.UseAIMerge == nil && req.Interval == nil {
		return failValidation(c, map[string]string{"body": "useAiMerge or interval is required"})
	}
	if req.Interval != nil && !req.Interval.IsValid() {
		return failValidation(c, map[string]string{"interval": "must be disabled, daily, weekly or monthly"})
	}
	actor := actorFrom(c, req.Actor)
	if actor == "" {
		return failValidation(c, map[string]string{"actor": "is required"})
	}

	updated, err := s.deps.Settings.Update(c.Request().Context(), req.Update, actor)
	if err != nil {
		s.logger.Error().Err(err).Str("actor", actor).Msg("update settings failed")
		return internalError(c, "Failed to update settings")
	}
	return c.JSON(http.StatusOK, map[string]any{"settings": updated})
}

func (s *Server) handleListCandidates(c echo.Context) error {
	filter := types.CandidateFilter{
		EntityType:     types.EntityType(strings.TrimSpace(c.QueryParam("type"))),
		Status:         types.CandidateStatus(strings.TrimSpace(c.QueryParam("status"))),
		OrganizationID: strings.TrimSpace(c.QueryParam("organizationId")),
	}
	fields := map[string]string{}
	minScore, err := parsePositiveInt(c.QueryParam("minScore"), 0, 0, 100)
	if err != nil {
		fields["minScore"] = err.Error()
	}
	filter.MinScore = minScore
	if filter.EntityType != "" && !filter.EntityType.IsValid() {
		fields["type"] = "must be contact, company or publication"
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		fields["status"] = "must be one of " + strings.Join(statusNames(), ", ")
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		fields["limit"] = err.Error()
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}
	filter.Limit = limit

	items, err := s.deps.Store.ListCandidates(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list candidates failed")
		return internalError(c, "Failed to load candidates")
	}
	if items == nil {
		items = []*types.MatchingCandidate{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetCandidate(c echo.Context) error {
	cand, err := s.deps.Store.GetCandidate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		return notFound(c, "Candidate not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("candidate_id", c.Param("id")).Msg("get candidate failed")
		return internalError(c, "Failed to load candidate")
	}
	return c.JSON(http.StatusOK, map[string]any{"candidate": cand})
}

func (s *Server) handleConfirm(c echo.Context) error {
	var req reviewRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	return s.review(c, req.Actor, s.deps.Reviewer.Confirm)
}

func (s *Server) handleReject(c echo.Context) error {
	var req reviewRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	return s.review(c, req.Actor, s.deps.Reviewer.Reject)
}

func (s *Server) handleSkip(c echo.Context) error {
	var req skipRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	return s.review(c, req.Actor, func(ctx context.Context, id, actor string) (*types.MatchingCandidate, error) {
		return s.deps.Reviewer.Skip(ctx, id, actor, req.Reason)
	})
}

func (s *Server) handleDeleteCandidate(c echo.Context) error {
	var req reviewRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	actor := actorFrom(c, req.Actor)
	if actor == "" {
		return failValidation(c, map[string]string{"actor": "is required"})
	}

	id := c.Param("id")
	err := s.deps.Reviewer.Delete(c.Request().Context(), id, actor)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return notFound(c, "Candidate not found")
	case errors.Is(err, deduplication.ErrAlreadyImported):
		return fail(c, http.StatusConflict, "already_imported", "Imported candidates cannot be deleted")
	case err != nil:
		s.logger.Error().Err(err).Str("candidate_id", id).Msg("delete candidate failed")
		return internalError(c, "Failed to delete candidate")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) review(c echo.Context, explicitActor string, decide func(ctx context.Context, id, actor string) (*types.MatchingCandidate, error)) error {
	actor := actorFrom(c, explicitActor)
	if actor == "" {
		return failValidation(c, map[string]string{"actor": "is required"})
	}

	id := c.Param("id")
	cand, err := decide(c.Request().Context(), id, actor)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return notFound(c, "Candidate not found")
	case errors.Is(err, types.ErrVersionConflict):
		return fail(c, http.StatusConflict, "version_conflict", "Candidate is being modified, retry later")
	case errors.Is(err, deduplication.ErrAlreadyImported):
		return fail(c, http.StatusConflict, "already_imported", "Candidate is already in the library")
	case err != nil:
		s.logger.Error().Err(err).Str("candidate_id", id).Msg("review candidate failed")
		return internalError(c, "Failed to review candidate")
	}
	return c.JSON(http.StatusOK, map[string]any{"candidate": cand})
}

func (s *Server) handleCheckArticle(c echo.Context) error {
	var req articleCheckRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return failValidation(c, map[string]string{"title": "title or content is required"})
	}

	cand, err := s.deps.Store.GetCandidate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		return notFound(c, "Candidate not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("candidate_id", c.Param("id")).Msg("get candidate failed")
		return internalError(c, "Failed to load candidate")
	}

	res, err := deduplication.CheckArticle(cand, keywords.Article{Title: req.Title, Content: req.Content}, req.SEOKeywords)
	if err != nil {
		return failValidation(c, map[string]string{"candidate": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleListJobs(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 20, 1, 200)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	jobs, err := s.deps.Store.ListScanJobs(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list scan jobs failed")
		return internalError(c, "Failed to load scan jobs")
	}
	if jobs == nil {
		jobs = []*types.ScanJob{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": jobs, "count": len(jobs)})
}

func (s *Server) handleLatestJob(c echo.Context) error {
	jobs, err := s.deps.Store.ListScanJobs(c.Request().Context(), 1)
	if err != nil {
		s.logger.Error().Err(err).Msg("list scan jobs failed")
		return internalError(c, "Failed to load scan jobs")
	}
	if len(jobs) == 0 {
		return notFound(c, "No scan has run yet")
	}
	return c.JSON(http.StatusOK, map[string]any{"job": jobs[0]})
}

func (s *Server) handleGetJob(c echo.Context) error {
	job, err := s.deps.Store.GetScanJob(c.Request().Context(), c.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		return notFound(c, "Scan job not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", c.Param("id")).Msg("get scan job failed")
		return internalError(c, "Failed to load scan job")
	}
	return c.JSON(http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleEventStats(c echo.Context) error {
	counts, err := s.deps.Store.GetEventCounts(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("get event counts failed")
		return internalError(c, "Failed to load event statistics")
	}
	body := map[string]any{"stored": counts}
	if s.deps.Counters != nil {
		body["process"] = s.deps.Counters.Snapshot()
	}
	return c.JSON(http.StatusOK, body)
}

func statusNames() []string {
	names := make([]string, 0, len(types.CandidateStatuses))
	for _, st := range types.CandidateStatuses {
		names = append(names, string(st))
	}
	return names
}

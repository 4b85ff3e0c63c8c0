package deduplication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/types"
)

// CandidateStore reads, versions and removes single candidates
type CandidateStore interface {
	GetCandidate(ctx context.Context, id string) (*types.MatchingCandidate, error)
	UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error
	DeleteCandidate(ctx context.Context, id string) error
}

// ErrAlreadyImported is returned when a decision would change a candidate
// that already has a library record.
var ErrAlreadyImported = errors.New("candidate already imported")

// Reviewer records operator decisions on candidates.
type Reviewer struct {
	store       CandidateStore
	emitter     events.Emitter
	logger      zerolog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewReviewer creates a reviewer retrying up to maxAttempts times on
// version conflicts. A non-positive maxAttempts selects the scanner default.
func NewReviewer(store CandidateStore, emitter events.Emitter, logger zerolog.Logger, maxAttempts int) *Reviewer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().MaxUpdateAttempts
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Reviewer{
		store:       store,
		emitter:     emitter,
		logger:      logger.With().Str("component", "reviewer").Logger(),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Confirm marks the candidate as manually confirmed by actor
func (r *Reviewer) Confirm(ctx context.Context, id, actor string) (*types.MatchingCandidate, error) {
	return r.review(ctx, id, actor, types.StatusManuallyConfirmed, "")
}

// Reject marks the candidate as rejected by actor
func (r *Reviewer) Reject(ctx context.Context, id, actor string) (*types.MatchingCandidate, error) {
	return r.review(ctx, id, actor, types.StatusRejected, "")
}

// Skip sets the candidate aside without importing it. The reason is kept
// as review notes.
func (r *Reviewer) Skip(ctx context.Context, id, actor, reason string) (*types.MatchingCandidate, error) {
	return r.review(ctx, id, actor, types.StatusSkipped, strings.TrimSpace(reason))
}

// Delete removes the candidate. Imported candidates stay, since their
// library records are reconciled through them.
func (r *Reviewer) Delete(ctx context.Context, id, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("reviewer is required")
	}
	c, err := r.store.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == types.StatusImported {
		return fmt.Errorf("candidate %s: %w", id, ErrAlreadyImported)
	}
	if err := r.store.DeleteCandidate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}

	r.logger.Info().Str("candidate_id", id).Str("actor", actor).Msg("candidate deleted")
	ev, evErr := events.NewCandidateEvent(events.EventTypeCandidateDeleted, "", c,
		fmt.Sprintf("Candidate %s deleted by %s", c.ID, actor))
	events.Emit(ctx, r.emitter, ev, evErr)
	return nil
}

func (r *Reviewer) review(ctx context.Context, id, actor string, status types.CandidateStatus, notes string) (*types.MatchingCandidate, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("reviewer is required")
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		c, err := r.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.Status == status && c.ReviewNotes == notes {
			return c, nil
		}
		if c.Status == types.StatusImported {
			return nil, fmt.Errorf("candidate %s: %w", id, ErrAlreadyImported)
		}

		expected := c.Version
		now := r.now()
		c.Status = status
		c.ReviewedBy = actor
		c.ReviewedAt = &now
		c.ReviewNotes = notes
		c.UpdatedAt = now

		err = r.store.UpdateCandidate(ctx, c, expected)
		if errors.Is(err, types.ErrVersionConflict) {
			r.logger.Debug().Str("candidate_id", id).Int("attempt", attempt).Msg("candidate changed during review, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save review: %w", err)
		}

		r.logger.Info().Str("candidate_id", id).Str("status", string(status)).Str("actor", actor).Msg("candidate reviewed")
		eventType := events.EventTypeCandidateReviewed
		if status == types.StatusSkipped {
			eventType = events.EventTypeCandidateSkipped
		}
		ev, evErr := events.NewCandidateEvent(eventType, "", c,
			fmt.Sprintf("Candidate %s %s by %s", c.ID, status, actor))
		events.Emit(ctx, r.emitter, ev, evErr)
		return c, nil
	}
	return nil, fmt.Errorf("candidate %s: gave up after %d attempts: %w", id, r.maxAttempts, types.ErrVersionConflict)
}

// CheckArticle decides whether article is about the company candidate c.
// The merged record is used when present, else the most complete variant.
func CheckArticle(c *types.MatchingCandidate, article keywords.Article, seoKeywords []string) (keywords.AutoConfirmResult, error) {
	if c.EntityType != types.EntityCompany {
		return keywords.AutoConfirmResult{}, fmt.Errorf("article checks need a company candidate (got %s)", c.EntityType)
	}
	var company types.ContactData
	switch {
	case c.Merged != nil:
		company = *c.Merged
	case len(c.Variants) > 0:
		company = c.Variants[RecommendVariant(c.Variants)].Data
	default:
		return keywords.AutoConfirmResult{}, fmt.Errorf("candidate %s has no company data", c.ID)
	}
	_, res := keywords.CheckCompanyArticle(company, article, seoKeywords)
	return res, nil
}

package deduplication

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

// Field resolution reasons recorded in library provenance
const (
	reasonFilled   = "Field was empty"
	reasonApproved = "Manual approval after conflict review"
)

// ErrConflictClosed is returned when deciding a conflict that was already
// approved or rejected.
var ErrConflictClosed = errors.New("conflict already reviewed")

// ConflictStore is the storage the resolver needs
type ConflictStore interface {
	LibraryRecords
	CreateConflict(ctx context.Context, c *types.FieldConflict) error
	UpdateConflict(ctx context.Context, c *types.FieldConflict) error
	GetConflict(ctx context.Context, id string) (*types.FieldConflict, error)
	ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.FieldConflict, error)
}

// ReconcileResult counts what one reconciliation changed
type ReconcileResult struct {
	Updated int
	Flagged int
}

// Resolver keeps library records in line with the variants of the
// candidates they were imported from. Each field goes through three stages:
// an empty field is filled, a super-majority of at least three variants
// overwrites it, and anything else opens a conflict for review.
type Resolver struct {
	store        ConflictStore
	libraryOrgID string
	emitter      events.Emitter
	logger       zerolog.Logger
	now          func() time.Time
}

// NewResolver creates a resolver for the library owned by libraryOrgID
func NewResolver(store ConflictStore, libraryOrgID string, emitter events.Emitter, logger zerolog.Logger) *Resolver {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Resolver{
		store:        store,
		libraryOrgID: libraryOrgID,
		emitter:      emitter,
		logger:       logger.With().Str("component", "resolver").Logger(),
		now:          time.Now,
	}
}

// Reconcile folds c's variants into its library record. Candidates that
// were never imported are ignored.
func (r *Resolver) Reconcile(ctx context.Context, c *types.MatchingCandidate) (ReconcileResult, error) {
	var res ReconcileResult
	if c.Status != types.StatusImported || c.ImportedRecordID == "" {
		return res, nil
	}
	rec, err := loadLibraryRecord(ctx, r.store, r.libraryOrgID, c.EntityType, c.ImportedRecordID)
	if err != nil {
		return res, fmt.Errorf("failed to load library record %s: %w", c.ImportedRecordID, err)
	}

	now := r.now()
	var changed []string
	for _, f := range fieldsFor(c.EntityType) {
		tally := tallyField(f, c.Variants)
		if tally.total == 0 {
			continue
		}
		current := strings.TrimSpace(f.get(&rec.data))

		// stage 1: nothing to overwrite
		if current == "" {
			f.set(&rec.data, tally.majority)
			rec.info.Touch(f.name, types.SystemActor, "", reasonFilled, tally.share(), now)
			changed = append(changed, f.name)
			continue
		}
		if normalizeValue(current) == normalizeValue(tally.majority) {
			continue
		}

		// stage 2: super-majority, unless a person set the value today
		source := rec.info.FieldSource(f.name)
		age := rec.info.FieldAgeDays(f.name, now)
		if tally.share() >= FieldThreshold(f.name) && tally.total >= 3 {
			if source == types.ValueSourceManual && age < 1 {
				opened, err := r.open(ctx, c, rec, f, current, tally, types.PriorityHigh, source, age)
				if err != nil {
					return res, err
				}
				if opened {
					res.Flagged++
				}
				continue
			}
			confidence := updateProbability(tally.share(), age, tally.total)
			if confidence >= FieldThreshold(f.name) {
				f.set(&rec.data, tally.majority)
				rec.info.Touch(f.name, types.SystemActor, current,
					fmt.Sprintf("Auto-update: %d/%d variants, %d%% confidence",
						tally.count, tally.total, int(math.Round(tally.share()*100))), confidence, now)
				changed = append(changed, f.name)
				continue
			}
		}

		// stage 3
		opened, err := r.open(ctx, c, rec, f, current, tally, conflictPriority(tally.share(), tally.total), source, age)
		if err != nil {
			return res, err
		}
		if opened {
			res.Flagged++
		}
	}

	if len(changed) == 0 {
		return res, nil
	}
	if err := rec.save(ctx, r.store); err != nil {
		return res, fmt.Errorf("failed to update library record %s: %w", c.ImportedRecordID, err)
	}
	res.Updated = len(changed)
	for _, name := range changed {
		r.logger.Info().Str("candidate_id", c.ID).Str("record_id", c.ImportedRecordID).Str("field", name).
			Msg("library field updated")
		fp := rec.info.Fields[name]
		ev, evErr := events.NewLibraryFieldEvent(events.EventTypeLibraryFieldUpdated, c.ID, events.LibraryFieldData{
			EntityType: c.EntityType,
			EntityID:   c.ImportedRecordID,
			Field:      name,
			Confidence: fp.Confidence,
			Reason:     fp.Reason,
		}, fmt.Sprintf("Library %s %s: %s updated", c.EntityType, c.ImportedRecordID, name))
		events.Emit(ctx, r.emitter, ev, evErr)
	}
	return res, nil
}

// open raises a review task unless an identical one is still pending. It
// reports whether a conflict was created.
func (r *Resolver) open(ctx context.Context, c *types.MatchingCandidate, rec *libraryRecord, f fieldSpec,
	current string, tally fieldTally, priority types.ConflictPriority, source types.ValueSource, age int) (bool, error) {
	pending, err := r.store.ListConflicts(ctx, types.ConflictFilter{
		Status:   types.ConflictPending,
		EntityID: c.ImportedRecordID,
		Field:    f.name,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list conflicts: %w", err)
	}
	for _, p := range pending {
		if normalizeValue(p.SuggestedValue) == normalizeValue(tally.majority) {
			return false, nil
		}
	}

	conflict := &types.FieldConflict{
		ID:             uuid.New().String(),
		EntityType:     c.EntityType,
		EntityID:       c.ImportedRecordID,
		EntityName:     rec.name(),
		CandidateID:    c.ID,
		Field:          f.name,
		CurrentValue:   current,
		SuggestedValue: tally.majority,
		Evidence: types.ConflictEvidence{
			CurrentValueSource:  source,
			CurrentValueAgeDays: age,
			MajorityCount:       tally.count,
			TotalCount:          tally.total,
			Variants:            tally.variants,
		},
		Confidence: tally.share(),
		Priority:   priority,
		Status:     types.ConflictPending,
		CreatedAt:  r.now(),
	}
	if err := r.store.CreateConflict(ctx, conflict); err != nil {
		return false, fmt.Errorf("failed to create conflict: %w", err)
	}
	r.logger.Info().Str("conflict_id", conflict.ID).Str("record_id", conflict.EntityID).Str("field", f.name).
		Str("priority", string(priority)).Msg("field conflict opened")
	r.emitConflict(ctx, events.EventTypeConflictOpened, conflict,
		fmt.Sprintf("Conflict on %s %s: %s %q vs %q", conflict.EntityType, conflict.EntityID, f.name, current, tally.majority))
	return true, nil
}

// OpenConflicts returns pending conflicts, highest priority and newest first
func (r *Resolver) OpenConflicts(ctx context.Context, limit int) ([]*types.FieldConflict, error) {
	return r.store.ListConflicts(ctx, types.ConflictFilter{Status: types.ConflictPending, Limit: limit})
}

// Approve applies the suggested value to the library record
func (r *Resolver) Approve(ctx context.Context, id, actor, notes string) (*types.FieldConflict, error) {
	conflict, err := r.pending(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	f, ok := lookupField(conflict.EntityType, conflict.Field)
	if !ok {
		return nil, fmt.Errorf("conflict %s: unknown field %q", id, conflict.Field)
	}
	rec, err := loadLibraryRecord(ctx, r.store, r.libraryOrgID, conflict.EntityType, conflict.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load library record %s: %w", conflict.EntityID, err)
	}

	now := r.now()
	previous := f.get(&rec.data)
	f.set(&rec.data, conflict.SuggestedValue)
	rec.info.Touch(f.name, actor, previous, reasonApproved, conflict.Confidence, now)
	if err := rec.save(ctx, r.store); err != nil {
		return nil, fmt.Errorf("failed to update library record %s: %w", conflict.EntityID, err)
	}
	return r.close(ctx, conflict, types.ConflictApproved, actor, notes, now)
}

// Reject closes the conflict and keeps the current value
func (r *Resolver) Reject(ctx context.Context, id, actor, notes string) (*types.FieldConflict, error) {
	conflict, err := r.pending(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return r.close(ctx, conflict, types.ConflictRejected, actor, notes, r.now())
}

func (r *Resolver) pending(ctx context.Context, id, actor string) (*types.FieldConflict, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	conflict, err := r.store.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict.Status != types.ConflictPending {
		return nil, fmt.Errorf("conflict %s is %s: %w", id, conflict.Status, ErrConflictClosed)
	}
	return conflict, nil
}

func (r *Resolver) close(ctx context.Context, conflict *types.FieldConflict, status types.ConflictStatus,
	actor, notes string, now time.Time) (*types.FieldConflict, error) {
	conflict.Status = status
	conflict.ReviewedBy = actor
	conflict.ReviewedAt = &now
	conflict.ReviewNotes = strings.TrimSpace(notes)
	if err := r.store.UpdateConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to save conflict review: %w", err)
	}
	r.logger.Info().Str("conflict_id", conflict.ID).Str("status", string(status)).Str("actor", actor).
		Msg("field conflict reviewed")
	r.emitConflict(ctx, events.EventTypeConflictResolved, conflict,
		fmt.Sprintf("Conflict %s %s by %s", conflict.ID, status, actor))
	return conflict, nil
}

func (r *Resolver) emitConflict(ctx context.Context, t events.EventType, c *types.FieldConflict, msg string) {
	ev, err := events.NewLibraryFieldEvent(t, c.CandidateID, events.LibraryFieldData{
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Field:      c.Field,
		Confidence: c.Confidence,
		ConflictID: c.ID,
		Priority:   c.Priority,
		Status:     c.Status,
	}, msg)
	events.Emit(ctx, r.emitter, ev, err)
}

// fieldTally is how the variants of a candidate vote on one field
type fieldTally struct {
	majority string
	count    int
	total    int
	variants []types.ConflictVariant
}

func (t fieldTally) share() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.count) / float64(t.total)
}

// tallyField counts the non-empty values of f. Values are compared trimmed
// and lowercased; the majority keeps the spelling it first appeared in and
// ties go to the value seen first.
func tallyField(f fieldSpec, variants []types.Variant) fieldTally {
	var t fieldTally
	counts := make(map[string]int)
	var order []string
	first := make(map[string]string)
	for i := range variants {
		v := strings.TrimSpace(f.get(&variants[i].Data))
		if v == "" {
			continue
		}
		t.total++
		t.variants = append(t.variants, types.ConflictVariant{
			OrganizationID:   variants[i].OrganizationID,
			OrganizationName: variants[i].OrganizationName,
			SourceEntityID:   variants[i].SourceEntityID,
			Value:            v,
		})
		key := normalizeValue(v)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			first[key] = v
		}
		counts[key]++
	}
	for _, key := range order {
		if counts[key] > t.count {
			t.majority, t.count = first[key], counts[key]
		}
	}
	return t
}

// updateProbability raises the majority share for stale values and broad
// agreement, capped at 1
func updateProbability(share float64, ageDays, total int) float64 {
	p := share
	if ageDays > 365 {
		p += 0.1
	}
	if ageDays > 730 {
		p += 0.1
	}
	if total >= 5 {
		p += 0.05
	}
	return math.Min(p, 1)
}

func conflictPriority(share float64, total int) types.ConflictPriority {
	switch {
	case share >= 0.9 && total >= 4:
		return types.PriorityHigh
	case share >= 0.75 && total >= 3:
		return types.PriorityMedium
	}
	return types.PriorityLow
}

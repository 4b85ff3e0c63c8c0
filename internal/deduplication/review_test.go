package deduplication

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/types"
)

func scannedCandidate(t *testing.T) (*faultyStore, *types.MatchingCandidate) {
	t.Helper()
	store := setupStore(t)
	seedJournalist(t, store)
	_, err := newTestScanner(t, store, &events.Recorder{}).Scan(context.Background(), Options{})
	require.NoError(t, err)
	c, err := store.GetCandidateByKey(context.Background(), types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)
	return &faultyStore{SQLiteStorage: store}, c
}

func TestReviewerConfirmAndReject(t *testing.T) {
	ctx := context.Background()
	store, c := scannedCandidate(t)
	rec := &events.Recorder{}
	r := NewReviewer(store, rec, zerolog.Nop(), 0)

	confirmed, err := r.Confirm(ctx, c.ID, "editor@prlibrary")
	require.NoError(t, err)
	assert.Equal(t, types.StatusManuallyConfirmed, confirmed.Status)
	assert.Equal(t, "editor@prlibrary", confirmed.ReviewedBy)
	require.NotNil(t, confirmed.ReviewedAt)
	assert.Equal(t, int64(2), confirmed.Version)

	// operators may change their mind
	rejected, err := r.Reject(ctx, c.ID, "chief@prlibrary")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, rejected.Status)
	assert.Equal(t, "chief@prlibrary", rejected.ReviewedBy)

	again, err := r.Reject(ctx, c.ID, "chief@prlibrary")
	require.NoError(t, err)
	assert.Equal(t, rejected.Version, again.Version, "repeating a decision does not write")

	reviewed := rec.OfType(events.EventTypeCandidateReviewed)
	require.Len(t, reviewed, 2)
	data, err := reviewed[1].GetCandidateData()
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, data.Status)
	assert.Equal(t, "chief@prlibrary", data.ReviewedBy)
}

func TestReviewerErrors(t *testing.T) {
	ctx := context.Background()
	store, c := scannedCandidate(t)
	r := NewReviewer(store, nil, zerolog.Nop(), 2)

	_, err := r.Confirm(ctx, c.ID, " ")
	assert.Error(t, err)

	_, err = r.Confirm(ctx, "missing", "editor")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	store.conflicts = 2
	_, err = r.Confirm(ctx, c.ID, "editor")
	assert.True(t, errors.Is(err, types.ErrVersionConflict))

	store.conflicts = 1
	got, err := r.Confirm(ctx, c.ID, "editor")
	require.NoError(t, err)
	assert.Equal(t, types.StatusManuallyConfirmed, got.Status)
}

func TestReviewerSkipAndDelete(t *testing.T) {
	ctx := context.Background()
	store, c := scannedCandidate(t)
	rec := &events.Recorder{}
	r := NewReviewer(store, rec, zerolog.Nop(), 0)

	skipped, err := r.Skip(ctx, c.ID, "editor@prlibrary", "  freelancer, not in scope ")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, skipped.Status)
	assert.Equal(t, "freelancer, not in scope", skipped.ReviewNotes)
	assert.Len(t, rec.OfType(events.EventTypeCandidateSkipped), 1)
	assert.Empty(t, rec.OfType(events.EventTypeCandidateReviewed))

	assert.Error(t, r.Delete(ctx, c.ID, ""))
	require.NoError(t, r.Delete(ctx, c.ID, "editor@prlibrary"))
	_, err = store.GetCandidate(ctx, c.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Len(t, rec.OfType(events.EventTypeCandidateDeleted), 1)

	err = r.Delete(ctx, c.ID, "editor@prlibrary")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestReviewerLeavesImportedCandidates(t *testing.T) {
	ctx := context.Background()
	store, c := scannedCandidate(t)
	c.Status = types.StatusImported
	c.ImportedRecordID = "lib-1"
	require.NoError(t, store.UpdateCandidate(ctx, c, c.Version))

	r := NewReviewer(store, nil, zerolog.Nop(), 0)
	_, err := r.Reject(ctx, c.ID, "editor")
	assert.True(t, errors.Is(err, ErrAlreadyImported))
	_, err = r.Skip(ctx, c.ID, "editor", "")
	assert.True(t, errors.Is(err, ErrAlreadyImported))
	assert.True(t, errors.Is(r.Delete(ctx, c.ID, "editor"), ErrAlreadyImported))

	got, err := store.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusImported, got.Status)
}

func TestCheckArticle(t *testing.T) {
	merged := types.ContactData{DisplayName: "Acme GmbH", TradingName: "ACME Media"}
	c := &types.MatchingCandidate{ID: "c1", EntityType: types.EntityCompany, Merged: &merged}

	res, err := CheckArticle(c, keywords.Article{Title: "ACME Media expands to Berlin"}, nil)
	require.NoError(t, err)
	assert.True(t, res.ShouldConfirm)
	assert.Equal(t, keywords.ReasonCompanyInTitle, res.Reason)

	res, err = CheckArticle(c, keywords.Article{Title: "Quarterly report", Content: "acme said"},
		[]string{"quarterly", "report"})
	require.NoError(t, err)
	assert.True(t, res.ShouldConfirm)
	assert.Equal(t, keywords.ReasonCompanyPlusSEO, res.Reason)

	_, err = CheckArticle(&types.MatchingCandidate{EntityType: types.EntityContact}, keywords.Article{}, nil)
	assert.Error(t, err)
}

package deduplication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/storage/sqlite"
	"github.com/prlibrary/matching/internal/types"
)

const libOrg = DefaultLibraryOrganizationID

// seedLibraryContact stores a library contact written by author at created
func seedLibraryContact(t *testing.T, store *sqlite.SQLiteStorage, author string, created time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertOrganization(ctx, &types.Organization{ID: libOrg, Type: types.OrgTypeSuperAdmin}))
	require.NoError(t, store.UpsertContact(ctx, &types.Contact{
		ID:             "lib-1",
		OrganizationID: libOrg,
		Data: types.ContactData{
			FirstName:  "Anna",
			LastName:   "Schmidt",
			Emails:     []types.Email{{Address: "anna.schmidt@spiegel.de", Primary: true}},
			Position:   "Redakteurin",
			Department: "Kultur",
		},
		Library: types.NewLibraryInfo("c1", types.SourceMatchingImport, author, created),
	}))
}

// importedCandidate has one variant per entry of data, each from its own
// organization
func importedCandidate(data ...types.ContactData) *types.MatchingCandidate {
	c := &types.MatchingCandidate{
		ID:               "c1",
		EntityType:       types.EntityContact,
		Status:           types.StatusImported,
		ImportedRecordID: "lib-1",
	}
	for i, d := range data {
		org := fmt.Sprintf("org-%d", i)
		c.Variants = append(c.Variants, types.Variant{OrganizationID: org, OrganizationName: "Org " + org, SourceEntityID: org + "-anna", Data: d})
	}
	return c
}

func staffer(position, department, phone string) types.ContactData {
	d := types.ContactData{
		FirstName:  "Anna",
		LastName:   "Schmidt",
		Emails:     []types.Email{{Address: "anna.schmidt@spiegel.de"}},
		Position:   position,
		Department: department,
	}
	if phone != "" {
		d.Phones = []types.Phone{{Number: phone}}
	}
	return d
}

func TestReconcileStages(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedLibraryContact(t, store, types.ImportActor, time.Now().AddDate(-1, -2, 0))
	rec := &events.Recorder{}
	r := NewResolver(store, libOrg, rec, zerolog.Nop())

	c := importedCandidate(
		staffer("Ressortleiterin", "Politik", "+49 40 1"),
		staffer("Ressortleiterin", "Wirtschaft", "+49 40 1"),
		staffer("Ressortleiterin", "Politik", ""),
		staffer("ressortleiterin ", "Wirtschaft", "+49 40 1"),
	)
	res, err := r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Updated: 2, Flagged: 1}, res)

	contact, err := store.GetContact(ctx, libOrg, "lib-1")
	require.NoError(t, err)
	// stage 1: empty phone filled
	assert.Equal(t, "+49 40 1", contact.Data.PrimaryPhone())
	assert.Equal(t, reasonFilled, contact.Library.Fields["phone"].Reason)
	// stage 2: unanimous over a stale automatic value
	assert.Equal(t, "Ressortleiterin", contact.Data.Position)
	pos := contact.Library.Fields["position"]
	assert.Equal(t, types.SystemActor, pos.UpdatedBy)
	assert.Equal(t, "Redakteurin", pos.PreviousValue)
	assert.InDelta(t, 1.0, pos.Confidence, 1e-9)
	// stage 3: split vote keeps the value
	assert.Equal(t, "Kultur", contact.Data.Department)

	open, err := r.OpenConflicts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	conflict := open[0]
	assert.Equal(t, "department", conflict.Field)
	assert.Equal(t, "Kultur", conflict.CurrentValue)
	assert.Equal(t, "Politik", conflict.SuggestedValue)
	assert.Equal(t, types.PriorityLow, conflict.Priority)
	assert.Equal(t, "lib-1", conflict.EntityID)
	assert.Equal(t, "Anna Schmidt", conflict.EntityName)
	assert.Equal(t, 2, conflict.Evidence.MajorityCount)
	assert.Equal(t, 4, conflict.Evidence.TotalCount)
	assert.Equal(t, types.ValueSourceAutomatic, conflict.Evidence.CurrentValueSource)
	assert.Len(t, conflict.Evidence.Variants, 4)

	assert.Len(t, rec.OfType(events.EventTypeLibraryFieldUpdated), 2)
	assert.Len(t, rec.OfType(events.EventTypeConflictOpened), 1)

	// a second pass changes nothing and does not duplicate the review
	res, err = r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)
	open, err = r.OpenConflicts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestReconcileGuardsFreshManualValues(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedLibraryContact(t, store, "editor@prlibrary", time.Now())
	r := NewResolver(store, libOrg, nil, zerolog.Nop())

	res, err := r.Reconcile(ctx, importedCandidate(
		staffer("Ressortleiterin", "Kultur", ""),
		staffer("Ressortleiterin", "Kultur", ""),
		staffer("Ressortleiterin", "Kultur", ""),
	))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Flagged: 1}, res)

	contact, err := store.GetContact(ctx, libOrg, "lib-1")
	require.NoError(t, err)
	assert.Equal(t, "Redakteurin", contact.Data.Position)

	open, err := r.OpenConflicts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, types.PriorityHigh, open[0].Priority)
	assert.Equal(t, types.ValueSourceManual, open[0].Evidence.CurrentValueSource)
	assert.Equal(t, 0, open[0].Evidence.CurrentValueAgeDays)
}

func TestReconcileIgnoresCandidatesWithoutRecord(t *testing.T) {
	r := NewResolver(setupStore(t), libOrg, nil, zerolog.Nop())
	c := importedCandidate(staffer("x", "", ""))
	c.Status = types.StatusPending
	res, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)

	c.Status = types.StatusImported
	c.ImportedRecordID = "gone"
	_, err = r.Reconcile(context.Background(), c)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestApproveAndRejectConflicts(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedLibraryContact(t, store, types.ImportActor, time.Now().AddDate(0, -1, 0))
	rec := &events.Recorder{}
	r := NewResolver(store, libOrg, rec, zerolog.Nop())

	// two split fields open two reviews
	_, err := r.Reconcile(ctx, importedCandidate(
		staffer("Reporterin", "Politik", ""),
		staffer("Autorin", "Wirtschaft", ""),
	))
	require.NoError(t, err)
	open, err := r.OpenConflicts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	byField := map[string]*types.FieldConflict{}
	for _, c := range open {
		byField[c.Field] = c
	}

	_, err = r.Approve(ctx, byField["department"].ID, "", "")
	assert.Error(t, err)

	approved, err := r.Approve(ctx, byField["department"].ID, "chief@prlibrary", " verified by phone ")
	require.NoError(t, err)
	assert.Equal(t, types.ConflictApproved, approved.Status)
	assert.Equal(t, "chief@prlibrary", approved.ReviewedBy)
	assert.Equal(t, "verified by phone", approved.ReviewNotes)
	require.NotNil(t, approved.ReviewedAt)

	contact, err := store.GetContact(ctx, libOrg, "lib-1")
	require.NoError(t, err)
	assert.Equal(t, "Politik", contact.Data.Department)
	fp := contact.Library.Fields["department"]
	assert.Equal(t, "chief@prlibrary", fp.UpdatedBy)
	assert.Equal(t, "Kultur", fp.PreviousValue)
	assert.Equal(t, reasonApproved, fp.Reason)

	rejected, err := r.Reject(ctx, byField["position"].ID, "chief@prlibrary", "")
	require.NoError(t, err)
	assert.Equal(t, types.ConflictRejected, rejected.Status)
	contact, err = store.GetContact(ctx, libOrg, "lib-1")
	require.NoError(t, err)
	assert.Equal(t, "Redakteurin", contact.Data.Position)

	_, err = r.Approve(ctx, byField["position"].ID, "chief@prlibrary", "")
	assert.True(t, errors.Is(err, ErrConflictClosed))
	_, err = r.Reject(ctx, "missing", "chief@prlibrary", "")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	open, err = r.OpenConflicts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Len(t, rec.OfType(events.EventTypeConflictResolved), 2)
}

func TestReconcileCompanyName(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.UpsertCompany(ctx, &types.Company{
		ID: "lib-co", OrganizationID: libOrg, Data: types.ContactData{DisplayName: "Acme"},
		Library: types.NewLibraryInfo("co", types.SourceAutoMatching, types.ImportActor, time.Now().AddDate(-3, 0, 0)),
	}))
	r := NewResolver(store, libOrg, nil, zerolog.Nop())

	c := &types.MatchingCandidate{ID: "co", EntityType: types.EntityCompany, Status: types.StatusImported, ImportedRecordID: "lib-co"}
	for _, org := range []string{"a", "b", "c"} {
		c.Variants = append(c.Variants, types.Variant{OrganizationID: org, SourceEntityID: org, Data: types.ContactData{DisplayName: "Acme Media"}})
	}
	res, err := r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	company, err := store.GetCompany(ctx, libOrg, "lib-co")
	require.NoError(t, err)
	assert.Equal(t, "Acme Media", company.Data.DisplayName)

	// names need every variant to agree
	c.Variants[2].Data.DisplayName = "Acme Holding"
	res, err = r.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res, "the majority already matches")
}

func TestTallyField(t *testing.T) {
	variants := []types.Variant{
		{Data: types.ContactData{Position: " Editor "}},
		{Data: types.ContactData{Position: "writer"}},
		{Data: types.ContactData{}},
		{Data: types.ContactData{Position: "editor"}},
		{Data: types.ContactData{Position: "Writer"}},
	}
	f, ok := lookupField(types.EntityContact, "position")
	require.True(t, ok)
	tally := tallyField(f, variants)
	assert.Equal(t, "Editor", tally.majority, "ties go to the first value, in its first spelling")
	assert.Equal(t, 2, tally.count)
	assert.Equal(t, 4, tally.total)
	assert.InDelta(t, 0.5, tally.share(), 1e-9)
}

func TestUpdateProbability(t *testing.T) {
	tests := []struct {
		name  string
		share float64
		age   int
		total int
		want  float64
	}{
		{"fresh value", 0.8, 10, 3, 0.8},
		{"older than a year", 0.8, 400, 3, 0.9},
		{"older than two years", 0.7, 800, 3, 0.9},
		{"many variants", 0.8, 0, 5, 0.85},
		{"capped", 0.95, 800, 6, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, updateProbability(tt.share, tt.age, tt.total), 1e-9)
		})
	}
}

func TestConflictPriority(t *testing.T) {
	assert.Equal(t, types.PriorityHigh, conflictPriority(0.9, 4))
	assert.Equal(t, types.PriorityMedium, conflictPriority(0.9, 3))
	assert.Equal(t, types.PriorityMedium, conflictPriority(0.75, 3))
	assert.Equal(t, types.PriorityLow, conflictPriority(0.74, 10))
	assert.Equal(t, types.PriorityLow, conflictPriority(1.0, 2))
}

func TestFieldThreshold(t *testing.T) {
	assert.Equal(t, 1.0, FieldThreshold("name"))
	assert.Equal(t, 0.8, FieldThreshold("website"))
	assert.Equal(t, 0.85, FieldThreshold("logo"))
	assert.Equal(t, defaultFieldThreshold, FieldThreshold("department"))
}

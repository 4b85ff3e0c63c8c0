package deduplication

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/lock"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/storage/sqlite"
	"github.com/prlibrary/matching/internal/types"
)

func setupStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "matching.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedOrgs(t *testing.T, store *sqlite.SQLiteStorage, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.UpsertOrganization(context.Background(), &types.Organization{ID: id, Name: "Org " + id}))
	}
}

func journalist(org, id, email string) *types.Contact {
	return &types.Contact{
		ID:             id,
		OrganizationID: org,
		Data: types.ContactData{
			FirstName: "Anna",
			LastName:  "Schmidt",
			Emails:    []types.Email{{Address: email, Primary: true}},

			HasMediaProfile: true,
		},
	}
}

func newTestScanner(t *testing.T, store Store, rec *events.Recorder) *Scanner {
	t.Helper()
	s, err := NewScanner(store, nil, nil, lock.NewLocal(), rec, zerolog.Nop(), DefaultConfig())
	require.NoError(t, err)
	return s
}

// seedJournalist stores the same journalist in orgs a and b. Two
// organizations, a media profile and a verified newsroom domain score 70.
func seedJournalist(t *testing.T, store *sqlite.SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	seedOrgs(t, store, "a", "b")
	require.NoError(t, store.UpsertContact(ctx, journalist("a", "a1", "Anna.Schmidt@spiegel.de")))
	require.NoError(t, store.UpsertContact(ctx, journalist("b", "b1", "anna.schmidt@spiegel.de")))
}

func TestScanCreatesCandidates(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)

	// skipped: library reference and a contact without any key
	require.NoError(t, store.UpsertContact(ctx, &types.Contact{ID: types.ReferencePrefix + "x", OrganizationID: "a",
		Data: types.ContactData{Emails: []types.Email{{Address: "anna.schmidt@spiegel.de"}}, HasMediaProfile: true}}))
	require.NoError(t, store.UpsertContact(ctx, &types.Contact{ID: "b2", OrganizationID: "b",
		Data: types.ContactData{HasMediaProfile: true}}))
	// not a journalist, neither counted nor matched
	require.NoError(t, store.UpsertContact(ctx, &types.Contact{ID: "a3", OrganizationID: "a",
		Data: types.ContactData{Emails: []types.Email{{Address: "anna.schmidt@spiegel.de"}}}}))
	// companies score 50 and stay below the default threshold
	require.NoError(t, store.UpsertCompany(ctx, &types.Company{ID: "ca", OrganizationID: "a", Data: types.ContactData{DisplayName: "Acme GmbH"}}))
	require.NoError(t, store.UpsertCompany(ctx, &types.Company{ID: "cb", OrganizationID: "b", Data: types.ContactData{DisplayName: "ACME GmbH"}}))

	rec := &events.Recorder{}
	job, err := newTestScanner(t, store, rec).Scan(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, types.JobSuccess, job.Status)
	assert.Equal(t, types.TriggerManual, job.TriggeredBy)
	assert.Equal(t, types.Thresholds{MinScore: MinScore, MinOrganizations: MinOrganizations}, job.Thresholds)
	assert.NotNil(t, job.CompletedAt)

	st := job.Stats
	assert.Equal(t, 2, st.OrganizationsScanned)
	assert.Equal(t, 4, st.ContactsScanned)
	assert.Equal(t, 2, st.CompaniesScanned)
	assert.Equal(t, 1, st.SkippedReferences)
	assert.Equal(t, 1, st.SkippedNoEmail)
	assert.Equal(t, 1, st.SkippedBelowThreshold)
	assert.Equal(t, 1, st.CandidatesCreated)
	assert.Equal(t, 0, st.Errors)

	c, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)
	assert.Equal(t, 70, c.Score)
	assert.Equal(t, 50, c.ScoreBreakdown.Organizations)
	assert.Equal(t, 10, c.ScoreBreakdown.MediaProfile)
	assert.Equal(t, 10, c.ScoreBreakdown.VerifiedDomain)
	assert.Equal(t, 2, c.OrganizationCount)
	assert.Len(t, c.Variants, 2)
	assert.Equal(t, types.StatusPending, c.Status)
	assert.Equal(t, types.MergeSourceMechanical, c.MergeSource)
	assert.Equal(t, int64(1), c.Version)
	assert.Equal(t, job.ID, c.LastScanJobID)
	require.NotNil(t, c.Merged)
	assert.Equal(t, "Anna", c.Merged.FirstName)

	stored, err := store.GetScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobSuccess, stored.Status)
	assert.Equal(t, 1, stored.Stats.CandidatesCreated)

	assert.Len(t, rec.OfType(events.EventTypeScanStarted), 1)
	assert.Len(t, rec.OfType(events.EventTypeScanCompleted), 1)
	assert.Len(t, rec.OfType(events.EventTypeCandidateCreated), 1)
}

func TestScanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	s := newTestScanner(t, store, &events.Recorder{})

	_, err := s.Scan(ctx, Options{})
	require.NoError(t, err)
	job, err := s.Scan(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, job.Stats.CandidatesCreated)
	assert.Equal(t, 0, job.Stats.CandidatesUpdated)
	assert.Equal(t, 1, job.Stats.CandidatesUnchanged)

	c, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version, "unchanged candidates are not rewritten")
}

func TestScanUpdatesWithNewVariants(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	s := newTestScanner(t, store, &events.Recorder{})

	_, err := s.Scan(ctx, Options{})
	require.NoError(t, err)

	seedOrgs(t, store, "c")
	third := journalist("c", "c1", "anna.schmidt@spiegel.de")
	third.Data.Phones = []types.Phone{{Number: "+49 40 123"}}
	require.NoError(t, store.UpsertContact(ctx, third))

	job, err := s.Scan(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Stats.CandidatesUpdated)

	c, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)
	assert.Len(t, c.Variants, 3)
	assert.Equal(t, 3, c.OrganizationCount)
	assert.Equal(t, 70+10+5, c.Score)
	assert.Equal(t, int64(2), c.Version)
	require.NotNil(t, c.Merged)
	assert.Equal(t, "+49 40 123", c.Merged.PrimaryPhone())
}

func TestScanKeepsReviewedStatus(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	s := newTestScanner(t, store, &events.Recorder{})

	_, err := s.Scan(ctx, Options{})
	require.NoError(t, err)
	c, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)

	_, err = NewReviewer(store, nil, zerolog.Nop(), 0).Reject(ctx, c.ID, "editor@prlibrary")
	require.NoError(t, err)

	seedOrgs(t, store, "c")
	require.NoError(t, store.UpsertContact(ctx, journalist("c", "c1", "anna.schmidt@spiegel.de")))
	job, err := s.Scan(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Stats.CandidatesUpdated)

	got, err := store.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, got.Status)
	assert.Equal(t, "editor@prlibrary", got.ReviewedBy)
	assert.Len(t, got.Variants, 3)
}

func TestScanDevelopmentMode(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedOrgs(t, store, "a", "b")

	require.NoError(t, store.UpsertCompany(ctx, &types.Company{ID: "ca", OrganizationID: "a",
		Data: types.ContactData{DisplayName: "Acme GmbH", Website: "https://acme.de"}}))
	require.NoError(t, store.UpsertCompany(ctx, &types.Company{ID: "cb", OrganizationID: "b",
		Data: types.ContactData{DisplayName: "ACME GmbH"}}))

	feed := "https://www.taz.de/rss.xml"
	require.NoError(t, store.UpsertPublication(ctx, &types.Publication{ID: "pa", OrganizationID: "a",
		Title: "taz", Website: "https://www.taz.de", RSSFeedURL: feed}))
	require.NoError(t, store.UpsertPublication(ctx, &types.Publication{ID: "pb", OrganizationID: "b",
		Title: "die tageszeitung", Website: "taz.de/"}))

	// single-org contact only qualifies in development mode
	require.NoError(t, store.UpsertContact(ctx, journalist("a", "a1", "solo@example.com")))
	require.NoError(t, store.UpsertContact(ctx, &types.Contact{ID: "a2", OrganizationID: "a", Data: types.ContactData{
		Emails: []types.Email{{Address: "solo@example.com"}}, Phones: []types.Phone{{Number: "1"}},
		Beats: []string{"politics"}, SocialProfiles: []types.SocialProfile{{Platform: "x", URL: "https://x.com/solo"}},
		HasMediaProfile: true,
	}}))

	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(ctx, Options{DevelopmentMode: true})
	require.NoError(t, err)
	assert.True(t, job.DevelopmentMode)
	assert.Equal(t, types.Thresholds{MinScore: DevMinScore, MinOrganizations: DevMinOrganizations}, job.Thresholds)
	assert.Equal(t, 3, job.Stats.CandidatesCreated)

	company, err := store.GetCandidateByKey(ctx, types.EntityCompany, "acme")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAutoConfirmed, company.Status)
	assert.Equal(t, types.ConfidenceVeryHigh, company.Confidence)

	pub, err := store.GetCandidateByKey(ctx, types.EntityPublication, "taz.de")
	require.NoError(t, err)
	require.NotNil(t, pub.Monitoring)
	assert.Equal(t, []string{feed}, pub.Monitoring.RSSFeedURLs)
	assert.True(t, pub.Monitoring.IsEnabled)

	solo, err := store.GetCandidateByKey(ctx, types.EntityContact, "solo@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, solo.OrganizationCount)
	assert.Equal(t, 0, solo.ScoreBreakdown.Organizations)
	assert.Equal(t, 25, solo.Score)
}

func TestScanThresholdOverrides(t *testing.T) {
	store := setupStore(t)
	seedJournalist(t, store)

	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(context.Background(), Options{MinScore: 80})
	require.NoError(t, err)
	assert.Equal(t, 80, job.Thresholds.MinScore)
	assert.Equal(t, 0, job.Stats.CandidatesCreated)
	assert.Equal(t, 1, job.Stats.SkippedBelowThreshold)
}

func TestScanOrganizationFilter(t *testing.T) {
	store := setupStore(t)
	seedJournalist(t, store)

	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(context.Background(),
		Options{OrganizationIDs: []string{"a"}, TriggeredBy: types.TriggerScheduled})
	require.NoError(t, err)
	assert.Equal(t, types.TriggerScheduled, job.TriggeredBy)
	assert.Equal(t, 1, job.Stats.OrganizationsScanned)
	assert.Equal(t, 0, job.Stats.CandidatesCreated)
}

func TestScanSkipsContactsWithoutMediaProfile(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedOrgs(t, store, "a", "b")
	for _, org := range []string{"a", "b"} {
		c := journalist(org, org+"1", "press@acme.de")
		c.Data.HasMediaProfile = false
		require.NoError(t, store.UpsertContact(ctx, c))
	}

	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(ctx, Options{DevelopmentMode: true})
	require.NoError(t, err)
	assert.Equal(t, 0, job.Stats.ContactsScanned)
	assert.Equal(t, 0, job.Stats.SkippedNoEmail)
	assert.Equal(t, 0, job.Stats.CandidatesCreated)
	_, err = store.GetCandidateByKey(ctx, types.EntityContact, "press@acme.de")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestScanSkipsLibraryOrganization(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	require.NoError(t, store.UpsertOrganization(ctx, &types.Organization{ID: "lib", Name: "Library", Type: types.OrgTypeSuperAdmin}))
	require.NoError(t, store.UpsertContact(ctx, journalist("lib", "l1", "anna.schmidt@spiegel.de")))

	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, job.Stats.OrganizationsScanned)
	assert.Equal(t, 2, job.Stats.ContactsScanned)

	c, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna.schmidt@spiegel.de")
	require.NoError(t, err)
	assert.Equal(t, 2, c.OrganizationCount)
	for _, v := range c.Variants {
		assert.NotEqual(t, "lib", v.OrganizationID)
	}
}

func TestScanInProgress(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	locker := lock.NewLocal()
	rec := &events.Recorder{}
	s, err := NewScanner(store, nil, nil, locker, rec, zerolog.Nop(), DefaultConfig())
	require.NoError(t, err)

	held, err := locker.TryLock(ctx, DefaultLockKey, time.Minute)
	require.NoError(t, err)

	job, err := s.Scan(ctx, Options{})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.Len(t, rec.OfType(events.EventTypeScanSkipped), 1)

	jobs, err := store.ListScanJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "a skipped scan leaves no job behind")

	require.NoError(t, held.Release(ctx))
	_, err = s.Scan(ctx, Options{})
	assert.NoError(t, err)
}

// faultyStore injects failures into a real store
type faultyStore struct {
	*sqlite.SQLiteStorage
	listOrgsErr error
	onListOrgs  func()
	conflicts   int32
	// finishFailures fails that many FinishScanJob calls, finishBroken all
	finishFailures int32
	finishBroken   bool
	finishCalls    int32
}

func (f *faultyStore) FinishScanJob(ctx context.Context, job *types.ScanJob) error {
	atomic.AddInt32(&f.finishCalls, 1)
	if f.finishBroken || atomic.AddInt32(&f.finishFailures, -1) >= 0 {
		return errors.New("database is locked")
	}
	return f.SQLiteStorage.FinishScanJob(ctx, job)
}

func (f *faultyStore) ListOrganizations(ctx context.Context, ids []string) ([]*types.Organization, error) {
	if f.onListOrgs != nil {
		f.onListOrgs()
	}
	if f.listOrgsErr != nil {
		return nil, f.listOrgsErr
	}
	return f.SQLiteStorage.ListOrganizations(ctx, ids)
}

func (f *faultyStore) UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error {
	if atomic.AddInt32(&f.conflicts, -1) >= 0 {
		return types.ErrVersionConflict
	}
	return f.SQLiteStorage.UpdateCandidate(ctx, c, expectedVersion)
}

func assertFailedJob(t *testing.T, store *sqlite.SQLiteStorage, job *types.ScanJob, err error) {
	t.Helper()
	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr), "want *ScanError, got %v", err)
	require.NotNil(t, job)
	assert.Equal(t, job.ID, scanErr.JobID)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)

	stored, gerr := store.GetScanJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, types.JobFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestScanFailureFinalizesJob(t *testing.T) {
	store := setupStore(t)
	faulty := &faultyStore{SQLiteStorage: store, listOrgsErr: errors.New("connection reset")}
	rec := &events.Recorder{}
	s := newTestScanner(t, faulty, rec)

	job, err := s.Scan(context.Background(), Options{})
	assertFailedJob(t, store, job, err)
	assert.Contains(t, job.Error, "connection reset")
	assert.Len(t, rec.OfType(events.EventTypeScanFailed), 1)

	// the lock was released
	faulty.listOrgsErr = nil
	_, err = s.Scan(context.Background(), Options{})
	assert.NoError(t, err)
}

func TestScanCancelledContextFinalizesJob(t *testing.T) {
	store := setupStore(t)
	seedJournalist(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestScanner(t, &faultyStore{SQLiteStorage: store, onListOrgs: cancel}, &events.Recorder{})
	job, err := s.Scan(ctx, Options{})
	assertFailedJob(t, store, job, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanRetriesJobFinalize(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	faulty := &faultyStore{SQLiteStorage: store, finishFailures: 1}

	job, err := newTestScanner(t, faulty, &events.Recorder{}).Scan(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.JobSuccess, job.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&faulty.finishCalls))

	stored, err := store.GetScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobSuccess, stored.Status)
	assert.Equal(t, 1, stored.Stats.CandidatesCreated)
}

func TestScanUnfinalizedJobIsSweptAsAbandoned(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	faulty := &faultyStore{SQLiteStorage: store, finishBroken: true}
	cfg := DefaultConfig()
	cfg.FinalizeTimeout = 250 * time.Millisecond
	rec := &events.Recorder{}
	s, err := NewScanner(faulty, nil, nil, lock.NewLocal(), rec, zerolog.Nop(), cfg)
	require.NoError(t, err)

	job, err := s.Scan(ctx, Options{})
	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr), "want *ScanError, got %v", err)
	assert.Equal(t, job.ID, scanErr.JobID)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Greater(t, atomic.LoadInt32(&faulty.finishCalls), int32(1))

	stored, err := store.GetScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, stored.Status)

	// a scan within the lock TTL leaves the record alone
	faulty.finishBroken = false
	_, err = s.Scan(ctx, Options{})
	require.NoError(t, err)
	stored, err = store.GetScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, stored.Status)

	s.now = func() time.Time { return time.Now().Add(cfg.LockTTL + time.Minute) }
	_, err = s.Scan(ctx, Options{})
	require.NoError(t, err)

	stored, err = store.GetScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, stored.Status)
	assert.Contains(t, stored.Error, "abandoned")
	assert.NotNil(t, stored.CompletedAt)

	running, err := store.ListRunningScanJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, running)
	assert.NotEmpty(t, rec.OfType(events.EventTypeScanFailed))
}

type panickingMerger struct{}

func (panickingMerger) MergeVariants(context.Context, []types.Variant, bool) merge.Result {
	panic("merger exploded")
}

func TestScanPanicFinalizesJob(t *testing.T) {
	store := setupStore(t)
	seedJournalist(t, store)

	s, err := NewScanner(store, panickingMerger{}, nil, nil, nil, zerolog.Nop(), DefaultConfig())
	require.NoError(t, err)
	job, err := s.Scan(context.Background(), Options{})
	assertFailedJob(t, store, job, err)
	assert.Contains(t, job.Error, "merger exploded")
}

func TestScanRetriesVersionConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int32
		updated   int
		errors    int
	}{
		{"recovers within attempts", 2, 1, 0},
		{"gives up after max attempts", 3, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := setupStore(t)
			seedJournalist(t, store)
			_, err := newTestScanner(t, store, &events.Recorder{}).Scan(ctx, Options{})
			require.NoError(t, err)
			seedOrgs(t, store, "c")
			require.NoError(t, store.UpsertContact(ctx, journalist("c", "c1", "anna.schmidt@spiegel.de")))

			rec := &events.Recorder{}
			s := newTestScanner(t, &faultyStore{SQLiteStorage: store, conflicts: tt.conflicts}, rec)
			job, err := s.Scan(ctx, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.updated, job.Stats.CandidatesUpdated)
			assert.Equal(t, tt.errors, job.Stats.Errors)
			assert.Len(t, rec.OfType(events.EventTypeVersionConflict), int(tt.conflicts))
		})
	}
}

func TestNewScannerValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUpdateAttempts = 0
	_, err := NewScanner(setupStore(t), nil, nil, nil, nil, zerolog.Nop(), cfg)
	assert.Error(t, err)

	_, err = NewScanner(nil, nil, nil, nil, nil, zerolog.Nop(), DefaultConfig())
	assert.Error(t, err)
}

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newCandidate(key string, orgs ...string) *types.MatchingCandidate {
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &types.MatchingCandidate{
		ID:         "cand-" + key,
		EntityType: types.EntityContact,
		MatchKey:   key,
		Status:     types.StatusPending,
		Score:      60,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, org := range orgs {
		c.Variants = append(c.Variants, types.Variant{
			OrganizationID: org,
			SourceEntityID: fmt.Sprintf("c%d", i),
			Data:           types.ContactData{FirstName: "Anna", LastName: "Schmidt"},
		})
	}
	c.OrganizationCount = c.DistinctOrganizations()
	return c
}

func TestInMemoryDatabase(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	defer store.Close()

	if err := store.UpsertOrganization(context.Background(), &types.Organization{ID: "org-a", Name: "A"}); err != nil {
		t.Fatalf("UpsertOrganization failed: %v", err)
	}
}

func TestCandidateLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	c := newCandidate("anna@example.com", "org-a", "org-b")
	if err := store.CreateCandidate(ctx, c); err != nil {
		t.Fatalf("CreateCandidate failed: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("expected version 1 after create, got %d", c.Version)
	}

	dup := newCandidate("anna@example.com", "org-c")
	dup.ID = "other"
	if err := store.CreateCandidate(ctx, dup); !errors.Is(err, types.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.GetCandidateByKey(ctx, types.EntityContact, "anna@example.com")
	if err != nil {
		t.Fatalf("GetCandidateByKey failed: %v", err)
	}
	if got.ID != c.ID || len(got.Variants) != 2 {
		t.Errorf("unexpected candidate: %+v", got)
	}

	got.Score = 80
	if err := store.UpdateCandidate(ctx, got, got.Version); err != nil {
		t.Fatalf("UpdateCandidate failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2, got %d", got.Version)
	}

	// c still carries version 1
	c.Score = 10
	if err := store.UpdateCandidate(ctx, c, c.Version); !errors.Is(err, types.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	reloaded, err := store.GetCandidate(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCandidate failed: %v", err)
	}
	if reloaded.Score != 80 || reloaded.Version != 2 {
		t.Errorf("stale write leaked: score=%d version=%d", reloaded.Score, reloaded.Version)
	}

	missing := newCandidate("nobody@example.com", "org-a")
	if err := store.UpdateCandidate(ctx, missing, 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetCandidate(ctx, "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCandidatesFilters(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := newCandidate("a@example.com", "org-a", "org-b")
	a.Score = 90
	b := newCandidate("b@example.com", "org-b", "org-c")
	b.Score = 70
	c := newCandidate("acme", "org-a", "org-c")
	c.EntityType = types.EntityCompany
	c.Status = types.StatusAutoConfirmed
	for _, cand := range []*types.MatchingCandidate{a, b, c} {
		if err := store.CreateCandidate(ctx, cand); err != nil {
			t.Fatalf("CreateCandidate(%s) failed: %v", cand.MatchKey, err)
		}
	}

	tests := []struct {
		name   string
		filter types.CandidateFilter
		want   []string
	}{
		{"all by score", types.CandidateFilter{}, []string{a.ID, b.ID, c.ID}},
		{"entity type", types.CandidateFilter{EntityType: types.EntityCompany}, []string{c.ID}},
		{"status", types.CandidateFilter{Status: types.StatusPending}, []string{a.ID, b.ID}},
		{"organization", types.CandidateFilter{OrganizationID: "org-c"}, []string{b.ID, c.ID}},
		{"limit", types.CandidateFilter{Limit: 1}, []string{a.ID}},
		{"min score", types.CandidateFilter{MinScore: 70}, []string{a.ID, b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListCandidates(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListCandidates failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d candidates, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestOrganizationLinksFollowVariants(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	c := newCandidate("move@example.com", "org-a", "org-b")
	if err := store.CreateCandidate(ctx, c); err != nil {
		t.Fatalf("CreateCandidate failed: %v", err)
	}
	c.Variants = newCandidate("move@example.com", "org-b", "org-c").Variants
	if err := store.UpdateCandidate(ctx, c, c.Version); err != nil {
		t.Fatalf("UpdateCandidate failed: %v", err)
	}

	got, err := store.ListCandidates(ctx, types.CandidateFilter{OrganizationID: "org-a"})
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("org-a no longer contributes, got %d candidates", len(got))
	}
}

func TestScanJobs(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC()

	older := &types.ScanJob{ID: "job-1", Status: types.JobRunning, TriggeredBy: types.TriggerScheduled, StartedAt: start.Add(-time.Hour)}
	newer := &types.ScanJob{ID: "job-2", Status: types.JobRunning, TriggeredBy: types.TriggerManual, StartedAt: start}
	for _, j := range []*types.ScanJob{older, newer} {
		if err := store.CreateScanJob(ctx, j); err != nil {
			t.Fatalf("CreateScanJob failed: %v", err)
		}
	}

	if err := store.FinishScanJob(ctx, newer); err == nil {
		t.Error("expected error finishing a job still marked running")
	}

	newer.Stats.CandidatesCreated = 3
	newer.Finish(start.Add(2*time.Second), nil)
	if err := store.FinishScanJob(ctx, newer); err != nil {
		t.Fatalf("FinishScanJob failed: %v", err)
	}

	rewritten := *newer
	rewritten.Status = types.JobFailed
	rewritten.Error = "late failure"
	if err := store.FinishScanJob(ctx, &rewritten); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected finished job to be immutable, got %v", err)
	}

	got, err := store.GetScanJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("GetScanJob failed: %v", err)
	}
	if got.Status != types.JobSuccess || got.Stats.CandidatesCreated != 3 || got.DurationMs != 2000 {
		t.Errorf("unexpected job: %+v", got)
	}

	jobs, err := store.ListScanJobs(ctx, 0)
	if err != nil {
		t.Fatalf("ListScanJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-2" {
		t.Errorf("expected newest job first, got %+v", jobs)
	}

	if _, err := store.GetScanJob(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	running, err := store.ListRunningScanJobs(ctx)
	if err != nil {
		t.Fatalf("ListRunningScanJobs failed: %v", err)
	}
	if len(running) != 1 || running[0].ID != "job-1" {
		t.Errorf("expected only job-1 running, got %+v", running)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	st, err := store.GetSettings(ctx)
	if err != nil || st != nil {
		t.Fatalf("expected no settings yet, got %+v, %v", st, err)
	}

	next := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	want := &types.GlobalSettings{
		UseAIMerge: true,
		AutoScan: types.AutoScanConfig{
			Enabled:  true,
			Interval: types.IntervalDaily,
			NextRun:  &next,
		},
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: "admin",
	}
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	want.UseAIMerge = false
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings overwrite failed: %v", err)
	}

	got, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got.UseAIMerge || got.AutoScan.Interval != types.IntervalDaily || !got.AutoScan.NextRun.Equal(next) {
		t.Errorf("unexpected settings: %+v", got)
	}
}

func TestTenantRecords(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"org-b", "org-a", "org-c"} {
		if err := store.UpsertOrganization(ctx, &types.Organization{ID: id, Name: id}); err != nil {
			t.Fatalf("UpsertOrganization failed: %v", err)
		}
	}
	orgs, err := store.ListOrganizations(ctx, nil)
	if err != nil || len(orgs) != 3 || orgs[0].ID != "org-a" {
		t.Fatalf("unexpected organizations: %+v, %v", orgs, err)
	}
	orgs, err = store.ListOrganizations(ctx, []string{"org-c", "org-x"})
	if err != nil || len(orgs) != 1 || orgs[0].ID != "org-c" {
		t.Fatalf("unexpected filtered organizations: %+v, %v", orgs, err)
	}

	contact := &types.Contact{ID: "c1", OrganizationID: "org-a", Data: types.ContactData{FirstName: "Anna"}}
	if err := store.UpsertContact(ctx, contact); err != nil {
		t.Fatalf("UpsertContact failed: %v", err)
	}
	contact.Data.LastName = "Schmidt"
	if err := store.UpsertContact(ctx, contact); err != nil {
		t.Fatalf("UpsertContact update failed: %v", err)
	}
	contacts, err := store.ListContacts(ctx, "org-a")
	if err != nil || len(contacts) != 1 || contacts[0].Data.LastName != "Schmidt" {
		t.Fatalf("unexpected contacts: %+v, %v", contacts, err)
	}

	pub := &types.Publication{ID: "p1", OrganizationID: "org-b", Title: "Der Spiegel"}
	if err := store.UpsertPublication(ctx, pub); err != nil {
		t.Fatalf("UpsertPublication failed: %v", err)
	}
	pubs, err := store.ListPublications(ctx, "org-a")
	if err != nil || len(pubs) != 0 {
		t.Fatalf("publications leaked across organizations: %+v, %v", pubs, err)
	}

	got, err := store.GetContact(ctx, "org-a", "c1")
	if err != nil || got.Data.LastName != "Schmidt" {
		t.Fatalf("unexpected contact: %+v, %v", got, err)
	}
	if _, err := store.GetContact(ctx, "org-b", "c1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound across organizations, got %v", err)
	}
	if _, err := store.GetPublication(ctx, "org-b", "p1"); err != nil {
		t.Errorf("GetPublication failed: %v", err)
	}
	if _, err := store.GetCompany(ctx, "org-a", "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrganizationType(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	lib := &types.Organization{ID: "lib", Name: "Library", Type: types.OrgTypeSuperAdmin}
	if err := store.UpsertOrganization(ctx, lib); err != nil {
		t.Fatalf("UpsertOrganization failed: %v", err)
	}
	orgs, err := store.ListOrganizations(ctx, []string{"lib"})
	if err != nil || len(orgs) != 1 || !orgs[0].IsLibrary() {
		t.Fatalf("organization type not stored: %+v, %v", orgs, err)
	}

	lib.Type = ""
	if err := store.UpsertOrganization(ctx, lib); err != nil {
		t.Fatalf("UpsertOrganization update failed: %v", err)
	}
	orgs, _ = store.ListOrganizations(ctx, nil)
	if len(orgs) != 1 || orgs[0].IsLibrary() {
		t.Errorf("organization type not updated: %+v", orgs)
	}
}

func TestDeleteCandidate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	c := newCandidate("anna@example.com", "org-a", "org-b")
	if err := store.CreateCandidate(ctx, c); err != nil {
		t.Fatalf("CreateCandidate failed: %v", err)
	}
	if err := store.DeleteCandidate(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCandidate failed: %v", err)
	}
	if _, err := store.GetCandidate(ctx, c.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected deleted candidate to be gone, got %v", err)
	}
	list, err := store.ListCandidates(ctx, types.CandidateFilter{OrganizationID: "org-a"})
	if err != nil || len(list) != 0 {
		t.Errorf("organization links survived delete: %+v, %v", list, err)
	}
	if err := store.DeleteCandidate(ctx, c.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	// the match key is free again
	if err := store.CreateCandidate(ctx, newCandidate("anna@example.com", "org-a")); err != nil {
		t.Errorf("recreate after delete failed: %v", err)
	}
}

func TestConflicts(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newConflict := func(id string, p types.ConflictPriority, age time.Duration) *types.FieldConflict {
		return &types.FieldConflict{
			ID: id, EntityType: types.EntityCompany, EntityID: "lib-acme", Field: "website",
			CurrentValue: "acme.de", SuggestedValue: "acme.com",
			Priority: p, Status: types.ConflictPending, CreatedAt: now.Add(-age),
		}
	}
	for _, c := range []*types.FieldConflict{
		newConflict("low-new", types.PriorityLow, 0),
		newConflict("high-old", types.PriorityHigh, time.Hour),
		newConflict("high-new", types.PriorityHigh, time.Minute),
	} {
		if err := store.CreateConflict(ctx, c); err != nil {
			t.Fatalf("CreateConflict failed: %v", err)
		}
	}
	if err := store.CreateConflict(ctx, newConflict("low-new", types.PriorityLow, 0)); !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	open, err := store.ListConflicts(ctx, types.ConflictFilter{Status: types.ConflictPending})
	if err != nil {
		t.Fatalf("ListConflicts failed: %v", err)
	}
	var ids []string
	for _, c := range open {
		ids = append(ids, c.ID)
	}
	if fmt.Sprint(ids) != "[high-new high-old low-new]" {
		t.Errorf("unexpected order: %v", ids)
	}

	got, err := store.GetConflict(ctx, "high-old")
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	got.Status = types.ConflictRejected
	got.ReviewedBy = "editor"
	if err := store.UpdateConflict(ctx, got); err != nil {
		t.Fatalf("UpdateConflict failed: %v", err)
	}
	open, _ = store.ListConflicts(ctx, types.ConflictFilter{Status: types.ConflictPending, Field: "website", Limit: 5})
	if len(open) != 2 {
		t.Errorf("expected 2 open conflicts, got %d", len(open))
	}

	if _, err := store.GetConflict(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateConflict(ctx, newConflict("missing", types.PriorityLow, 0)); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsStoreAndCleanup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	old := events.NewSimpleEvent(events.EventTypeScanCompleted, events.SeverityInfo, "old scan")
	old.Timestamp = time.Now().AddDate(0, 0, -40)
	old.JobID = "job-old"
	recent := events.NewSimpleEvent(events.EventTypeMergeAIFallback, events.SeverityWarning, "fell back")
	recent.JobID = "job-new"
	if err := recent.SetMergeData(events.MergeData{VariantCount: 2, Source: "mechanical", ErrorKind: "timeout"}); err != nil {
		t.Fatalf("SetMergeData failed: %v", err)
	}
	for _, e := range []*events.Event{old, recent} {
		if err := store.StoreEvent(ctx, e); err != nil {
			t.Fatalf("StoreEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, events.EventFilter{JobID: "job-new"})
	if err != nil || len(got) != 1 {
		t.Fatalf("GetEvents: %+v, %v", got, err)
	}
	data, err := got[0].GetMergeData()
	if err != nil || data.ErrorKind != "timeout" {
		t.Errorf("merge data lost: %+v, %v", data, err)
	}

	counts, err := store.GetEventCounts(ctx)
	if err != nil {
		t.Fatalf("GetEventCounts failed: %v", err)
	}
	if counts.TotalEvents != 2 || counts.EventsBySeverity["warning"] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}

	deleted, err := store.CleanupEventsByAge(ctx, 30, 10)
	if err != nil {
		t.Fatalf("CleanupEventsByAge failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted event, got %d", deleted)
	}
	if _, err := store.CleanupEventsByAge(ctx, 30, 0); err == nil {
		t.Error("expected error for zero batch size")
	}
}

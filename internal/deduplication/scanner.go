package deduplication

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/lock"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/monitoring"
	"github.com/prlibrary/matching/internal/types"
)

// ErrScanInProgress is returned when another scan holds the scan lock.
// No job record is created in that case.
var ErrScanInProgress = errors.New("scan already in progress")

// ErrScanAbandoned is recorded on jobs found still running after the lock
// TTL expired.
var ErrScanAbandoned = errors.New("scan abandoned")

// finalizeRetryDelay is the first pause between attempts to write the job
// record; it doubles up to maxFinalizeRetryDelay.
const (
	finalizeRetryDelay    = 100 * time.Millisecond
	maxFinalizeRetryDelay = 2 * time.Second
)

// ScanError reports a scan that started but did not complete cleanly: the
// scan itself failed, or its job record could not be written within the
// finalize timeout. A record left running that way is failed as abandoned by
// the first scan that starts after the lock TTL.
type ScanError struct {
	JobID string
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s failed: %v", e.JobID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Store is the storage the scanner reads tenant records from and writes
// candidates and jobs to.
type Store interface {
	ListOrganizations(ctx context.Context, ids []string) ([]*types.Organization, error)
	ListContacts(ctx context.Context, orgID string) ([]*types.Contact, error)
	ListCompanies(ctx context.Context, orgID string) ([]*types.Company, error)
	ListPublications(ctx context.Context, orgID string) ([]*types.Publication, error)

	CreateCandidate(ctx context.Context, c *types.MatchingCandidate) error
	UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error
	GetCandidateByKey(ctx context.Context, entityType types.EntityType, matchKey string) (*types.MatchingCandidate, error)

	CreateScanJob(ctx context.Context, job *types.ScanJob) error
	FinishScanJob(ctx context.Context, job *types.ScanJob) error
	ListRunningScanJobs(ctx context.Context) ([]*types.ScanJob, error)
}

// SettingsReader provides the operator settings for a scan
type SettingsReader interface {
	Get(ctx context.Context) types.GlobalSettings
}

// VariantMerger merges a candidate's variants into one record
type VariantMerger interface {
	MergeVariants(ctx context.Context, variants []types.Variant, useAI bool) merge.Result
}

// FieldReconciler folds rescanned variants of an imported candidate into
// its library record
type FieldReconciler interface {
	Reconcile(ctx context.Context, c *types.MatchingCandidate) (ReconcileResult, error)
}

// Scanner groups tenant records into matching candidates.
type Scanner struct {
	store      Store
	merger     VariantMerger
	settings   SettingsReader
	locker     lock.Locker
	reconciler FieldReconciler
	emitter    events.Emitter
	logger     zerolog.Logger
	cfg        Config
	now        func() time.Time
}

// NewScanner creates a scanner. A nil merger merges mechanically, a nil
// settings reader disables AI merging and a nil locker serializes scans
// within this process only.
func NewScanner(store Store, merger VariantMerger, settings SettingsReader, locker lock.Locker,
	emitter events.Emitter, logger zerolog.Logger, cfg Config) (*Scanner, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scanner config: %w", err)
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if merger == nil {
		merger = merge.NewMerger(nil, 0, emitter, logger)
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Scanner{
		store:    store,
		merger:   merger,
		settings: settings,
		locker:   locker,
		emitter:  emitter,
		logger:   logger.With().Str("component", "scanner").Logger(),
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// SetReconciler makes scans reconcile the library records of imported
// candidates whose variants changed.
func (s *Scanner) SetReconciler(r FieldReconciler) {
	s.reconciler = r
}

// Scan runs one scan. It returns ErrScanInProgress when another scan holds
// the lock, and a *ScanError together with the failed job when the scan
// started but could not complete. The job is always finalized before Scan
// returns, even when ctx is cancelled or the scan panics.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*types.ScanJob, error) {
	held, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		s.logger.Info().Str("triggered_by", string(opts.TriggeredBy)).Msg("scan skipped, another scan is running")
		s.emitter.Emit(ctx, events.NewSimpleEvent(events.EventTypeScanSkipped, events.SeverityInfo,
			"Scan skipped: another scan is in progress"))
		return nil, ErrScanInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
		defer cancel()
		if err := held.Release(rctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release scan lock")
		}
	}()

	s.sweepAbandoned(ctx)

	trigger := opts.TriggeredBy
	if trigger == "" {
		trigger = types.TriggerManual
	}
	job := &types.ScanJob{
		ID:              uuid.New().String(),
		Status:          types.JobRunning,
		TriggeredBy:     trigger,
		DevelopmentMode: opts.DevelopmentMode,
		Thresholds:      opts.Thresholds(),
		StartedAt:       s.now(),
	}
	if err := s.store.CreateScanJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create scan job: %w", err)
	}
	ev, evErr := events.NewScanEvent(job)
	events.Emit(ctx, s.emitter, ev, evErr)
	s.logger.Info().Str("job_id", job.ID).Str("triggered_by", string(trigger)).
		Bool("development_mode", opts.DevelopmentMode).
		Int("min_score", job.Thresholds.MinScore).
		Int("min_organizations", job.Thresholds.MinOrganizations).
		Msg("scan started")

	runErr := s.run(ctx, job, opts)
	finErr := s.finalize(ctx, job, runErr)

	err = runErr
	if finErr != nil {
		err = errors.Join(runErr, finErr)
	}
	if err != nil {
		return job, &ScanError{JobID: job.ID, Err: err}
	}
	return job, nil
}

// sweepAbandoned fails jobs still running after the lock TTL. The caller
// holds the scan lock, so such jobs belong to scanners that died or could
// not record their outcome.
func (s *Scanner) sweepAbandoned(ctx context.Context) {
	jobs, err := s.store.ListRunningScanJobs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list running scan jobs")
		return
	}
	now := s.now()
	cutoff := now.Add(-s.cfg.LockTTL)
	for _, job := range jobs {
		if !job.StartedAt.Before(cutoff) {
			continue
		}
		job.Finish(now, fmt.Errorf("%w: still running after %v", ErrScanAbandoned, s.cfg.LockTTL))
		if err := s.store.FinishScanJob(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark abandoned scan job")
			continue
		}
		s.logger.Warn().Str("job_id", job.ID).Time("started_at", job.StartedAt).Msg("marked abandoned scan job as failed")
		ev, evErr := events.NewScanEvent(job)
		events.Emit(ctx, s.emitter, ev, evErr)
	}
}

func (s *Scanner) run(ctx context.Context, job *types.ScanJob, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job_id", job.ID).Str("stack", string(debug.Stack())).
				Msgf("scan panicked: %v", r)
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()

	useAI := false
	if s.settings != nil {
		useAI = s.settings.Get(ctx).UseAIMerge
	}

	groups, err := s.collect(ctx, job, opts.OrganizationIDs)
	if err != nil {
		return err
	}

	th := job.Thresholds
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan interrupted: %w", err)
		}
		if types.CountOrganizations(g.variants) < th.MinOrganizations {
			job.Stats.SkippedBelowThreshold++
			continue
		}
		if score, _ := ScoreCandidate(g.variants); score < th.MinScore {
			job.Stats.SkippedBelowThreshold++
			continue
		}

		outcome, err := s.upsert(ctx, job, g, useAI)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("scan interrupted: %w", ctx.Err())
			}
			job.Stats.Errors++
			s.logger.Warn().Err(err).Str("job_id", job.ID).Str("entity_type", string(g.entityType)).
				Str("match_key", g.key).Msg("failed to upsert candidate")
			continue
		}
		switch outcome {
		case outcomeCreated:
			job.Stats.CandidatesCreated++
		case outcomeUpdated:
			job.Stats.CandidatesUpdated++
		case outcomeUnchanged:
			job.Stats.CandidatesUnchanged++
		}
	}
	return nil
}

// group is the set of variants sharing one match key
type group struct {
	entityType types.EntityType
	key        string
	variants   []types.Variant
}

type collector struct {
	groups map[string]*group
}

func (c *collector) add(entityType types.EntityType, key string, v types.Variant) {
	id := string(entityType) + "\x00" + key
	g, ok := c.groups[id]
	if !ok {
		g = &group{entityType: entityType, key: key}
		c.groups[id] = g
	}
	g.variants = append(g.variants, v)
}

// sorted returns the groups by entity type and key so scans are repeatable
func (c *collector) sorted() []*group {
	out := make([]*group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].entityType != out[j].entityType {
			return out[i].entityType < out[j].entityType
		}
		return out[i].key < out[j].key
	})
	return out
}

// collect loads every organization's records and groups them. Failing to
// list organizations fails the scan; a failing per-organization listing is
// counted and skipped.
func (s *Scanner) collect(ctx context.Context, job *types.ScanJob, orgIDs []string) ([]*group, error) {
	orgs, err := s.store.ListOrganizations(ctx, orgIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations: %w", err)
	}

	c := &collector{groups: make(map[string]*group)}
	now := s.now()
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan interrupted: %w", err)
		}
		if org.IsLibrary() {
			continue
		}
		job.Stats.OrganizationsScanned++
		base := types.Variant{OrganizationID: org.ID, OrganizationName: org.Name, ScannedAt: now}

		contacts, err := s.store.ListContacts(ctx, org.ID)
		if err != nil {
			s.countLoadError(job, org.ID, "contacts", err)
		}
		for _, contact := range contacts {
			// only journalists are matched
			if !contact.Data.HasMediaProfile {
				continue
			}
			job.Stats.ContactsScanned++
			if contact.IsLibraryReference() {
				job.Stats.SkippedReferences++
				continue
			}
			key := ContactKey(contact.Data)
			if key == "" {
				job.Stats.SkippedNoEmail++
				continue
			}
			v := base
			v.SourceEntityID = contact.ID
			v.Data = contact.Data.Clone()
			c.add(types.EntityContact, key, v)
		}

		companies, err := s.store.ListCompanies(ctx, org.ID)
		if err != nil {
			s.countLoadError(job, org.ID, "companies", err)
		}
		for _, company := range companies {
			job.Stats.CompaniesScanned++
			key := CompanyKey(company.Data)
			if key == "" {
				continue
			}
			v := base
			v.SourceEntityID = company.ID
			v.Data = company.Data.Clone()
			c.add(types.EntityCompany, key, v)
		}

		publications, err := s.store.ListPublications(ctx, org.ID)
		if err != nil {
			s.countLoadError(job, org.ID, "publications", err)
		}
		for _, p := range publications {
			job.Stats.PublicationsScanned++
			key := PublicationKey(p)
			if key == "" {
				continue
			}
			cfg := monitoring.ForPublication(p)
			v := base
			v.SourceEntityID = p.ID
			v.Data = types.ContactData{DisplayName: p.Title, Website: p.Website}
			v.Monitoring = &cfg
			c.add(types.EntityPublication, key, v)
		}
	}
	return c.sorted(), nil
}

func (s *Scanner) countLoadError(job *types.ScanJob, orgID, what string, err error) {
	job.Stats.Errors++
	s.logger.Warn().Err(err).Str("job_id", job.ID).Str("organization_id", orgID).
		Msgf("failed to load %s", what)
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// upsert writes the candidate for g, retrying when a concurrent writer wins
// the version check or the create race.
func (s *Scanner) upsert(ctx context.Context, job *types.ScanJob, g *group, useAI bool) (outcome, error) {
	for attempt := 1; attempt <= s.cfg.MaxUpdateAttempts; attempt++ {
		existing, err := s.store.GetCandidateByKey(ctx, g.entityType, g.key)
		if errors.Is(err, types.ErrNotFound) {
			c := s.newCandidate(ctx, job, g, useAI)
			err := s.store.CreateCandidate(ctx, c)
			if errors.Is(err, types.ErrDuplicate) {
				// created concurrently; merge into it on the next attempt
				continue
			}
			if err != nil {
				return outcomeUnchanged, err
			}
			s.emitCandidate(ctx, events.EventTypeCandidateCreated, job, c,
				fmt.Sprintf("Candidate %s %q created from %d organizations", c.EntityType, c.MatchKey, c.OrganizationCount))
			if c.Status == types.StatusAutoConfirmed {
				s.emitCandidate(ctx, events.EventTypeCandidateAutoConfirmed, job, c,
					fmt.Sprintf("Candidate %s %q auto-confirmed", c.EntityType, c.MatchKey))
			}
			return outcomeCreated, nil
		}
		if err != nil {
			return outcomeUnchanged, err
		}

		expected := existing.Version
		before := existing.Status
		if !s.refresh(ctx, job, existing, g, useAI) {
			return outcomeUnchanged, nil
		}
		err = s.store.UpdateCandidate(ctx, existing, expected)
		if errors.Is(err, types.ErrVersionConflict) {
			s.logger.Debug().Str("candidate_id", existing.ID).Int("attempt", attempt).
				Msg("candidate changed concurrently, retrying")
			s.emitCandidate(ctx, events.EventTypeVersionConflict, job, existing,
				fmt.Sprintf("Candidate %s changed concurrently (attempt %d)", existing.ID, attempt))
			continue
		}
		if err != nil {
			return outcomeUnchanged, err
		}
		s.emitCandidate(ctx, events.EventTypeCandidateUpdated, job, existing,
			fmt.Sprintf("Candidate %s %q updated", existing.EntityType, existing.MatchKey))
		if existing.Status == types.StatusImported && s.reconciler != nil {
			s.reconcile(ctx, job, existing)
		}
		if before != existing.Status && existing.Status == types.StatusAutoConfirmed {
			s.emitCandidate(ctx, events.EventTypeCandidateAutoConfirmed, job, existing,
				fmt.Sprintf("Candidate %s %q auto-confirmed", existing.EntityType, existing.MatchKey))
		}
		return outcomeUpdated, nil
	}
	return outcomeUnchanged, fmt.Errorf("candidate %s/%s: gave up after %d attempts: %w",
		g.entityType, g.key, s.cfg.MaxUpdateAttempts, types.ErrVersionConflict)
}

func (s *Scanner) reconcile(ctx context.Context, job *types.ScanJob, c *types.MatchingCandidate) {
	res, err := s.reconciler.Reconcile(ctx, c)
	if err != nil {
		job.Stats.Errors++
		s.logger.Warn().Err(err).Str("job_id", job.ID).Str("candidate_id", c.ID).
			Msg("failed to reconcile library record")
		return
	}
	job.Stats.FieldsUpdated += res.Updated
	job.Stats.ConflictsOpened += res.Flagged
}

func (s *Scanner) newCandidate(ctx context.Context, job *types.ScanJob, g *group, useAI bool) *types.MatchingCandidate {
	now := s.now()
	score, breakdown := ScoreCandidate(g.variants)
	c := &types.MatchingCandidate{
		ID:                uuid.New().String(),
		EntityType:        g.entityType,
		MatchKey:          g.key,
		Variants:          append([]types.Variant(nil), g.variants...),
		Score:             score,
		ScoreBreakdown:    breakdown,
		Status:            types.StatusPending,
		OrganizationCount: types.CountOrganizations(g.variants),
		VariantsHash:      VariantsHash(g.variants),
		LastScanJobID:     job.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.derive(ctx, c, useAI)
	return c
}

// refresh folds g into c. It reports false when neither the variants nor the
// score changed, in which case c must not be written.
func (s *Scanner) refresh(ctx context.Context, job *types.ScanJob, c *types.MatchingCandidate, g *group, useAI bool) bool {
	variants := MergeVariantSets(c.Variants, g.variants)
	hash := VariantsHash(variants)
	score, breakdown := ScoreCandidate(variants)
	if hash == c.VariantsHash && score == c.Score {
		return false
	}

	c.Variants = variants
	c.Score = score
	c.ScoreBreakdown = breakdown
	c.OrganizationCount = types.CountOrganizations(variants)
	if hash != c.VariantsHash {
		c.VariantsHash = hash
		s.derive(ctx, c, useAI)
	}
	c.LastScanJobID = job.ID
	c.UpdatedAt = s.now()
	return true
}

// derive recomputes the merged record and the entity-specific fields from
// c.Variants. Status only ever moves from pending to auto_confirmed here.
func (s *Scanner) derive(ctx context.Context, c *types.MatchingCandidate, useAI bool) {
	res := s.merger.MergeVariants(ctx, c.Variants, useAI)
	data := res.Data
	c.Merged = &data
	c.MergeSource = res.Source

	switch c.EntityType {
	case types.EntityPublication:
		var configs []types.PublicationMonitoringConfig
		for _, v := range c.Variants {
			if v.Monitoring != nil {
				configs = append(configs, *v.Monitoring)
			}
		}
		if len(configs) > 0 {
			merged := monitoring.MergeConfigs(configs)
			c.Monitoring = &merged
		}
	case types.EntityCompany:
		confidence, confirm := CompanyConfidence(c.Variants)
		c.Confidence = confidence
		if confirm && c.Status == types.StatusPending {
			c.Status = types.StatusAutoConfirmed
		}
	}
}

// finalize records the outcome of the scan. It runs on a detached context so
// a cancelled scan still leaves a finished job behind, and it returns an
// error only when the job record could not be written.
func (s *Scanner) finalize(ctx context.Context, job *types.ScanJob, runErr error) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()

	if !job.Finish(s.now(), runErr) {
		return nil
	}
	finErr := s.persistJob(fctx, job)
	if finErr != nil {
		s.logger.Error().Err(finErr).Str("job_id", job.ID).Msg("failed to finalize scan job")
	}
	ev, evErr := events.NewScanEvent(job)
	events.Emit(fctx, s.emitter, ev, evErr)

	st := job.Stats
	log := s.logger.Info()
	if runErr != nil {
		log = s.logger.Error().Err(runErr)
	}
	log.Str("job_id", job.ID).
		Int64("duration_ms", job.DurationMs).
		Int("organizations", st.OrganizationsScanned).
		Int("created", st.CandidatesCreated).
		Int("updated", st.CandidatesUpdated).
		Int("unchanged", st.CandidatesUnchanged).
		Int("errors", st.Errors).
		Msgf("scan %s", job.Status)
	return finErr
}

// persistJob writes the finished job, retrying until ctx expires
func (s *Scanner) persistJob(ctx context.Context, job *types.ScanJob) error {
	delay := finalizeRetryDelay
	for attempt := 1; ; attempt++ {
		err := s.store.FinishScanJob(ctx, job)
		if err == nil {
			return nil
		}
		if errors.Is(err, types.ErrNotFound) {
			// finalized elsewhere, possibly by an earlier attempt that reported failure
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("scan job no longer running")
			return nil
		}
		s.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("failed to write scan job, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("failed to finalize scan job after %d attempts: %w", attempt, err)
		case <-timer.C:
		}
		if delay *= 2; delay > maxFinalizeRetryDelay {
			delay = maxFinalizeRetryDelay
		}
	}
}

func (s *Scanner) emitCandidate(ctx context.Context, t events.EventType, job *types.ScanJob, c *types.MatchingCandidate, msg string) {
	ev, err := events.NewCandidateEvent(t, job.ID, c, msg)
	events.Emit(ctx, s.emitter, ev, err)
}

package deduplication

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/types"
)

// Import defaults
const (
	DefaultLibraryOrganizationID   = "global-library"
	DefaultLibraryOrganizationName = "Global Library"
	DefaultAutoImportLimit         = 100
	DefaultAutoImportMinScore      = 80
)

// ErrInvalidImport is returned for import requests that can never succeed,
// such as an out-of-range variant or an unknown override field.
var ErrInvalidImport = errors.New("invalid import")

// ImportStore is the storage the importer needs
type ImportStore interface {
	CandidateStore
	LibraryRecords
	ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error)
	UpsertOrganization(ctx context.Context, org *types.Organization) error
}

// ImportConfig holds configuration for the importer
type ImportConfig struct {
	// LibraryOrganizationID owns the shared library records
	// Default: "global-library"
	LibraryOrganizationID string

	// LibraryOrganizationName is shown for the library organization
	// Default: "Global Library"
	LibraryOrganizationName string

	// AutoImportLimit caps the candidates one auto-import processes
	// Default: 100
	AutoImportLimit int

	// AutoImportMinScore applies when a request names no minimum score
	// Default: 80
	AutoImportMinScore int
}

// DefaultImportConfig returns the default importer configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		LibraryOrganizationID:   DefaultLibraryOrganizationID,
		LibraryOrganizationName: DefaultLibraryOrganizationName,
		AutoImportLimit:         DefaultAutoImportLimit,
		AutoImportMinScore:      DefaultAutoImportMinScore,
	}
}

// Validate checks if the configuration has valid values
func (c ImportConfig) Validate() error {
	if strings.TrimSpace(c.LibraryOrganizationID) == "" {
		return fmt.Errorf("library_organization_id is required")
	}
	if c.AutoImportLimit < 1 || c.AutoImportLimit > 1000 {
		return fmt.Errorf("auto_import_limit must be between 1 and 1000 (got %d)", c.AutoImportLimit)
	}
	if c.AutoImportMinScore < 1 || c.AutoImportMinScore > 100 {
		return fmt.Errorf("auto_import_min_score must be between 1 and 100 (got %d)", c.AutoImportMinScore)
	}
	return nil
}

// ImportRequest selects how one candidate is imported
type ImportRequest struct {
	CandidateID string
	// VariantIndex picks the base variant; negative selects the most
	// complete one
	VariantIndex int
	// Overrides replace fields of the chosen variant, keyed by field name
	Overrides map[string]string
	Actor     string
}

// ImportResult describes the records an import wrote
type ImportResult struct {
	Candidate      *types.MatchingCandidate `json:"candidate"`
	RecordID       string                   `json:"recordId"`
	CompanyID      string                   `json:"companyId,omitempty"`
	PublicationIDs []string                 `json:"publicationIds,omitempty"`
}

// AutoImportOptions select the candidates one auto-import processes
type AutoImportOptions struct {
	// MinScore defaults to the configured AutoImportMinScore when not
	// positive
	MinScore int
	UseAI    bool
	Actor    string
	// Limit is capped by the configured AutoImportLimit
	Limit int
}

// AutoImportStats summarize an auto-import
type AutoImportStats struct {
	Processed int      `json:"candidatesProcessed"`
	Imported  int      `json:"candidatesImported"`
	Failed    int      `json:"candidatesFailed"`
	Errors    []string `json:"errors"`
}

// Importer turns candidates into shared library records.
type Importer struct {
	store       ImportStore
	merger      VariantMerger
	emitter     events.Emitter
	logger      zerolog.Logger
	cfg         ImportConfig
	maxAttempts int
	now         func() time.Time
}

// NewImporter creates an importer. A nil merger merges mechanically.
func NewImporter(store ImportStore, merger VariantMerger, emitter events.Emitter, logger zerolog.Logger, cfg ImportConfig) (*Importer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid import config: %w", err)
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if merger == nil {
		merger = merge.NewMerger(nil, 0, emitter, logger)
	}
	return &Importer{
		store:       store,
		merger:      merger,
		emitter:     emitter,
		logger:      logger.With().Str("component", "importer").Logger(),
		cfg:         cfg,
		maxAttempts: DefaultConfig().MaxUpdateAttempts,
		now:         time.Now,
	}, nil
}

// LibraryOrganizationID returns the organization owning imported records
func (im *Importer) LibraryOrganizationID() string {
	return im.cfg.LibraryOrganizationID
}

// Import writes the chosen variant of a candidate, with overrides applied,
// to the library and marks the candidate imported.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	c, err := im.store.GetCandidate(ctx, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if c.Status == types.StatusImported {
		return nil, fmt.Errorf("candidate %s: %w", c.ID, ErrAlreadyImported)
	}

	idx := req.VariantIndex
	if idx < 0 {
		idx = RecommendVariant(c.Variants)
	}
	if idx < 0 || idx >= len(c.Variants) {
		return nil, fmt.Errorf("%w: candidate %s has no variant %d", ErrInvalidImport, c.ID, req.VariantIndex)
	}
	data := c.Variants[idx].Data.Clone()
	if err := applyOverrides(c.EntityType, &data, req.Overrides); err != nil {
		return nil, err
	}

	res, err := im.write(ctx, c, data, req.Actor, req.Actor)
	if err != nil {
		return nil, err
	}
	im.logger.Info().Str("candidate_id", c.ID).Str("record_id", res.RecordID).Int("variant", idx).
		Str("actor", req.Actor).Msg("candidate imported")
	return res, nil
}

// AutoImport imports pending candidates scoring at least opts.MinScore,
// highest score first. Failures are counted and do not stop the batch.
func (im *Importer) AutoImport(ctx context.Context, opts AutoImportOptions) (*AutoImportStats, error) {
	if strings.TrimSpace(opts.Actor) == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	if opts.MinScore <= 0 {
		opts.MinScore = im.cfg.AutoImportMinScore
	}
	limit := opts.Limit
	if limit <= 0 || limit > im.cfg.AutoImportLimit {
		limit = im.cfg.AutoImportLimit
	}

	candidates, err := im.store.ListCandidates(ctx, types.CandidateFilter{
		Status:   types.StatusPending,
		MinScore: opts.MinScore,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	im.logger.Info().Int("candidates", len(candidates)).Int("min_score", opts.MinScore).Bool("use_ai", opts.UseAI).
		Msg("auto-import started")

	stats := &AutoImportStats{Errors: []string{}}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("auto-import interrupted: %w", err)
		}
		stats.Processed++

		res := im.merger.MergeVariants(ctx, c.Variants, opts.UseAI)
		data := res.Data
		if len(data.Publications) == 0 {
			data.Publications = unionPublications(c.Variants)
		}
		if _, err := im.write(ctx, c, data, types.ImportActor, opts.Actor); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			im.logger.Warn().Err(err).Str("candidate_id", c.ID).Msg("failed to auto-import candidate")
			continue
		}
		stats.Imported++
	}

	im.logger.Info().Int("processed", stats.Processed).Int("imported", stats.Imported).Int("failed", stats.Failed).
		Msg("auto-import completed")
	ev, evErr := events.NewImportEvent(events.ImportData{
		MinScore:  opts.MinScore,
		UseAI:     opts.UseAI,
		Processed: stats.Processed,
		Imported:  stats.Imported,
		Failed:    stats.Failed,
	})
	events.Emit(ctx, im.emitter, ev, evErr)
	return stats, nil
}

// write creates the library record for c from data. author is recorded on
// the record; actor is recorded on the candidate.
func (im *Importer) write(ctx context.Context, c *types.MatchingCandidate, data types.ContactData, author, actor string) (*ImportResult, error) {
	if err := im.ensureLibrary(ctx); err != nil {
		return nil, err
	}

	res := &ImportResult{}
	var err error
	switch c.EntityType {
	case types.EntityContact:
		err = im.writeContact(ctx, c, data, author, res)
	case types.EntityCompany:
		res.RecordID, err = im.findOrCreateCompany(ctx, c.ID, data, author, types.SourceMatchingImport)
	case types.EntityPublication:
		res.RecordID, err = im.findOrCreatePublication(ctx, c, data, author)
	default:
		err = fmt.Errorf("%w: unknown entity type %q", ErrInvalidImport, c.EntityType)
	}
	if err != nil {
		return nil, err
	}

	res.Candidate, err = im.markImported(ctx, c.ID, res.RecordID, actor)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// writeContact finds or creates the contact's company, the company's
// publications for journalists, then the contact itself.
func (im *Importer) writeContact(ctx context.Context, c *types.MatchingCandidate, data types.ContactData, author string, res *ImportResult) error {
	if name := strings.TrimSpace(data.CompanyName); name != "" {
		id, err := im.findOrCreateCompany(ctx, c.ID, types.ContactData{DisplayName: name}, author, types.SourceAutoMatching)
		if err != nil {
			return err
		}
		res.CompanyID = id
	}
	if res.CompanyID != "" && data.HasMediaProfile {
		for _, title := range data.Publications {
			if strings.TrimSpace(title) == "" {
				continue
			}
			id, err := im.findOrCreateOutlet(ctx, res.CompanyID, data.CompanyName, title, author)
			if err != nil {
				return err
			}
			res.PublicationIDs = append(res.PublicationIDs, id)
		}
	}

	data.CompanyID = res.CompanyID
	contact := &types.Contact{
		ID:             uuid.New().String(),
		OrganizationID: im.cfg.LibraryOrganizationID,
		Data:           data,
		Library:        types.NewLibraryInfo(c.ID, types.SourceMatchingImport, author, im.now()),
	}
	if data.HasMediaProfile {
		contact.PublicationIDs = res.PublicationIDs
	}
	if err := im.store.UpsertContact(ctx, contact); err != nil {
		return fmt.Errorf("failed to create library contact: %w", err)
	}
	res.RecordID = contact.ID
	return nil
}

// findOrCreateCompany returns the library company with data's normalized
// name, creating it when absent.
func (im *Importer) findOrCreateCompany(ctx context.Context, candidateID string, data types.ContactData, author, source string) (string, error) {
	key := CompanyKey(data)
	if key == "" {
		return "", fmt.Errorf("%w: company has no name", ErrInvalidImport)
	}
	companies, err := im.store.ListCompanies(ctx, im.cfg.LibraryOrganizationID)
	if err != nil {
		return "", fmt.Errorf("failed to list library companies: %w", err)
	}
	for _, existing := range companies {
		if CompanyKey(existing.Data) == key {
			return existing.ID, nil
		}
	}

	company := &types.Company{
		ID:             uuid.New().String(),
		OrganizationID: im.cfg.LibraryOrganizationID,
		Data:           data,
		Library:        types.NewLibraryInfo(candidateID, source, author, im.now()),
	}
	if err := im.store.UpsertCompany(ctx, company); err != nil {
		return "", fmt.Errorf("failed to create library company: %w", err)
	}
	im.logger.Debug().Str("company_id", company.ID).Str("name", data.Name()).Msg("library company created")
	return company.ID, nil
}

// findOrCreateOutlet returns the company's library publication titled
// title, creating it when absent.
func (im *Importer) findOrCreateOutlet(ctx context.Context, companyID, publisher, title, author string) (string, error) {
	title = strings.TrimSpace(title)
	pubs, err := im.store.ListPublications(ctx, im.cfg.LibraryOrganizationID)
	if err != nil {
		return "", fmt.Errorf("failed to list library publications: %w", err)
	}
	for _, p := range pubs {
		if p.CompanyID == companyID && strings.EqualFold(strings.TrimSpace(p.Title), title) {
			return p.ID, nil
		}
	}

	pub := &types.Publication{
		ID:             uuid.New().String(),
		OrganizationID: im.cfg.LibraryOrganizationID,
		Title:          title,
		CompanyID:      companyID,
		PublisherName:  strings.TrimSpace(publisher),
		Library:        types.NewLibraryInfo("", types.SourceAutoMatching, author, im.now()),
	}
	if err := im.store.UpsertPublication(ctx, pub); err != nil {
		return "", fmt.Errorf("failed to create library publication: %w", err)
	}
	return pub.ID, nil
}

// findOrCreatePublication imports a publication candidate, reusing a
// library publication with the same match key.
func (im *Importer) findOrCreatePublication(ctx context.Context, c *types.MatchingCandidate, data types.ContactData, author string) (string, error) {
	pub := &types.Publication{
		ID:             uuid.New().String(),
		OrganizationID: im.cfg.LibraryOrganizationID,
		Title:          strings.TrimSpace(data.DisplayName),
		Website:        strings.TrimSpace(data.Website),
		Monitoring:     c.Monitoring,
		Library:        types.NewLibraryInfo(c.ID, types.SourceMatchingImport, author, im.now()),
	}
	key := PublicationKey(pub)
	if key == "" {
		return "", fmt.Errorf("%w: publication has neither title nor website", ErrInvalidImport)
	}
	pubs, err := im.store.ListPublications(ctx, im.cfg.LibraryOrganizationID)
	if err != nil {
		return "", fmt.Errorf("failed to list library publications: %w", err)
	}
	for _, p := range pubs {
		if PublicationKey(p) == key {
			return p.ID, nil
		}
	}
	if err := im.store.UpsertPublication(ctx, pub); err != nil {
		return "", fmt.Errorf("failed to create library publication: %w", err)
	}
	return pub.ID, nil
}

// ensureLibrary creates the organization owning library records. Scans
// skip it by its type.
func (im *Importer) ensureLibrary(ctx context.Context) error {
	err := im.store.UpsertOrganization(ctx, &types.Organization{
		ID:   im.cfg.LibraryOrganizationID,
		Name: im.cfg.LibraryOrganizationName,
		Type: types.OrgTypeSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure library organization: %w", err)
	}
	return nil
}

func (im *Importer) markImported(ctx context.Context, id, recordID, actor string) (*types.MatchingCandidate, error) {
	for attempt := 1; attempt <= im.maxAttempts; attempt++ {
		c, err := im.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.Status == types.StatusImported {
			return nil, fmt.Errorf("candidate %s imported concurrently as %s: %w", id, c.ImportedRecordID, ErrAlreadyImported)
		}

		expected := c.Version
		now := im.now()
		c.Status = types.StatusImported
		c.ImportedRecordID = recordID
		c.ImportedBy = actor
		c.ImportedAt = &now
		c.UpdatedAt = now

		err = im.store.UpdateCandidate(ctx, c, expected)
		if errors.Is(err, types.ErrVersionConflict) {
			im.logger.Debug().Str("candidate_id", id).Int("attempt", attempt).Msg("candidate changed during import, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to mark candidate imported: %w", err)
		}

		ev, evErr := events.NewCandidateEvent(events.EventTypeCandidateImported, "", c,
			fmt.Sprintf("Candidate %s imported as %s by %s", c.ID, recordID, actor))
		events.Emit(ctx, im.emitter, ev, evErr)
		return c, nil
	}
	return nil, fmt.Errorf("candidate %s: gave up after %d attempts: %w", id, im.maxAttempts, types.ErrVersionConflict)
}

func applyOverrides(entityType types.EntityType, data *types.ContactData, overrides map[string]string) error {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := lookupField(entityType, name)
		if !ok {
			return fmt.Errorf("%w: unknown %s field %q (want one of %s)",
				ErrInvalidImport, entityType, name, strings.Join(FieldNames(entityType), ", "))
		}
		f.set(data, strings.TrimSpace(overrides[name]))
	}
	return nil
}

func unionPublications(variants []types.Variant) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range variants {
		for _, p := range v.Data.Publications {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

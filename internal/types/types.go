package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MatchingCandidate represents one inferred real-world entity assembled from
// variants contributed by several organizations.
type MatchingCandidate struct {
	ID                string                       `json:"id"`
	EntityType        EntityType                   `json:"entityType"`
	MatchKey          string                       `json:"matchKey"`
	Variants          []Variant                    `json:"variants"`
	Score             int                          `json:"score"`
	ScoreBreakdown    ScoreBreakdown               `json:"scoreBreakdown"`
	Confidence        Confidence                   `json:"confidence,omitempty"` // companies only
	Status            CandidateStatus              `json:"status"`
	OrganizationCount int                          `json:"organizationCount"`
	Merged            *ContactData                 `json:"merged,omitempty"`
	MergeSource       MergeSource                  `json:"mergeSource,omitempty"`
	Monitoring        *PublicationMonitoringConfig `json:"monitoring,omitempty"` // publications only
	VariantsHash      string                       `json:"variantsHash"`
	Version           int64                        `json:"version"`
	LastScanJobID     string                       `json:"lastScanJobId,omitempty"`
	ReviewedBy        string                       `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time                   `json:"reviewedAt,omitempty"`
	ReviewNotes       string                       `json:"reviewNotes,omitempty"`
	ImportedRecordID  string                       `json:"importedRecordId,omitempty"` // library record created by an import
	ImportedBy        string                       `json:"importedBy,omitempty"`
	ImportedAt        *time.Time                   `json:"importedAt,omitempty"`
	CreatedAt         time.Time                    `json:"createdAt"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

// Validate checks if the candidate has valid field values
func (c *MatchingCandidate) Validate() error {
	if strings.TrimSpace(c.MatchKey) == "" {
		return fmt.Errorf("match_key is required")
	}
	if !c.EntityType.IsValid() {
		return fmt.Errorf("invalid entity type: %s", c.EntityType)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", c.Status)
	}
	if c.Score < 0 || c.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100 (got %d)", c.Score)
	}
	if len(c.Variants) == 0 {
		return fmt.Errorf("candidate must have at least one variant")
	}
	if c.Confidence != "" && !c.Confidence.IsValid() {
		return fmt.Errorf("invalid confidence: %s", c.Confidence)
	}
	if c.Status == StatusImported && c.ImportedRecordID == "" {
		return fmt.Errorf("imported candidate must reference its library record")
	}
	if c.MergeSource != "" && !c.MergeSource.IsValid() {
		return fmt.Errorf("invalid merge source: %s", c.MergeSource)
	}
	for i := range c.Variants {
		if err := c.Variants[i].Validate(); err != nil {
			return fmt.Errorf("variant %d: %w", i, err)
		}
	}
	return nil
}

// DistinctOrganizations returns the number of distinct organizations that
// contributed a variant.
func (c *MatchingCandidate) DistinctOrganizations() int {
	return CountOrganizations(c.Variants)
}

// OrganizationIDs returns the distinct contributing organization ids, sorted.
func (c *MatchingCandidate) OrganizationIDs() []string {
	seen := make(map[string]struct{}, len(c.Variants))
	ids := make([]string, 0, len(c.Variants))
	for _, v := range c.Variants {
		if _, ok := seen[v.OrganizationID]; ok {
			continue
		}
		seen[v.OrganizationID] = struct{}{}
		ids = append(ids, v.OrganizationID)
	}
	sort.Strings(ids)
	return ids
}

// CountOrganizations counts distinct organization ids across variants.
func CountOrganizations(variants []Variant) int {
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		seen[v.OrganizationID] = struct{}{}
	}
	return len(seen)
}

// ScoreBreakdown records how a candidate's score was assembled.
type ScoreBreakdown struct {
	Organizations  int `json:"organizations"`
	MediaProfile   int `json:"mediaProfile"`
	VerifiedDomain int `json:"verifiedDomain"`
	Phone          int `json:"phone"`
	Beats          int `json:"beats"`
	Social         int `json:"social"`
}

// Total sums the breakdown, capped at 100.
func (b ScoreBreakdown) Total() int {
	t := b.Organizations + b.MediaProfile + b.VerifiedDomain + b.Phone + b.Beats + b.Social
	if t > 100 {
		return 100
	}
	return t
}

// EntityType identifies which kind of tenant record a candidate groups
type EntityType string

const (
	EntityContact     EntityType = "contact"
	EntityCompany     EntityType = "company"
	EntityPublication EntityType = "publication"
)

// IsValid checks if the entity type value is valid
func (t EntityType) IsValid() bool {
	switch t {
	case EntityContact, EntityCompany, EntityPublication:
		return true
	}
	return false
}

// CandidateStatus represents the review state of a candidate
type CandidateStatus string

const (
	StatusPending           CandidateStatus = "pending"
	StatusAutoConfirmed     CandidateStatus = "auto_confirmed"
	StatusManuallyConfirmed CandidateStatus = "manually_confirmed"
	StatusRejected          CandidateStatus = "rejected"
	StatusImported          CandidateStatus = "imported"
	StatusSkipped           CandidateStatus = "skipped"
)

// CandidateStatuses lists every status in display order
var CandidateStatuses = []CandidateStatus{
	StatusPending, StatusAutoConfirmed, StatusManuallyConfirmed, StatusRejected, StatusImported, StatusSkipped,
}

// IsValid checks if the status value is valid
func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAutoConfirmed, StatusManuallyConfirmed, StatusRejected, StatusImported, StatusSkipped:
		return true
	}
	return false
}

// IsReviewed reports whether an operator already decided on the candidate.
// Scans never change the status of a reviewed candidate.
func (s CandidateStatus) IsReviewed() bool {
	switch s {
	case StatusManuallyConfirmed, StatusRejected, StatusImported, StatusSkipped:
		return true
	}
	return false
}

// Confidence is the coarse trust level derived from an auto-confirm decision
type Confidence string

const (
	ConfidenceVeryHigh Confidence = "very_high"
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceLow      Confidence = "low"
)

// IsValid checks if the confidence value is valid
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceVeryHigh, ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Rank orders confidences from low (0) to very high (3).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceVeryHigh:
		return 3
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// MergeSource tags where a candidate's merged record came from
type MergeSource string

const (
	MergeSourceSingle     MergeSource = "single_variant"
	MergeSourceAI         MergeSource = "ai"
	MergeSourceMechanical MergeSource = "mechanical"
)

// IsValid checks if the merge source value is valid
func (m MergeSource) IsValid() bool {
	switch m {
	case MergeSourceSingle, MergeSourceAI, MergeSourceMechanical:
		return true
	}
	return false
}

// Variant is one organization's version of an entity.
type Variant struct {
	OrganizationID   string                       `json:"organizationId"`
	OrganizationName string                       `json:"organizationName,omitempty"`
	SourceEntityID   string                       `json:"sourceEntityId"`
	Data             ContactData                  `json:"data"`
	Monitoring       *PublicationMonitoringConfig `json:"monitoring,omitempty"`
	ScannedAt        time.Time                    `json:"scannedAt"`
}

// Validate checks if the variant has valid field values
func (v *Variant) Validate() error {
	if v.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if v.SourceEntityID == "" {
		return fmt.Errorf("source_entity_id is required")
	}
	if v.Monitoring != nil {
		if err := v.Monitoring.Validate(); err != nil {
			return fmt.Errorf("monitoring: %w", err)
		}
	}
	return nil
}

// Key identifies a variant inside a candidate.
func (v *Variant) Key() string {
	return v.OrganizationID + "/" + v.SourceEntityID
}

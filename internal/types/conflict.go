package types

import (
	"fmt"
	"time"
)

// FieldConflict is a review task raised when rescanned variants disagree
// with a library record and the evidence is too weak to overwrite it.
type FieldConflict struct {
	ID             string           `json:"id"`
	EntityType     EntityType       `json:"entityType"`
	EntityID       string           `json:"entityId"`
	EntityName     string           `json:"entityName,omitempty"`
	CandidateID    string           `json:"candidateId,omitempty"`
	Field          string           `json:"field"`
	CurrentValue   string           `json:"currentValue"`
	SuggestedValue string           `json:"suggestedValue"`
	Evidence       ConflictEvidence `json:"evidence"`
	Confidence     float64          `json:"confidence"`
	Priority       ConflictPriority `json:"priority"`
	Status         ConflictStatus   `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	ReviewedBy     string           `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewedAt,omitempty"`
	ReviewNotes    string           `json:"reviewNotes,omitempty"`
}

// ConflictEvidence summarizes why a conflict was raised
type ConflictEvidence struct {
	CurrentValueSource  ValueSource       `json:"currentValueSource"`
	CurrentValueAgeDays int               `json:"currentValueAge"`
	MajorityCount       int               `json:"newVariantsCount"`
	TotalCount          int               `json:"totalVariantsCount"`
	Variants            []ConflictVariant `json:"variantDetails,omitempty"`
}

// ConflictVariant is one organization's value for the disputed field
type ConflictVariant struct {
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName,omitempty"`
	SourceEntityID   string `json:"sourceEntityId"`
	Value            string `json:"value"`
}

// Validate checks if the conflict has valid field values
func (c *FieldConflict) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !c.EntityType.IsValid() {
		return fmt.Errorf("invalid entity type: %s", c.EntityType)
	}
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if c.Field == "" {
		return fmt.Errorf("field is required")
	}
	if !c.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", c.Priority)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid conflict status: %s", c.Status)
	}
	return nil
}

// ConflictPriority orders open conflicts for reviewers
type ConflictPriority string

const (
	PriorityLow    ConflictPriority = "low"
	PriorityMedium ConflictPriority = "medium"
	PriorityHigh   ConflictPriority = "high"
)

// IsValid checks if the priority value is valid
func (p ConflictPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities from low (0) to high (2).
func (p ConflictPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// ConflictStatus is the review state of a conflict
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending_review"
	ConflictApproved ConflictStatus = "approved"
	ConflictRejected ConflictStatus = "rejected"
)

// IsValid checks if the conflict status value is valid
func (s ConflictStatus) IsValid() bool {
	switch s {
	case ConflictPending, ConflictApproved, ConflictRejected:
		return true
	}
	return false
}

// ConflictFilter selects conflicts by equality on its non-zero fields.
// Results are ordered by priority, then newest first.
type ConflictFilter struct {
	Status   ConflictStatus
	EntityID string
	Field    string
	// Limit caps the result size; 0 means no limit
	Limit int
}

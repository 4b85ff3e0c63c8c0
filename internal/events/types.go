package events

import (
	"fmt"
	"time"

	"github.com/prlibrary/matching/internal/types"
)

// EventType represents the type of event emitted by the matching engine.
type EventType string

const (
	// Scan lifecycle events
	// EventTypeScanStarted indicates a scan job was created and started
	EventTypeScanStarted EventType = "scan_started"
	// EventTypeScanCompleted indicates a scan job finished successfully
	EventTypeScanCompleted EventType = "scan_completed"
	// EventTypeScanFailed indicates a scan job was finalized as failed
	EventTypeScanFailed EventType = "scan_failed"
	// EventTypeScanSkipped indicates a scan was not started because another one holds the lock
	EventTypeScanSkipped EventType = "scan_skipped"

	// Candidate events
	// EventTypeCandidateCreated indicates a new candidate was materialized
	EventTypeCandidateCreated EventType = "candidate_created"
	// EventTypeCandidateUpdated indicates an existing candidate was updated in place
	EventTypeCandidateUpdated EventType = "candidate_updated"
	// EventTypeCandidateAutoConfirmed indicates a candidate was promoted to auto_confirmed
	EventTypeCandidateAutoConfirmed EventType = "candidate_auto_confirmed"
	// EventTypeCandidateReviewed indicates an operator confirmed or rejected a candidate
	EventTypeCandidateReviewed EventType = "candidate_reviewed"
	// EventTypeVersionConflict indicates an optimistic write lost against a concurrent writer
	EventTypeVersionConflict EventType = "version_conflict"
	// EventTypeCandidateImported indicates a candidate was written to the library
	EventTypeCandidateImported EventType = "candidate_imported"
	// EventTypeCandidateSkipped indicates an operator set a candidate aside
	EventTypeCandidateSkipped EventType = "candidate_skipped"
	// EventTypeCandidateDeleted indicates a candidate was removed
	EventTypeCandidateDeleted EventType = "candidate_deleted"
	// EventTypeAutoImportCompleted indicates a batch import of pending candidates finished
	EventTypeAutoImportCompleted EventType = "auto_import_completed"

	// Library field events
	// EventTypeLibraryFieldUpdated indicates a library record field was changed from rescanned variants
	EventTypeLibraryFieldUpdated EventType = "library_field_updated"
	// EventTypeConflictOpened indicates a field disagreement was queued for review
	EventTypeConflictOpened EventType = "conflict_opened"
	// EventTypeConflictResolved indicates an operator approved or rejected a field conflict
	EventTypeConflictResolved EventType = "conflict_resolved"

	// Merge events
	// EventTypeMergeAISucceeded indicates the AI provider produced the merged record
	EventTypeMergeAISucceeded EventType = "merge_ai_succeeded"
	// EventTypeMergeAIFallback indicates the AI path failed and the mechanical merge was used
	EventTypeMergeAIFallback EventType = "merge_ai_fallback"
	// EventTypeMergeMechanical indicates the mechanical merge was used without trying AI
	EventTypeMergeMechanical EventType = "merge_mechanical"

	// EventTypeSettingsUpdated indicates the global settings were changed by an operator
	EventTypeSettingsUpdated EventType = "settings_updated"
	// EventTypeSettingsFallback indicates settings could not be loaded and defaults were used
	EventTypeSettingsFallback EventType = "settings_fallback"

	// EventTypeCircuitBreakerStateChange indicates the AI circuit breaker changed state
	EventTypeCircuitBreakerStateChange EventType = "circuit_breaker_state_change"

	// EventTypeEventsPruned indicates the retention job deleted old events
	EventTypeEventsPruned EventType = "events_pruned"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
)

// IsValid checks if the severity value is valid
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Event is a structured record of something the engine did. Events are
// counted in memory and persisted so job statistics are queryable.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// JobID is the scan job that was running, if any
	JobID string `json:"jobId,omitempty"`
	// CandidateID is the candidate concerned, if any
	CandidateID string `json:"candidateId,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// Validate checks if the event has valid field values
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", e.Severity)
	}
	return nil
}

// ScanJobData contains structured data for scan lifecycle events.
type ScanJobData struct {
	TriggeredBy     types.TriggerMode `json:"triggeredBy"`
	DevelopmentMode bool              `json:"developmentMode"`
	Thresholds      types.Thresholds  `json:"thresholds"`
	Stats           types.ScanStats   `json:"stats"`
	DurationMs      int64             `json:"durationMs"`
	Error           string            `json:"error,omitempty"`
}

// CandidateData contains structured data for candidate events.
type CandidateData struct {
	EntityType        types.EntityType      `json:"entityType"`
	MatchKey          string                `json:"matchKey"`
	Score             int                   `json:"score"`
	OrganizationCount int                   `json:"organizationCount"`
	Status            types.CandidateStatus `json:"status"`
	Version           int64                 `json:"version"`
	ReviewedBy        string                `json:"reviewedBy,omitempty"`
	ImportedRecordID  string                `json:"importedRecordId,omitempty"`
}

// LibraryFieldData contains structured data for library field and conflict
// events.
type LibraryFieldData struct {
	EntityType types.EntityType       `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Field      string                 `json:"field"`
	Confidence float64                `json:"confidence"`
	ConflictID string                 `json:"conflictId,omitempty"`
	Priority   types.ConflictPriority `json:"priority,omitempty"`
	Status     types.ConflictStatus   `json:"status,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

// ImportData contains structured data for auto_import_completed events.
type ImportData struct {
	MinScore  int  `json:"minScore"`
	UseAI     bool `json:"useAi"`
	Processed int  `json:"processed"`
	Imported  int  `json:"imported"`
	Failed    int  `json:"failed"`
}

// MergeData contains structured data for merge events.
type MergeData struct {
	VariantCount int               `json:"variantCount"`
	Source       types.MergeSource `json:"source"`
	// ErrorKind classifies why the AI path failed (merge_ai_fallback only)
	ErrorKind  string `json:"errorKind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// EventFilter selects stored events by equality on its non-zero fields.
type EventFilter struct {
	Type     EventType
	Severity EventSeverity
	JobID    string
	// Since excludes events older than this time when non-zero
	Since time.Time
	// Limit caps the result size; 0 means no limit
	Limit int
}

// EventCounts holds event count statistics for monitoring.
type EventCounts struct {
	TotalEvents      int            `json:"totalEvents"`
	EventsByType     map[string]int `json:"eventsByType"`
	EventsBySeverity map[string]int `json:"eventsBySeverity"`
}

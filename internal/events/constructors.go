package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prlibrary/matching/internal/types"
)

// NewSimpleEvent creates an Event without structured data.
func NewSimpleEvent(eventType EventType, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
	}
}

// NewScanEvent creates a scan lifecycle event from the job's current state.
// The event type follows the job status: running, success or failed.
func NewScanEvent(job *types.ScanJob) (*Event, error) {
	eventType, severity := EventTypeScanStarted, SeverityInfo
	message := fmt.Sprintf("Scan %s started (%s)", job.ID, job.TriggeredBy)
	switch job.Status {
	case types.JobSuccess:
		eventType = EventTypeScanCompleted
		message = fmt.Sprintf("Scan %s completed: %d created, %d updated",
			job.ID, job.Stats.CandidatesCreated, job.Stats.CandidatesUpdated)
	case types.JobFailed:
		eventType, severity = EventTypeScanFailed, SeverityError
		message = fmt.Sprintf("Scan %s failed: %s", job.ID, job.Error)
	}

	event := NewSimpleEvent(eventType, severity, message)
	event.JobID = job.ID
	err := event.SetScanJobData(ScanJobData{
		TriggeredBy:     job.TriggeredBy,
		DevelopmentMode: job.DevelopmentMode,
		Thresholds:      job.Thresholds,
		Stats:           job.Stats,
		DurationMs:      job.DurationMs,
		Error:           job.Error,
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// NewCandidateEvent creates a candidate event of the given type.
func NewCandidateEvent(eventType EventType, jobID string, c *types.MatchingCandidate, message string) (*Event, error) {
	event := NewSimpleEvent(eventType, SeverityInfo, message)
	if eventType == EventTypeVersionConflict {
		event.Severity = SeverityWarning
	}
	event.JobID = jobID
	event.CandidateID = c.ID
	err := event.SetCandidateData(CandidateData{
		EntityType:        c.EntityType,
		MatchKey:          c.MatchKey,
		Score:             c.Score,
		OrganizationCount: c.OrganizationCount,
		Status:            c.Status,
		Version:           c.Version,
		ReviewedBy:        c.ReviewedBy,
		ImportedRecordID:  c.ImportedRecordID,
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// NewMergeEvent creates a merge event. The type is derived from the merge
// source and whether the AI path failed.
func NewMergeEvent(data MergeData) (*Event, error) {
	eventType, severity := EventTypeMergeMechanical, SeverityInfo
	message := fmt.Sprintf("Merged %d variants mechanically", data.VariantCount)
	switch {
	case data.Source == types.MergeSourceAI:
		eventType = EventTypeMergeAISucceeded
		message = fmt.Sprintf("Merged %d variants with AI", data.VariantCount)
	case data.ErrorKind != "":
		eventType, severity = EventTypeMergeAIFallback, SeverityWarning
		message = fmt.Sprintf("AI merge failed (%s), used mechanical merge", data.ErrorKind)
	}

	event := NewSimpleEvent(eventType, severity, message)
	if err := event.SetMergeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewLibraryFieldEvent creates a library_field_updated, conflict_opened or
// conflict_resolved event for the candidate that owns the library record.
func NewLibraryFieldEvent(eventType EventType, candidateID string, data LibraryFieldData, message string) (*Event, error) {
	event := NewSimpleEvent(eventType, SeverityInfo, message)
	if eventType == EventTypeConflictOpened && data.Priority == types.PriorityHigh {
		event.Severity = SeverityWarning
	}
	event.CandidateID = candidateID
	if err := event.SetLibraryFieldData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewImportEvent creates an auto_import_completed event. Any failed import
// raises the severity to warning.
func NewImportEvent(data ImportData) (*Event, error) {
	severity := SeverityInfo
	if data.Failed > 0 {
		severity = SeverityWarning
	}
	event := NewSimpleEvent(EventTypeAutoImportCompleted, severity,
		fmt.Sprintf("Auto-import finished: %d of %d candidates imported", data.Imported, data.Processed))
	if err := event.SetImportData(data); err != nil {
		return nil, err
	}
	return event, nil
}

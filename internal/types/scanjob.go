package types

import (
	"fmt"
	"time"
)

// ScanJob is the run record of one scan. It is created when the scan starts
// and finalized exactly once.
type ScanJob struct {
	ID              string      `json:"id"`
	Status          JobStatus   `json:"status"`
	TriggeredBy     TriggerMode `json:"triggeredBy"`
	DevelopmentMode bool        `json:"developmentMode"`
	Thresholds      Thresholds  `json:"thresholds"`
	Stats           ScanStats   `json:"stats"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	DurationMs      int64       `json:"duration"`
}

// Validate checks if the job has valid field values
func (j *ScanJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid job status: %s", j.Status)
	}
	if !j.TriggeredBy.IsValid() {
		return fmt.Errorf("invalid trigger mode: %s", j.TriggeredBy)
	}
	if j.Status != JobRunning && j.CompletedAt == nil {
		return fmt.Errorf("finished job must have completed_at")
	}
	if j.Status == JobFailed && j.Error == "" {
		return fmt.Errorf("failed job must have an error message")
	}
	return nil
}

// Finish finalizes the job. Calling it on a finished job is a no-op and
// returns false.
func (j *ScanJob) Finish(now time.Time, scanErr error) bool {
	if j.Status != JobRunning {
		return false
	}
	j.CompletedAt = &now
	j.DurationMs = now.Sub(j.StartedAt).Milliseconds()
	if scanErr != nil {
		j.Status = JobFailed
		j.Error = scanErr.Error()
	} else {
		j.Status = JobSuccess
	}
	return true
}

// Thresholds are the scan parameters recorded on the job
type Thresholds struct {
	MinScore         int `json:"minScore"`
	MinOrganizations int `json:"minOrganizations"`
}

// ScanStats are the counters accumulated during one scan
type ScanStats struct {
	OrganizationsScanned  int `json:"organizationsScanned"`
	ContactsScanned       int `json:"contactsScanned"`
	CompaniesScanned      int `json:"companiesScanned"`
	PublicationsScanned   int `json:"publicationsScanned"`
	CandidatesCreated     int `json:"candidatesCreated"`
	CandidatesUpdated     int `json:"candidatesUpdated"`
	CandidatesUnchanged   int `json:"candidatesUnchanged"`
	SkippedReferences     int `json:"skippedReferences"`
	SkippedNoEmail        int `json:"skippedNoEmail"`
	SkippedBelowThreshold int `json:"skippedBelowThreshold"`
	FieldsUpdated         int `json:"fieldsUpdated"`
	ConflictsOpened       int `json:"conflictsOpened"`
	Errors                int `json:"errors"`
}

// JobStatus represents the state of a scan job
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// IsValid checks if the job status value is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobRunning, JobSuccess, JobFailed:
		return true
	}
	return false
}

// TriggerMode records who started a scan
type TriggerMode string

const (
	TriggerManual    TriggerMode = "manual"
	TriggerScheduled TriggerMode = "scheduled"
)

// IsValid checks if the trigger mode value is valid
func (m TriggerMode) IsValid() bool {
	return m == TriggerManual || m == TriggerScheduled
}

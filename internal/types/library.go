package types

import "time"

// Actors recorded on library writes made by the engine itself
const (
	SystemActor = "matching_system"
	ImportActor = "import_system"
)

// Library record sources
const (
	SourceMatchingImport = "matching_import"
	SourceAutoMatching   = "auto_matching"
)

// UnknownFieldAge is the age in days reported for values without any timestamp
const UnknownFieldAge = 999

// ValueSource classifies who last wrote a library field
type ValueSource string

const (
	ValueSourceAutomatic ValueSource = "automatic"
	ValueSourceManual    ValueSource = "manual_entry"
	ValueSourceUnknown   ValueSource = "unknown"
)

// LibraryInfo is the provenance of a shared library record
type LibraryInfo struct {
	CandidateID string                     `json:"candidateId,omitempty"`
	Source      string                     `json:"source,omitempty"`
	CreatedBy   string                     `json:"createdBy,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
	Fields      map[string]FieldProvenance `json:"fields,omitempty"`
}

// FieldProvenance records the last change of one field
type FieldProvenance struct {
	UpdatedBy     string    `json:"updatedBy"`
	UpdatedAt     time.Time `json:"updatedAt"`
	PreviousValue string    `json:"previousValue,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
}

// NewLibraryInfo stamps a freshly created library record
func NewLibraryInfo(candidateID, source, actor string, now time.Time) *LibraryInfo {
	return &LibraryInfo{
		CandidateID: candidateID,
		Source:      source,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch records a change of field by actor
func (l *LibraryInfo) Touch(field, actor, previous, reason string, confidence float64, now time.Time) {
	if l.Fields == nil {
		l.Fields = make(map[string]FieldProvenance)
	}
	l.Fields[field] = FieldProvenance{
		UpdatedBy:     actor,
		UpdatedAt:     now,
		PreviousValue: previous,
		Reason:        reason,
		Confidence:    confidence,
	}
	l.UpdatedAt = now
}

// FieldAgeDays returns how many whole days ago field was last written,
// falling back to the record's own timestamps.
func (l *LibraryInfo) FieldAgeDays(field string, now time.Time) int {
	if l == nil {
		return UnknownFieldAge
	}
	ts := l.Fields[field].UpdatedAt
	if ts.IsZero() {
		ts = l.UpdatedAt
	}
	if ts.IsZero() {
		ts = l.CreatedAt
	}
	if ts.IsZero() {
		return UnknownFieldAge
	}
	return int(now.Sub(ts).Hours() / 24)
}

// FieldSource classifies the last writer of field
func (l *LibraryInfo) FieldSource(field string) ValueSource {
	if l == nil {
		return ValueSourceUnknown
	}
	by := l.Fields[field].UpdatedBy
	if by == "" {
		by = l.CreatedBy
	}
	if by == SystemActor || by == ImportActor {
		return ValueSourceAutomatic
	}
	return ValueSourceManual
}

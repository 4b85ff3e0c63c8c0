package types

// CandidateFilter selects candidates by equality on its non-zero fields.
type CandidateFilter struct {
	EntityType     EntityType
	Status         CandidateStatus
	OrganizationID string
	// MinScore excludes candidates scoring below it when positive
	MinScore int
	// Limit caps the result size; 0 means no limit
	Limit int
}

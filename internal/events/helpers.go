package events

import (
	"encoding/json"
	"fmt"
)

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}

// SetScanJobData sets the Data field with ScanJobData in a type-safe way.
func (e *Event) SetScanJobData(data ScanJobData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ScanJobData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetScanJobData retrieves ScanJobData from the Data field.
func (e *Event) GetScanJobData() (*ScanJobData, error) {
	var data ScanJobData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ScanJobData: %w", err)
	}
	return &data, nil
}

// SetCandidateData sets the Data field with CandidateData in a type-safe way.
func (e *Event) SetCandidateData(data CandidateData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CandidateData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCandidateData retrieves CandidateData from the Data field.
func (e *Event) GetCandidateData() (*CandidateData, error) {
	var data CandidateData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CandidateData: %w", err)
	}
	return &data, nil
}

// SetMergeData sets the Data field with MergeData in a type-safe way.
func (e *Event) SetMergeData(data MergeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert MergeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetMergeData retrieves MergeData from the Data field.
func (e *Event) GetMergeData() (*MergeData, error) {
	var data MergeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse MergeData: %w", err)
	}
	return &data, nil
}

// SetLibraryFieldData sets the Data field with LibraryFieldData in a type-safe way.
func (e *Event) SetLibraryFieldData(data LibraryFieldData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert LibraryFieldData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetLibraryFieldData retrieves LibraryFieldData from the Data field.
func (e *Event) GetLibraryFieldData() (*LibraryFieldData, error) {
	var data LibraryFieldData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse LibraryFieldData: %w", err)
	}
	return &data, nil
}

// SetImportData sets the Data field with ImportData in a type-safe way.
func (e *Event) SetImportData(data ImportData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ImportData: %w", err)
	}
	e.Data = dataMap
	return nil
}

package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/prlibrary/matching/internal/types"
)

//go:embed merged_record.schema.json
var mergedRecordSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("merged_record.schema.json", strings.NewReader(mergedRecordSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile("merged_record.schema.json")
	})
	return compiledSchema, compiledSchemaErr
}

// decodeMergedRecord validates raw against the merged record schema and
// decodes it.
func decodeMergedRecord(raw []byte) (types.ContactData, error) {
	schema, err := loadSchema()
	if err != nil {
		return types.ContactData{}, fmt.Errorf("load schema: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return types.ContactData{}, fmt.Errorf("decode response JSON: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return types.ContactData{}, fmt.Errorf("schema validation failed: %w", err)
	}
	var data types.ContactData
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.ContactData{}, fmt.Errorf("unmarshal merged record: %w", err)
	}
	return data, nil
}

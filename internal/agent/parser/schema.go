package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/feichai0017/certificate-processor/internal/models"
)

func certificateSchema() map[string]any {
	// null is what some models emit for an unknown field; it becomes "Not found"
	field := map[string]any{"type": []string{"string", "null"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":     field,
			"course":   field,
			"issuer":   field,
			"date":     field,
			"category": map[string]any{"type": "string", "enum": models.AllowedCategories()},
		},
		"required": []string{"category"},
	}
}

func skillsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"skills": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"skills"},
	}
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// mustCompile is only used for the static schemas above.
func mustCompile(name string, schemaMap map[string]any) *jsonschema.Schema {
	s, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Ingested events are checked against these schemas before they are decoded,
// so unknown fields and wrong types are reported with their JSON path.
var (
	runCompletionSchema = gojsonschema.NewGoLoader(map[string]any{
		"type":                 "object",
		"required":             []any{"run_id", "job_name", "outcome"},
		"additionalProperties": false,
		"properties": map[string]any{
			"run_id":   map[string]any{"type": "string", "minLength": 1},
			"job_name": map[string]any{"type": "string", "minLength": 1},
			"outcome":  map[string]any{"type": "string", "enum": []any{"SUCCESS", "FAILURE"}},
			"tags": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	})

	materializationSchema = gojsonschema.NewGoLoader(map[string]any{
		"type":                 "object",
		"required":             []any{"asset_key"},
		"additionalProperties": false,
		"properties": map[string]any{
			"asset_key": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"log_entry_id": map[string]any{"type": "string"},
			"run_id":       map[string]any{"type": "string"},
		},
	})
)

func validateJSONSchema(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

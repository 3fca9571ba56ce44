package rivlet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildFileJSONSchema returns the JSON-Schema for one rivlet file: either a bare
// array of records or an object holding them under "rivlets".
func BuildFileJSONSchema(textField, locationField string) map[string]any {
	record := map[string]any{
		"type": "object",
		"properties": map[string]any{
			textField:     map[string]any{"type": "string"},
			locationField: locationSchema(),
		},
		"required": []string{textField, locationField},
	}
	records := map[string]any{"type": "array", "items": record}

	return map[string]any{
		"oneOf": []any{
			records,
			map[string]any{
				"type":       "object",
				"properties": map[string]any{"rivlets": records},
				"required":   []string{"rivlets"},
			},
		},
	}
}

func locationSchema() map[string]any {
	num := map[string]any{"type": "number"}
	return map[string]any{
		"oneOf": []any{
			map[string]any{
				"type":     "array",
				"items":    num,
				"minItems": 4,
				"maxItems": 4,
			},
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"left":   num,
					"top":    num,
					"width":  num,
					"height": num,
				},
				"required": []string{"left", "top", "width", "height"},
			},
		},
	}
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rivlet.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("rivlet.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

package payload

// BuildRawOutputSchema returns the JSON-Schema every persisted raw_output must satisfy.
func BuildRawOutputSchema() map[string]any {
	field := map[string]any{
		"type":     "object",
		"required": []string{"value", "confidence", "bbox"},
		"properties": map[string]any{
			"value":      map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"bbox":       bboxProp(),
		},
	}
	metadata := map[string]any{
		"type":     "object",
		"required": []string{"processing_time", "image_dimensions"},
		"properties": map[string]any{
			"processing_time": map[string]any{"type": "string", "minLength": 1},
			"image_dimensions": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "integer", "minimum": 1},
				"minItems": 2,
				"maxItems": 2,
			},
			"model_id": map[string]any{"type": "string"},
			"fallback": map[string]any{"type": "boolean"},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []string{KeyStructured, KeyQuality, KeyMetadata},
		"properties": map[string]any{
			KeyStructured: map[string]any{"type": "object"},
			KeyQuality:    map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			KeyMetadata:   metadata,
		},
		"additionalProperties": field,
	}
}

func bboxProp() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "integer", "minimum": 0},
		"minItems": 4,
		"maxItems": 4,
	}
}

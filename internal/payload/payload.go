package payload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/extract"
	"github.com/joseph-ayodele/docscan/internal/mapping"
)

// Reserved top-level keys of raw_output.
const (
	KeyStructured = "structured_data"
	KeyQuality    = "processing_quality"
	KeyMetadata   = "processing_metadata"
)

type Metadata struct {
	ProcessingTime  time.Time `json:"-"`
	ImageDimensions [2]int    `json:"image_dimensions"` // [height, width]
	ModelID         string    `json:"model_id,omitempty"`
	Fallback        bool      `json:"fallback"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	type alias Metadata
	return json.Marshal(struct {
		ProcessingTime string `json:"processing_time"`
		alias
	}{m.ProcessingTime.UTC().Format(time.RFC3339Nano), alias(m)})
}

// RawOutput is the persisted payload of a completed document.
type RawOutput struct {
	Fields     extract.Fields
	Structured mapping.Record
	Quality    constants.Quality
	Metadata   Metadata
}

// Build flattens the payload and validates it. Detected labels that collide
// with a reserved key are dropped.
func Build(out RawOutput, logger *slog.Logger) (json.RawMessage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc := make(map[string]any, len(out.Fields)+3)
	for label, f := range out.Fields {
		switch label {
		case KeyStructured, KeyQuality, KeyMetadata:
			logger.Warn("payload.label.reserved", "label", label)
			continue
		}
		doc[label] = f
	}
	doc[KeyStructured] = out.Structured
	doc[KeyQuality] = out.Quality
	doc[KeyMetadata] = out.Metadata

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal raw_output: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

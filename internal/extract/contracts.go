package extract

import (
	"context"
	"image"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/ocr"
)

// FieldDetector locates labelled regions on a normalised page.
type FieldDetector interface {
	Detect(ctx context.Context, img *image.Gray, cat constants.Category) (*detect.Detection, error)
}

// TextRecognizer reads the text inside one crop.
type TextRecognizer interface {
	Recognize(ctx context.Context, crop *image.Gray, mode ocr.Mode) (string, error)
}

// Field is the recognised content of one detected region.
type Field struct {
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	BBox       detect.BBox `json:"bbox"`
}

// Fields maps a detection label to its field.
type Fields map[string]Field

// Result is one extraction pass.
type Result struct {
	Fields   Fields
	Quality  constants.Quality
	ModelID  string
	Fallback bool
}

package detect

import (
	"context"
	"errors"
	"image"
)

// FallbackLabel tags the whole-image region used when no model artifact exists.
const FallbackLabel = "full_text_fallback"

// ErrModelNotFound means the artifact for a model id is absent on disk.
var ErrModelNotFound = errors.New("model artifact not found")

// BBox is [x1, y1, x2, y2] in pixels; x2 and y2 are exclusive.
type BBox [4]int

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

func (b BBox) Empty() bool {
	return b[2] <= b[0] || b[3] <= b[1]
}

// Clamp limits the box to a w x h image.
func (b BBox) Clamp(w, h int) BBox {
	return BBox{
		clamp(b[0], 0, w),
		clamp(b[1], 0, h),
		clamp(b[2], 0, w),
		clamp(b[3], 0, h),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Region is one labelled detection.
type Region struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Model runs inference for a single loaded artifact.
type Model interface {
	ID() string
	Predict(ctx context.Context, img *image.Gray) ([]Region, error)
}

// Loader materialises a model from persistent storage.
type Loader interface {
	Load(ctx context.Context, id string) (Model, error)
}

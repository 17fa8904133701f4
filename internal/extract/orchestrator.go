package extract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/ocr"
)

type Orchestrator struct {
	detector   FieldDetector
	recognizer TextRecognizer
	logger     *slog.Logger
}

func NewOrchestrator(d FieldDetector, r TextRecognizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{detector: d, recognizer: r, logger: logger}
}

// Extract detects regions on img and recognises each one. When two regions
// share a label the later one wins.
func (o *Orchestrator) Extract(ctx context.Context, img *image.Gray, cat constants.Category) (*Result, error) {
	start := time.Now()
	det, err := o.detector.Detect(ctx, img, cat)
	if err != nil {
		return nil, fmt.Errorf("detect fields: %w", err)
	}

	fields := make(Fields, len(det.Regions))
	for _, r := range det.Regions {
		text, err := o.recognizer.Recognize(ctx, Crop(img, r.BBox), modeFor(r.Label))
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", r.Label, err)
		}
		fields[r.Label] = Field{Value: text, Confidence: r.Confidence, BBox: r.BBox}
	}

	res := &Result{
		Fields:   fields,
		Quality:  Score(fields),
		ModelID:  det.ModelID,
		Fallback: det.Fallback,
	}
	o.logger.Debug("extract.ok",
		"category", cat,
		"model_id", det.ModelID,
		"regions", len(det.Regions),
		"fields", len(fields),
		"quality", res.Quality,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func modeFor(label string) ocr.Mode {
	switch {
	case label == detect.FallbackLabel:
		return ocr.ModeBlock
	case strings.HasSuffix(label, "_numero"), strings.HasSuffix(label, "_cuit"):
		return ocr.ModeWord
	default:
		return ocr.ModeLine
	}
}

// Crop copies the box out of img so recognisers never alias the page buffer.
func Crop(img *image.Gray, box detect.BBox) *image.Gray {
	r := box.Rect().Add(img.Rect.Min).Intersect(img.Rect)
	if r.Empty() {
		return nil
	}
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		off := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], img.Pix[off:off+r.Dx()])
	}
	return out
}

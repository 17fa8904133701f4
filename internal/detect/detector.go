package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/joseph-ayodele/docscan/constants"
)

// Detection is the outcome of one detector pass.
type Detection struct {
	ModelID  string
	Fallback bool // whole-image region because the artifact is missing
	Regions  []Region
}

type Detector struct {
	cache    *ModelCache
	registry Registry
	logger   *slog.Logger
}

func NewDetector(cache *ModelCache, registry Registry, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cache: cache, registry: registry, logger: logger}
}

// Detect returns labelled regions in model order, clamped to img. A missing
// model artifact yields a single whole-image FallbackLabel region.
func (d *Detector) Detect(ctx context.Context, img *image.Gray, cat constants.Category) (*Detection, error) {
	if img == nil || img.Rect.Empty() {
		return nil, fmt.Errorf("detect: empty image")
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()

	id, generic := d.registry.ModelFor(cat)
	if generic {
		d.logger.Warn("detect.model.fallback", "category", cat, "model_id", id)
	}

	model, err := d.cache.Get(ctx, id)
	if errors.Is(err, ErrModelNotFound) {
		d.logger.Warn("detect.model.missing", "model_id", id, "error", err)
		return &Detection{
			ModelID:  id,
			Fallback: true,
			Regions:  []Region{{Label: FallbackLabel, Confidence: 0, BBox: BBox{0, 0, w, h}}},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}

	raw, err := model.Predict(ctx, img)
	if err != nil {
		return nil, err
	}

	regions := make([]Region, 0, len(raw))
	for _, r := range raw {
		r.BBox = r.BBox.Clamp(w, h)
		if r.BBox.Empty() {
			d.logger.Debug("detect.region.dropped", "label", r.Label, "bbox", r.BBox)
			continue
		}
		regions = append(regions, r)
	}
	d.logger.Debug("detect.ok", "model_id", id, "category", cat, "regions", len(regions))
	return &Detection{ModelID: id, Regions: regions}, nil
}

package imaging

import (
	"image"
	"log/slog"
	"math"
)

// Result is a normalised page plus what was done to it.
type Result struct {
	Image     *image.Gray
	SkewAngle float64
	Deskewed  bool
	Warped    bool
}

type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize runs grayscale, smoothing, deskew, perspective correction and
// adaptive binarisation. Missing geometry is skipped, never an error.
func (n *Normalizer) Normalize(img image.Image) (*Result, error) {
	if isEmpty(img) {
		return nil, ErrEmptyImage
	}

	g := GaussianBlur5(ToGray(img))

	res := &Result{}
	if angle, ok := SkewAngle(g); ok && math.Abs(angle) >= minRotation {
		res.SkewAngle = angle
		g = Rotate(g, angle)
		res.Deskewed = true
	}
	g, res.Warped = CorrectPerspective(g)
	res.Image = AdaptiveThreshold(g, thresholdBlock, thresholdOffset)

	n.logger.Debug("imaging.normalized",
		"width", res.Image.Rect.Dx(),
		"height", res.Image.Rect.Dy(),
		"skew_angle", res.SkewAngle,
		"deskewed", res.Deskewed,
		"warped", res.Warped,
	)
	return res, nil
}

func isEmpty(img image.Image) bool {
	switch v := img.(type) {
	case nil:
		return true
	case *image.Gray:
		if v == nil {
			return true
		}
	case *image.RGBA:
		if v == nil {
			return true
		}
	case *image.NRGBA:
		if v == nil {
			return true
		}
	}
	return img.Bounds().Empty()
}

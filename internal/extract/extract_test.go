package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/ocr"
)

type fakeDetector struct {
	det *detect.Detection
	err error
}

func (f fakeDetector) Detect(context.Context, *image.Gray, constants.Category) (*detect.Detection, error) {
	return f.det, f.err
}

type call struct {
	size image.Point
	mode ocr.Mode
}

type fakeRecognizer struct {
	texts []string
	calls []call
	err   error
}

func (f *fakeRecognizer) Recognize(_ context.Context, crop *image.Gray, mode ocr.Mode) (string, error) {
	f.calls = append(f.calls, call{size: crop.Rect.Size(), mode: mode})
	if f.err != nil {
		return "", f.err
	}
	text := f.texts[0]
	f.texts = f.texts[1:]
	return text, nil
}

func fieldsWith(confs ...float64) Fields {
	out := Fields{}
	for i, c := range confs {
		out[fmt.Sprintf("f%d", i)] = Field{Confidence: c}
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   constants.Quality
	}{
		{"empty", Fields{}, constants.QualityLow},
		{"seven of ten high", fieldsWith(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.8, 0.1, 0.1, 0.1), constants.QualityHigh},
		{"five high two medium", fieldsWith(0.9, 0.9, 0.9, 0.9, 0.9, 0.6, 0.5, 0.1, 0.1, 0.1), constants.QualityMedium},
		{"mostly weak", fieldsWith(0.9, 0.2, 0.3, 0.4), constants.QualityLow},
		{"single high", fieldsWith(0.95), constants.QualityHigh},
		{"just below high", fieldsWith(0.79), constants.QualityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.fields); got != tt.want {
				t.Fatalf("Score = %s want %s", got, tt.want)
			}
		})
	}
}

func TestExtractLastRegionWins(t *testing.T) {
	det := &detect.Detection{ModelID: "invoices", Regions: []detect.Region{
		{Label: "total", Confidence: 0.6, BBox: detect.BBox{0, 0, 10, 5}},
		{Label: "emisor_cuit", Confidence: 0.95, BBox: detect.BBox{10, 0, 40, 8}},
		{Label: "total", Confidence: 0.9, BBox: detect.BBox{5, 10, 45, 20}},
	}}
	rec := &fakeRecognizer{texts: []string{"$ 10", "20-12345678-9", "TOTAL: $1,210.00"}}
	o := NewOrchestrator(fakeDetector{det: det}, rec, nil)

	res, err := o.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 50, 30)), constants.InvoiceA)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Fields) != 2 {
		t.Fatalf("fields = %+v", res.Fields)
	}
	total := res.Fields["total"]
	if total.Value != "TOTAL: $1,210.00" || total.Confidence != 0.9 || total.BBox != (detect.BBox{5, 10, 45, 20}) {
		t.Fatalf("total = %+v", total)
	}
	if res.Quality != constants.QualityHigh {
		t.Fatalf("quality = %s", res.Quality)
	}
	if rec.calls[1].mode != ocr.ModeWord || rec.calls[0].mode != ocr.ModeLine {
		t.Fatalf("modes = %+v", rec.calls)
	}
	if rec.calls[2].size != image.Pt(40, 10) {
		t.Fatalf("crop size = %v", rec.calls[2].size)
	}
}

func TestExtractFallbackRegionUsesBlockMode(t *testing.T) {
	det := &detect.Detection{ModelID: "dni", Fallback: true, Regions: []detect.Region{
		{Label: detect.FallbackLabel, BBox: detect.BBox{0, 0, 30, 20}},
	}}
	rec := &fakeRecognizer{texts: []string{"REPUBLICA ARGENTINA"}}
	res, err := NewOrchestrator(fakeDetector{det: det}, rec, nil).
		Extract(context.Background(), image.NewGray(image.Rect(0, 0, 30, 20)), constants.IdentityFront)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Fallback || res.Quality != constants.QualityLow {
		t.Fatalf("result = %+v", res)
	}
	if rec.calls[0].mode != ocr.ModeBlock {
		t.Fatalf("mode = %v", rec.calls[0].mode)
	}
}

func TestExtractPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	o := NewOrchestrator(fakeDetector{err: boom}, &fakeRecognizer{}, nil)
	if _, err := o.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), constants.InvoiceC); !errors.Is(err, boom) {
		t.Fatalf("detector error not propagated: %v", err)
	}

	det := &detect.Detection{Regions: []detect.Region{{Label: "total", BBox: detect.BBox{0, 0, 2, 2}}}}
	o = NewOrchestrator(fakeDetector{det: det}, &fakeRecognizer{err: boom}, nil)
	if _, err := o.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), constants.InvoiceC); !errors.Is(err, boom) {
		t.Fatalf("recognizer error not propagated: %v", err)
	}
}

func TestCropCopiesPixels(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	c := Crop(img, detect.BBox{2, 3, 5, 6})
	if c.Rect.Dx() != 3 || c.Rect.Dy() != 3 {
		t.Fatalf("crop rect = %v", c.Rect)
	}
	if c.Pix[0] != img.Pix[3*8+2] {
		t.Fatalf("crop origin pixel = %d", c.Pix[0])
	}
	c.Pix[0] = 255
	if img.Pix[3*8+2] == 255 {
		t.Fatal("crop aliases source")
	}
	if Crop(img, detect.BBox{9, 9, 12, 12}) != nil {
		t.Fatal("out-of-frame crop should be nil")
	}
}

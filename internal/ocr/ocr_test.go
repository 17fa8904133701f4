package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/joseph-ayodele/docscan/internal/runner"
)

func TestDegenerateCropsSkipEngine(t *testing.T) {
	fake := &runner.Fake{Fn: func(string, []string) ([]byte, error) {
		t.Fatal("engine must not run for degenerate crops")
		return nil, nil
	}}
	r := NewRecognizer(Config{}, fake, nil)

	flat := image.NewGray(image.Rect(0, 0, 10, 4))
	for i := range flat.Pix {
		flat.Pix[i] = 255
	}
	crops := map[string]*image.Gray{
		"nil":       nil,
		"zero area": image.NewGray(image.Rect(5, 5, 5, 9)),
		"uniform":   flat,
	}
	for name, crop := range crops {
		t.Run(name, func(t *testing.T) {
			got, err := r.Recognize(context.Background(), crop, ModeLine)
			if err != nil || got != "" {
				t.Fatalf("Recognize = %q, %v", got, err)
			}
		})
	}
}

func TestRecognizeInvokesTesseract(t *testing.T) {
	fake := &runner.Fake{Fn: func(string, []string) ([]byte, error) {
		return []byte("  TOTAL:\t$1,210.00 \n\f"), nil
	}}
	r := NewRecognizer(Config{TessdataDir: "/usr/share/tessdata"}, fake, nil)

	crop := image.NewGray(image.Rect(0, 0, 20, 8))
	crop.SetGray(3, 3, color.Gray{Y: 255})

	got, err := r.Recognize(context.Background(), crop, ModeWord)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got != "TOTAL: $1,210.00" {
		t.Fatalf("text = %q", got)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Name != "tesseract" {
		t.Fatalf("calls = %+v", calls)
	}
	args := calls[0].Args
	for _, want := range [][]string{{"-l", "spa"}, {"--oem", "3"}, {"--psm", "8"}, {"--tessdata-dir", "/usr/share/tessdata"}} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Fatalf("args %v missing %v", args, want)
		}
	}
}

func TestRecognizeSurfacesEngineFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	fake := &runner.Fake{Fn: func(string, []string) ([]byte, error) { return nil, boom }}
	r := NewRecognizer(Config{}, fake, nil)

	crop := image.NewGray(image.Rect(0, 0, 4, 4))
	crop.Pix[0] = 200
	if _, err := r.Recognize(context.Background(), crop, ModeLine); !errors.Is(err, boom) {
		t.Fatalf("want engine error, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"GONZALEZ\n", "GONZALEZ"},
		{"AV.  SIEMPRE\tVIVA\r\n742", "AV. SIEMPRE VIVA 742"},
		{"-----\n15/03/1990\n", "15/03/1990"},
		{"05/03/2021", "05/03/2021"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q want %q", tt.in, got, tt.want)
		}
	}
}

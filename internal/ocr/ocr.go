package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/runner"
)

// Mode selects tesseract's page segmentation for a crop.
type Mode int

const (
	ModeBlock Mode = 3 // whole page or free-form block
	ModeLine  Mode = 7 // single text line
	ModeWord  Mode = 8 // single word, e.g. an identifier
)

func (m Mode) String() string {
	switch m {
	case ModeBlock:
		return "block"
	case ModeLine:
		return "line"
	case ModeWord:
		return "word"
	default:
		return "psm" + strconv.Itoa(int(m))
	}
}

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "spa"
	OEM         int    // default 3
	TessdataDir string
}

type Recognizer struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewRecognizer(cfg Config, r runner.Runner, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "spa"
	}
	if cfg.OEM == 0 {
		cfg.OEM = 3
	}
	if r == nil {
		r = runner.New(logger)
	}
	return &Recognizer{cfg: cfg, runner: r, logger: logger}
}

// Recognize returns the trimmed text in crop. Degenerate crops (nil, zero
// area, or a single flat intensity) yield "" without invoking the engine.
func (r *Recognizer) Recognize(ctx context.Context, crop *image.Gray, mode Mode) (string, error) {
	if Degenerate(crop) {
		return "", nil
	}
	start := time.Now()

	data, err := imaging.EncodePNG(crop)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "docscan-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp crop: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp crop: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp crop: %w", err)
	}

	// tesseract <file> stdout -l <lang> --oem <n> --psm <n>
	args := []string{tmp.Name(), "stdout", "-l", r.cfg.Lang,
		"--oem", strconv.Itoa(r.cfg.OEM), "--psm", strconv.Itoa(int(mode))}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, runner.Truncate(string(errb), 512))
	}

	text := Normalize(string(out))
	r.logger.Debug("ocr.recognized", "mode", mode, "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Degenerate reports crops that cannot contain text.
func Degenerate(crop *image.Gray) bool {
	if crop == nil || crop.Rect.Empty() {
		return true
	}
	b := crop.Rect
	first := crop.GrayAt(b.Min.X, b.Min.Y).Y
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if crop.GrayAt(x, y).Y != first {
				return false
			}
		}
	}
	return true
}

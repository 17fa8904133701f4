package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/extract"
	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/ocr"
	"github.com/joseph-ayodele/docscan/internal/pipeline"
	"github.com/joseph-ayodele/docscan/internal/runner"
)

// runpipeline runs one local image through normalisation, detection,
// recognition and mapping, and prints the raw_output it would persist.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 3 {
		logger.Error("usage", "cmd", "runpipeline <category> <image-path>")
		os.Exit(2)
	}
	cat, ok := constants.Canonicalize(os.Args[1])
	if !ok {
		logger.Error("unknown category", "arg", os.Args[1], "allowed", constants.AsStringSlice())
		os.Exit(2)
	}
	data, err := os.ReadFile(os.Args[2])
	if err != nil {
		logger.Error("read image", "path", os.Args[2], "error", err)
		os.Exit(1)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	img, format, err := imaging.Decode(data)
	if err != nil {
		logger.Error("decode image", "error", err)
		os.Exit(1)
	}
	norm, err := imaging.NewNormalizer(logger).Normalize(img)
	if err != nil {
		logger.Error("normalize", "error", err)
		os.Exit(1)
	}
	logger.Info("normalized", "format", format, "skew_angle", norm.SkewAngle, "deskewed", norm.Deskewed, "warped", norm.Warped)

	exec := runner.New(logger)
	cache := detect.NewModelCache(detect.FileLoader{
		Dir:     cfg.Models.Dir,
		Weights: cfg.Models.Weights,
		Command: cfg.Models.DetectorCmd,
		Runner:  exec,
		Logger:  logger,
	}, logger)
	detector := detect.NewDetector(cache, detect.Registry{
		Identity: cfg.Models.Identity,
		Invoice:  cfg.Models.Invoice,
		Fallback: cfg.Models.Fallback,
	}, logger)
	recognizer := ocr.NewRecognizer(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Lang,
		OEM:         cfg.OCR.OEM,
		TessdataDir: cfg.OCR.TessdataDir,
	}, exec, logger)

	ex, err := extract.NewOrchestrator(detector, recognizer, logger).Extract(ctx, norm.Image, cat)
	if err != nil {
		logger.Error("extract", "error", err)
		os.Exit(1)
	}
	raw, err := pipeline.BuildOutput(cat, norm.Image, ex, time.Now(), logger)
	if err != nil {
		logger.Error("build raw_output", "error", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		logger.Error("format raw_output", "error", err)
		os.Exit(1)
	}
	fmt.Println(pretty.String())
	logger.Info("done", "category", cat, "quality", ex.Quality, "fields", len(ex.Fields), "fallback", ex.Fallback)
}

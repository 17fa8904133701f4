package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/extract"
	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/mapping"
	"github.com/joseph-ayodele/docscan/internal/metrics"
	"github.com/joseph-ayodele/docscan/internal/payload"
)

// Lifecycle is the subset of lifecycle.Manager an attempt needs.
type Lifecycle interface {
	Begin(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	Complete(ctx context.Context, id uuid.UUID, raw json.RawMessage, quality constants.Quality) (*entity.Document, error)
	Fail(ctx context.Context, id uuid.UUID, cause error) (*entity.Document, error)
	Release(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	SetStage(ctx context.Context, id uuid.UUID, stage constants.Stage)
}

type Downloader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

type Normalizer interface {
	Normalize(img image.Image) (*imaging.Result, error)
}

type Extractor interface {
	Extract(ctx context.Context, img *image.Gray, cat constants.Category) (*extract.Result, error)
}

// ErrAttemptFailed marks an attempt that ended in FAILED.
var ErrAttemptFailed = errors.New("processing attempt failed")

// Outcome is the terminal result of one attempt.
type Outcome struct {
	DocumentID uuid.UUID
	Status     constants.DocumentStatus
	Quality    constants.Quality
	Error      string
	Duration   time.Duration
}

// Processor runs one processing attempt: claim, download, normalise, extract,
// map, persist.
type Processor struct {
	lifecycle  Lifecycle
	store      Downloader
	normalizer Normalizer
	extractor  Extractor
	logger     *slog.Logger

	now         func() time.Time
	failTimeout time.Duration
}

type Option func(*Processor)

// WithClock fixes the timestamps written into raw_output.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithFailTimeout bounds the FAILED write after the attempt's context is gone.
func WithFailTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.failTimeout = d
		}
	}
}

func NewProcessor(lc Lifecycle, store Downloader, n Normalizer, x Extractor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		lifecycle:   lc,
		store:       store,
		normalizer:  n,
		extractor:   x,
		logger:      logger,
		now:         time.Now,
		failTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessDocument claims the document and runs the pipeline to a terminal state.
// The returned error is non-nil only when nothing was recorded: the claim was
// rejected, the input was unusable, or the FAILED write itself failed.
func (p *Processor) ProcessDocument(ctx context.Context, id uuid.UUID) (Outcome, error) {
	start := time.Now()
	doc, err := p.lifecycle.Begin(ctx, id)
	if err != nil {
		p.logger.Warn("pipeline.claim.rejected", "document_id", id, "error", err)
		return Outcome{}, err
	}
	metrics.AttemptsStarted.Add(1)

	res, err := p.attempt(ctx, doc)
	out := Outcome{DocumentID: id, Duration: time.Since(start)}
	metrics.AttemptMillis.Add(out.Duration.Milliseconds())

	switch {
	case err == nil:
		out.Status = constants.StatusCompleted
		out.Quality = res.Quality
		metrics.AttemptsCompleted.Add(1)
		metrics.QualityTiers.Add(string(res.Quality), 1)
		p.logger.Info("pipeline.completed",
			"document_id", id,
			"category", doc.Category,
			"quality", res.Quality,
			"fields", len(res.Fields),
			"duration_ms", out.Duration.Milliseconds(),
		)
		return out, nil

	case errors.Is(err, imaging.ErrEmptyImage):
		// bad input: hand the document back untouched
		rctx, cancel := p.detached(ctx)
		defer cancel()
		if _, rerr := p.lifecycle.Release(rctx, id); rerr != nil {
			p.logger.Error("pipeline.release.failed", "document_id", id, "error", rerr)
		}
		return Outcome{}, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	fctx, cancel := p.detached(ctx)
	defer cancel()
	if _, ferr := p.lifecycle.Fail(fctx, id, err); ferr != nil {
		p.logger.Error("pipeline.fail.unrecorded", "document_id", id, "error", err, "write_error", ferr)
		return Outcome{}, fmt.Errorf("record failure of %s: %w", id, ferr)
	}
	metrics.AttemptsFailed.Add(1)
	out.Status = constants.StatusFailed
	out.Error = err.Error()
	p.logger.Warn("pipeline.failed",
		"document_id", id,
		"category", doc.Category,
		"error", err,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

// Process adapts ProcessDocument to async.Processor. FAILED outcomes are
// reported as errors so workers log them.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	out, err := p.ProcessDocument(ctx, id)
	if err != nil {
		return err
	}
	if out.Status == constants.StatusFailed {
		return fmt.Errorf("%w: %s", ErrAttemptFailed, out.Error)
	}
	return nil
}

// detached survives cancellation of the attempt so the final write still lands.
func (p *Processor) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.failTimeout)
}

type attemptResult struct {
	Fields  extract.Fields
	Quality constants.Quality
}

// attempt runs the stages strictly in order. A panic anywhere becomes an error.
func (p *Processor) attempt(ctx context.Context, doc *entity.Document) (res attemptResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline.panic", "document_id", doc.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	p.lifecycle.SetStage(ctx, doc.ID, constants.StageDownloading)
	data, err := p.store.Get(ctx, doc.StorageRef)
	if err != nil {
		return res, fmt.Errorf("download %s: %w", doc.StorageRef, err)
	}

	p.lifecycle.SetStage(ctx, doc.ID, constants.StagePreprocessing)
	img, format, err := imaging.Decode(data)
	if err != nil {
		return res, fmt.Errorf("decode image: %w", err)
	}
	norm, err := p.normalizer.Normalize(img)
	if err != nil {
		return res, err
	}
	p.logger.Debug("pipeline.normalized",
		"document_id", doc.ID,
		"format", format,
		"skew_angle", norm.SkewAngle,
		"deskewed", norm.Deskewed,
		"warped", norm.Warped,
	)

	p.lifecycle.SetStage(ctx, doc.ID, constants.StageDetecting)
	ex, err := p.extractor.Extract(ctx, norm.Image, doc.Category)
	if err != nil {
		return res, err
	}
	if ex.Fallback {
		metrics.DetectorFallbacks.Add(1)
	}

	p.lifecycle.SetStage(ctx, doc.ID, constants.StageMapping)
	raw, err := BuildOutput(doc.Category, norm.Image, ex, p.now(), p.logger)
	if err != nil {
		return res, err
	}

	p.lifecycle.SetStage(ctx, doc.ID, constants.StageSaving)
	if _, err := p.lifecycle.Complete(ctx, doc.ID, raw, ex.Quality); err != nil {
		return res, fmt.Errorf("save result: %w", err)
	}
	return attemptResult{Fields: ex.Fields, Quality: ex.Quality}, nil
}

// BuildOutput maps one extraction pass onto the persisted raw_output document.
func BuildOutput(cat constants.Category, img *image.Gray, ex *extract.Result, now time.Time, logger *slog.Logger) (json.RawMessage, error) {
	now = now.UTC()
	b := img.Bounds()
	return payload.Build(payload.RawOutput{
		Fields:     ex.Fields,
		Structured: mapping.Map(cat, ex.Fields, ex.Quality, now),
		Quality:    ex.Quality,
		Metadata: payload.Metadata{
			ProcessingTime:  now,
			ImageDimensions: [2]int{b.Dy(), b.Dx()},
			ModelID:         ex.ModelID,
			Fallback:        ex.Fallback,
		},
	}, logger)
}

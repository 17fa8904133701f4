package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/async"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/metrics"
	"github.com/joseph-ayodele/docscan/internal/pipeline"
)

type Mode string

const (
	ModeQueued Mode = "queued"
	ModeInline Mode = "inline"
)

// Result tells the submitter where the attempt went. Queued submissions
// report PENDING; inline ones report the terminal status.
type Result struct {
	DocumentID uuid.UUID                `json:"document_id"`
	Mode       Mode                     `json:"mode"`
	Status     constants.DocumentStatus `json:"status"`
	Detail     string                   `json:"detail,omitempty"`
}

type Processor interface {
	ProcessDocument(ctx context.Context, id uuid.UUID) (pipeline.Outcome, error)
}

type Documents interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
}

type Dispatcher struct {
	broker       async.Broker
	proc         Processor
	docs         Documents
	logger       *slog.Logger
	probeTimeout time.Duration
}

// New builds a Dispatcher. A nil broker means every submission runs inline.
func New(broker async.Broker, proc Processor, docs Documents, probeTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if probeTimeout <= 0 {
		probeTimeout = time.Second
	}
	return &Dispatcher{broker: broker, proc: proc, docs: docs, logger: logger, probeTimeout: probeTimeout}
}

// Submit starts exactly one processing attempt for id, on the broker when it
// answers the probe and in the caller's context otherwise.
func (d *Dispatcher) Submit(ctx context.Context, id uuid.UUID) (Result, error) {
	doc, err := d.docs.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if doc.Status != constants.StatusPending && doc.Status != constants.StatusFailed {
		return Result{}, fmt.Errorf("document %s is %s: %w", id, doc.Status, common.ErrConflict)
	}

	if d.reachable(ctx) {
		job := async.NewJob(id, common.RequestIDFromContext(ctx))
		err := d.broker.Enqueue(ctx, job)
		if err == nil {
			metrics.SubmissionsQueued.Add(1)
			d.logger.Info("dispatch.queued", "document_id", id)
			return Result{DocumentID: id, Mode: ModeQueued, Status: constants.StatusPending, Detail: "queued for processing"}, nil
		}
		d.logger.Warn("dispatch.enqueue.failed", "document_id", id, "error", err)
	}
	return d.inline(ctx, id)
}

func (d *Dispatcher) inline(ctx context.Context, id uuid.UUID) (Result, error) {
	metrics.SubmissionsInline.Add(1)
	d.logger.Info("dispatch.inline", "document_id", id)
	out, err := d.proc.ProcessDocument(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res := Result{DocumentID: id, Mode: ModeInline, Status: out.Status, Detail: "processed inline"}
	if out.Status == constants.StatusFailed {
		res.Detail = out.Error
	}
	return res, nil
}

// reachable probes the broker. Errors, timeouts and panics all count as down.
func (d *Dispatcher) reachable(ctx context.Context) (ok bool) {
	if d.broker == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("dispatch.probe.panic", "panic", r)
			ok = false
		}
	}()
	pctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()
	if err := d.broker.Ping(pctx); err != nil {
		d.logger.Warn("dispatch.broker.unreachable", "error", err)
		return false
	}
	return true
}

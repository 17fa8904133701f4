package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/repository"
)

var (
	claimable     = []constants.DocumentStatus{constants.StatusPending, constants.StatusFailed}
	inFlight      = []constants.DocumentStatus{constants.StatusProcessing}
	resubmittable = []constants.DocumentStatus{constants.StatusCompleted, constants.StatusFailed}
)

// Manager owns every status change of a document. Each change is one guarded
// update in the repository.
type Manager struct {
	docs   repository.DocumentRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(docs repository.DocumentRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{docs: docs, logger: logger, now: time.Now}
}

// Begin claims the document for one attempt. Only one concurrent caller wins;
// the others get ErrConflict.
func (m *Manager) Begin(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	doc, err := m.docs.Transition(ctx, id, repository.Transition{
		From:         claimable,
		To:           constants.StatusProcessing,
		At:           m.now(),
		CountAttempt: true,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("lifecycle.processing", "document_id", id, "attempt", doc.Attempts)
	return doc, nil
}

func (m *Manager) Complete(ctx context.Context, id uuid.UUID, raw json.RawMessage, quality constants.Quality) (*entity.Document, error) {
	doc, err := m.docs.Transition(ctx, id, repository.Transition{
		From:      inFlight,
		To:        constants.StatusCompleted,
		At:        m.now(),
		RawOutput: raw,
		Quality:   quality,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("lifecycle.completed", "document_id", id, "quality", quality)
	return doc, nil
}

func (m *Manager) Fail(ctx context.Context, id uuid.UUID, cause error) (*entity.Document, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	doc, err := m.docs.Transition(ctx, id, repository.Transition{
		From:  inFlight,
		To:    constants.StatusFailed,
		At:    m.now(),
		Error: msg,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Warn("lifecycle.failed", "document_id", id, "error", msg)
	return doc, nil
}

// Release hands a claimed document back to PENDING without recording a
// failure. Used when the attempt was rejected as bad input.
func (m *Manager) Release(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	doc, err := m.docs.Transition(ctx, id, repository.Transition{
		From: inFlight,
		To:   constants.StatusPending,
		At:   m.now(),
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("lifecycle.released", "document_id", id)
	return doc, nil
}

// Resubmit resets a terminal document to PENDING and clears its previous
// result. A PENDING document is returned unchanged.
func (m *Manager) Resubmit(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	doc, err := m.docs.Transition(ctx, id, repository.Transition{
		From: resubmittable,
		To:   constants.StatusPending,
		At:   m.now(),
	})
	if err == nil {
		m.logger.Info("lifecycle.resubmitted", "document_id", id)
		return doc, nil
	}
	if !errors.Is(err, common.ErrConflict) {
		return nil, err
	}
	current, gerr := m.docs.Get(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if current.Status == constants.StatusPending {
		return current, nil
	}
	return nil, fmt.Errorf("document %s is still %s: %w", id, current.Status, common.ErrConflict)
}

// SetStage records progress. Failures are logged, never returned.
func (m *Manager) SetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) {
	if err := m.docs.SetStage(ctx, id, stage); err != nil {
		m.logger.Warn("lifecycle.stage.failed", "document_id", id, "stage", stage, "error", err)
		return
	}
	m.logger.Debug("lifecycle.stage", "document_id", id, "stage", stage)
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return m.docs.Get(ctx, id)
}

func (m *Manager) Status(ctx context.Context, id uuid.UUID) (entity.StatusView, error) {
	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		return entity.StatusView{}, err
	}
	return doc.View(), nil
}

// ExtractedData returns raw_output. Anything but COMPLETED is a conflict.
func (m *Manager) ExtractedData(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != constants.StatusCompleted {
		return nil, fmt.Errorf("document %s is %s, not COMPLETED: %w", id, doc.Status, common.ErrConflict)
	}
	return doc.RawOutput, nil
}

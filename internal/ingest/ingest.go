package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/dispatch"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/storage"
)

// MaxUploadBytes caps a single uploaded scan.
const MaxUploadBytes = 25 << 20

type DocumentCreator interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
}

type Submitter interface {
	Submit(ctx context.Context, id uuid.UUID) (dispatch.Result, error)
}

// Upload is one file handed to the system by a collaborator.
type Upload struct {
	Filename string
	OwnerID  string
	Category string
	Body     io.Reader
}

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath string
	Document   *entity.Document
	Dispatch   dispatch.Result
	Err        string
}

// Ingestor stores an upload, records it as PENDING and dispatches it.
type Ingestor struct {
	store      storage.Store
	docs       DocumentCreator
	dispatcher Submitter
	logger     *slog.Logger
}

func NewIngestor(store storage.Store, docs DocumentCreator, dispatcher Submitter, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, docs: docs, dispatcher: dispatcher, logger: logger}
}

func (i *Ingestor) Ingest(ctx context.Context, up Upload) (IngestionResult, error) {
	var out IngestionResult

	v := common.NewValidator().
		Field("filename", up.Filename, common.Required, common.MaxLength(255), imageFile).
		Field("owner_id", up.OwnerID, common.MaxLength(128)).
		Field("category", up.Category, common.Required, knownCategory)
	if err := v.Error(); err != nil {
		return out, err
	}
	cat, _ := constants.Canonicalize(up.Category)
	if up.Body == nil {
		return out, fmt.Errorf("%w: empty upload", common.ErrInvalidInput)
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, MaxUploadBytes+1))
	if err != nil {
		return out, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return out, fmt.Errorf("%w: empty upload", common.ErrInvalidInput)
	}
	if len(data) > MaxUploadBytes {
		return out, fmt.Errorf("%w: upload larger than %d bytes", common.ErrInvalidInput, MaxUploadBytes)
	}

	ref, err := i.store.Put(ctx, up.Filename, bytes.NewReader(data))
	if err != nil {
		return out, fmt.Errorf("store upload: %w", err)
	}

	doc, err := i.docs.Create(ctx, &entity.Document{
		OwnerID:          up.OwnerID,
		OriginalFilename: filepath.Base(up.Filename),
		StorageRef:       ref,
		MediaType:        constants.MediaType(filepath.Ext(up.Filename)),
		Category:         cat,
		Status:           constants.StatusPending,
	})
	if err != nil {
		if derr := i.store.Delete(ctx, ref); derr != nil {
			i.logger.Warn("ingest.cleanup.failed", "ref", ref, "error", derr)
		}
		return out, err
	}
	out.Document = doc

	res, err := i.dispatcher.Submit(ctx, doc.ID)
	if err != nil {
		// the document is persisted PENDING and can be resubmitted
		i.logger.Error("ingest.dispatch.failed", "document_id", doc.ID, "error", err)
		return out, err
	}
	out.Dispatch = res
	i.logger.Info("ingest.accepted",
		"document_id", doc.ID,
		"category", cat,
		"bytes", len(data),
		"mode", res.Mode,
		"status", res.Status,
	)
	return out, nil
}

// categoryFromDir maps the first directory below root onto a Category.
func categoryFromDir(root, path string) (constants.Category, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", false
	}
	return constants.Canonicalize(parts[0])
}

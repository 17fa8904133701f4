package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/dispatch"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Lifecycle interface {
	Resubmit(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	Status(ctx context.Context, id uuid.UUID) (entity.StatusView, error)
	ExtractedData(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
}

type Submitter interface {
	Submit(ctx context.Context, id uuid.UUID) (dispatch.Result, error)
}

type Exporter interface {
	ExportXLSX(ctx context.Context, ownerID string) ([]byte, error)
}

type DocumentService struct {
	lifecycle Lifecycle
	submitter Submitter
	exporter  Exporter
	logger    *slog.Logger
}

var _ DocumentServiceServer = (*DocumentService)(nil)

func NewDocumentService(lc Lifecycle, sub Submitter, exp Exporter, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{lifecycle: lc, submitter: sub, exporter: exp, logger: logger}
}

func (s *DocumentService) Submit(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	res, err := s.submitter.Submit(ctx, id)
	if err != nil {
		s.logger.Warn("grpc.submit.failed", "document_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

// Resubmit resets a terminal document to PENDING and dispatches it again.
func (s *DocumentService) Resubmit(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.lifecycle.Resubmit(ctx, id); err != nil {
		s.logger.Warn("grpc.resubmit.failed", "document_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	res, err := s.submitter.Submit(ctx, id)
	if err != nil {
		s.logger.Warn("grpc.resubmit.dispatch_failed", "document_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

func (s *DocumentService) GetStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	view, err := s.lifecycle.Status(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(view)
}

func (s *DocumentService) GetExtractedData(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	raw, err := s.lifecycle.ExtractedData(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		s.logger.Error("grpc.extracted_data.decode_failed", "document_id", id, "error", err)
		return nil, common.InternalErrorf("decode raw_output: %v", err)
	}
	return out, nil
}

func (s *DocumentService) Export(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	owner := strings.TrimSpace(req.GetValue())
	xlsx, err := s.exporter.ExportXLSX(ctx, owner)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "owner_id", owner, "error", err)
		return nil, common.ToStatus(err)
	}
	return wrapperspb.Bytes(xlsx), nil
}

func documentID(req *wrapperspb.StringValue) (uuid.UUID, error) {
	raw := strings.TrimSpace(req.GetValue())
	if raw == "" {
		return uuid.Nil, common.InvalidArgumentError("document id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.InvalidArgumentErrorf("document id %q must be a UUID", raw)
	}
	return id, nil
}

// toStruct goes through JSON so responses use the same field names as the
// stored payloads.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, common.InternalError(fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

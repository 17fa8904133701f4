package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/dispatch"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeLifecycle struct {
	docs      map[uuid.UUID]*entity.Document
	resubmits int
}

func (f *fakeLifecycle) get(id uuid.UUID) (*entity.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	return d, nil
}

func (f *fakeLifecycle) Resubmit(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	d, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if d.Status == constants.StatusProcessing {
		return nil, fmt.Errorf("document %s is still PROCESSING: %w", id, common.ErrConflict)
	}
	f.resubmits++
	d.Status = constants.StatusPending
	d.RawOutput = nil
	return d, nil
}

func (f *fakeLifecycle) Status(_ context.Context, id uuid.UUID) (entity.StatusView, error) {
	d, err := f.get(id)
	if err != nil {
		return entity.StatusView{}, err
	}
	return d.View(), nil
}

func (f *fakeLifecycle) ExtractedData(_ context.Context, id uuid.UUID) (json.RawMessage, error) {
	d, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if d.Status != constants.StatusCompleted {
		return nil, fmt.Errorf("document %s is %s: %w", id, d.Status, common.ErrConflict)
	}
	return d.RawOutput, nil
}

type fakeSubmitter struct {
	lc *fakeLifecycle
}

func (f fakeSubmitter) Submit(_ context.Context, id uuid.UUID) (dispatch.Result, error) {
	d, err := f.lc.get(id)
	if err != nil {
		return dispatch.Result{}, err
	}
	if d.Status != constants.StatusPending && d.Status != constants.StatusFailed {
		return dispatch.Result{}, fmt.Errorf("document %s is %s: %w", id, d.Status, common.ErrConflict)
	}
	return dispatch.Result{DocumentID: id, Mode: dispatch.ModeQueued, Status: constants.StatusPending, Detail: "queued for processing"}, nil
}

type fakeExporter struct{ owner string }

func (f *fakeExporter) ExportXLSX(_ context.Context, ownerID string) ([]byte, error) {
	f.owner = ownerID
	return []byte("PK-xlsx"), nil
}

func startServer(t *testing.T, svc DocumentServiceServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s, _ := NewGRPCServer(svc, nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDocumentService(t *testing.T) {
	pending, completed, busy := uuid.New(), uuid.New(), uuid.New()
	quality := constants.QualityHigh
	processed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lc := &fakeLifecycle{docs: map[uuid.UUID]*entity.Document{
		pending: {ID: pending, Status: constants.StatusPending},
		completed: {
			ID: completed, Status: constants.StatusCompleted, ProcessedAt: &processed, ProcessingQuality: &quality,
			RawOutput: json.RawMessage(`{"structured_data":{"total":{"value":"$ 10,00","parsed_amount":"10.00"}},"processing_quality":"high"}`),
		},
		busy: {ID: busy, Status: constants.StatusProcessing, Stage: constants.StageDetecting},
	}}
	exp := &fakeExporter{}
	conn := startServer(t, NewDocumentService(lc, fakeSubmitter{lc}, exp, nil))
	client := NewDocumentClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("submit", func(t *testing.T) {
		res, err := client.Submit(ctx, pending.String())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		m := res.AsMap()
		if m["mode"] != "queued" || m["status"] != "PENDING" || m["document_id"] != pending.String() {
			t.Errorf("submit result = %v", m)
		}
	})

	t.Run("status", func(t *testing.T) {
		res, err := client.GetStatus(ctx, busy.String())
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		m := res.AsMap()
		if m["status"] != "PROCESSING" || m["stage"] != "detecting" {
			t.Errorf("status = %v", m)
		}
	})

	t.Run("extracted data", func(t *testing.T) {
		res, err := client.GetExtractedData(ctx, completed.String())
		if err != nil {
			t.Fatalf("extracted data: %v", err)
		}
		sd := res.GetFields()["structured_data"].GetStructValue()
		total := sd.GetFields()["total"].GetStructValue().GetFields()["parsed_amount"].GetStringValue()
		if total != "10.00" {
			t.Errorf("parsed_amount = %q", total)
		}
	})

	t.Run("resubmit", func(t *testing.T) {
		res, err := client.Resubmit(ctx, completed.String())
		if err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if res.AsMap()["status"] != "PENDING" || lc.resubmits != 1 {
			t.Errorf("resubmit = %v (resubmits %d)", res.AsMap(), lc.resubmits)
		}
	})

	t.Run("export", func(t *testing.T) {
		data, err := client.Export(ctx, "owner-7")
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if string(data) != "PK-xlsx" || exp.owner != "owner-7" {
			t.Errorf("export = %q for %q", data, exp.owner)
		}
	})
}

func TestDocumentServiceErrorCodes(t *testing.T) {
	busy := uuid.New()
	lc := &fakeLifecycle{docs: map[uuid.UUID]*entity.Document{
		busy: {ID: busy, Status: constants.StatusProcessing},
	}}
	conn := startServer(t, NewDocumentService(lc, fakeSubmitter{lc}, &fakeExporter{}, nil))
	client := NewDocumentClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"empty id", func() error { _, err := client.GetStatus(ctx, ""); return err }, codes.InvalidArgument},
		{"malformed id", func() error { _, err := client.Submit(ctx, "doc-1"); return err }, codes.InvalidArgument},
		{"unknown document", func() error { _, err := client.GetStatus(ctx, uuid.NewString()); return err }, codes.NotFound},
		{"submit while processing", func() error { _, err := client.Submit(ctx, busy.String()); return err }, codes.FailedPrecondition},
		{"resubmit while processing", func() error { _, err := client.Resubmit(ctx, busy.String()); return err }, codes.FailedPrecondition},
		{"data before completion", func() error { _, err := client.GetExtractedData(ctx, busy.String()); return err }, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Fatalf("code = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHealthService(t *testing.T) {
	conn := startServer(t, NewDocumentService(&fakeLifecycle{}, fakeSubmitter{}, &fakeExporter{}, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s", resp.GetStatus())
	}
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/extract"
	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/lifecycle"
	"github.com/joseph-ayodele/docscan/internal/ocr"
	"github.com/joseph-ayodele/docscan/internal/repository"
	"github.com/joseph-ayodele/docscan/internal/runner"
	"github.com/joseph-ayodele/docscan/internal/storage"
)

type stubModel struct {
	regions []detect.Region
	err     error
}

func (m stubModel) ID() string { return "invoices" }
func (m stubModel) Predict(context.Context, *image.Gray) ([]detect.Region, error) {
	return m.regions, m.err
}

type stubLoader struct {
	model detect.Model
	err   error
}

func (l stubLoader) Load(context.Context, string) (detect.Model, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.model, nil
}

type harness struct {
	proc  *Processor
	lc    *lifecycle.Manager
	docs  repository.DocumentRepository
	store *storage.LocalStore
	ocr   *runner.Fake
}

func newHarness(t *testing.T, loader detect.Loader, text string) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, "file:"+filepath.Join(t.TempDir(), "p.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(nil) })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	docs := repository.NewDocumentRepository(db, nil)
	lc := lifecycle.NewManager(docs, nil)
	fake := &runner.Fake{Fn: func(string, []string) ([]byte, error) { return []byte(text + "\n"), nil }}
	det := detect.NewDetector(detect.NewModelCache(loader, nil), detect.DefaultRegistry(), nil)
	orch := extract.NewOrchestrator(det, ocr.NewRecognizer(ocr.Config{}, fake, nil), nil)
	fixed := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	proc := NewProcessor(lc, store, imaging.NewNormalizer(nil), orch, nil, WithClock(func() time.Time { return fixed }))
	return &harness{proc: proc, lc: lc, docs: docs, store: store, ocr: fake}
}

// invoicePNG draws rows of short bars, roughly the texture of printed lines.
func invoicePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 120))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 20; y < 100; y += 8 {
		for x := 20; x < 180; x += 30 {
			for dy := 0; dy < 3; dy++ {
				for dx := 0; dx < 22; dx++ {
					img.SetGray(x+dx, y+dy, color.Gray{Y: 20})
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func (h *harness) submit(t *testing.T, data []byte, cat constants.Category) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ref, err := h.store.Put(ctx, "scan.png", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	doc, err := h.docs.Create(ctx, &entity.Document{
		OriginalFilename: "scan.png",
		StorageRef:       ref,
		MediaType:        "image/png",
		Category:         cat,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc.ID
}

func TestInvoiceEndToEnd(t *testing.T) {
	model := stubModel{regions: []detect.Region{
		{Label: "total", Confidence: 0.93, BBox: detect.BBox{0, 0, 500, 500}},
	}}
	h := newHarness(t, stubLoader{model: model}, "TOTAL: $1,210.00")
	id := h.submit(t, invoicePNG(t), constants.InvoiceA)

	out, err := h.proc.ProcessDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != constants.StatusCompleted {
		t.Fatalf("status = %s (%s), want COMPLETED", out.Status, out.Error)
	}
	if out.Quality != constants.QualityHigh {
		t.Errorf("quality = %s, want high", out.Quality)
	}

	raw, err := h.lc.ExtractedData(context.Background(), id)
	if err != nil {
		t.Fatalf("extracted data: %v", err)
	}
	var got struct {
		Total struct {
			Value string `json:"value"`
			BBox  [4]int `json:"bbox"`
		} `json:"total"`
		Structured struct {
			Total struct {
				ParsedAmount string `json:"parsed_amount"`
				Currency     string `json:"currency"`
			} `json:"total"`
		} `json:"structured_data"`
		Quality  string `json:"processing_quality"`
		Metadata struct {
			Dimensions [2]int `json:"image_dimensions"`
		} `json:"processing_metadata"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(got.Total.Value, "1,210.00") {
		t.Errorf("total.value = %q", got.Total.Value)
	}
	if got.Structured.Total.ParsedAmount != "1210.00" || got.Structured.Total.Currency != "ARS" {
		t.Errorf("structured total = %+v", got.Structured.Total)
	}
	if got.Quality != "high" {
		t.Errorf("processing_quality = %q", got.Quality)
	}
	if got.Metadata.Dimensions != [2]int{120, 200} {
		t.Errorf("image_dimensions = %v, want [120 200]", got.Metadata.Dimensions)
	}
	if got.Total.BBox != [4]int{0, 0, 200, 120} {
		t.Errorf("bbox not clamped: %v", got.Total.BBox)
	}
}

func TestRerunIsDeterministic(t *testing.T) {
	model := stubModel{regions: []detect.Region{
		{Label: "factura_numero", Confidence: 0.7, BBox: detect.BBox{10, 10, 190, 60}},
		{Label: "total", Confidence: 0.9, BBox: detect.BBox{10, 60, 190, 110}},
	}}
	h := newHarness(t, stubLoader{model: model}, "0001-00001234")
	id := h.submit(t, invoicePNG(t), constants.InvoiceB)
	ctx := context.Background()

	if _, err := h.proc.ProcessDocument(ctx, id); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := h.lc.ExtractedData(ctx, id)

	if _, err := h.lc.Resubmit(ctx, id); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if _, err := h.proc.ProcessDocument(ctx, id); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := h.lc.ExtractedData(ctx, id)

	var a, b any
	_ = json.Unmarshal(first, &a)
	_ = json.Unmarshal(second, &b)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Errorf("re-run changed raw_output:\n%s\n%s", ja, jb)
	}
}

func TestMissingModelFallsBackToFullText(t *testing.T) {
	h := newHarness(t, stubLoader{err: detect.ErrModelNotFound}, "APELLIDO PEREZ")
	id := h.submit(t, invoicePNG(t), constants.IdentityFront)

	out, err := h.proc.ProcessDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != constants.StatusCompleted {
		t.Fatalf("status = %s (%s)", out.Status, out.Error)
	}
	raw, _ := h.lc.ExtractedData(context.Background(), id)
	var got map[string]json.RawMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got[detect.FallbackLabel]; !ok {
		t.Errorf("raw_output lacks %s: %s", detect.FallbackLabel, raw)
	}
	// one block-mode call over the whole page
	calls := h.ocr.Calls()
	if len(calls) != 1 || !strings.Contains(strings.Join(calls[0].Args, " "), "--psm 3") {
		t.Errorf("ocr calls = %+v", calls)
	}
}

func TestFailuresAreRecorded(t *testing.T) {
	tests := []struct {
		name    string
		loader  detect.Loader
		data    []byte
		wantErr string
	}{
		{
			name:    "undecodable upload",
			loader:  stubLoader{model: stubModel{}},
			data:    []byte("definitely not an image"),
			wantErr: "decode image",
		},
		{
			name:    "detector crash",
			loader:  stubLoader{model: stubModel{err: errors.New("inference exited 137")}},
			wantErr: "inference exited 137",
		},
		{
			name:    "broken artifact",
			loader:  stubLoader{err: errors.New("weights truncated")},
			wantErr: "weights truncated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.loader, "x")
			data := tt.data
			if data == nil {
				data = invoicePNG(t)
			}
			id := h.submit(t, data, constants.InvoiceC)

			out, err := h.proc.ProcessDocument(context.Background(), id)
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if out.Status != constants.StatusFailed || !strings.Contains(out.Error, tt.wantErr) {
				t.Fatalf("outcome = %+v", out)
			}
			view, _ := h.lc.Status(context.Background(), id)
			if view.Status != constants.StatusFailed || view.Error == nil || view.ProcessedAt == nil {
				t.Errorf("view = %+v", view)
			}
			if _, err := h.lc.ExtractedData(context.Background(), id); !errors.Is(err, common.ErrConflict) {
				t.Errorf("extracted data of failed doc: err = %v", err)
			}
			if err := h.proc.Process(context.Background(), id); err == nil {
				// FAILED is claimable again; the retry fails the same way
				t.Error("Process returned nil for a failing attempt")
			}
		})
	}
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(context.Context, *image.Gray, constants.Category) (*extract.Result, error) {
	var m map[string]int
	m["boom"]++
	return nil, nil
}

func TestPanicBecomesFailure(t *testing.T) {
	h := newHarness(t, stubLoader{model: stubModel{}}, "")
	h.proc.extractor = panickyExtractor{}
	id := h.submit(t, invoicePNG(t), constants.InvoiceA)

	out, err := h.proc.ProcessDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != constants.StatusFailed || !strings.HasPrefix(out.Error, "panic:") {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCancelledAttemptStillRecordsFailure(t *testing.T) {
	h := newHarness(t, stubLoader{model: stubModel{}}, "")
	id := h.submit(t, invoicePNG(t), constants.InvoiceA)

	ctx, cancel := context.WithCancel(context.Background())
	h.proc.extractor = extractorFunc(func(context.Context, *image.Gray, constants.Category) (*extract.Result, error) {
		cancel()
		return nil, context.Canceled
	})
	out, err := h.proc.ProcessDocument(ctx, id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != constants.StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	view, _ := h.lc.Status(context.Background(), id)
	if view.Status != constants.StatusFailed {
		t.Errorf("stored status = %s, want FAILED", view.Status)
	}
}

type extractorFunc func(context.Context, *image.Gray, constants.Category) (*extract.Result, error)

func (f extractorFunc) Extract(ctx context.Context, img *image.Gray, c constants.Category) (*extract.Result, error) {
	return f(ctx, img, c)
}

func TestClaimRejections(t *testing.T) {
	h := newHarness(t, stubLoader{model: stubModel{}}, "")
	ctx := context.Background()

	if _, err := h.proc.ProcessDocument(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}

	id := h.submit(t, invoicePNG(t), constants.InvoiceA)
	if _, err := h.lc.Begin(ctx, id); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := h.proc.ProcessDocument(ctx, id); !errors.Is(err, common.ErrConflict) {
		t.Errorf("in-flight document: err = %v, want ErrConflict", err)
	}
	view, _ := h.lc.Status(ctx, id)
	if view.Status != constants.StatusProcessing {
		t.Errorf("rejected claim changed status to %s", view.Status)
	}
}

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/dispatch"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/storage"
)

type memDocs struct {
	mu   sync.Mutex
	docs []*entity.Document
	err  error
}

func (m *memDocs) Create(_ context.Context, doc *entity.Document) (*entity.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	d := *doc
	d.ID = uuid.New()
	m.mu.Lock()
	m.docs = append(m.docs, &d)
	m.mu.Unlock()
	return &d, nil
}

func (m *memDocs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type queuedSubmitter struct{ err error }

func (s queuedSubmitter) Submit(_ context.Context, id uuid.UUID) (dispatch.Result, error) {
	if s.err != nil {
		return dispatch.Result{}, s.err
	}
	return dispatch.Result{DocumentID: id, Mode: dispatch.ModeQueued, Status: constants.StatusPending}, nil
}

func newIngestor(t *testing.T, docs *memDocs, sub Submitter) (*Ingestor, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return NewIngestor(store, docs, sub, nil), store
}

func TestIngest(t *testing.T) {
	docs := &memDocs{}
	ing, store := newIngestor(t, docs, queuedSubmitter{})

	res, err := ing.Ingest(context.Background(), Upload{
		Filename: "Factura 0001.PNG",
		OwnerID:  "user-7",
		Category: "factura a",
		Body:     strings.NewReader("png bytes"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	d := res.Document
	if d.Category != constants.InvoiceA || d.Status != constants.StatusPending || d.MediaType != "image/png" {
		t.Errorf("document = %+v", d)
	}
	if res.Dispatch.Mode != dispatch.ModeQueued {
		t.Errorf("dispatch = %+v", res.Dispatch)
	}
	data, err := store.Get(context.Background(), d.StorageRef)
	if err != nil || string(data) != "png bytes" {
		t.Errorf("stored bytes = %q, err = %v", data, err)
	}
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"missing filename", Upload{Category: "DNI_FRONT", Body: strings.NewReader("x")}, common.ErrValidation},
		{"pdf rejected", Upload{Filename: "a.pdf", Category: "DNI_FRONT", Body: strings.NewReader("x")}, common.ErrValidation},
		{"unknown category", Upload{Filename: "a.png", Category: "passport", Body: strings.NewReader("x")}, common.ErrValidation},
		{"missing category", Upload{Filename: "a.png", Body: strings.NewReader("x")}, common.ErrValidation},
		{"empty body", Upload{Filename: "a.png", Category: "dni", Body: strings.NewReader("")}, common.ErrInvalidInput},
		{"nil body", Upload{Filename: "a.png", Category: "dni"}, common.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := &memDocs{}
			ing, _ := newIngestor(t, docs, queuedSubmitter{})
			if _, err := ing.Ingest(context.Background(), tt.up); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if docs.count() != 0 {
				t.Error("document created for rejected upload")
			}
		})
	}
}

func TestIngestCleansUpWhenCreateFails(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ing := NewIngestor(store, &memDocs{err: common.ErrDatabase}, queuedSubmitter{}, nil)

	_, err = ing.Ingest(context.Background(), Upload{Filename: "a.png", Category: "dni", Body: strings.NewReader("x")})
	if !errors.Is(err, common.ErrDatabase) {
		t.Fatalf("err = %v, want ErrDatabase", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("orphaned objects left behind: %v", entries)
	}
}

func TestIngestKeepsDocumentWhenDispatchFails(t *testing.T) {
	docs := &memDocs{}
	ing, _ := newIngestor(t, docs, queuedSubmitter{err: common.ErrUnavailable})

	res, err := ing.Ingest(context.Background(), Upload{Filename: "a.png", Category: "dni", Body: strings.NewReader("x")})
	if !errors.Is(err, common.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if res.Document == nil || docs.count() != 1 {
		t.Errorf("document should stay PENDING for resubmission: %+v", res)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dni_front", "a.jpg"))
	writeFile(t, filepath.Join(root, "invoice-b", "b.png"))
	writeFile(t, filepath.Join(root, "invoice-b", "notes.txt"))
	writeFile(t, filepath.Join(root, "unsorted.png"))
	writeFile(t, filepath.Join(root, "misc", "c.png"))
	writeFile(t, filepath.Join(root, ".cache", "d.png"))

	docs := &memDocs{}
	ing, _ := newIngestor(t, docs, queuedSubmitter{})
	results, stats, err := ing.IngestDirectory(context.Background(), root, "inbox", true)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}
	if stats.Matched != 4 || stats.Succeeded != 2 || stats.Failed != 2 {
		t.Errorf("stats = %+v, results = %+v", stats, results)
	}
	if docs.count() != 2 {
		t.Errorf("documents = %d, want 2", docs.count())
	}
	if _, err := os.Stat(filepath.Join(root, doneDir, "dni_front", "a.jpg")); err != nil {
		t.Errorf("ingested file not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dni_front", "a.jpg")); !os.IsNotExist(err) {
		t.Errorf("ingested file still in inbox")
	}

	// a second pass finds nothing new
	_, stats, err = ing.IngestDirectory(context.Background(), root, "inbox", true)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats.Succeeded != 0 {
		t.Errorf("second pass ingested %d files", stats.Succeeded)
	}
}

func TestCategoryFromDir(t *testing.T) {
	tests := []struct {
		path string
		want constants.Category
		ok   bool
	}{
		{"/in/dni_back/x.png", constants.IdentityBack, true},
		{"/in/Factura C/sub/x.png", constants.InvoiceC, true},
		{"/in/x.png", "", false},
		{"/in/receipts/x.png", "", false},
	}
	for _, tt := range tests {
		got, ok := categoryFromDir("/in", tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("categoryFromDir(%q) = %q, %v", tt.path, got, ok)
		}
	}
}

func TestWatcherEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dni", "existing.png"))
	if err := os.MkdirAll(filepath.Join(root, "invoice_a"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	seen := map[string]bool{}
	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher event")
			return ""
		}
	}
	seen[filepath.Base(next())] = true
	if !seen["existing.png"] {
		t.Fatalf("initial scan missed existing file: %v", seen)
	}

	writeFile(t, filepath.Join(root, "invoice_a", "new.jpg"))
	if got := filepath.Base(next()); got != "new.jpg" {
		t.Errorf("event for %q, want new.jpg", got)
	}

	cancel()
	for range events {
	}
}

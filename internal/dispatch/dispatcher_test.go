package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/async"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/pipeline"
)

type fakeBroker struct {
	pingErr    error
	enqueueErr error
	panics     bool
	delay      time.Duration

	mu   sync.Mutex
	jobs []async.Job
}

func (b *fakeBroker) Ping(ctx context.Context) error {
	if b.panics {
		panic("connection pool exploded")
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.pingErr
}

func (b *fakeBroker) Enqueue(_ context.Context, job async.Job) error {
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	b.mu.Lock()
	b.jobs = append(b.jobs, job)
	b.mu.Unlock()
	return nil
}

type fakeProcessor struct {
	outcome pipeline.Outcome
	err     error
	calls   int
}

func (p *fakeProcessor) ProcessDocument(_ context.Context, id uuid.UUID) (pipeline.Outcome, error) {
	p.calls++
	out := p.outcome
	out.DocumentID = id
	return out, p.err
}

type fakeDocs map[uuid.UUID]constants.DocumentStatus

func (f fakeDocs) Get(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	s, ok := f[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &entity.Document{ID: id, Status: s}, nil
}

func TestSubmit(t *testing.T) {
	completed := pipeline.Outcome{Status: constants.StatusCompleted, Quality: constants.QualityHigh}
	failed := pipeline.Outcome{Status: constants.StatusFailed, Error: "decode image: unknown format"}

	tests := []struct {
		name       string
		broker     async.Broker
		outcome    pipeline.Outcome
		wantMode   Mode
		wantStatus constants.DocumentStatus
		wantDetail string
		wantInline bool
	}{
		{"reachable broker queues", &fakeBroker{}, completed, ModeQueued, constants.StatusPending, "queued for processing", false},
		{"unreachable broker runs inline", &fakeBroker{pingErr: errors.New("dial tcp: refused")}, completed, ModeInline, constants.StatusCompleted, "processed inline", true},
		{"inline failure is reported", &fakeBroker{pingErr: errors.New("refused")}, failed, ModeInline, constants.StatusFailed, "decode image: unknown format", true},
		{"panicking probe runs inline", &fakeBroker{panics: true}, completed, ModeInline, constants.StatusCompleted, "processed inline", true},
		{"slow probe runs inline", &fakeBroker{delay: time.Second}, completed, ModeInline, constants.StatusCompleted, "processed inline", true},
		{"enqueue error runs inline", &fakeBroker{enqueueErr: async.ErrQueueClosed}, completed, ModeInline, constants.StatusCompleted, "processed inline", true},
		{"no broker runs inline", nil, completed, ModeInline, constants.StatusCompleted, "processed inline", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			proc := &fakeProcessor{outcome: tt.outcome}
			d := New(tt.broker, proc, fakeDocs{id: constants.StatusPending}, 20*time.Millisecond, nil)

			res, err := d.Submit(context.Background(), id)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if res.Mode != tt.wantMode || res.Status != tt.wantStatus || res.Detail != tt.wantDetail {
				t.Errorf("result = %+v", res)
			}
			if ran := proc.calls == 1; ran != tt.wantInline {
				t.Errorf("pipeline ran inline = %v, want %v", ran, tt.wantInline)
			}
			if fb, ok := tt.broker.(*fakeBroker); ok && !tt.wantInline {
				if len(fb.jobs) != 1 || fb.jobs[0].DocumentID != id {
					t.Errorf("jobs = %+v", fb.jobs)
				}
			}
		})
	}
}

func TestSubmitRejectsBadDocuments(t *testing.T) {
	busy, done := uuid.New(), uuid.New()
	docs := fakeDocs{busy: constants.StatusProcessing, done: constants.StatusCompleted}
	proc := &fakeProcessor{}
	d := New(&fakeBroker{}, proc, docs, 0, nil)

	tests := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{"unknown", uuid.New(), common.ErrNotFound},
		{"in flight", busy, common.ErrConflict},
		{"completed", done, common.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Submit(context.Background(), tt.id); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if proc.calls != 0 {
		t.Errorf("pipeline ran %d times for rejected submissions", proc.calls)
	}
}

func TestSubmitInlineProcessorError(t *testing.T) {
	id := uuid.New()
	proc := &fakeProcessor{err: common.ErrConflict}
	d := New(nil, proc, fakeDocs{id: constants.StatusFailed}, 0, nil)
	if _, err := d.Submit(context.Background(), id); !errors.Is(err, common.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestSubmitWithRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := async.NewRedisClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	broker := async.NewRedisBroker(client, "", nil)

	id := uuid.New()
	proc := &fakeProcessor{outcome: pipeline.Outcome{Status: constants.StatusCompleted}}
	d := New(broker, proc, fakeDocs{id: constants.StatusPending}, 200*time.Millisecond, nil)

	res, err := d.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Mode != ModeQueued {
		t.Fatalf("mode = %s, want queued", res.Mode)
	}

	// broker goes away: the next submission must not be dropped
	mr.Close()
	res, err = d.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Mode != ModeInline || res.Status != constants.StatusCompleted {
		t.Errorf("result after broker loss = %+v", res)
	}
}

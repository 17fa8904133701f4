package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// Job asks a worker to run one processing attempt for a document.
type Job struct {
	DocumentID  uuid.UUID `json:"document_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

func NewJob(id uuid.UUID, traceID string) Job {
	return Job{DocumentID: id, SubmittedAt: time.Now().UTC(), TraceID: traceID}
}

// Broker is the asynchronous execution substrate seen by the dispatcher.
type Broker interface {
	// Ping reports whether jobs can currently be accepted.
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, job Job) error
}

// Processor runs one processing attempt. Implemented by the pipeline.
type Processor interface {
	Process(ctx context.Context, id uuid.UUID) error
}

type ProcessorFunc func(ctx context.Context, id uuid.UUID) error

func (f ProcessorFunc) Process(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

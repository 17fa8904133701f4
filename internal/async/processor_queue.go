package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessorQueue is an in-process Broker backed by a channel and a fixed
// worker pool.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					runJob(q.proc, q.logger, q.timeout, workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// runJob is shared by every consumer: one attempt under its own deadline.
func runJob(proc Processor, logger *slog.Logger, timeout time.Duration, workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := proc.Process(ctx, job.DocumentID); err != nil {
		logger.Error("processing failed", "worker_id", workerID, "document_id", job.DocumentID, "trace_id", job.TraceID, "error", err)
		return
	}
	logger.Info("processed document", "worker_id", workerID, "document_id", job.DocumentID,
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(), "duration_ms", time.Since(start).Milliseconds())
}

func (q *ProcessorQueue) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Enqueue never drops a job: it either hands it to a worker or returns an error.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", job.DocumentID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "document_id", job.DocumentID)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "document_id", job.DocumentID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ErrQueueFull
	}
}

func (q *ProcessorQueue) Len() int { return len(q.ch) }

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const DefaultQueueName = "ocr_tasks"

// RedisBroker pushes jobs onto a Redis list consumed by RedisWorker.
type RedisBroker struct {
	client *redis.Client
	queue  string
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, queue string, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisBroker{client: client, queue: queue, logger: logger}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.DocumentID, err)
	}
	b.logger.Info("queued document for processing", "document_id", job.DocumentID, "queue", b.queue)
	return nil
}

// Len reports the number of jobs waiting in the list.
func (b *RedisBroker) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.queue).Result()
}

// RedisWorker consumes jobs from the list with BRPOP.
type RedisWorker struct {
	client  *redis.Client
	queue   string
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	block   time.Duration
}

type WorkerOption func(*RedisWorker)

func WithConsumers(n int) WorkerOption {
	return func(w *RedisWorker) {
		if n > 0 {
			w.workers = n
		}
	}
}

func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *RedisWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithBlockTimeout bounds each BRPOP so shutdown is noticed promptly.
func WithBlockTimeout(d time.Duration) WorkerOption {
	return func(w *RedisWorker) {
		if d > 0 {
			w.block = d
		}
	}
}

func NewRedisWorker(client *redis.Client, queue string, proc Processor, logger *slog.Logger, opts ...WorkerOption) *RedisWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if queue == "" {
		queue = DefaultQueueName
	}
	w := &RedisWorker{
		client:  client,
		queue:   queue,
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		block:   5 * time.Second,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until ctx is cancelled. A job already popped runs to completion
// under its own deadline.
func (w *RedisWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.logger.Info("worker started", "worker_id", workerID, "queue", w.queue)
			defer w.logger.Info("worker stopped", "worker_id", workerID)
			for {
				job, err := w.next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					w.logger.Warn("worker.pop.failed", "worker_id", workerID, "error", err)
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(time.Second):
					}
					continue
				}
				if job == nil {
					continue
				}
				runJob(w.proc, w.logger, w.timeout, workerID, *job)
			}
		})
	}
	return g.Wait()
}

// next returns nil, nil when the block timeout elapses with an empty queue.
func (w *RedisWorker) next(ctx context.Context) (*Job, error) {
	res, err := w.client.BRPop(ctx, w.block, w.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply %v", res)
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		w.logger.Error("worker.job.malformed", "payload", res[1], "error", err)
		return nil, nil
	}
	return &job, nil
}

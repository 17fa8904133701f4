package detect

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ModelCache loads each model id at most once per process and shares it
// between concurrent callers. Failed loads are not cached.
type ModelCache struct {
	loader Loader
	logger *slog.Logger

	mu     sync.RWMutex
	models map[string]Model
	group  singleflight.Group
	loads  atomic.Int64
}

func NewModelCache(loader Loader, logger *slog.Logger) *ModelCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelCache{loader: loader, logger: logger, models: make(map[string]Model)}
}

func (c *ModelCache) Get(ctx context.Context, id string) (Model, error) {
	c.mu.RLock()
	m, ok := c.models[id]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	// The shared load outlives any single caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		c.mu.RLock()
		m, ok := c.models[id]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}
		m, err := c.loader.Load(loadCtx, id)
		if err != nil {
			return nil, err
		}
		c.loads.Add(1)
		c.mu.Lock()
		c.models[id] = m
		c.mu.Unlock()
		c.logger.Info("detect.model.loaded", "model_id", id)
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Model), nil
	}
}

// Loads reports how many successful loads happened.
func (c *ModelCache) Loads() int64 {
	return c.loads.Load()
}

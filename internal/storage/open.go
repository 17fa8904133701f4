package storage

import (
	"context"
	"fmt"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"github.com/joseph-ayodele/docscan/internal/common"
)

// Open builds the configured Store. The returned close func releases the GCS client.
func Open(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "local":
		s, err := NewLocalStore(cfg.Dir, logger)
		return s, func() error { return nil }, err
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create GCS client: %w", err)
		}
		return NewGCSStore(client, cfg.GCSBucket, "", logger), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

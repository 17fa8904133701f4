package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid update/rename bursts
	Logger      *slog.Logger
}

// StartWatcher emits paths of image files created or written under the roots.
// Hidden directories are neither watched nor scanned.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) && !IsHidden(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher close failed", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		var (
			mu      sync.Mutex
			pending = map[string]struct{}{}
			timer   *time.Timer
			flush   = make(chan struct{}, 1)
		)
		sendPending := func() {
			mu.Lock()
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
				delete(pending, p)
			}
			mu.Unlock()
			for _, p := range batch {
				if !emit(p) {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case <-flush:
				sendPending()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create && !IsHidden(e.Name) {
					// new sub-directories are watched too; files fail Add harmlessly
					_ = w.Add(e.Name)
				}
				if IsHidden(e.Name) || !AllowedExt(filepath.Ext(e.Name)) || e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				mu.Unlock()
				if cfg.Debounce <= 0 {
					sendPending()
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, func() {
					select {
					case flush <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Watch ingests every file that appears under root until ctx is done.
func (i *Ingestor) Watch(ctx context.Context, root, ownerID string, debounce time.Duration) error {
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    debounce,
		Logger:      i.logger,
	})
	if err != nil {
		return err
	}
	i.logger.Info("ingest.watch.started", "root", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			res, err := i.IngestPath(ctx, root, ownerID, path)
			if err != nil {
				i.logger.Warn("ingest.watch.failed", "path", path, "error", err)
				continue
			}
			i.logger.Info("ingest.watch.ingested", "path", path, "document_id", res.Document.ID, "mode", res.Dispatch.Mode)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			i.logger.Warn("ingest.watch.error", "error", err)
		}
	}
}

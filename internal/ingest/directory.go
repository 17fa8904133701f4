package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// doneDir receives files once their bytes are stored. Hidden, so walks and
// the watcher skip it.
const doneDir = ".ingested"

// IngestPath ingests one file laid out as <root>/<category>/<file> and moves
// it under <root>/.ingested on success.
func (i *Ingestor) IngestPath(ctx context.Context, root, ownerID, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	cat, ok := categoryFromDir(root, path)
	if !ok {
		return out, fmt.Errorf("no category directory for %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	res, err := i.Ingest(ctx, Upload{
		Filename: filepath.Base(path),
		OwnerID:  ownerID,
		Category: string(cat),
		Body:     f,
	})
	_ = f.Close()
	res.SourcePath = path
	if err != nil && res.Document == nil {
		return res, err
	}

	rel, _ := filepath.Rel(root, path)
	dest := filepath.Join(root, doneDir, rel)
	if merr := os.MkdirAll(filepath.Dir(dest), 0o755); merr == nil {
		if merr := os.Rename(path, dest); merr != nil {
			i.logger.Warn("ingest.move.failed", "path", path, "error", merr)
		}
	}
	return res, err
}

// IngestDirectory walks root, skips hidden entries if requested, and ingests
// every image under a category directory.
func (i *Ingestor) IngestDirectory(ctx context.Context, root, ownerID string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if path != root && (d.Name() == doneDir || (skipHidden && IsHidden(path))) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, root, ownerID, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docscan/internal/common"
)

// LocalStore keeps objects as files in a single directory.
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := NewRef(name)
	path := filepath.Join(s.dir, ref)

	// write to a temp file first so a reader never sees a partial object
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	s.logger.Debug("storage.put", "ref", ref, "bytes", n)
	return ref, nil
}

func (s *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, fmt.Errorf("%w: storage ref %q", common.ErrInvalidInput, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", ref, common.ErrNotFound)
	}
	return b, err
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("%w: storage ref %q", common.ErrInvalidInput, ref)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("object %s: %w", ref, common.ErrNotFound)
	}
	return err
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"google.golang.org/api/googleapi"
)

// GCSStore keeps objects in a Cloud Storage bucket under an optional prefix.
type GCSStore struct {
	bucket *gcs.BucketHandle
	prefix string
	logger *slog.Logger
}

func NewGCSStore(client *gcs.Client, bucket, prefix string, logger *slog.Logger) *GCSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{bucket: client.Bucket(bucket), prefix: prefix, logger: logger}
}

func (s *GCSStore) object(ref string) *gcs.ObjectHandle {
	return s.bucket.Object(s.prefix + ref)
}

// Put writes only if the object does not exist yet; refs are never reused.
func (s *GCSStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	ref := NewRef(name)
	w := s.object(ref).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = constants.MediaType(filepath.Ext(name))

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("object %s already exists: %w", ref, common.ErrConflict)
		}
		s.logger.Error("storage.gcs.put.failed", "ref", ref, "error", err)
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	s.logger.Debug("storage.put", "ref", ref, "bucket", s.bucket.BucketName())
	return ref, nil
}

func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, fmt.Errorf("%w: storage ref %q", common.ErrInvalidInput, ref)
	}
	rd, err := s.object(ref).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s: %w", ref, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object: %w", err)
	}
	defer rd.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("%w: storage ref %q", common.ErrInvalidInput, ref)
	}
	err := s.object(ref).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("object %s: %w", ref, common.ErrNotFound)
	}
	return err
}

package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
)

// Store keeps the original bytes of uploaded documents. References are opaque
// to callers.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// NewRef returns a fresh reference that keeps the extension of name.
func NewRef(name string) string {
	ext := constants.NormalizeExt(filepath.Ext(name))
	if ext == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + ext
}

// validRef rejects anything that could escape the store root.
func validRef(ref string) bool {
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return false
	}
	return true
}

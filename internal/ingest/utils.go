package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
)

// AllowedExt checks if a file extension is in the allowed image set.
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

func imageFile(field string, value interface{}) *common.ValidationError {
	name, _ := value.(string)
	if name == "" || AllowedExt(filepath.Ext(name)) {
		return nil
	}
	return &common.ValidationError{Field: field, Value: value, Message: "must be a jpg, jpeg, png, bmp, tif, tiff or webp image"}
}

func knownCategory(field string, value interface{}) *common.ValidationError {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, ok := constants.Canonicalize(name); ok {
		return nil
	}
	return &common.ValidationError{Field: field, Value: value, Message: "must be one of " + strings.Join(constants.AsStringSlice(), ", ")}
}

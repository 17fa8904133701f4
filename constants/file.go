package constants

import "strings"

// AllowedExtensions holds the image extensions accepted for ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

var mediaTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// MediaType returns the media type for an extension, or application/octet-stream.
func MediaType(ext string) string {
	if mt, ok := mediaTypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

package resource

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SupportedMimeTypes is the set of media types the pipeline accepts
var SupportedMimeTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/quicktime": true,
	"video/x-msvideo": true,
}

// DefaultExtensions is the allow-list of media file extensions
var DefaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp",
	".mp4", ".mpeg", ".mov", ".avi",
}

// ImageExtensions are the extensions treated as still images
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// VideoExtensions are the extensions treated as video clips
var VideoExtensions = []string{".mp4", ".mpeg", ".mov", ".avi"}

// DetectMime sniffs the media type from raw content. Unknown content
// reports application/octet-stream.
func DetectMime(content []byte) string {
	return mimetype.Detect(content).String()
}

// ValidateMime reports whether the sniffed media type is in the
// supported set, returning the detected type either way.
func ValidateMime(content []byte) (bool, string) {
	detected := DetectMime(content)
	return SupportedMimeTypes[detected], detected
}

// HasAllowedExtension reports whether the path's extension is in the
// allow-list (case-insensitive).
func HasAllowedExtension(path string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

package mediatypes

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for an unknown still format name.
	ErrUnsupportedFormat = errors.New("unsupported still format")
	// ErrInvalidSource is the root of every error about a source that
	// cannot be decoded or proxied.
	ErrInvalidSource = errors.New("invalid video source")
)

// StillFormat is the encoding of an exported frame.
type StillFormat string

const (
	// StillJPEG encodes frames as baseline JPEG.
	StillJPEG StillFormat = "jpeg"
	// StillPNG encodes frames as lossless PNG.
	StillPNG StillFormat = "png"
	// StillHEIF encodes frames as HEIF (HEVC stills).
	StillHEIF StillFormat = "heif"
)

// StillFormats lists the supported export formats.
var StillFormats = []StillFormat{StillJPEG, StillPNG, StillHEIF}

// ParseStillFormat maps a format name or file extension to a StillFormat.
func ParseStillFormat(s string) (StillFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "jpeg", "jpg":
		return StillJPEG, nil
	case "png":
		return StillPNG, nil
	case "heif", "heic":
		return StillHEIF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Valid reports whether f is one of the supported formats.
func (f StillFormat) Valid() bool {
	switch f {
	case StillJPEG, StillPNG, StillHEIF:
		return true
	}
	return false
}

// Extension returns the file extension for f, with the leading dot.
func (f StillFormat) Extension() string {
	switch f {
	case StillJPEG:
		return ".jpg"
	case StillPNG:
		return ".png"
	case StillHEIF:
		return ".heic"
	}
	return ""
}

// MimeType returns the MIME type for f.
func (f StillFormat) MimeType() string {
	return GetMimeType(f.Extension())
}

// VideoExtensions maps file extensions to whether they are accepted as video sources.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
	".mts":  true,
	".m2ts": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Stills
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	".mts":  "video/mp2t",
	".m2ts": "video/mp2t",
}

// IsVideo reports whether path has a recognised video extension.
func IsVideo(path string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".mp4").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

package export

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/media"
	"frame-scrubber/internal/mediatypes"
	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/timecode"
)

// Action is what the caller does with an exported still after encoding.
type Action string

const (
	// SaveToLibrary persists the still.
	SaveToLibrary Action = "save"
	// Share hands the still to a share flow.
	Share Action = "share"
)

// Default encoder qualities.
const (
	DefaultJPEGQuality = 92
	DefaultHEIFQuality = 80
)

// Preferences control how a still is encoded. They are read-only input.
type Preferences struct {
	Format        mediatypes.StillFormat
	EmbedMetadata bool
	Action        Action
	// Quality applies to JPEG and HEIF; zero selects the default.
	Quality int
}

// DefaultPreferences returns JPEG with metadata, saved to the library.
func DefaultPreferences() Preferences {
	return Preferences{
		Format:        mediatypes.StillJPEG,
		EmbedMetadata: true,
		Action:        SaveToLibrary,
	}
}

// Result is one encoded still.
type Result struct {
	Data     []byte
	Format   mediatypes.StillFormat
	MIMEType string
	Filename string
	Action   Action
	// Embedded reports whether tags were written into Data.
	Embedded bool
}

// Filename builds the still's file name from the source name and the
// frame's timecode, e.g. "IMG_0001_00-00-05-00.jpg".
func Filename(source string, at timecode.Time, rate timecode.Rate, format mediatypes.StillFormat) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "frame"
	}
	tc := strings.ReplaceAll(timecode.Format(at, rate), ":", "-")
	return stem + "_" + tc + format.Extension()
}

// Encode encodes img according to prefs. Tags are embedded only when
// prefs.EmbedMetadata is set and tags is not empty.
func Encode(img image.Image, prefs Preferences, tags metadata.ExportTags, filename string) (*Result, error) {
	if !prefs.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", mediatypes.ErrUnsupportedFormat, prefs.Format)
	}

	var ib *exif.IfdBuilder
	if prefs.EmbedMetadata {
		var err error
		if ib, err = BuildEXIF(tags); err != nil {
			metrics.ExportsTotal.WithLabelValues(string(prefs.Format), "error").Inc()
			return nil, err
		}
	}

	data, err := encode(img, prefs, ib)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(string(prefs.Format), "error").Inc()
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues(string(prefs.Format), "success").Inc()

	logging.Debug("Encoded %s still %s: %d bytes, metadata=%v", prefs.Format, filename, len(data), ib != nil)
	return &Result{
		Data:     data,
		Format:   prefs.Format,
		MIMEType: prefs.Format.MimeType(),
		Filename: filename,
		Action:   prefs.Action,
		Embedded: ib != nil,
	}, nil
}

func encode(img image.Image, prefs Preferences, ib *exif.IfdBuilder) ([]byte, error) {
	switch prefs.Format {
	case mediatypes.StillJPEG:
		return encodeJPEG(img, quality(prefs.Quality, DefaultJPEGQuality), ib)

	case mediatypes.StillPNG:
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
		if ib == nil {
			return buf.Bytes(), nil
		}
		return EmbedPNG(buf.Bytes(), ib)

	case mediatypes.StillHEIF:
		// libvips keeps the EXIF block of a JPEG input, so tagged stills go
		// through a maximum-quality JPEG.
		var intermediate []byte
		var err error
		if ib != nil {
			intermediate, err = encodeJPEG(img, 100, ib)
		} else {
			var buf bytes.Buffer
			err = imaging.Encode(&buf, img, imaging.PNG)
			intermediate = buf.Bytes()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to prepare HEIF input: %w", err)
		}
		return media.EncodeHEIF(intermediate, quality(prefs.Quality, DefaultHEIFQuality))
	}
	return nil, fmt.Errorf("%w: %q", mediatypes.ErrUnsupportedFormat, prefs.Format)
}

func encodeJPEG(img image.Image, q int, ib *exif.IfdBuilder) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	if ib == nil {
		return buf.Bytes(), nil
	}
	return EmbedJPEG(buf.Bytes(), ib)
}

func quality(q, def int) int {
	if q <= 0 || q > 100 {
		return def
	}
	return q
}

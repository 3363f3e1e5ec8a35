package export

import (
	"bytes"
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

var (
	errNotJPEG = errors.New("not a JPEG stream")
	errNotPNG  = errors.New("not a PNG stream")
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// EmbedJPEG rewrites an encoded JPEG so that it carries the EXIF block
// built by ib in an APP1 segment.
func EmbedJPEG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errNotJPEG
	}

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotJPEG, err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, errNotJPEG
	}
	if err := sl.SetExif(ib); err != nil {
		return nil, fmt.Errorf("failed to embed EXIF in JPEG: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write tagged JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EmbedPNG rewrites an encoded PNG so that it carries the EXIF block built
// by ib in an eXIf chunk.
func EmbedPNG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errNotPNG
	}

	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotPNG, err)
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, errNotPNG
	}
	if err := cs.SetExif(ib); err != nil {
		return nil, fmt.Errorf("failed to embed EXIF in PNG: %w", err)
	}

	var buf bytes.Buffer
	if err := cs.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write tagged PNG: %w", err)
	}
	return buf.Bytes(), nil
}

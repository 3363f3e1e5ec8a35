package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// Embedded is the subset of tags read back from an exported still.
type Embedded struct {
	Make             string
	Model            string
	DateTimeOriginal time.Time
	Latitude         float64
	Longitude        float64
	HasGPS           bool
}

// ReadEmbedded decodes the camera and GPS tags embedded in an encoded
// still (JPEG or HEIF).
func ReadEmbedded(data []byte) (Embedded, error) {
	e, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return Embedded{}, fmt.Errorf("failed to decode embedded metadata: %w", err)
	}

	out := Embedded{
		Make:             strings.TrimSpace(e.Make),
		Model:            strings.TrimSpace(e.Model),
		DateTimeOriginal: e.DateTimeOriginal(),
	}
	if lat, lon := e.GPS.Latitude(), e.GPS.Longitude(); lat != 0 || lon != 0 {
		out.Latitude = lat
		out.Longitude = lon
		out.HasGPS = true
	}
	return out, nil
}

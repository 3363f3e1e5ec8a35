package export

import (
	"fmt"
	"math"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"frame-scrubber/internal/metadata"
)

const exifDateLayout = "2006:01:02 15:04:05"

// Child IFD paths below IFD0.
const (
	exifIfdPath = "IFD/Exif"
	gpsIfdPath  = "IFD/GPSInfo"
)

// ifdWriter sets standard tags on one IFD and keeps the first error.
type ifdWriter struct {
	ib  *exif.IfdBuilder
	err error
}

func (w *ifdWriter) set(name string, value interface{}) {
	if w.err != nil {
		return
	}
	if err := w.ib.SetStandardWithName(name, value); err != nil {
		w.err = fmt.Errorf("failed to set EXIF tag %s: %w", name, err)
	}
}

// rational approximates a non-negative value. Sub-second values close to a
// unit fraction are kept exact ("1/120").
func rational(f float64) exifcommon.Rational {
	if f <= 0 || math.IsNaN(f) {
		return exifcommon.Rational{Numerator: 0, Denominator: 1}
	}
	if f < 1 {
		inv := 1 / f
		if r := math.Round(inv); math.Abs(inv-r) < 1e-6 && r <= math.MaxUint32 {
			return exifcommon.Rational{Numerator: 1, Denominator: uint32(r)}
		}
	}
	den := uint32(10000)
	if f*float64(den) > math.MaxUint32 {
		den = 1
	}
	return exifcommon.Rational{Numerator: uint32(math.Round(f * float64(den))), Denominator: den}
}

// dms splits an absolute coordinate into degree, minute and second rationals.
func dms(v float64) []exifcommon.Rational {
	v = math.Abs(v)
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	mins := math.Floor(minutes)
	secs := (minutes - mins) * 60
	return []exifcommon.Rational{
		{Numerator: uint32(deg), Denominator: 1},
		{Numerator: uint32(mins), Denominator: 1},
		{Numerator: uint32(math.Round(secs * 10000)), Denominator: 10000},
	}
}

// BuildEXIF assembles IFD0 with its Exif and GPS sub-IFDs for tags. It
// returns nil when there is nothing to embed.
func BuildEXIF(tags metadata.ExportTags) (*exif.IfdBuilder, error) {
	if tags.IsEmpty() {
		return nil, nil
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("failed to load EXIF IFD mapping: %w", err)
	}
	ti := exif.NewTagIndex()
	root := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	ifd0 := &ifdWriter{ib: root}
	if tags.Camera.Make != "" {
		ifd0.set("Make", tags.Camera.Make)
	}
	if tags.Camera.Model != "" {
		ifd0.set("Model", tags.Camera.Model)
	}
	if tags.Camera.Software != "" {
		ifd0.set("Software", tags.Camera.Software)
	}
	if !tags.Exif.DateTimeOriginal.IsZero() {
		ifd0.set("DateTime", tags.Exif.DateTimeOriginal.Format(exifDateLayout))
	}
	if ifd0.err != nil {
		return nil, ifd0.err
	}

	if tags.Exif != (metadata.ExifTags{}) {
		ib, err := exif.GetOrCreateIbFromRootIb(root, exifIfdPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create Exif IFD: %w", err)
		}
		if err := writeExif(ib, tags.Exif); err != nil {
			return nil, err
		}
	}

	if tags.GPS != nil {
		ib, err := exif.GetOrCreateIbFromRootIb(root, gpsIfdPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create GPS IFD: %w", err)
		}
		if err := writeGPS(ib, tags.GPS); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func writeExif(ib *exif.IfdBuilder, t metadata.ExifTags) error {
	w := &ifdWriter{ib: ib}
	if t.ExposureTime > 0 {
		w.set("ExposureTime", []exifcommon.Rational{rational(t.ExposureTime)})
	}
	if t.FNumber > 0 {
		w.set("FNumber", []exifcommon.Rational{rational(t.FNumber)})
	}
	if t.ISO > 0 {
		w.set("ISOSpeedRatings", []uint16{uint16(min(t.ISO, math.MaxUint16))})
	}
	if !t.DateTimeOriginal.IsZero() {
		w.set("DateTimeOriginal", t.DateTimeOriginal.Format(exifDateLayout))
	}
	if t.FocalLength > 0 {
		w.set("FocalLength", []exifcommon.Rational{rational(t.FocalLength)})
	}
	if t.FocalLength35mm > 0 {
		w.set("FocalLengthIn35mmFilm", []uint16{uint16(min(math.Round(t.FocalLength35mm), math.MaxUint16))})
	}
	if t.LensModel != "" {
		w.set("LensModel", t.LensModel)
	}
	return w.err
}

func writeGPS(ib *exif.IfdBuilder, g *metadata.GPSTags) error {
	latRef, lonRef := "N", "E"
	if g.Latitude < 0 {
		latRef = "S"
	}
	if g.Longitude < 0 {
		lonRef = "W"
	}

	w := &ifdWriter{ib: ib}
	w.set("GPSVersionID", []uint8{2, 3, 0, 0})
	w.set("GPSLatitudeRef", latRef)
	w.set("GPSLatitude", dms(g.Latitude))
	w.set("GPSLongitudeRef", lonRef)
	w.set("GPSLongitude", dms(g.Longitude))
	if g.HasAltitude {
		var ref uint8
		if g.Altitude < 0 {
			ref = 1
		}
		w.set("GPSAltitudeRef", []uint8{ref})
		w.set("GPSAltitude", []exifcommon.Rational{rational(math.Abs(g.Altitude))})
	}
	return w.err
}

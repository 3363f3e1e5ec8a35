package metadata

import (
	"time"
)

// Location is a WGS 84 coordinate with optional altitude in metres.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    float64 `json:"altitude,omitempty"`
	HasAltitude bool    `json:"has_altitude,omitempty"`
}

// Record is the camera metadata of one video asset. Every field is
// optional; zero values mean the source did not provide it.
type Record struct {
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Software     string    `json:"software,omitempty"`
	CreationTime time.Time `json:"creation_time,omitempty"`
	Location     *Location `json:"location,omitempty"`

	LensModel       string  `json:"lens_model,omitempty"`
	FocalLength     float64 `json:"focal_length,omitempty"`
	FocalLength35mm float64 `json:"focal_length_35mm,omitempty"`
	Aperture        float64 `json:"aperture,omitempty"`
	ISO             int     `json:"iso,omitempty"`
	ExposureTime    float64 `json:"exposure_time,omitempty"`
}

// IsEmpty reports whether no field is set.
func (r Record) IsEmpty() bool {
	return r == Record{}
}

func (r Record) commonComplete() bool {
	return r.Make != "" && r.Model != "" && r.Software != "" &&
		!r.CreationTime.IsZero() && r.Location != nil
}

func (r Record) detailComplete() bool {
	return r.LensModel != "" && r.FocalLength > 0 && r.FocalLength35mm > 0 &&
		r.Aperture > 0 && r.ISO > 0 && r.ExposureTime > 0
}

// CameraTags are the IFD0 tags of an exported still.
type CameraTags struct {
	Make     string
	Model    string
	Software string
}

// ExifTags are the EXIF sub-IFD tags of an exported still.
type ExifTags struct {
	DateTimeOriginal time.Time
	LensModel        string
	FocalLength      float64
	FocalLength35mm  float64
	FNumber          float64
	ISO              int
	ExposureTime     float64
}

// GPSTags are the GPS sub-IFD tags of an exported still.
type GPSTags struct {
	Latitude    float64
	Longitude   float64
	Altitude    float64
	HasAltitude bool
}

// ExportTags groups every tag an exported still can carry.
type ExportTags struct {
	Camera CameraTags
	Exif   ExifTags
	GPS    *GPSTags
}

// IsEmpty reports whether there is nothing to embed.
func (t ExportTags) IsEmpty() bool {
	return t.Camera == CameraTags{} && t.Exif == ExifTags{} && t.GPS == nil
}

// Export projects the record into export tag groups. It only reads the
// record.
func (r Record) Export() ExportTags {
	tags := ExportTags{
		Camera: CameraTags{
			Make:     r.Make,
			Model:    r.Model,
			Software: r.Software,
		},
		Exif: ExifTags{
			DateTimeOriginal: r.CreationTime,
			LensModel:        r.LensModel,
			FocalLength:      r.FocalLength,
			FocalLength35mm:  r.FocalLength35mm,
			FNumber:          r.Aperture,
			ISO:              r.ISO,
			ExposureTime:     r.ExposureTime,
		},
	}
	if r.Location != nil {
		tags.GPS = &GPSTags{
			Latitude:    r.Location.Latitude,
			Longitude:   r.Location.Longitude,
			Altitude:    r.Location.Altitude,
			HasAltitude: r.Location.HasAltitude,
		}
	}
	return tags
}

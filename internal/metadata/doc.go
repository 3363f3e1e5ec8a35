// Package metadata extracts camera and location metadata from a video's
// ffprobe report and projects it into the tag groups embedded into
// exported stills.
//
// Extraction runs in two passes. The first reads well-known container keys
// (make, model, software, creation time, location) using the QuickTime,
// Android and generic spellings, stopping as soon as every common field is
// set. The second runs only when fields remain and scans every format and
// stream tag against an ordered list of case-insensitive substring rules.
// Camera metadata placement varies between encoders, so the second pass is
// best-effort rather than a schema.
//
// Locations are parsed from ISO 6709 strings such as
// "+34.0522-118.2437+025.000/". Malformed strings yield no location.
package metadata
